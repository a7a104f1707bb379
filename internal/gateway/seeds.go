package gateway

import (
	"github.com/reverie-app/reverie/internal/fingerprint"
)

// Seed prompts shown when the gateway is unreachable. They carry no
// user-specific content and rotate deterministically per transcript so
// the same turn always gets the same fallback.
var seeds = []string{
	"What part of this still feels unfinished?",
	"If you said this to a friend, what would they notice first?",
	"What would it look like to hold this more lightly?",
	"Is there a smaller version of this worth trying tomorrow?",
	"What did you already know before you started talking?",
	"Where in this do you have more choice than it feels like?",
}

// SeedFor picks a fallback reflection prompt for the given redacted
// transcript.
func SeedFor(redactedText string) string {
	idx := fingerprint.Hash64(redactedText) % uint64(len(seeds))
	return seeds[idx]
}
