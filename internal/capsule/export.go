package capsule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/reverie-app/reverie/internal/fingerprint"
	"github.com/reverie-app/reverie/internal/learning"
)

// Mode selects how much learned context a snapshot carries.
type Mode string

const (
	// ModeReflect is a single-shot request (reflect/options/questions/
	// perspective).
	ModeReflect Mode = "reflect"

	// ModeTalk is a multi-turn continuation; it carries fewer cues since
	// the thread already has context.
	ModeTalk Mode = "talk"
)

// Export bounds. The snapshot is strictly size- and content-capped for
// privacy and payload-size reasons.
const (
	MaxPreferenceEntries  = 24
	MaxPreferenceKeyChars = 32
	MaxPreferenceValChars = 128
	MaxReflectCues        = 12
	MaxTalkCues           = 4
	MaxCueStatementChars  = 128
)

// LearnedCue is one exported tendency. It carries a synthesized statement
// and evidence metadata, never raw user text.
type LearnedCue struct {
	Statement     string `json:"statement"`
	EvidenceCount int64  `json:"evidenceCount"`
	LastSeenAtISO string `json:"lastSeenAtISO"`
	KindRaw       string `json:"kindRaw,omitempty"`
	Key           string `json:"key,omitempty"`
}

// Snapshot is the bounded projection of a Capsule for one outbound request.
// Ephemeral and derived; never persisted.
type Snapshot struct {
	Version     int64             `json:"version"`
	UpdatedAt   string            `json:"updatedAt"`
	Preferences map[string]string `json:"preferences"`

	// LearnedCues is omitted entirely (not an empty list) when learning is
	// disabled or no cues survive the bounds.
	LearnedCues []LearnedCue `json:"learnedCues,omitempty"`
}

// Hash fingerprints the snapshot's canonical JSON form, for debug tracing
// of which capsule accompanied a request.
func (s Snapshot) Hash() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return fingerprint.Hex(string(data))
}

// Project builds the outbound snapshot for one request. It never fails:
// malformed or oversized inputs are truncated or dropped, because the
// output feeds a best-effort remote call that must degrade gracefully
// rather than block the local pipeline.
func Project(c *Capsule, mode Mode, patterns []learning.Pattern) Snapshot {
	snap := Snapshot{
		Version:     c.Version,
		UpdatedAt:   time.Unix(c.UpdatedAt, 0).UTC().Format(time.RFC3339),
		Preferences: make(map[string]string),
	}

	// Typed fields: strings only when non-blank, booleans always, as
	// literal "true"/"false" for wire uniformity.
	if style := strings.TrimSpace(c.Preferences.OutputStyle); style != "" {
		snap.Preferences["output_style"] = truncate(style, MaxPreferenceValChars)
	}
	snap.Preferences["no_therapy_framing"] = fmt.Sprintf("%t", c.Preferences.NoTherapyFraming)

	// Free-form extras: sorted by key for determinism, capped in count,
	// keys and values truncated, blanks dropped.
	keys := make([]string, 0, len(c.Extras))
	for k := range c.Extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(snap.Preferences) >= MaxPreferenceEntries {
			break
		}
		key := truncate(strings.TrimSpace(k), MaxPreferenceKeyChars)
		val := truncate(strings.TrimSpace(c.Extras[k]), MaxPreferenceValChars)
		if key == "" || val == "" {
			continue
		}
		if _, exists := snap.Preferences[key]; exists {
			continue
		}
		snap.Preferences[key] = val
	}

	// Learned cues: only when enabled AND non-empty, otherwise absent.
	if !c.LearningEnabled {
		return snap
	}
	maxCues := MaxReflectCues
	if mode == ModeTalk {
		maxCues = MaxTalkCues
	}
	for _, p := range patterns {
		if len(snap.LearnedCues) >= maxCues {
			break
		}
		statement := cueStatement(p)
		if statement == "" {
			continue
		}
		snap.LearnedCues = append(snap.LearnedCues, LearnedCue{
			Statement:     truncate(statement, MaxCueStatementChars),
			EvidenceCount: p.Count,
			LastSeenAtISO: time.Unix(p.LastSeenAt, 0).UTC().Format(time.RFC3339),
			KindRaw:       string(p.Kind),
			Key:           p.Key,
		})
	}
	return snap
}

// cueStatement synthesizes a short human-readable statement from a pattern.
// Statements are built from the (kind, key) pair only; raw transcript text
// never reaches a snapshot.
func cueStatement(p learning.Pattern) string {
	key := strings.TrimSpace(p.Key)
	if key == "" {
		return ""
	}
	switch p.Kind {
	case learning.KindStylePreference:
		return fmt.Sprintf("Tends to prefer a %s style", key)
	case learning.KindWorkflowPreference:
		return fmt.Sprintf("Tends to work through things by %s", key)
	case learning.KindTopicRecurrence:
		return fmt.Sprintf("Often returns to the topic of %s", key)
	case learning.KindResolutionPattern:
		return fmt.Sprintf("Often resolves tension through %s", key)
	case learning.KindSensitivity:
		return fmt.Sprintf("Is sensitive around %s", key)
	case learning.KindNarrativePattern:
		return fmt.Sprintf("Often frames experiences as %s", key)
	case learning.KindLensPreference:
		return fmt.Sprintf("Responds well to a %s lens", key)
	case learning.KindConstraintTrigger:
		return fmt.Sprintf("Feels constrained by %s", key)
	case learning.KindContractionPattern:
		return fmt.Sprintf("Tends to contract around %s", key)
	case learning.KindReleasePattern:
		return fmt.Sprintf("Finds release through %s", key)
	}
	return ""
}

// truncate caps s at max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
