package redact

import (
	"sort"
	"strings"

	"github.com/reverie-app/reverie/internal/fingerprint"
)

// DefaultPlaceholder replaces every matched token when the dictionary does
// not configure its own placeholder.
const DefaultPlaceholder = "[redacted]"

// Dictionary is a versioned token-substitution dictionary.
type Dictionary struct {
	// Version tags the dictionary revision; persisted with every
	// redaction application so re-runs can be skipped when nothing changed.
	Version int

	// Tokens are matched case-insensitively as exact substrings.
	Tokens []string

	// Placeholder overrides DefaultPlaceholder when non-empty.
	Placeholder string
}

func (d Dictionary) placeholder() string {
	if d.Placeholder != "" {
		return d.Placeholder
	}
	return DefaultPlaceholder
}

// Redact substitutes every dictionary token in raw with the placeholder and
// returns the redacted text plus the FNV-1a fingerprint of the pre-redaction
// input. Tokens are applied longest-first so a shorter token can never
// partially mask a longer one. The engine is stateless and never caches;
// callers may skip a re-run when both the input hash and the dictionary
// version are unchanged.
func Redact(raw string, dict Dictionary) (string, uint64) {
	inputHash := fingerprint.Hash64(raw)

	tokens := make([]string, 0, len(dict.Tokens))
	for _, tok := range dict.Tokens {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	// Longest token first; ties broken lexicographically for a single
	// consistent scan order.
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	out := raw
	for _, tok := range tokens {
		out = replaceFold(out, tok, dict.placeholder())
	}
	return out, inputHash
}

// replaceFold replaces every case-insensitive occurrence of token in s.
func replaceFold(s, token, repl string) string {
	lower := strings.ToLower(s)
	lt := strings.ToLower(token)
	if len(lower) != len(s) {
		// Case folding changed byte offsets (non-ASCII input); fall back
		// to exact matching rather than risk mangled offsets.
		return strings.ReplaceAll(s, token, repl)
	}

	var b strings.Builder
	for {
		i := strings.Index(lower, lt)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(repl)
		s = s[i+len(lt):]
		lower = lower[i+len(lt):]
	}
}
