package learning

import (
	"math"
	"time"
)

// Kind is one behavioral signal bucket. The set is closed; the string
// values are the stable wire form persisted to storage.
type Kind string

const (
	KindStylePreference    Kind = "stylePreference"
	KindWorkflowPreference Kind = "workflowPreference"
	KindTopicRecurrence    Kind = "topicRecurrence"
	KindResolutionPattern  Kind = "resolutionPattern"
	KindSensitivity        Kind = "sensitivity"
	KindNarrativePattern   Kind = "narrativePattern"
	KindLensPreference     Kind = "lensPreference"
	KindConstraintTrigger  Kind = "constraintTrigger"
	KindContractionPattern Kind = "contractionPattern"
	KindReleasePattern     Kind = "releasePattern"
)

// KnownKinds lists every valid pattern kind.
var KnownKinds = []Kind{
	KindStylePreference,
	KindWorkflowPreference,
	KindTopicRecurrence,
	KindResolutionPattern,
	KindSensitivity,
	KindNarrativePattern,
	KindLensPreference,
	KindConstraintTrigger,
	KindContractionPattern,
	KindReleasePattern,
}

// Valid reports whether k is in the closed kind set.
func (k Kind) Valid() bool {
	for _, known := range KnownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// DefaultHalfLifeDays controls decay rate for kinds without an override.
const DefaultHalfLifeDays = 14.0

// MaxKeyChars bounds the free-form pattern key.
const MaxKeyChars = 64

// Pattern is one decay-scored behavioral signal.
type Pattern struct {
	Kind         Kind
	Key          string
	Score        float64 // score as of LastSeenAt, before read-time decay
	Count        int64
	FirstSeenAt  int64
	LastSeenAt   int64
	HalfLifeDays float64
}

// ScoreAt returns the exponentially decayed score as of now:
// score * 2^(-Δt/halfLife). The stored score is never mutated here; decay
// is applied lazily at read time so scores are always "as of now" without
// a background ticker.
func (p Pattern) ScoreAt(now time.Time) float64 {
	return decayScore(p.Score, p.LastSeenAt, p.HalfLifeDays, now)
}

func decayScore(score float64, lastSeenAt int64, halfLifeDays float64, now time.Time) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}
	elapsed := now.Unix() - lastSeenAt
	if elapsed <= 0 {
		return score
	}
	days := float64(elapsed) / 86400.0
	return score * math.Exp2(-days/halfLifeDays)
}
