package learning

import (
	"math"
	"testing"
	"time"

	"github.com/reverie-app/reverie/internal/db"
	"github.com/reverie-app/reverie/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database, nil)
}

func TestObserveCreatesRow(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	if err := store.Observe(KindTopicRecurrence, "work", 1.0, now); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	patterns, err := store.TopPatterns(nil, 10, now)
	if err != nil {
		t.Fatalf("TopPatterns failed: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("len = %d, want 1", len(patterns))
	}
	p := patterns[0]
	if p.Score != 1.0 || p.Count != 1 {
		t.Errorf("pattern = %+v, want score 1.0 count 1", p)
	}
	if p.FirstSeenAt != now.Unix() || p.LastSeenAt != now.Unix() {
		t.Errorf("timestamps = %d/%d, want %d", p.FirstSeenAt, p.LastSeenAt, now.Unix())
	}
	if p.HalfLifeDays != DefaultHalfLifeDays {
		t.Errorf("HalfLifeDays = %v, want default %v", p.HalfLifeDays, DefaultHalfLifeDays)
	}
}

func TestObserveDecayAtOneHalfLife(t *testing.T) {
	store := newTestStore(t)
	t0 := time.Unix(1_700_000_000, 0)
	t1 := t0.Add(time.Duration(DefaultHalfLifeDays * 24 * float64(time.Hour)))

	if err := store.Observe(KindTopicRecurrence, "work", 1.0, t0); err != nil {
		t.Fatalf("first Observe failed: %v", err)
	}
	if err := store.Observe(KindTopicRecurrence, "work", 1.0, t1); err != nil {
		t.Fatalf("second Observe failed: %v", err)
	}

	patterns, err := store.TopPatterns(nil, 1, t1)
	if err != nil {
		t.Fatalf("TopPatterns failed: %v", err)
	}
	// 0.5 carried over + 1.0 new.
	if got := patterns[0].ScoreAt(t1); math.Abs(got-1.5) > 1e-9 {
		t.Errorf("score after one half-life = %v, want 1.5", got)
	}
	if patterns[0].Count != 2 {
		t.Errorf("count = %d, want 2", patterns[0].Count)
	}
	if patterns[0].FirstSeenAt != t0.Unix() {
		t.Errorf("FirstSeenAt should not move: %d", patterns[0].FirstSeenAt)
	}
	if patterns[0].LastSeenAt != t1.Unix() {
		t.Errorf("LastSeenAt should refresh: %d", patterns[0].LastSeenAt)
	}
}

func TestTopPatternsLazyDecayNotWrittenBack(t *testing.T) {
	store := newTestStore(t)
	t0 := time.Unix(1_700_000_000, 0)
	later := t0.Add(28 * 24 * time.Hour) // two half-lives

	if err := store.Observe(KindSensitivity, "health", 4.0, t0); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	patterns, err := store.TopPatterns(nil, 1, later)
	if err != nil {
		t.Fatalf("TopPatterns failed: %v", err)
	}
	if got := patterns[0].ScoreAt(later); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("decayed score = %v, want 1.0", got)
	}
	// Stored score stays as-of-last-write.
	if patterns[0].Score != 4.0 {
		t.Errorf("stored score = %v, want 4.0 (decay must not be written back)", patterns[0].Score)
	}
}

func TestTopPatternsOrderingAndTies(t *testing.T) {
	store := newTestStore(t)
	t0 := time.Unix(1_700_000_000, 0)

	halfLife := t0.Add(time.Duration(DefaultHalfLifeDays * 24 * float64(time.Hour)))

	// "work" at weight 2.0 decays to 1.0 over one half-life, exactly tying
	// "brief" observed at weight 1.0 at read time.
	if err := store.Observe(KindTopicRecurrence, "work", 2.0, t0); err != nil {
		t.Fatal(err)
	}
	if err := store.Observe(KindTopicRecurrence, "family", 5.0, halfLife); err != nil {
		t.Fatal(err)
	}
	if err := store.Observe(KindStylePreference, "brief", 1.0, halfLife); err != nil {
		t.Fatal(err)
	}

	patterns, err := store.TopPatterns(nil, 10, halfLife)
	if err != nil {
		t.Fatalf("TopPatterns failed: %v", err)
	}
	if len(patterns) != 3 {
		t.Fatalf("len = %d, want 3", len(patterns))
	}
	if patterns[0].Key != "family" {
		t.Errorf("patterns[0] = %q, want family", patterns[0].Key)
	}
	// work and brief both score 1.0 as of the read; the more recently seen
	// "brief" wins the tie.
	if patterns[1].Key != "brief" {
		t.Errorf("patterns[1] = %q, want brief (tie broken by most recent lastSeen)", patterns[1].Key)
	}
}

func TestTopPatternsKindFilterAndLimit(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	for _, key := range []string{"work", "family", "sleep"} {
		if err := store.Observe(KindTopicRecurrence, key, 1.0, now); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Observe(KindLensPreference, "stoic", 9.0, now); err != nil {
		t.Fatal(err)
	}

	kind := KindTopicRecurrence
	patterns, err := store.TopPatterns(&kind, 2, now)
	if err != nil {
		t.Fatalf("TopPatterns failed: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("len = %d, want limit 2", len(patterns))
	}
	for _, p := range patterns {
		if p.Kind != KindTopicRecurrence {
			t.Errorf("kind filter leaked: %+v", p)
		}
	}
}

func TestObserveRejectsInvalidInput(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	if err := store.Observe(Kind("vibes"), "x", 1.0, now); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("unknown kind: err = %v, want VALIDATION", err)
	}
	if err := store.Observe(KindTopicRecurrence, "   ", 1.0, now); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("blank key: err = %v, want VALIDATION", err)
	}
}

func TestObserveDefaultsWeight(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	if err := store.Observe(KindReleasePattern, "walks", 0, now); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	patterns, err := store.TopPatterns(nil, 1, now)
	if err != nil {
		t.Fatalf("TopPatterns failed: %v", err)
	}
	if patterns[0].Score != 1.0 {
		t.Errorf("score = %v, want default weight 1.0", patterns[0].Score)
	}
}

func TestHalfLifeOverridePerKind(t *testing.T) {
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	defer database.Close()

	store := NewStore(database, map[string]float64{
		"sensitivity": 7,
		"notakind":    3, // ignored
	})

	now := time.Now()
	if err := store.Observe(KindSensitivity, "health", 1.0, now); err != nil {
		t.Fatal(err)
	}
	if err := store.Observe(KindTopicRecurrence, "work", 1.0, now); err != nil {
		t.Fatal(err)
	}

	patterns, err := store.TopPatterns(nil, 10, now)
	if err != nil {
		t.Fatalf("TopPatterns failed: %v", err)
	}
	for _, p := range patterns {
		switch p.Kind {
		case KindSensitivity:
			if p.HalfLifeDays != 7 {
				t.Errorf("sensitivity half-life = %v, want 7", p.HalfLifeDays)
			}
		case KindTopicRecurrence:
			if p.HalfLifeDays != DefaultHalfLifeDays {
				t.Errorf("topic half-life = %v, want default", p.HalfLifeDays)
			}
		}
	}
}

func TestReset(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	if err := store.Observe(KindTopicRecurrence, "work", 1.0, now); err != nil {
		t.Fatal(err)
	}
	if err := store.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	patterns, err := store.TopPatterns(nil, 10, now)
	if err != nil {
		t.Fatalf("TopPatterns failed: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("patterns after reset = %d, want 0", len(patterns))
	}
}
