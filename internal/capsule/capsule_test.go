package capsule

import (
	"testing"
	"time"

	"github.com/reverie-app/reverie/internal/db"
	"github.com/reverie-app/reverie/internal/learning"
)

func newTestService(t *testing.T) (*Service, *learning.Store) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	store := learning.NewStore(database, nil)
	return NewService(database, store), store
}

func TestGetInitializesDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	c, err := svc.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if c.Version != 1 {
		t.Errorf("Version = %d, want 1", c.Version)
	}
	if !c.LearningEnabled {
		t.Error("learning should be enabled by default")
	}
	if c.UpdatedAt == 0 {
		t.Error("UpdatedAt should be set on first access")
	}

	// Second Get returns the same singleton, not a fresh one.
	again, err := svc.Get()
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if again.Version != 1 || again.UpdatedAt != c.UpdatedAt {
		t.Errorf("singleton should persist: %+v vs %+v", again, c)
	}
}

func TestUpdateMergesAndBumpsVersion(t *testing.T) {
	svc, _ := newTestService(t)

	style := "concise"
	noTherapy := true
	c, err := svc.Update(Edits{
		OutputStyle:      &style,
		NoTherapyFraming: &noTherapy,
		Extras:           map[string]string{"tone": "warm"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if c.Version != 2 {
		t.Errorf("Version = %d, want 2", c.Version)
	}
	if c.Preferences.OutputStyle != "concise" || !c.Preferences.NoTherapyFraming {
		t.Errorf("preferences = %+v", c.Preferences)
	}
	if c.Extras["tone"] != "warm" {
		t.Errorf("extras = %v", c.Extras)
	}

	// Partial edit leaves other fields alone.
	c, err = svc.Update(Edits{Extras: map[string]string{"length": "short"}})
	if err != nil {
		t.Fatalf("second Update failed: %v", err)
	}
	if c.Version != 3 {
		t.Errorf("Version = %d, want 3", c.Version)
	}
	if c.Preferences.OutputStyle != "concise" {
		t.Errorf("OutputStyle should survive partial edit: %q", c.Preferences.OutputStyle)
	}
	if c.Extras["tone"] != "warm" || c.Extras["length"] != "short" {
		t.Errorf("extras = %v", c.Extras)
	}

	// Removal.
	c, err = svc.Update(Edits{RemoveExtras: []string{"tone"}})
	if err != nil {
		t.Fatalf("third Update failed: %v", err)
	}
	if _, ok := c.Extras["tone"]; ok {
		t.Error("removed extra should be gone")
	}
}

func TestSetLearningEnabledGatesWithoutDeleting(t *testing.T) {
	svc, store := newTestService(t)
	now := time.Now()

	if err := store.Observe(learning.KindTopicRecurrence, "work", 3.0, now); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.SetLearningEnabled(false); err != nil {
		t.Fatalf("SetLearningEnabled failed: %v", err)
	}
	patterns, err := svc.TopPatterns(10, now)
	if err != nil {
		t.Fatalf("TopPatterns failed: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("disabled learning should hide patterns, got %d", len(patterns))
	}

	// Re-enabling restores prior learning instantly: nothing was deleted.
	if _, err := svc.SetLearningEnabled(true); err != nil {
		t.Fatalf("SetLearningEnabled failed: %v", err)
	}
	patterns, err = svc.TopPatterns(10, now)
	if err != nil {
		t.Fatalf("TopPatterns failed: %v", err)
	}
	if len(patterns) != 1 {
		t.Errorf("re-enabled learning should surface patterns again, got %d", len(patterns))
	}
}

func TestSetLearningEnabledNoOpKeepsVersion(t *testing.T) {
	svc, _ := newTestService(t)

	c, err := svc.SetLearningEnabled(true) // already the default
	if err != nil {
		t.Fatalf("SetLearningEnabled failed: %v", err)
	}
	if c.Version != 1 {
		t.Errorf("no-op toggle should not bump version: %d", c.Version)
	}
}

func TestResetLearnedProfileKeepsPreferences(t *testing.T) {
	svc, store := newTestService(t)
	now := time.Now()

	style := "poetic"
	if _, err := svc.Update(Edits{OutputStyle: &style}); err != nil {
		t.Fatal(err)
	}
	if err := store.Observe(learning.KindSensitivity, "health", 1.0, now); err != nil {
		t.Fatal(err)
	}

	if err := svc.ResetLearnedProfile(); err != nil {
		t.Fatalf("ResetLearnedProfile failed: %v", err)
	}

	patterns, err := store.TopPatterns(nil, 10, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(patterns) != 0 {
		t.Errorf("patterns should be cleared, got %d", len(patterns))
	}

	c, err := svc.Get()
	if err != nil {
		t.Fatal(err)
	}
	if c.Preferences.OutputStyle != "poetic" {
		t.Errorf("explicit preferences must survive a learned-profile reset: %q", c.Preferences.OutputStyle)
	}
}
