package capsule

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/reverie-app/reverie/internal/db"
	"github.com/reverie-app/reverie/internal/learning"
)

// Preferences holds the typed explicit settings.
type Preferences struct {
	// OutputStyle is the preferred style for generated reflections
	// (e.g. "concise", "exploratory"). Empty means unset.
	OutputStyle string `json:"output_style,omitempty"`

	// NoTherapyFraming asks the remote side to avoid therapeutic framing.
	NoTherapyFraming bool `json:"no_therapy_framing"`
}

// Capsule is the singleton preference/learning aggregate: explicit
// preferences plus gating for learned tendencies. Learned patterns
// themselves live in the learning store; disabling learning hides them at
// read time without deleting anything, so re-enabling restores prior
// learning instantly.
type Capsule struct {
	Version         int64             `json:"version"`
	LearningEnabled bool              `json:"learning_enabled"`
	UpdatedAt       int64             `json:"updated_at"`
	Preferences     Preferences       `json:"preferences"`
	Extras          map[string]string `json:"extras,omitempty"`
}

// Edits describes a preference merge. Nil fields are left untouched.
type Edits struct {
	OutputStyle      *string
	NoTherapyFraming *bool
	Extras           map[string]string
	RemoveExtras     []string
}

// Service owns the capsule singleton. Construct one per process and inject
// it; tests supply isolated instances over a temp database.
type Service struct {
	db    *sql.DB
	store *learning.Store

	// mu serializes capsule mutations (read-modify-write on one row).
	mu sync.Mutex
}

// NewService creates a capsule service backed by database and store.
func NewService(database *sql.DB, store *learning.Store) *Service {
	return &Service{db: database, store: store}
}

// Get returns the capsule, creating it with defaults on first access
// (version 1, learning enabled).
func (s *Service) Get() (*Capsule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked()
}

func (s *Service) getLocked() (*Capsule, error) {
	row, err := db.GetCapsuleRow(s.db)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &db.CapsuleRow{
			Version:         1,
			LearningEnabled: true,
			UpdatedAt:       time.Now().Unix(),
		}
		if err := db.SaveCapsuleRow(s.db, row); err != nil {
			return nil, err
		}
	}
	return fromRow(row), nil
}

// Update merges preference edits, bumps the version, and refreshes
// updatedAt.
func (s *Service) Update(edits Edits) (*Capsule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.getLocked()
	if err != nil {
		return nil, err
	}

	if edits.OutputStyle != nil {
		c.Preferences.OutputStyle = strings.TrimSpace(*edits.OutputStyle)
	}
	if edits.NoTherapyFraming != nil {
		c.Preferences.NoTherapyFraming = *edits.NoTherapyFraming
	}
	if len(edits.Extras) > 0 && c.Extras == nil {
		c.Extras = make(map[string]string, len(edits.Extras))
	}
	for k, v := range edits.Extras {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		c.Extras[k] = v
	}
	for _, k := range edits.RemoveExtras {
		delete(c.Extras, k)
	}

	c.Version++
	c.UpdatedAt = time.Now().Unix()
	if err := db.SaveCapsuleRow(s.db, toRow(c)); err != nil {
		return nil, err
	}
	return c, nil
}

// SetLearningEnabled flips the learning gate. Pattern statistics are never
// touched here: gating happens when the exporter reads the capsule.
func (s *Service) SetLearningEnabled(enabled bool) (*Capsule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.getLocked()
	if err != nil {
		return nil, err
	}
	if c.LearningEnabled == enabled {
		return c, nil
	}

	c.LearningEnabled = enabled
	c.Version++
	c.UpdatedAt = time.Now().Unix()
	if err := db.SaveCapsuleRow(s.db, toRow(c)); err != nil {
		return nil, err
	}
	return c, nil
}

// ResetLearnedProfile clears all learned patterns. Explicit preferences are
// untouched.
func (s *Service) ResetLearnedProfile() error {
	return s.store.Reset()
}

// TopPatterns surfaces the strongest learned patterns for export.
// Returns nil without reading the store when learning is disabled.
func (s *Service) TopPatterns(limit int, now time.Time) ([]learning.Pattern, error) {
	c, err := s.Get()
	if err != nil {
		return nil, err
	}
	if !c.LearningEnabled {
		return nil, nil
	}
	return s.store.TopPatterns(nil, limit, now)
}

func fromRow(row *db.CapsuleRow) *Capsule {
	return &Capsule{
		Version:         row.Version,
		LearningEnabled: row.LearningEnabled,
		UpdatedAt:       row.UpdatedAt,
		Preferences: Preferences{
			OutputStyle:      row.OutputStyle,
			NoTherapyFraming: row.NoTherapyFraming,
		},
		Extras: row.Extras,
	}
}

func toRow(c *Capsule) *db.CapsuleRow {
	return &db.CapsuleRow{
		Version:          c.Version,
		LearningEnabled:  c.LearningEnabled,
		UpdatedAt:        c.UpdatedAt,
		OutputStyle:      c.Preferences.OutputStyle,
		NoTherapyFraming: c.Preferences.NoTherapyFraming,
		Extras:           c.Extras,
	}
}
