package learning

import (
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reverie-app/reverie/internal/db"
	"github.com/reverie-app/reverie/internal/errors"
)

// Store maintains decay-scored pattern statistics. One Store serves the
// whole process: there is a single learned-preference profile per
// installation.
type Store struct {
	db        *sql.DB
	halfLives map[Kind]float64

	// mu serializes observations per (kind, key) so a decay-then-add
	// cannot lose an update. Distinct keys proceed independently.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a Store. halfLifeOverrides maps kind strings to
// half-life days; unknown kinds are ignored.
func NewStore(database *sql.DB, halfLifeOverrides map[string]float64) *Store {
	overrides := make(map[Kind]float64)
	for raw, days := range halfLifeOverrides {
		kind := Kind(raw)
		if kind.Valid() && days > 0 {
			overrides[kind] = days
		}
	}
	return &Store{
		db:        database,
		halfLives: overrides,
		locks:     make(map[string]*sync.Mutex),
	}
}

// halfLifeFor returns the configured half-life for a kind.
func (s *Store) halfLifeFor(kind Kind) float64 {
	if days, ok := s.halfLives[kind]; ok {
		return days
	}
	return DefaultHalfLifeDays
}

// keyLock returns the mutex for one (kind, key) pair.
func (s *Store) keyLock(kind Kind, key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := string(kind) + "\x00" + key
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// Observe records one occurrence of a (kind, key) signal with the given
// weight. An existing row is decayed to now, then weight is added; an
// absent row starts at weight.
func (s *Store) Observe(kind Kind, key string, weight float64, now time.Time) error {
	if !kind.Valid() {
		return errors.NewValidation("unknown pattern kind: " + string(kind))
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.NewValidation("pattern key must not be blank")
	}
	if len(key) > MaxKeyChars {
		key = key[:MaxKeyChars]
	}
	if weight <= 0 {
		weight = 1.0
	}

	lock := s.keyLock(kind, key)
	lock.Lock()
	defer lock.Unlock()

	row, err := db.GetPatternRow(s.db, string(kind), key)
	if err != nil {
		return err
	}

	nowUnix := now.Unix()
	if row == nil {
		return db.UpsertPatternRow(s.db, &db.PatternRow{
			Kind:         string(kind),
			Key:          key,
			Score:        weight,
			Count:        1,
			FirstSeenAt:  nowUnix,
			LastSeenAt:   nowUnix,
			HalfLifeDays: s.halfLifeFor(kind),
		})
	}

	row.Score = decayScore(row.Score, row.LastSeenAt, row.HalfLifeDays, now) + weight
	row.Count++
	row.LastSeenAt = nowUnix
	return db.UpsertPatternRow(s.db, row)
}

// TopPatterns returns the limit highest-decayed-score patterns as of now,
// optionally filtered by kind. Ties break by most recent last-seen. Decay
// is computed at read time and never written back.
func (s *Store) TopPatterns(kind *Kind, limit int, now time.Time) ([]Pattern, error) {
	if limit <= 0 {
		return nil, nil
	}

	var kindFilter *string
	if kind != nil {
		if !kind.Valid() {
			return nil, errors.NewValidation("unknown pattern kind: " + string(*kind))
		}
		raw := string(*kind)
		kindFilter = &raw
	}

	rows, err := db.ListPatternRows(s.db, kindFilter)
	if err != nil {
		return nil, err
	}

	patterns := make([]Pattern, 0, len(rows))
	for _, row := range rows {
		patterns = append(patterns, Pattern{
			Kind:         Kind(row.Kind),
			Key:          row.Key,
			Score:        row.Score,
			Count:        row.Count,
			FirstSeenAt:  row.FirstSeenAt,
			LastSeenAt:   row.LastSeenAt,
			HalfLifeDays: row.HalfLifeDays,
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		si, sj := patterns[i].ScoreAt(now), patterns[j].ScoreAt(now)
		if si != sj {
			return si > sj
		}
		return patterns[i].LastSeenAt > patterns[j].LastSeenAt
	})

	if len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns, nil
}

// Reset deletes all pattern statistics. Used when the user clears their
// learned profile.
func (s *Store) Reset() error {
	return db.ResetPatternRows(s.db)
}
