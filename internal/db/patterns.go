package db

import (
	"database/sql"

	"github.com/reverie-app/reverie/internal/errors"
)

// PatternRow is the stored form of one (kind, key) pattern statistic.
// Score is the value as of LastSeenAt; decay is applied by the learning
// store at read time, never written back outside an observation.
type PatternRow struct {
	Kind         string
	Key          string
	Score        float64
	Count        int64
	FirstSeenAt  int64
	LastSeenAt   int64
	HalfLifeDays float64
}

// GetPatternRow retrieves one pattern statistic, or nil if absent.
func GetPatternRow(db *sql.DB, kind, key string) (*PatternRow, error) {
	query := `
		SELECT kind, key, score, count, first_seen_at, last_seen_at, half_life_days
		FROM pattern_stats
		WHERE kind = ? AND key = ?
	`
	var row PatternRow
	err := db.QueryRow(query, kind, key).Scan(
		&row.Kind, &row.Key, &row.Score, &row.Count,
		&row.FirstSeenAt, &row.LastSeenAt, &row.HalfLifeDays,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return &row, nil
}

// UpsertPatternRow inserts or replaces one pattern statistic.
func UpsertPatternRow(db *sql.DB, row *PatternRow) error {
	query := `
		INSERT INTO pattern_stats (kind, key, score, count, first_seen_at, last_seen_at, half_life_days)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, key) DO UPDATE SET
			score = excluded.score,
			count = excluded.count,
			last_seen_at = excluded.last_seen_at,
			half_life_days = excluded.half_life_days
	`
	_, err := db.Exec(query,
		row.Kind, row.Key, row.Score, row.Count,
		row.FirstSeenAt, row.LastSeenAt, row.HalfLifeDays,
	)
	if err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// ListPatternRows returns all pattern statistics, optionally filtered by kind.
func ListPatternRows(db *sql.DB, kind *string) ([]*PatternRow, error) {
	query := `
		SELECT kind, key, score, count, first_seen_at, last_seen_at, half_life_days
		FROM pattern_stats
	`
	args := []any{}
	if kind != nil {
		query += ` WHERE kind = ?`
		args = append(args, *kind)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer rows.Close()

	var result []*PatternRow
	for rows.Next() {
		var row PatternRow
		if err := rows.Scan(
			&row.Kind, &row.Key, &row.Score, &row.Count,
			&row.FirstSeenAt, &row.LastSeenAt, &row.HalfLifeDays,
		); err != nil {
			return nil, errors.NewStorage(err)
		}
		result = append(result, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return result, nil
}

// ResetPatternRows deletes all pattern statistics.
func ResetPatternRows(db *sql.DB) error {
	if _, err := db.Exec(`DELETE FROM pattern_stats`); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}
