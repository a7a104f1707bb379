package db

import (
	"database/sql"
	"encoding/json"

	"github.com/reverie-app/reverie/internal/errors"
)

// capsuleSingletonID keys the single capsule row. There is exactly one
// learned-preference profile per installation.
const capsuleSingletonID = "singleton"

// CapsuleRow is the stored form of the capsule singleton.
type CapsuleRow struct {
	Version          int64
	LearningEnabled  bool
	UpdatedAt        int64
	OutputStyle      string
	NoTherapyFraming bool
	Extras           map[string]string
}

// GetCapsuleRow retrieves the capsule singleton, or nil if it has never
// been created.
func GetCapsuleRow(db *sql.DB) (*CapsuleRow, error) {
	query := `
		SELECT version, learning_enabled, updated_at, output_style, no_therapy_framing, extras_json
		FROM capsule
		WHERE id = ?
	`
	var (
		row        CapsuleRow
		learning   int
		noTherapy  int
		extrasJSON sql.NullString
	)
	err := db.QueryRow(query, capsuleSingletonID).Scan(
		&row.Version, &learning, &row.UpdatedAt, &row.OutputStyle, &noTherapy, &extrasJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}

	row.LearningEnabled = learning != 0
	row.NoTherapyFraming = noTherapy != 0
	if extrasJSON.Valid && extrasJSON.String != "" {
		if err := json.Unmarshal([]byte(extrasJSON.String), &row.Extras); err != nil {
			return nil, errors.NewInternal(err)
		}
	}
	return &row, nil
}

// SaveCapsuleRow inserts or replaces the capsule singleton.
func SaveCapsuleRow(db *sql.DB, row *CapsuleRow) error {
	var extrasJSON sql.NullString
	if len(row.Extras) > 0 {
		data, err := json.Marshal(row.Extras)
		if err != nil {
			return errors.NewInternal(err)
		}
		extrasJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO capsule (id, version, learning_enabled, updated_at, output_style, no_therapy_framing, extras_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			version = excluded.version,
			learning_enabled = excluded.learning_enabled,
			updated_at = excluded.updated_at,
			output_style = excluded.output_style,
			no_therapy_framing = excluded.no_therapy_framing,
			extras_json = excluded.extras_json
	`
	_, err := db.Exec(query,
		capsuleSingletonID, row.Version, boolToInt(row.LearningEnabled), row.UpdatedAt,
		row.OutputStyle, boolToInt(row.NoTherapyFraming), extrasJSON,
	)
	if err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
