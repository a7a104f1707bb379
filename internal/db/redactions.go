package db

import (
	"database/sql"

	"github.com/reverie-app/reverie/internal/errors"
	"github.com/reverie-app/reverie/internal/turn"
)

// InsertRedactionRecord appends one redaction provenance entry.
// Records are immutable once created; a newer version for the same turn
// supersedes but never replaces older rows.
func InsertRedactionRecord(db *sql.DB, r *turn.RedactionRecord) error {
	query := `
		INSERT INTO redaction_records (turn_id, version, applied_at, input_hash, redacted_text)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := db.Exec(query,
		r.TurnID, r.Version, r.AppliedAt, int64(r.InputHash), r.RedactedText,
	)
	if err != nil {
		return errors.NewStorage(err)
	}
	if id, err := result.LastInsertId(); err == nil {
		r.ID = id
	}
	return nil
}

// ListRedactionRecords returns the provenance history for one turn,
// oldest version first.
func ListRedactionRecords(db *sql.DB, turnID string) ([]*turn.RedactionRecord, error) {
	query := `
		SELECT id, turn_id, version, applied_at, input_hash, redacted_text
		FROM redaction_records
		WHERE turn_id = ?
		ORDER BY version ASC, id ASC
	`
	rows, err := db.Query(query, turnID)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer rows.Close()

	var records []*turn.RedactionRecord
	for rows.Next() {
		var (
			r    turn.RedactionRecord
			hash int64
		)
		if err := rows.Scan(&r.ID, &r.TurnID, &r.Version, &r.AppliedAt, &hash, &r.RedactedText); err != nil {
			return nil, errors.NewStorage(err)
		}
		r.InputHash = uint64(hash)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return records, nil
}

// LatestRedactionRecord returns the newest provenance entry for a turn,
// or nil if none exists.
func LatestRedactionRecord(db *sql.DB, turnID string) (*turn.RedactionRecord, error) {
	query := `
		SELECT id, turn_id, version, applied_at, input_hash, redacted_text
		FROM redaction_records
		WHERE turn_id = ?
		ORDER BY version DESC, id DESC
		LIMIT 1
	`
	var (
		r    turn.RedactionRecord
		hash int64
	)
	err := db.QueryRow(query, turnID).Scan(&r.ID, &r.TurnID, &r.Version, &r.AppliedAt, &hash, &r.RedactedText)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	r.InputHash = uint64(hash)
	return &r, nil
}
