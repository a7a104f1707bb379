package db

import (
	"database/sql"
	"time"

	"github.com/reverie-app/reverie/internal/errors"
	"github.com/reverie-app/reverie/internal/turn"
)

const turnColumns = `id, source, context, state, title,
	recorded_at, ended_at, duration_secs,
	audio_path, audio_bytes,
	transcript_raw, transcript_redacted,
	redaction_version, redaction_at, redaction_input_hash,
	transcription_provider, transcription_locale, reflect_provider,
	prompt_version, toolchain_version, capsule_snapshot_hash,
	processing_started_at, processing_finished_at,
	err_domain, err_code, err_user_key, err_debug,
	created_at, updated_at`

// InsertTurn stores a new turn.
func InsertTurn(db *sql.DB, t *turn.Turn) error {
	query := `
		INSERT INTO turns (` + turnColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query,
		t.ID, string(t.Source), string(t.Context), string(t.State), t.Title,
		t.RecordedAt, toNullInt64(t.EndedAt), t.DurationSecs,
		toNullString(t.AudioPath), t.AudioBytes,
		toNullString(t.TranscriptRaw), t.TranscriptRedacted,
		t.RedactionVersion, toNullInt64(t.RedactionAt), hashToNull(t.RedactionInputHash),
		toNullString(t.TranscriptionProvider), toNullString(t.TranscriptionLocale), toNullString(t.ReflectProvider),
		toNullString(t.PromptVersion), toNullString(t.ToolchainVersion), toNullString(t.CapsuleSnapshotHash),
		toNullInt64(t.ProcessingStartedAt), toNullInt64(t.ProcessingFinishedAt),
		toNullString(t.ErrDomain), toNullString(t.ErrCode), toNullString(t.ErrUserKey), toNullString(t.ErrDebug),
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// GetTurn retrieves a turn by its ULID.
func GetTurn(db *sql.DB, id string) (*turn.Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM turns WHERE id = ?`

	row := db.QueryRow(query, id)
	t, err := scanTurn(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return t, nil
}

// UpdateTurn rewrites all mutable fields of an existing turn.
// Sets updated_at to current time. Does NOT change: id, source, created_at.
func UpdateTurn(db *sql.DB, t *turn.Turn) error {
	now := time.Now().Unix()

	query := `
		UPDATE turns
		SET context = ?, state = ?, title = ?,
			recorded_at = ?, ended_at = ?, duration_secs = ?,
			audio_path = ?, audio_bytes = ?,
			transcript_raw = ?, transcript_redacted = ?,
			redaction_version = ?, redaction_at = ?, redaction_input_hash = ?,
			transcription_provider = ?, transcription_locale = ?, reflect_provider = ?,
			prompt_version = ?, toolchain_version = ?, capsule_snapshot_hash = ?,
			processing_started_at = ?, processing_finished_at = ?,
			err_domain = ?, err_code = ?, err_user_key = ?, err_debug = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := db.Exec(query,
		string(t.Context), string(t.State), t.Title,
		t.RecordedAt, toNullInt64(t.EndedAt), t.DurationSecs,
		toNullString(t.AudioPath), t.AudioBytes,
		toNullString(t.TranscriptRaw), t.TranscriptRedacted,
		t.RedactionVersion, toNullInt64(t.RedactionAt), hashToNull(t.RedactionInputHash),
		toNullString(t.TranscriptionProvider), toNullString(t.TranscriptionLocale), toNullString(t.ReflectProvider),
		toNullString(t.PromptVersion), toNullString(t.ToolchainVersion), toNullString(t.CapsuleSnapshotHash),
		toNullInt64(t.ProcessingStartedAt), toNullInt64(t.ProcessingFinishedAt),
		toNullString(t.ErrDomain), toNullString(t.ErrCode), toNullString(t.ErrUserKey), toNullString(t.ErrDebug),
		now, t.ID,
	)
	if err != nil {
		return errors.NewStorage(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStorage(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(t.ID)
	}

	t.UpdatedAt = now
	return nil
}

// DeleteTurn removes a turn row and its redaction provenance.
func DeleteTurn(db *sql.DB, id string) error {
	result, err := db.Exec(`DELETE FROM turns WHERE id = ?`, id)
	if err != nil {
		return errors.NewStorage(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStorage(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}

	// Provenance rows are only meaningful while the turn exists.
	if _, err := db.Exec(`DELETE FROM redaction_records WHERE turn_id = ?`, id); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// ListTurns returns turns newest-first, optionally filtered by state.
func ListTurns(db *sql.DB, state *turn.State, limit, offset int) ([]*turn.Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM turns`
	args := []any{}
	if state != nil {
		query += ` WHERE state = ?`
		args = append(args, string(*state))
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer rows.Close()

	var turns []*turn.Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, errors.NewStorage(err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return turns, nil
}

// CountTurns returns the number of turns, optionally filtered by state.
func CountTurns(db *sql.DB, state *turn.State) (int, error) {
	query := `SELECT COUNT(*) FROM turns`
	args := []any{}
	if state != nil {
		query += ` WHERE state = ?`
		args = append(args, string(*state))
	}

	var count int
	if err := db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.NewStorage(err)
	}
	return count, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanTurn.
type scanner interface {
	Scan(dest ...any) error
}

// scanTurn scans a single row into a Turn struct.
func scanTurn(row scanner) (*turn.Turn, error) {
	var (
		t                     turn.Turn
		source, context       string
		state                 string
		endedAt               sql.NullInt64
		audioPath             sql.NullString
		transcriptRaw         sql.NullString
		redactionAt           sql.NullInt64
		redactionInputHash    sql.NullInt64
		transcriptionProvider sql.NullString
		transcriptionLocale   sql.NullString
		reflectProvider       sql.NullString
		promptVersion         sql.NullString
		toolchainVersion      sql.NullString
		capsuleSnapshotHash   sql.NullString
		processingStartedAt   sql.NullInt64
		processingFinishedAt  sql.NullInt64
		errDomain             sql.NullString
		errCode               sql.NullString
		errUserKey            sql.NullString
		errDebug              sql.NullString
	)

	err := row.Scan(
		&t.ID, &source, &context, &state, &t.Title,
		&t.RecordedAt, &endedAt, &t.DurationSecs,
		&audioPath, &t.AudioBytes,
		&transcriptRaw, &t.TranscriptRedacted,
		&t.RedactionVersion, &redactionAt, &redactionInputHash,
		&transcriptionProvider, &transcriptionLocale, &reflectProvider,
		&promptVersion, &toolchainVersion, &capsuleSnapshotHash,
		&processingStartedAt, &processingFinishedAt,
		&errDomain, &errCode, &errUserKey, &errDebug,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Source = turn.ParseSource(source)
	t.Context = turn.ParseContext(context)
	t.State = turn.ParseState(state)
	t.EndedAt = fromNullInt64(endedAt)
	t.AudioPath = fromNullString(audioPath)
	t.TranscriptRaw = fromNullString(transcriptRaw)
	t.RedactionAt = fromNullInt64(redactionAt)
	t.RedactionInputHash = hashFromNull(redactionInputHash)
	t.TranscriptionProvider = fromNullString(transcriptionProvider)
	t.TranscriptionLocale = fromNullString(transcriptionLocale)
	t.ReflectProvider = fromNullString(reflectProvider)
	t.PromptVersion = fromNullString(promptVersion)
	t.ToolchainVersion = fromNullString(toolchainVersion)
	t.CapsuleSnapshotHash = fromNullString(capsuleSnapshotHash)
	t.ProcessingStartedAt = fromNullInt64(processingStartedAt)
	t.ProcessingFinishedAt = fromNullInt64(processingFinishedAt)
	t.ErrDomain = fromNullString(errDomain)
	t.ErrCode = fromNullString(errCode)
	t.ErrUserKey = fromNullString(errUserKey)
	t.ErrDebug = fromNullString(errDebug)

	return &t, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// toNullInt64 converts a *int64 to sql.NullInt64.
func toNullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// fromNullInt64 converts a sql.NullInt64 to *int64.
func fromNullInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}

// hashToNull stores a *uint64 fingerprint in an INTEGER column.
// SQLite integers are signed 64-bit; the bit pattern round-trips.
func hashToNull(h *uint64) sql.NullInt64 {
	if h == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*h), Valid: true}
}

// hashFromNull reads a *uint64 fingerprint back from an INTEGER column.
func hashFromNull(ni sql.NullInt64) *uint64 {
	if !ni.Valid {
		return nil
	}
	h := uint64(ni.Int64)
	return &h
}
