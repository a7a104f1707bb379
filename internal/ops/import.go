package ops

import (
	"database/sql"
	"strings"
	"time"

	"github.com/reverie-app/reverie/internal/db"
	"github.com/reverie-app/reverie/internal/errors"
	"github.com/reverie-app/reverie/internal/turn"
)

// CreateTextImportInput contains parameters for the CreateTextImport operation.
type CreateTextImportInput struct {
	// Text becomes the canonical redacted transcript. The caller is
	// responsible for having redacted it; no raw transcript is stored.
	Text       string
	RecordedAt int64        // Unix seconds; 0 means now
	Context    turn.Context // defaults to unknown
	Title      string       // optional
}

// CreateTextImportOutput contains the result of the CreateTextImport operation.
type CreateTextImportOutput struct {
	ID string `json:"id"`
}

// CreateTextImport creates a turn directly in the ready state, skipping the
// audio pipeline. Blank or whitespace-only text is rejected with a
// validation error and no record is created.
func CreateTextImport(database *sql.DB, input CreateTextImportInput) (*CreateTextImportOutput, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, errors.NewValidation("text must not be blank")
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	now := time.Now().Unix()
	recordedAt := input.RecordedAt
	if recordedAt == 0 {
		recordedAt = now
	}

	// Text imports start with an empty learning snapshot; the hash is
	// filled in when the first reflect call goes out for this turn.
	emptySnapshot := ""

	t := &turn.Turn{
		ID:                  id,
		Source:              turn.SourceTextImport,
		Context:             turn.ParseContext(string(input.Context)),
		State:               turn.StateReady,
		Title:               strings.TrimSpace(input.Title),
		RecordedAt:          recordedAt,
		TranscriptRedacted:  input.Text,
		CapsuleSnapshotHash: &emptySnapshot,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := db.InsertTurn(database, t); err != nil {
		return nil, err
	}
	return &CreateTextImportOutput{ID: id}, nil
}
