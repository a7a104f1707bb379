package ops

import (
	"database/sql"
	"time"

	"github.com/reverie-app/reverie/internal/db"
	"github.com/reverie-app/reverie/internal/errors"
	"github.com/reverie-app/reverie/internal/turn"
)

// CreateCaptureInput contains parameters for the CreateCapture operation.
type CreateCaptureInput struct {
	AudioPath  string       // optional; set when the recorder has a file already
	RecordedAt int64        // Unix seconds; 0 means now
	Context    turn.Context // defaults to unknown
}

// CreateCaptureOutput contains the result of the CreateCapture operation.
type CreateCaptureOutput struct {
	ID string `json:"id"`
}

// CreateCapture allocates a new turn in the queued state and persists it.
// Fails only on storage-layer error (propagated, not retried here).
func CreateCapture(database *sql.DB, input CreateCaptureInput) (*CreateCaptureOutput, error) {
	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	now := time.Now().Unix()
	recordedAt := input.RecordedAt
	if recordedAt == 0 {
		recordedAt = now
	}

	t := &turn.Turn{
		ID:         id,
		Source:     turn.SourceAudio,
		Context:    turn.ParseContext(string(input.Context)),
		State:      turn.StateQueued,
		RecordedAt: recordedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if input.AudioPath != "" {
		t.AudioPath = &input.AudioPath
	}

	if err := db.InsertTurn(database, t); err != nil {
		return nil, err
	}
	return &CreateCaptureOutput{ID: id}, nil
}
