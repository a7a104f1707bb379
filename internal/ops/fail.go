package ops

import (
	"database/sql"
	"time"

	"github.com/reverie-app/reverie/internal/db"
	"github.com/reverie-app/reverie/internal/errors"
	"github.com/reverie-app/reverie/internal/turn"
)

// Error field defaults for failures reported without a full taxonomy.
const (
	defaultErrDomain  = "capture"
	defaultErrCode    = "unknown"
	defaultErrUserKey = "error.capture.generic"
)

// MarkFailedInput contains parameters for the MarkFailed operation.
type MarkFailedInput struct {
	ID           string
	DebugMessage string

	// Optional taxonomy; defaulted when empty.
	Domain  string
	Code    string
	UserKey string
}

// MarkFailedOutput contains the result of the MarkFailed operation.
type MarkFailedOutput struct {
	ID    string     `json:"id"`
	State turn.State `json:"state"`
}

// MarkFailed transitions a turn to failed and records the error fields.
// Transcripts already captured are preserved for potential recovery.
func MarkFailed(database *sql.DB, input MarkFailedInput) (*MarkFailedOutput, error) {
	if input.DebugMessage == "" {
		return nil, errors.NewValidation("debug message must not be empty")
	}

	unlock := lockTurn(input.ID)
	defer unlock()

	t, err := db.GetTurn(database, input.ID)
	if err != nil {
		return nil, err
	}

	domain := input.Domain
	if domain == "" {
		domain = defaultErrDomain
	}
	code := input.Code
	if code == "" {
		code = defaultErrCode
	}
	userKey := input.UserKey
	if userKey == "" {
		userKey = defaultErrUserKey
	}

	now := time.Now().Unix()
	t.State = turn.StateFailed
	t.ErrDomain = &domain
	t.ErrCode = &code
	t.ErrUserKey = &userKey
	t.ErrDebug = &input.DebugMessage
	t.ProcessingFinishedAt = &now

	if err := db.UpdateTurn(database, t); err != nil {
		return nil, err
	}
	return &MarkFailedOutput{ID: t.ID, State: t.State}, nil
}
