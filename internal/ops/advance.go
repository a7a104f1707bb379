package ops

import (
	"database/sql"
	"time"

	"github.com/reverie-app/reverie/internal/db"
	"github.com/reverie-app/reverie/internal/errors"
	"github.com/reverie-app/reverie/internal/turn"
)

// AdvanceInput contains parameters for the Advance operation.
type AdvanceInput struct {
	ID    string
	State turn.State

	// AudioBytes, when > 0, records the captured audio size. Requires the
	// turn to have an audio path.
	AudioBytes int64
}

// AdvanceOutput contains the result of the Advance operation.
type AdvanceOutput struct {
	ID    string     `json:"id"`
	State turn.State `json:"state"`
}

// Advance persists an intermediate pipeline state (recording, captured,
// transcribing, redacting, interrupted). Every transition is re-entrant:
// a turn found after suspension in its last-written state simply resumes
// from there. Terminal success and failure go through MarkReady and
// MarkFailed instead.
func Advance(database *sql.DB, input AdvanceInput) (*AdvanceOutput, error) {
	switch input.State {
	case turn.StateRecording, turn.StateCaptured, turn.StateTranscribing,
		turn.StateRedacting, turn.StateInterrupted:
		// allowed
	default:
		return nil, errors.NewValidation("cannot advance to state: " + string(input.State))
	}

	unlock := lockTurn(input.ID)
	defer unlock()

	t, err := db.GetTurn(database, input.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	t.State = input.State

	// State is no longer failed, so the error fields come off.
	t.ErrDomain = nil
	t.ErrCode = nil
	t.ErrUserKey = nil
	t.ErrDebug = nil

	// Processing starts when transcription begins and finishes on any
	// terminal state.
	if input.State == turn.StateTranscribing && t.ProcessingStartedAt == nil {
		t.ProcessingStartedAt = &now
	}
	if input.State == turn.StateInterrupted {
		t.ProcessingFinishedAt = &now
	}

	if input.AudioBytes > 0 {
		if t.AudioPath == nil {
			return nil, errors.NewValidation("audio bytes require an audio path")
		}
		t.AudioBytes = input.AudioBytes
	}

	if err := db.UpdateTurn(database, t); err != nil {
		return nil, err
	}
	return &AdvanceOutput{ID: t.ID, State: t.State}, nil
}
