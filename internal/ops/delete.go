package ops

import (
	"database/sql"
	"os"

	"go.uber.org/zap"

	"github.com/reverie-app/reverie/internal/db"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	ID           string `json:"id"`
	AudioRemoved bool   `json:"audio_removed"`
}

// Delete removes a turn and, best-effort, its referenced audio file.
// Audio cleanup failure is logged and never blocks record deletion.
func Delete(database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	unlock := lockTurn(input.ID)
	defer unlock()

	t, err := db.GetTurn(database, input.ID)
	if err != nil {
		return nil, err
	}

	audioRemoved := false
	if t.AudioPath != nil {
		if err := os.Remove(*t.AudioPath); err != nil {
			if !os.IsNotExist(err) {
				log.Warn("failed to remove audio file",
					zap.String("turn_id", t.ID),
					zap.String("audio_path", *t.AudioPath),
					zap.Error(err))
			}
		} else {
			audioRemoved = true
		}
	}

	if err := db.DeleteTurn(database, input.ID); err != nil {
		return nil, err
	}
	return &DeleteOutput{ID: input.ID, AudioRemoved: audioRemoved}, nil
}
