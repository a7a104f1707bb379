package ops

import (
	"database/sql"
	"strings"
	"time"

	"github.com/reverie-app/reverie/internal/db"
	"github.com/reverie-app/reverie/internal/turn"
)

// MarkReadyInput contains parameters for the MarkReady operation.
type MarkReadyInput struct {
	ID      string
	EndedAt int64 // Unix seconds

	// RawTranscript is stored only when provided. Callers MUST omit it
	// when privacy policy forbids persisting pre-redaction text.
	RawTranscript *string

	// RedactedTranscript becomes the canonical transcript.
	RedactedTranscript string

	// RedactionVersion is applied monotonically: the stored version only
	// ever increases.
	RedactionVersion int
	RedactionAt      int64

	// RedactionInputHash, when set, also appends a provenance record.
	RedactionInputHash *uint64

	// AutoTitle is applied only while the existing title is blank or the
	// "Untitled" placeholder. A user-chosen title is never overwritten.
	AutoTitle string

	// Partial marks the transcript as incomplete (readyPartial).
	Partial bool

	// Optional provider metadata.
	TranscriptionProvider *string
	TranscriptionLocale   *string
}

// MarkReadyOutput contains the result of the MarkReady operation.
type MarkReadyOutput struct {
	ID               string     `json:"id"`
	State            turn.State `json:"state"`
	DurationSecs     int64      `json:"duration_secs"`
	RedactionVersion int        `json:"redaction_version"`
	Title            string     `json:"title"`
}

// MarkReady finalizes a turn's transcript and transitions it to ready (or
// readyPartial). The operation is deliberately permissive about the turn's
// current state so duplicated or out-of-order transcription callbacks are
// tolerated; leaving the failed state clears the error fields so they stay
// set if and only if the state is failed.
func MarkReady(database *sql.DB, input MarkReadyInput) (*MarkReadyOutput, error) {
	unlock := lockTurn(input.ID)
	defer unlock()

	t, err := db.GetTurn(database, input.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()

	// Clock skew can put endedAt before recordedAt; clamp to zero.
	duration := input.EndedAt - t.RecordedAt
	if duration < 0 {
		duration = 0
	}
	t.EndedAt = &input.EndedAt
	t.DurationSecs = duration

	if input.RawTranscript != nil {
		t.TranscriptRaw = input.RawTranscript
	}
	t.TranscriptRedacted = input.RedactedTranscript

	// Monotonic: never let a stale callback roll the version back.
	if input.RedactionVersion > t.RedactionVersion {
		t.RedactionVersion = input.RedactionVersion
	}
	redactionAt := input.RedactionAt
	if redactionAt == 0 {
		redactionAt = now
	}
	t.RedactionAt = &redactionAt
	if input.RedactionInputHash != nil {
		t.RedactionInputHash = input.RedactionInputHash
	}

	// One-way gate: auto-title only fills blank or placeholder titles.
	if input.AutoTitle != "" && titleIsAuto(t.Title) {
		t.Title = input.AutoTitle
	}

	if input.TranscriptionProvider != nil {
		t.TranscriptionProvider = input.TranscriptionProvider
	}
	if input.TranscriptionLocale != nil {
		t.TranscriptionLocale = input.TranscriptionLocale
	}

	t.State = turn.StateReady
	if input.Partial {
		t.State = turn.StateReadyPartial
	}
	t.ProcessingFinishedAt = &now

	// State is no longer failed, so the error fields come off.
	t.ErrDomain = nil
	t.ErrCode = nil
	t.ErrUserKey = nil
	t.ErrDebug = nil

	if err := db.UpdateTurn(database, t); err != nil {
		return nil, err
	}

	if input.RedactionInputHash != nil {
		record := &turn.RedactionRecord{
			TurnID:       t.ID,
			Version:      t.RedactionVersion,
			AppliedAt:    redactionAt,
			InputHash:    *input.RedactionInputHash,
			RedactedText: input.RedactedTranscript,
		}
		if err := db.InsertRedactionRecord(database, record); err != nil {
			return nil, err
		}
	}

	return &MarkReadyOutput{
		ID:               t.ID,
		State:            t.State,
		DurationSecs:     t.DurationSecs,
		RedactionVersion: t.RedactionVersion,
		Title:            t.Title,
	}, nil
}

// titleIsAuto reports whether the current title may be auto-filled.
func titleIsAuto(title string) bool {
	trimmed := strings.TrimSpace(title)
	return trimmed == "" || trimmed == turn.PlaceholderTitle
}
