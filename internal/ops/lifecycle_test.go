package ops

import (
	"testing"

	"github.com/reverie-app/reverie/internal/errors"
	"github.com/reverie-app/reverie/internal/turn"
)

func TestCreateCapture_Defaults(t *testing.T) {
	database := initTestDB(t)

	out, err := CreateCapture(database, CreateCaptureInput{})
	if err != nil {
		t.Fatalf("CreateCapture failed: %v", err)
	}

	got, err := Get(database, GetInput{ID: out.ID})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Turn.State != turn.StateQueued {
		t.Errorf("State = %q, want queued", got.Turn.State)
	}
	if got.Turn.Source != turn.SourceAudio {
		t.Errorf("Source = %q, want audio", got.Turn.Source)
	}
	if got.Turn.Context != turn.ContextUnknown {
		t.Errorf("Context = %q, want unknown", got.Turn.Context)
	}
	if got.Turn.RecordedAt == 0 {
		t.Error("RecordedAt not defaulted to now")
	}
}

func TestAdvance_IntermediateStates(t *testing.T) {
	database := initTestDB(t)
	id := newQueuedTurn(t, database)

	for _, s := range []turn.State{
		turn.StateRecording, turn.StateCaptured,
		turn.StateTranscribing, turn.StateRedacting,
	} {
		out, err := Advance(database, AdvanceInput{ID: id, State: s})
		if err != nil {
			t.Fatalf("Advance to %q failed: %v", s, err)
		}
		if out.State != s {
			t.Errorf("State = %q, want %q", out.State, s)
		}
	}

	got, err := Get(database, GetInput{ID: id})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Turn.ProcessingStartedAt == nil {
		t.Error("ProcessingStartedAt not set on first transcribing")
	}
}

func TestAdvance_ClearsErrorFieldsAfterFailure(t *testing.T) {
	database := initTestDB(t)
	id := newQueuedTurn(t, database)

	if _, err := MarkFailed(database, MarkFailedInput{ID: id, DebugMessage: "mic error"}); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	// A retry out of failed must leave no stale error fields behind:
	// error fields are set iff the state is failed.
	out, err := Advance(database, AdvanceInput{ID: id, State: turn.StateRecording})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if out.State != turn.StateRecording {
		t.Errorf("State = %q, want recording", out.State)
	}

	got, err := Get(database, GetInput{ID: id})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Turn.ErrDomain != nil || got.Turn.ErrCode != nil ||
		got.Turn.ErrUserKey != nil || got.Turn.ErrDebug != nil {
		t.Errorf("error fields still set after leaving failed: %+v", got.Turn)
	}
}

func TestAdvance_RejectsTerminalStates(t *testing.T) {
	database := initTestDB(t)
	id := newQueuedTurn(t, database)

	for _, s := range []turn.State{turn.StateReady, turn.StateFailed, turn.StateQueued} {
		_, err := Advance(database, AdvanceInput{ID: id, State: s})
		if !errors.Is(err, errors.ErrValidation) {
			t.Errorf("Advance to %q: err = %v, want VALIDATION", s, err)
		}
	}
}

func TestAdvance_Interrupted(t *testing.T) {
	database := initTestDB(t)
	id := newQueuedTurn(t, database)

	out, err := Advance(database, AdvanceInput{ID: id, State: turn.StateInterrupted})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if out.State != turn.StateInterrupted {
		t.Errorf("State = %q, want interrupted", out.State)
	}

	got, err := Get(database, GetInput{ID: id})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Turn.ProcessingFinishedAt == nil {
		t.Error("ProcessingFinishedAt not set on interruption")
	}
}

func TestAdvance_AudioBytesRequirePath(t *testing.T) {
	database := initTestDB(t)
	id := newQueuedTurn(t, database)

	_, err := Advance(database, AdvanceInput{ID: id, State: turn.StateCaptured, AudioBytes: 1024})
	if !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("err = %v, want VALIDATION", err)
	}
}

func TestGet_StripsRawByDefault(t *testing.T) {
	database := initTestDB(t)
	id := newQueuedTurn(t, database)

	raw := "private pre-redaction text"
	if _, err := MarkReady(database, MarkReadyInput{
		ID:                 id,
		EndedAt:            0,
		RawTranscript:      &raw,
		RedactedTranscript: "private [redacted] text",
	}); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	got, err := Get(database, GetInput{ID: id})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Turn.TranscriptRaw != nil {
		t.Error("TranscriptRaw leaked without IncludeRaw")
	}

	got, err = Get(database, GetInput{ID: id, IncludeRaw: true})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Turn.TranscriptRaw == nil || *got.Turn.TranscriptRaw != raw {
		t.Errorf("TranscriptRaw = %v, want stored raw", got.Turn.TranscriptRaw)
	}
}

func TestList_FilterAndPagination(t *testing.T) {
	database := initTestDB(t)

	var ids []string
	for i := 0; i < 5; i++ {
		id := newQueuedTurn(t, database)
		ids = append(ids, id)
	}
	// Two of them finish.
	for _, id := range ids[:2] {
		if _, err := MarkReady(database, MarkReadyInput{
			ID:                 id,
			EndedAt:            0,
			RedactedTranscript: "done",
		}); err != nil {
			t.Fatalf("MarkReady failed: %v", err)
		}
	}

	out, err := List(database, ListInput{State: "ready"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Errorf("ready items = %d, want 2", len(out.Items))
	}
	for _, it := range out.Items {
		if it.State != turn.StateReady {
			t.Errorf("item %s State = %q, want ready", it.ID, it.State)
		}
	}

	out, err = List(database, ListInput{Limit: 3})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 3 {
		t.Errorf("items = %d, want 3", len(out.Items))
	}
	if !out.Pagination.HasMore {
		t.Error("HasMore = false, want true")
	}
	if out.Pagination.Total != 5 {
		t.Errorf("Total = %d, want 5", out.Pagination.Total)
	}

	out, err = List(database, ListInput{Limit: 3, Offset: 3})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Errorf("items at offset 3 = %d, want 2", len(out.Items))
	}
	if out.Pagination.HasMore {
		t.Error("HasMore = true on last page")
	}
}

func TestList_UnknownStateFilter(t *testing.T) {
	database := initTestDB(t)

	_, err := List(database, ListInput{State: "paused"})
	if !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("err = %v, want VALIDATION", err)
	}
}
