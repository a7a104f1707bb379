package turn

// State is the lifecycle state of a turn. The string values are the stable
// wire form persisted to storage; unrecognized stored values deserialize to
// StateUnknown so older builds never fail to read newer rows.
type State string

const (
	StateQueued       State = "queued"
	StateRecording    State = "recording"
	StateCaptured     State = "captured"
	StateTranscribing State = "transcribing"
	StateRedacting    State = "redacting"
	StateReady        State = "ready"
	StateReadyPartial State = "readyPartial"
	StateInterrupted  State = "interrupted"
	StateFailed       State = "failed"
	StateUnknown      State = "unknown"
)

// knownStates holds every state that round-trips through storage.
var knownStates = map[State]bool{
	StateQueued:       true,
	StateRecording:    true,
	StateCaptured:     true,
	StateTranscribing: true,
	StateRedacting:    true,
	StateReady:        true,
	StateReadyPartial: true,
	StateInterrupted:  true,
	StateFailed:       true,
}

// ParseState converts a stored string to a State, falling back to
// StateUnknown for unrecognized values.
func ParseState(s string) State {
	if knownStates[State(s)] {
		return State(s)
	}
	return StateUnknown
}

// Terminal reports whether the state ends the capture pipeline.
func (s State) Terminal() bool {
	switch s {
	case StateReady, StateReadyPartial, StateInterrupted, StateFailed:
		return true
	}
	return false
}

// Failure reports whether the state is the terminal failure state.
// Error fields on a Turn are set if and only if Failure() is true.
func (s State) Failure() bool {
	return s == StateFailed
}

// Source identifies how a turn's content entered the system.
type Source string

const (
	SourceAudio      Source = "audio"
	SourceTextImport Source = "textImport"
)

// ParseSource converts a stored string to a Source, defaulting to audio.
func ParseSource(s string) Source {
	if Source(s) == SourceTextImport {
		return SourceTextImport
	}
	return SourceAudio
}

// Context describes the capture situation.
type Context string

const (
	ContextUnknown   Context = "unknown"
	ContextHandheld  Context = "handheld"
	ContextHandsfree Context = "handsfree"
	ContextCar       Context = "car"
	ContextIntent    Context = "intent"
)

var knownContexts = map[Context]bool{
	ContextUnknown:   true,
	ContextHandheld:  true,
	ContextHandsfree: true,
	ContextCar:       true,
	ContextIntent:    true,
}

// ParseContext converts a stored string to a Context, falling back to
// ContextUnknown.
func ParseContext(s string) Context {
	if knownContexts[Context(s)] {
		return Context(s)
	}
	return ContextUnknown
}

// PlaceholderTitle is the default title that auto-titling may overwrite.
// Any other non-blank title is user-chosen and is never replaced.
const PlaceholderTitle = "Untitled"

// Turn is one capture/reflection unit tracked by the lifecycle state machine.
type Turn struct {
	// ID is a ULID that uniquely identifies this turn
	ID string `json:"id"`

	// Source is how the content entered the system (audio capture or text import)
	Source Source `json:"source"`

	// Context is the capture situation (handheld, car, ...)
	Context Context `json:"context"`

	// State is the lifecycle state
	State State `json:"state"`

	// Title is user-settable; empty means unset
	Title string `json:"title,omitempty"`

	// RecordedAt is the Unix timestamp when capture started
	RecordedAt int64 `json:"recorded_at"`

	// EndedAt is the Unix timestamp when capture ended (nullable)
	EndedAt *int64 `json:"ended_at,omitempty"`

	// DurationSecs is max(0, EndedAt - RecordedAt); clamped for clock skew
	DurationSecs int64 `json:"duration_secs"`

	// AudioPath is the path of the referenced audio file (nullable)
	AudioPath *string `json:"audio_path,omitempty"`

	// AudioBytes is the audio file size; > 0 implies AudioPath is set
	AudioBytes int64 `json:"audio_bytes,omitempty"`

	// TranscriptRaw is the pre-redaction transcript. Local-only, never
	// transmitted; nil when privacy policy forbids persistence.
	TranscriptRaw *string `json:"transcript_raw,omitempty"`

	// TranscriptRedacted is the canonical redacted transcript. Always
	// defined once the state is terminal-success; may be "" before.
	TranscriptRedacted string `json:"transcript_redacted"`

	// RedactionVersion is monotonically non-decreasing
	RedactionVersion int `json:"redaction_version"`

	// RedactionAt is the Unix timestamp of the last redaction (nullable)
	RedactionAt *int64 `json:"redaction_at,omitempty"`

	// RedactionInputHash is the FNV-1a fingerprint of the pre-redaction
	// text at the last redaction (nullable)
	RedactionInputHash *uint64 `json:"redaction_input_hash,omitempty"`

	// Provider/tooling metadata (all nullable)
	TranscriptionProvider *string `json:"transcription_provider,omitempty"`
	TranscriptionLocale   *string `json:"transcription_locale,omitempty"`
	ReflectProvider       *string `json:"reflect_provider,omitempty"`
	PromptVersion         *string `json:"prompt_version,omitempty"`
	ToolchainVersion      *string `json:"toolchain_version,omitempty"`

	// CapsuleSnapshotHash fingerprints the capsule snapshot sent with the
	// reflect request for this turn (nullable; "" for text imports until
	// their first reflect call)
	CapsuleSnapshotHash *string `json:"capsule_snapshot_hash,omitempty"`

	// Processing timestamps (nullable)
	ProcessingStartedAt  *int64 `json:"processing_started_at,omitempty"`
	ProcessingFinishedAt *int64 `json:"processing_finished_at,omitempty"`

	// Error fields: set if and only if State is failed
	ErrDomain  *string `json:"err_domain,omitempty"`
	ErrCode    *string `json:"err_code,omitempty"`
	ErrUserKey *string `json:"err_user_key,omitempty"`
	ErrDebug   *string `json:"err_debug,omitempty"`

	// CreatedAt is the Unix timestamp when the row was created
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp when the row was last written
	UpdatedAt int64 `json:"updated_at"`
}

// RedactionRecord is an append-only provenance entry for one redaction
// application. Immutable once created; superseded only by a newer version
// referencing the same turn.
type RedactionRecord struct {
	ID           int64  `json:"id"`
	TurnID       string `json:"turn_id"`
	Version      int    `json:"version"`
	AppliedAt    int64  `json:"applied_at"`
	InputHash    uint64 `json:"input_hash"`
	RedactedText string `json:"redacted_text"`
}
