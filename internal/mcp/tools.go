package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool definitions. Names follow the "type_action" convention so tools can
// be disabled individually in config.

var importToolDef = mcp.NewTool("turn_import",
	mcp.WithDescription("Import typed text as a finished reflection turn. The text is stored as-is; no audio or transcription is involved."),
	mcp.WithString("text", mcp.Required(), mcp.Description("The reflection text. Must not be blank.")),
	mcp.WithString("title", mcp.Description("Optional title for the turn.")),
)

var getToolDef = mcp.NewTool("turn_get",
	mcp.WithDescription("Fetch one turn by id, including its transcript and state."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Turn id (ULID).")),
	mcp.WithBoolean("include_redactions", mcp.Description("Include the redaction provenance history.")),
)

var listToolDef = mcp.NewTool("turn_list",
	mcp.WithDescription("List turn summaries newest-first. Transcripts are excluded; use turn_get for full content."),
	mcp.WithString("state", mcp.Description("Optional state filter (queued, recording, captured, transcribing, redacting, ready, readyPartial, interrupted, failed).")),
	mcp.WithNumber("limit", mcp.Description("Page size, default 20, max 100.")),
	mcp.WithNumber("offset", mcp.Description("Pagination offset.")),
)

var deleteToolDef = mcp.NewTool("turn_delete",
	mcp.WithDescription("Delete a turn, its redaction history, and (best-effort) its audio file."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Turn id (ULID).")),
)

var capsuleGetToolDef = mcp.NewTool("capsule_get",
	mcp.WithDescription("Read the preference capsule: explicit preferences, learning toggle, and version."),
)

var capsuleUpdateToolDef = mcp.NewTool("capsule_update",
	mcp.WithDescription("Merge edits into the preference capsule. Only provided fields change; the version increments."),
	mcp.WithString("output_style", mcp.Description("Preferred output style, e.g. 'brief' or 'detailed'.")),
	mcp.WithBoolean("no_therapy_framing", mcp.Description("Avoid therapy-style language in reflections.")),
	mcp.WithBoolean("learning_enabled", mcp.Description("Toggle pattern learning. Disabling hides learned cues without deleting them.")),
	mcp.WithObject("extras", mcp.Description("Free-form preference entries to set (string values).")),
)

var capsuleSnapshotToolDef = mcp.NewTool("capsule_snapshot",
	mcp.WithDescription("Project the bounded capsule snapshot that would accompany a reasoning request."),
	mcp.WithString("mode", mcp.Description("Projection mode: 'reflect' (default) or 'talk'.")),
)

var patternsTopToolDef = mcp.NewTool("patterns_top",
	mcp.WithDescription("List learned patterns by decayed score, highest first."),
	mcp.WithString("kind", mcp.Description("Optional pattern kind filter.")),
	mcp.WithNumber("limit", mcp.Description("Maximum patterns to return, default 20.")),
)

var patternsObserveToolDef = mcp.NewTool("patterns_observe",
	mcp.WithDescription("Record one observation of a pattern, reinforcing its decayed score."),
	mcp.WithString("kind", mcp.Required(), mcp.Description("Pattern kind.")),
	mcp.WithString("key", mcp.Required(), mcp.Description("Pattern key, truncated to 64 characters.")),
	mcp.WithNumber("weight", mcp.Description("Observation weight, default 1.0.")),
)

var learningResetToolDef = mcp.NewTool("learning_reset",
	mcp.WithDescription("Erase all learned patterns. Explicit capsule preferences are kept."),
)
