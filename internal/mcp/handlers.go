package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/reverie-app/reverie/internal/capsule"
	"github.com/reverie-app/reverie/internal/config"
	"github.com/reverie-app/reverie/internal/errors"
	"github.com/reverie-app/reverie/internal/learning"
	"github.com/reverie-app/reverie/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db    *sql.DB
	cfg   *config.Config
	store *learning.Store
	caps  *capsule.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, store *learning.Store, caps *capsule.Service) *Handlers {
	return &Handlers{db: db, cfg: cfg, store: store, caps: caps}
}

// Request types for each tool

// ImportRequest represents the arguments for turn_import.
type ImportRequest struct {
	Text  string `json:"text"`
	Title string `json:"title,omitempty"`
}

// GetRequest represents the arguments for turn_get.
type GetRequest struct {
	ID                string `json:"id"`
	IncludeRedactions bool   `json:"include_redactions,omitempty"`
}

// ListRequest represents the arguments for turn_list.
type ListRequest struct {
	State  string `json:"state,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// DeleteRequest represents the arguments for turn_delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// CapsuleUpdateRequest represents the arguments for capsule_update.
type CapsuleUpdateRequest struct {
	OutputStyle      *string           `json:"output_style,omitempty"`
	NoTherapyFraming *bool             `json:"no_therapy_framing,omitempty"`
	LearningEnabled  *bool             `json:"learning_enabled,omitempty"`
	Extras           map[string]string `json:"extras,omitempty"`
}

// SnapshotRequest represents the arguments for capsule_snapshot.
type SnapshotRequest struct {
	Mode string `json:"mode,omitempty"`
}

// PatternsTopRequest represents the arguments for patterns_top.
type PatternsTopRequest struct {
	Kind  string `json:"kind,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// ObserveRequest represents the arguments for patterns_observe.
type ObserveRequest struct {
	Kind   string  `json:"kind"`
	Key    string  `json:"key"`
	Weight float64 `json:"weight,omitempty"`
}

// Handler implementations

// HandleImport handles the turn_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := ops.CreateTextImport(h.db, ops.CreateTextImportInput{
		Text:  input.Text,
		Title: input.Title,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleGet handles the turn_get tool call. Raw transcripts are never
// exposed over MCP.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := ops.Get(h.db, ops.GetInput{
		ID:                input.ID,
		IncludeRedactions: input.IncludeRedactions,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the turn_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := ops.List(h.db, ops.ListInput{
		State:  input.State,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDelete handles the turn_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := ops.Delete(h.db, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCapsuleGet handles the capsule_get tool call.
func (h *Handlers) HandleCapsuleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := h.caps.Get()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(capsuleView(c))
}

// HandleCapsuleUpdate handles the capsule_update tool call.
func (h *Handlers) HandleCapsuleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CapsuleUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	var c *capsule.Capsule
	if input.OutputStyle != nil || input.NoTherapyFraming != nil || len(input.Extras) > 0 {
		c, err = h.caps.Update(capsule.Edits{
			OutputStyle:      input.OutputStyle,
			NoTherapyFraming: input.NoTherapyFraming,
			Extras:           input.Extras,
		})
		if err != nil {
			return errorResult(err), nil
		}
	}
	if input.LearningEnabled != nil {
		c, err = h.caps.SetLearningEnabled(*input.LearningEnabled)
		if err != nil {
			return errorResult(err), nil
		}
	}
	if c == nil {
		c, err = h.caps.Get()
		if err != nil {
			return errorResult(err), nil
		}
	}
	return successResult(capsuleView(c))
}

// HandleCapsuleSnapshot handles the capsule_snapshot tool call.
func (h *Handlers) HandleCapsuleSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SnapshotRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	mode := capsule.ModeReflect
	switch input.Mode {
	case "", "reflect":
	case "talk":
		mode = capsule.ModeTalk
	default:
		return errorResult(errors.NewValidation("unknown snapshot mode: " + input.Mode)), nil
	}

	c, err := h.caps.Get()
	if err != nil {
		return errorResult(err), nil
	}
	patterns, err := h.caps.TopPatterns(capsule.MaxReflectCues, time.Now())
	if err != nil {
		return errorResult(err), nil
	}
	snap := capsule.Project(c, mode, patterns)
	return successResult(map[string]any{
		"snapshot": snap,
		"hash":     snap.Hash(),
	})
}

// HandlePatternsTop handles the patterns_top tool call.
func (h *Handlers) HandlePatternsTop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PatternsTopRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	var kind *learning.Kind
	if input.Kind != "" {
		k := learning.Kind(input.Kind)
		if !k.Valid() {
			return errorResult(errors.NewValidation("unknown pattern kind: " + input.Kind)), nil
		}
		kind = &k
	}
	limit := input.Limit
	if limit <= 0 {
		limit = ops.DefaultListLimit
	}

	patterns, err := h.store.TopPatterns(kind, limit, time.Now())
	if err != nil {
		return errorResult(err), nil
	}

	now := time.Now()
	items := make([]map[string]any, 0, len(patterns))
	for _, p := range patterns {
		items = append(items, map[string]any{
			"kind":           p.Kind,
			"key":            p.Key,
			"score":          p.ScoreAt(now),
			"evidence_count": p.Count,
			"last_seen_at":   p.LastSeenAt,
		})
	}
	return successResult(map[string]any{"patterns": items})
}

// HandlePatternsObserve handles the patterns_observe tool call.
func (h *Handlers) HandlePatternsObserve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ObserveRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	if err := h.store.Observe(learning.Kind(input.Kind), input.Key, input.Weight, time.Now()); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"observed": true})
}

// HandleLearningReset handles the learning_reset tool call.
func (h *Handlers) HandleLearningReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.caps.ResetLearnedProfile(); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"reset": true})
}

// capsuleView shapes a capsule for MCP output.
func capsuleView(c *capsule.Capsule) map[string]any {
	return map[string]any{
		"version":            c.Version,
		"learning_enabled":   c.LearningEnabled,
		"updated_at":         c.UpdatedAt,
		"output_style":       c.Preferences.OutputStyle,
		"no_therapy_framing": c.Preferences.NoTherapyFraming,
		"extras":             c.Extras,
	}
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if rErr, ok := err.(*errors.ReverieError); ok {
		errorObj := map[string]any{
			"code":    rErr.Code,
			"message": rErr.Message,
			"status":  rErr.Status,
		}
		if rErr.Code != errors.ErrInternal && rErr.Details != nil {
			errorObj["details"] = rErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
