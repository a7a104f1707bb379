package mcp

import (
	"context"
	"database/sql"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/reverie-app/reverie/internal/capsule"
	"github.com/reverie-app/reverie/internal/config"
	"github.com/reverie-app/reverie/internal/learning"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"turn_import": {
		def:     importToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
	"turn_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"turn_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"turn_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"capsule_get": {
		def:     capsuleGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleGet },
	},
	"capsule_update": {
		def:     capsuleUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleUpdate },
	},
	"capsule_snapshot": {
		def:     capsuleSnapshotToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCapsuleSnapshot },
	},
	"patterns_top": {
		def:     patternsTopToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePatternsTop },
	},
	"patterns_observe": {
		def:     patternsObserveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePatternsObserve },
	},
	"learning_reset": {
		def:     learningResetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLearningReset },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with reverie tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"reverie",
		version,
		server.WithToolCapabilities(true),
	)

	store := learning.NewStore(db, cfg.HalfLifeDays)
	caps := capsule.NewService(db, store)
	h := NewHandlers(db, cfg, store, caps)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, version string) error {
	s := NewServer(db, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
