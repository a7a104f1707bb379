package web

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/reverie-app/reverie/internal/capsule"
	"github.com/reverie-app/reverie/internal/config"
	"github.com/reverie-app/reverie/internal/errors"
	"github.com/reverie-app/reverie/internal/ops"
	"github.com/reverie-app/reverie/internal/turn"
)

// Handlers contains HTTP route handlers for the review UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	caps     *capsule.Service
	renderer *Renderer
}

// HandleList handles GET /turns — list captured turns newest-first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")

	result, err := ops.List(h.db, ops.ListInput{
		State:  state,
		Limit:  parseIntParam(r, "limit", 20),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: PageData{
			Title:   "Turns",
			Version: h.renderer.version,
			Nav:     "turns",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		State:      state,
	})
}

// HandleDetail handles GET /turns/{id} — view a single turn. The raw
// transcript is never rendered; only the redacted form reaches the browser.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewValidation("turn ID is required"))
		return
	}

	result, err := ops.Get(h.db, ops.GetInput{
		ID:                id,
		IncludeRedactions: parseBoolParam(r, "include_redactions"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	rendered := renderMarkdown(result.Turn.TranscriptRedacted)

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: PageData{
			Title:   displayTitle(result.Turn),
			Version: h.renderer.version,
			Nav:     "turns",
		},
		Turn:         result.Turn,
		Redactions:   result.Redactions,
		RenderedHTML: rendered,
		DisplayTitle: displayTitle(result.Turn),
	})
}

// HandleDelete handles DELETE /turns/{id} — delete a turn and its audio.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewValidation("turn ID is required"))
		return
	}

	result, err := ops.Delete(h.db, ops.DeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/turns")
		w.WriteHeader(http.StatusOK)
		return
	}

	// JSON request
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, map[string]any{
			"id":            result.ID,
			"audio_removed": result.AudioRemoved,
		})
		return
	}

	// Default: redirect
	http.Redirect(w, r, "/turns", http.StatusFound)
}

// HandleCapsule handles GET /capsule — show preferences and learned patterns.
func (h *Handlers) HandleCapsule(w http.ResponseWriter, r *http.Request) {
	c, err := h.caps.Get()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	now := time.Now()
	patterns, err := h.caps.TopPatterns(capsule.MaxPreferenceEntries, now)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "capsule", CapsulePageData{
		PageData: PageData{
			Title:   "Capsule",
			Version: h.renderer.version,
			Nav:     "capsule",
		},
		Capsule:  c,
		Patterns: patterns,
		Now:      now,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}

// displayTitle returns the turn title if present, or a truncated ID.
func displayTitle(t *turn.Turn) string {
	if t.Title != "" {
		return t.Title
	}
	if len(t.ID) > 10 {
		return t.ID[:10] + "..."
	}
	return t.ID
}
