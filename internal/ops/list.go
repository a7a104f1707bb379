package ops

import (
	"database/sql"

	"github.com/reverie-app/reverie/internal/db"
	"github.com/reverie-app/reverie/internal/errors"
	"github.com/reverie-app/reverie/internal/turn"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	State  string // optional state filter (wire string)
	Limit  int
	Offset int
}

// ListItem is a summary row for one turn. Transcripts are excluded; use
// Get for full content.
type ListItem struct {
	ID           string       `json:"id"`
	Source       turn.Source  `json:"source"`
	Context      turn.Context `json:"context"`
	State        turn.State   `json:"state"`
	Title        string       `json:"title,omitempty"`
	RecordedAt   int64        `json:"recorded_at"`
	DurationSecs int64        `json:"duration_secs"`
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []ListItem `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// List returns turn summaries newest-first.
func List(database *sql.DB, input ListInput) (*ListOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	var stateFilter *turn.State
	if input.State != "" {
		parsed := turn.ParseState(input.State)
		if parsed == turn.StateUnknown {
			return nil, errors.NewValidation("unknown state filter: " + input.State)
		}
		stateFilter = &parsed
	}

	turns, err := db.ListTurns(database, stateFilter, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := db.CountTurns(database, stateFilter)
	if err != nil {
		return nil, err
	}

	items := make([]ListItem, 0, len(turns))
	for _, t := range turns {
		items = append(items, ListItem{
			ID:           t.ID,
			Source:       t.Source,
			Context:      t.Context,
			State:        t.State,
			Title:        t.Title,
			RecordedAt:   t.RecordedAt,
			DurationSecs: t.DurationSecs,
		})
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
	}, nil
}
