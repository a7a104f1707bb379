package ops

import (
	"database/sql"

	"github.com/reverie-app/reverie/internal/db"
	"github.com/reverie-app/reverie/internal/turn"
)

// GetInput contains parameters for the Get operation.
type GetInput struct {
	ID string

	// IncludeRaw includes the local-only raw transcript. Off by default:
	// most surfaces should never see pre-redaction text.
	IncludeRaw bool

	// IncludeRedactions includes the append-only provenance history.
	IncludeRedactions bool
}

// GetOutput contains the result of the Get operation.
type GetOutput struct {
	Turn       *turn.Turn              `json:"turn"`
	Redactions []*turn.RedactionRecord `json:"redactions,omitempty"`
}

// Get retrieves one turn by id.
func Get(database *sql.DB, input GetInput) (*GetOutput, error) {
	t, err := db.GetTurn(database, input.ID)
	if err != nil {
		return nil, err
	}

	if !input.IncludeRaw {
		t.TranscriptRaw = nil
	}

	out := &GetOutput{Turn: t}
	if input.IncludeRedactions {
		records, err := db.ListRedactionRecords(database, input.ID)
		if err != nil {
			return nil, err
		}
		out.Redactions = records
	}
	return out, nil
}
