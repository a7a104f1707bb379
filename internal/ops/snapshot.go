package ops

import (
	"database/sql"

	"github.com/reverie-app/reverie/internal/db"
)

// SaveSnapshotHash stamps the capsule snapshot hash a reasoning request
// was built from onto the turn, so the exact preference state behind a
// reflection stays auditable.
func SaveSnapshotHash(database *sql.DB, id, hash string) error {
	unlock := lockTurn(id)
	defer unlock()

	t, err := db.GetTurn(database, id)
	if err != nil {
		return err
	}
	t.CapsuleSnapshotHash = &hash
	return db.UpdateTurn(database, t)
}

// RecordReflection stamps the provenance of a completed reflection call:
// the capsule snapshot hash it carried, the remote prompt revision, and the
// provider that answered.
func RecordReflection(database *sql.DB, id, snapshotHash, promptVersion, provider string) error {
	unlock := lockTurn(id)
	defer unlock()

	t, err := db.GetTurn(database, id)
	if err != nil {
		return err
	}
	t.CapsuleSnapshotHash = &snapshotHash
	if promptVersion != "" {
		t.PromptVersion = &promptVersion
	}
	if provider != "" {
		t.ReflectProvider = &provider
	}
	return db.UpdateTurn(database, t)
}
