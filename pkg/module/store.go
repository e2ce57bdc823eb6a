package module

import (
	"context"
	"database/sql"
)

// Migration is one versioned, idempotent schema change owned by a single
// module. Migrations for a module are applied in ascending Version order
// and tracked in a shared ledger so re-running Migrate is a no-op.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Store is the shared SQLite-backed persistence surface. A module never
// opens its own database file; it migrates its own tables into the
// runtime's single database and queries through the *sql.DB handle.
type Store interface {
	DB() *sql.DB
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Migrate(ctx context.Context, moduleName string, migrations []Migration) error
}

// SecureStore is encrypted-at-rest key-value storage for small secrets:
// the consent snapshot, consent token, device id, and profile cache.
// Values are opaque []byte to the caller; the implementation owns
// envelope encryption.
type SecureStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}
