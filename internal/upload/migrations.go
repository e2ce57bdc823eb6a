package upload

import (
	"database/sql"

	"github.com/synheart/synheart-runtime/pkg/module"
)

func migrations() []module.Migration {
	return []module.Migration{
		{
			Version:     1,
			Description: "create upload_items table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS upload_items (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					canonical_json BLOB NOT NULL,
					attempts INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`)
				return err
			},
		},
	}
}
