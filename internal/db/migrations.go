// internal/db/migrations.go
package db

import (
	"fmt"

	"gorm.io/gorm"
)

// MigrateHistoryOrderIndex: индекс для выборки истории одного устройства «новые сверху».
func MigrateHistoryOrderIndex(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	if db.Migrator().HasIndex("history_entries", "idx_history_device_seq") {
		return nil
	}
	dialect := db.Dialector.Name()

	switch dialect {
	case "mysql":
		return db.Exec("CREATE INDEX `idx_history_device_seq` ON `history_entries` (`device_id`, `seq` DESC)").Error

	case "postgres":
		return db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_device_seq ON "history_entries" ("device_id", "seq" DESC)`).Error

	case "sqlite":
		return db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_device_seq ON history_entries (device_id, seq DESC)`).Error

	default:
		return fmt.Errorf("unsupported dialect: %s", dialect)
	}
}
