package database

import (
	"fmt"

	"github.com/RallyPointLabs/rallypoint/backend/internal/governance"
	"github.com/RallyPointLabs/rallypoint/backend/internal/notifications"
	"github.com/RallyPointLabs/rallypoint/backend/internal/points"
	"github.com/RallyPointLabs/rallypoint/backend/internal/squads"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// TranslateError is enabled so constraint violations surface as
// gorm.ErrDuplicatedKey for the vote and membership paths.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&governance.Proposal{},
		&governance.Vote{},
		&squads.Squad{},
		&squads.Member{},
		&points.Balance{},
		&notifications.Notification{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
