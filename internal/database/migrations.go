package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillVoteSquadIDs = "2026-08-20_backfill_vote_squad_ids"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillVoteSquadIDs, apply: backfillVoteSquadIDs},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Votes created before the squad_id column existed carry a zero value; copy
// the owning proposal's squad so per-squad vote queries stay consistent.
func backfillVoteSquadIDs(db *gorm.DB) error {
	const statement = `
UPDATE votes SET squad_id = (
    SELECT proposals.squad_id FROM proposals WHERE proposals.id = votes.proposal_id
) WHERE squad_id = 0 OR squad_id IS NULL;`
	return db.Exec(statement).Error
}
