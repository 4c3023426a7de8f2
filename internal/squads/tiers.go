package squads

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TierNotifier fans a squad tier change out to the squad's members.
type TierNotifier interface {
	SquadTierChanged(ctx context.Context, squad Squad, members []Member, previousTier, newTier int) error
}

// TierBatchRecorder receives tier batch observations for metrics export.
type TierBatchRecorder interface {
	RecordTierBatch(checked, updated int)
}

type nopTierBatchRecorder struct{}

func (nopTierBatchRecorder) RecordTierBatch(int, int) {}

// BatchResult reports one tier recompute run.
type BatchResult struct {
	TotalChecked int `json:"total_checked"`
	TotalUpdated int `json:"total_updated"`
	Failed       int `json:"failed,omitempty"`
}

// CalculatorConfig describes the dependencies of the tier calculator.
type CalculatorConfig struct {
	Database   *gorm.DB
	Membership *Membership
	Notifier   TierNotifier
	Tiers      []TierDefinition
	PageSize   int
	Logger     *zap.Logger
	Metrics    TierBatchRecorder
}

// Calculator owns squad tiers: it is the only writer of the tier column,
// recomputing it as a pure function of each squad's point total.
type Calculator struct {
	db         *gorm.DB
	membership *Membership
	notifier   TierNotifier
	tiers      []TierDefinition
	pageSize   int
	logger     *zap.Logger
	metrics    TierBatchRecorder
}

const defaultTierPageSize = 500

// NewCalculator constructs the tier calculator. Tier definitions are kept
// ordered by ascending minimum points.
func NewCalculator(cfg CalculatorConfig) (*Calculator, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("squads: database connection required")
	}
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("squads: at least one tier definition required")
	}

	tiers := append([]TierDefinition(nil), cfg.Tiers...)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MinPoints < tiers[j].MinPoints
	})

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultTierPageSize
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopTierBatchRecorder{}
	}

	return &Calculator{
		db:         cfg.Database,
		membership: cfg.Membership,
		notifier:   cfg.Notifier,
		tiers:      tiers,
		pageSize:   pageSize,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// TierFor returns the highest tier whose minimum points the total meets, or
// UntieredValue when none is reached. Member caps play no part here.
func TierFor(totalPoints int64, defs []TierDefinition) int {
	tier := UntieredValue
	for _, def := range defs {
		if totalPoints >= def.MinPoints {
			tier = def.Tier
		}
	}
	return tier
}

// Run recomputes every squad's tier in id-ordered pages. Each squad is
// processed independently: the tier write is guarded on the previously
// observed tier, and a failing squad is logged and counted without aborting
// the rest of the batch. Changed tiers fan out member notifications.
func (c *Calculator) Run(ctx context.Context) (BatchResult, error) {
	result := BatchResult{}
	lastID := int64(0)

	for {
		var page []Squad
		err := c.db.WithContext(ctx).
			Where("id > ?", lastID).
			Order("id").
			Limit(c.pageSize).
			Find(&page).
			Error
		if err != nil {
			return result, err
		}
		if len(page) == 0 {
			break
		}

		for _, squad := range page {
			lastID = squad.ID
			result.TotalChecked++

			updated, err := c.recompute(ctx, squad)
			if err != nil {
				result.Failed++
				c.logger.Warn("squad tier recompute failed",
					zap.Int64("squad_id", squad.ID),
					zap.Error(err))
				continue
			}
			if updated {
				result.TotalUpdated++
			}
		}

		if len(page) < c.pageSize {
			break
		}
	}

	c.metrics.RecordTierBatch(result.TotalChecked, result.TotalUpdated)
	c.logger.Info("tier batch completed",
		zap.Int("checked", result.TotalChecked),
		zap.Int("updated", result.TotalUpdated),
		zap.Int("failed", result.Failed))

	return result, nil
}

func (c *Calculator) recompute(ctx context.Context, squad Squad) (bool, error) {
	target := TierFor(squad.TotalSquadPoints, c.tiers)
	if target == squad.Tier {
		return false, nil
	}

	res := c.db.WithContext(ctx).Exec(
		`UPDATE squads SET tier = ? WHERE id = ? AND tier = ?`,
		target,
		squad.ID,
		squad.Tier,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// Another run already moved this squad.
		return false, nil
	}

	if c.notifier != nil && c.membership != nil {
		members, err := c.membership.MembersOf(ctx, squad.ID)
		if err != nil {
			c.logger.Warn("tier change fan-out skipped",
				zap.Int64("squad_id", squad.ID),
				zap.Error(err))
			return true, nil
		}
		if err := c.notifier.SquadTierChanged(ctx, squad, members, squad.Tier, target); err != nil {
			c.logger.Warn("tier change notification failed",
				zap.Int64("squad_id", squad.ID),
				zap.Error(err))
		}
	}

	return true, nil
}
