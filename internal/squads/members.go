package squads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RallyPointLabs/rallypoint/backend/internal/cache"
	"gorm.io/gorm"
)

var (
	// ErrNotAMember indicates no squad membership exists for the user.
	ErrNotAMember = errors.New("squads: user is not a squad member")
	// ErrSquadNotFound indicates the referenced squad does not exist.
	ErrSquadNotFound = errors.New("squads: squad not found")
	// ErrSquadFull indicates the squad is at its tier's member cap.
	ErrSquadFull = errors.New("squads: squad is at its member cap")
	// ErrAlreadyMember indicates the user already belongs to a squad.
	ErrAlreadyMember = errors.New("squads: user already belongs to a squad")
)

const membershipCacheTTL = 5 * time.Minute

// MembershipConfig describes the dependencies for membership resolution.
type MembershipConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Tiers    []TierDefinition
}

// Membership resolves and mutates squad membership. Lookups on the vote-cast
// hot path go through an explicitly scoped TTL cache, invalidated on join.
type Membership struct {
	db    *gorm.DB
	clock func() time.Time
	tiers []TierDefinition
	byID  *cache.TTLCache[string, Member]
}

// NewMembership constructs the membership service.
func NewMembership(cfg MembershipConfig) (*Membership, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("squads: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Membership{
		db:    cfg.Database,
		clock: clock,
		tiers: cfg.Tiers,
		byID:  cache.NewTTLCache[string, Member](),
	}, nil
}

// Resolve returns the membership record for the user.
func (m *Membership) Resolve(ctx context.Context, userID string) (Member, error) {
	if member, ok := m.byID.Get(userID); ok {
		return member, nil
	}

	var member Member
	err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&member).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Member{}, ErrNotAMember
	}
	if err != nil {
		return Member{}, err
	}

	m.byID.Set(userID, member, membershipCacheTTL)
	return member, nil
}

// SquadOf returns the squad the user belongs to.
func (m *Membership) SquadOf(ctx context.Context, userID string) (int64, error) {
	member, err := m.Resolve(ctx, userID)
	if err != nil {
		return 0, err
	}
	return member.SquadID, nil
}

// MembersOf lists a squad's members for notification fan-out.
func (m *Membership) MembersOf(ctx context.Context, squadID int64) ([]Member, error) {
	var members []Member
	err := m.db.WithContext(ctx).
		Where("squad_id = ?", squadID).
		Order("joined_at").
		Find(&members).
		Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

// Join admits a user into a squad. The member cap of the squad's current
// tier is enforced here, at join time; it never affects the tier the squad
// already earned.
func (m *Membership) Join(ctx context.Context, squadID int64, userID, walletAddress string) (Member, error) {
	member := Member{
		UserID:        userID,
		SquadID:       squadID,
		WalletAddress: walletAddress,
		JoinedAt:      m.clock().UTC(),
	}

	txErr := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var squad Squad
		err := tx.Where("id = ?", squadID).Take(&squad).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSquadNotFound
		}
		if err != nil {
			return err
		}

		if capacity := memberCapFor(squad.Tier, m.tiers); capacity > 0 && squad.MemberCount >= capacity {
			return ErrSquadFull
		}

		if err := tx.Create(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyMember
			}
			return err
		}

		return tx.Exec(
			`UPDATE squads SET member_count = member_count + 1 WHERE id = ?`,
			squadID,
		).Error
	})
	if txErr != nil {
		return Member{}, txErr
	}

	m.byID.Delete(userID)
	return member, nil
}

func memberCapFor(tier int, defs []TierDefinition) int {
	for _, def := range defs {
		if def.Tier == tier {
			return def.MaxMembers
		}
	}
	return 0
}
