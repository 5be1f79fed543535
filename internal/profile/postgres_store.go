package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*Profile, error) {
	query := `
		SELECT user_id, subscription_tier, cost_used, billing_cycle_start, last_request_at, image_gens_count
		FROM profiles
		WHERE user_id = $1
	`

	var p Profile
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Tier, &p.CostUsed, &p.BillingCycleStart, &p.LastRequestAt, &p.ImageGensCount,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &p, nil
}

func (s *PostgresStore) Create(ctx context.Context, p *Profile) error {
	tier := p.Tier
	if tier == "" {
		tier = TierFree
	}
	cycleStart := p.BillingCycleStart
	if cycleStart.IsZero() {
		cycleStart = time.Now()
	}

	query := `
		INSERT INTO profiles (user_id, subscription_tier, cost_used, billing_cycle_start, image_gens_count)
		VALUES ($1, $2, 0, $3, 0)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := s.db.Exec(ctx, query, p.UserID, tier, cycleStart)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// AddSpend increments store-side, so concurrent audits against the same user
// serialize on the row instead of clobbering each other's deltas.
func (s *PostgresStore) AddSpend(ctx context.Context, userID string, costUSD float64, imageIncr int, at time.Time) error {
	query := `
		UPDATE profiles
		SET cost_used = cost_used + $2,
		    image_gens_count = image_gens_count + $3,
		    last_request_at = $4
		WHERE user_id = $1
	`
	tag, err := s.db.Exec(ctx, query, userID, costUSD, imageIncr, at)
	if err != nil {
		return fmt.Errorf("failed to add spend: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStore) SetTier(ctx context.Context, userID string, tier Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("invalid tier: %q", tier)
	}

	query := `UPDATE profiles SET subscription_tier = $2 WHERE user_id = $1`
	tag, err := s.db.Exec(ctx, query, userID, tier)
	if err != nil {
		return fmt.Errorf("failed to set tier: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStore) ResetCycle(ctx context.Context, userID string, cycleStart time.Time) error {
	query := `
		UPDATE profiles
		SET cost_used = 0,
		    billing_cycle_start = $2
		WHERE user_id = $1
	`
	tag, err := s.db.Exec(ctx, query, userID, cycleStart)
	if err != nil {
		return fmt.Errorf("failed to reset cycle: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
