// Package ledger stores nations' research state: the researched technology
// records and the research point balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Terasay/viau-sub000/internal/research"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS nations (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	research_points BIGINT NOT NULL DEFAULT 0 CHECK (research_points >= 0),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS technology_progress (
	nation_id     TEXT NOT NULL REFERENCES nations (id),
	tech_id       TEXT NOT NULL,
	researched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (nation_id, tech_id)
);

CREATE INDEX IF NOT EXISTS technology_progress_nation_time_idx
	ON technology_progress (nation_id, researched_at);
`

const (
	maxCommitAttempts = 4
	firstRetryDelay   = 25 * time.Millisecond
)

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}

func (p *Postgres) CreateNation(ctx context.Context, n research.Nation) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO nations (id, name, research_points, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, n.ID, n.Name, n.ResearchPoints, n.CreatedAt)
	return err
}

func (p *Postgres) Nation(ctx context.Context, nationID string) (research.Nation, error) {
	var n research.Nation
	err := p.db.QueryRow(ctx, `
		SELECT id, name, research_points, created_at
		FROM nations
		WHERE id = $1
	`, nationID).Scan(&n.ID, &n.Name, &n.ResearchPoints, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return n, fmt.Errorf("%w: %s", research.ErrNationNotFound, nationID)
	}
	return n, err
}

func (p *Postgres) IsResearched(ctx context.Context, nationID, techID string) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM technology_progress WHERE nation_id = $1 AND tech_id = $2
		)
	`, nationID, techID).Scan(&exists)
	return exists, err
}

func (p *Postgres) Progress(ctx context.Context, nationID string) ([]research.Record, error) {
	rows, err := p.db.Query(ctx, `
		SELECT tech_id, researched_at
		FROM technology_progress
		WHERE nation_id = $1
		ORDER BY researched_at, tech_id
	`, nationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []research.Record{}
	for rows.Next() {
		var r research.Record
		if err := rows.Scan(&r.TechID, &r.ResearchedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Commit(ctx context.Context, in research.CommitInput) (research.CommitResult, error) {
	retryDelay := firstRetryDelay
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		out, err := p.commitOnce(ctx, in)
		if err == nil {
			return out, nil
		}
		if !isPgConflict(err) {
			return research.CommitResult{}, err
		}
		if attempt == maxCommitAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return research.CommitResult{}, err
		}
		retryDelay *= 2
	}
	return research.CommitResult{}, research.ErrStorageConflict
}

func (p *Postgres) commitOnce(ctx context.Context, in research.CommitInput) (research.CommitResult, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return research.CommitResult{}, err
	}
	defer tx.Rollback(ctx)

	// The row lock serializes commits of one nation; other nations never wait.
	var balance int64
	if err := tx.QueryRow(ctx, `
		SELECT research_points FROM nations WHERE id = $1 FOR UPDATE
	`, in.NationID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return research.CommitResult{}, fmt.Errorf("%w: %s", research.ErrNationNotFound, in.NationID)
		}
		return research.CommitResult{}, err
	}

	cmd, err := tx.Exec(ctx, `
		INSERT INTO technology_progress (nation_id, tech_id, researched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (nation_id, tech_id) DO NOTHING
	`, in.NationID, in.TechID, in.At)
	if err != nil {
		return research.CommitResult{}, err
	}
	if cmd.RowsAffected() == 0 {
		return research.CommitResult{}, fmt.Errorf("%w: %s", research.ErrAlreadyResearched, in.TechID)
	}

	if balance < in.Cost {
		return research.CommitResult{}, &research.InsufficientPointsError{Required: in.Cost, Available: balance}
	}
	if err := tx.QueryRow(ctx, `
		UPDATE nations
		SET research_points = research_points - $1, updated_at = now()
		WHERE id = $2 AND research_points >= $1
		RETURNING research_points
	`, in.Cost, in.NationID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return research.CommitResult{}, &research.InsufficientPointsError{Required: in.Cost, Available: balance}
		}
		return research.CommitResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return research.CommitResult{}, err
	}
	return research.CommitResult{CostSpent: in.Cost, RemainingBalance: balance, ResearchedAt: in.At}, nil
}

func (p *Postgres) GrantPoints(ctx context.Context, nationID string, amount int64) (int64, error) {
	var balance int64
	err := p.db.QueryRow(ctx, `
		UPDATE nations
		SET research_points = research_points + $1, updated_at = now()
		WHERE id = $2
		RETURNING research_points
	`, amount, nationID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", research.ErrNationNotFound, nationID)
	}
	return balance, err
}

func (p *Postgres) GrantAll(ctx context.Context, amount int64) (int64, error) {
	cmd, err := p.db.Exec(ctx, `
		UPDATE nations
		SET research_points = research_points + $1, updated_at = now()
	`, amount)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// isPgConflict reports serialization failures and deadlocks, which are safe
// to retry.
func isPgConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
