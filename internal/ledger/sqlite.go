package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Terasay/viau-sub000/internal/research"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nations (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	research_points INTEGER NOT NULL DEFAULT 0 CHECK (research_points >= 0),
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS technology_progress (
	nation_id     TEXT NOT NULL REFERENCES nations (id),
	tech_id       TEXT NOT NULL,
	researched_at INTEGER NOT NULL,
	PRIMARY KEY (nation_id, tech_id)
);

CREATE INDEX IF NOT EXISTS technology_progress_nation_time_idx
	ON technology_progress (nation_id, researched_at);
`

// SQLite is the embedded ledger. Timestamps are stored as unix microseconds.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}

func (s *SQLite) CreateNation(ctx context.Context, n research.Nation) error {
	created := n.CreatedAt.UnixMicro()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nations (id, name, research_points, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, n.ID, n.Name, n.ResearchPoints, created, created)
	return err
}

func (s *SQLite) Nation(ctx context.Context, nationID string) (research.Nation, error) {
	var n research.Nation
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, research_points, created_at
		FROM nations
		WHERE id = ?
	`, nationID).Scan(&n.ID, &n.Name, &n.ResearchPoints, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return n, fmt.Errorf("%w: %s", research.ErrNationNotFound, nationID)
	}
	if err != nil {
		return n, err
	}
	n.CreatedAt = time.UnixMicro(created).UTC()
	return n, nil
}

func (s *SQLite) IsResearched(ctx context.Context, nationID, techID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM technology_progress WHERE nation_id = ? AND tech_id = ?
		)
	`, nationID, techID).Scan(&exists)
	return exists, err
}

func (s *SQLite) Progress(ctx context.Context, nationID string) ([]research.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tech_id, researched_at
		FROM technology_progress
		WHERE nation_id = ?
		ORDER BY researched_at, tech_id
	`, nationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []research.Record{}
	for rows.Next() {
		var r research.Record
		var at int64
		if err := rows.Scan(&r.TechID, &at); err != nil {
			return nil, err
		}
		r.ResearchedAt = time.UnixMicro(at).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Commit(ctx context.Context, in research.CommitInput) (research.CommitResult, error) {
	retryDelay := firstRetryDelay
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		out, err := s.commitOnce(ctx, in)
		if err == nil {
			return out, nil
		}
		if !isSQLiteBusy(err) {
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

func (s *SQLite) commitOnce(ctx context.Context, in research.CommitInput) (research.CommitResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return research.CommitResult{}, err
	}
	defer tx.Rollback()

	var balance int64
	if err := tx.QueryRowContext(ctx, `
		SELECT research_points FROM nations WHERE id = ?
	`, in.NationID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return research.CommitResult{}, fmt.Errorf("%w: %s", research.ErrNationNotFound, in.NationID)
		}
		return research.CommitResult{}, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO technology_progress (nation_id, tech_id, researched_at)
		VALUES (?, ?, ?)
		ON CONFLICT (nation_id, tech_id) DO NOTHING
	`, in.NationID, in.TechID, in.At.UnixMicro())
	if err != nil {
		return research.CommitResult{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return research.CommitResult{}, err
	} else if n == 0 {
		return research.CommitResult{}, fmt.Errorf("%w: %s", research.ErrAlreadyResearched, in.TechID)
	}

	if balance < in.Cost {
		return research.CommitResult{}, &research.InsufficientPointsError{Required: in.Cost, Available: balance}
	}
	res, err = tx.ExecContext(ctx, `
		UPDATE nations
		SET research_points = research_points - ?, updated_at = ?
		WHERE id = ? AND research_points >= ?
	`, in.Cost, in.At.UnixMicro(), in.NationID, in.Cost)
	if err != nil {
		return research.CommitResult{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return research.CommitResult{}, err
	} else if n == 0 {
		return research.CommitResult{}, &research.InsufficientPointsError{Required: in.Cost, Available: balance}
	}
	if err := tx.QueryRowContext(ctx, `
		SELECT research_points FROM nations WHERE id = ?
	`, in.NationID).Scan(&balance); err != nil {
		return research.CommitResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return research.CommitResult{}, err
	}
	return research.CommitResult{CostSpent: in.Cost, RemainingBalance: balance, ResearchedAt: in.At}, nil
}

func (s *SQLite) GrantPoints(ctx context.Context, nationID string, amount int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE nations
		SET research_points = research_points + ?, updated_at = ?
		WHERE id = ?
	`, amount, time.Now().UnixMicro(), nationID)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n == 0 {
		return 0, fmt.Errorf("%w: %s", research.ErrNationNotFound, nationID)
	}
	var balance int64
	if err := tx.QueryRowContext(ctx, `SELECT research_points FROM nations WHERE id = ?`, nationID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, tx.Commit()
}

func (s *SQLite) GrantAll(ctx context.Context, amount int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE nations
		SET research_points = research_points + ?, updated_at = ?
	`, amount, time.Now().UnixMicro())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// isSQLiteBusy reports lock contention, which is safe to retry.
func isSQLiteBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
