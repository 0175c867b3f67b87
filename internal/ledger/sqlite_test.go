package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Terasay/viau-sub000/internal/db"
	"github.com/Terasay/viau-sub000/internal/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var epoch = time.Date(1500, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) *SQLite {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	l := NewSQLite(conn)
	require.NoError(t, l.Migrate(ctx))
	return l
}

func seedNation(t *testing.T, l *SQLite, id string, points int64) {
	t.Helper()
	require.NoError(t, l.CreateNation(context.Background(), research.Nation{
		ID: id, Name: "Nation " + id, ResearchPoints: points, CreatedAt: epoch,
	}))
}

func TestCommitDebitsAndRecords(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedNation(t, l, "n1", 2000)

	out, err := l.Commit(ctx, research.CommitInput{NationID: "n1", TechID: "arquebus", Cost: 1500, At: epoch})
	require.NoError(t, err)
	assert.Equal(t, research.CommitResult{CostSpent: 1500, RemainingBalance: 500, ResearchedAt: epoch}, out)

	n, err := l.Nation(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), n.ResearchPoints)
	assert.True(t, n.CreatedAt.Equal(epoch))

	done, err := l.IsResearched(ctx, "n1", "arquebus")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestCommitRejectsDuplicateWithoutDebit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedNation(t, l, "n1", 2000)

	_, err := l.Commit(ctx, research.CommitInput{NationID: "n1", TechID: "arquebus", Cost: 1500, At: epoch})
	require.NoError(t, err)
	_, err = l.Commit(ctx, research.CommitInput{NationID: "n1", TechID: "arquebus", Cost: 1500, At: epoch.Add(time.Hour)})
	assert.ErrorIs(t, err, research.ErrAlreadyResearched)

	n, err := l.Nation(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), n.ResearchPoints)
}

func TestCommitInsufficientLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedNation(t, l, "n1", 100)

	_, err := l.Commit(ctx, research.CommitInput{NationID: "n1", TechID: "matchlock", Cost: 1525, At: epoch})
	var insufficient *research.InsufficientPointsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(1525), insufficient.Required)
	assert.Equal(t, int64(100), insufficient.Available)

	done, err := l.IsResearched(ctx, "n1", "matchlock")
	require.NoError(t, err)
	assert.False(t, done, "record must be rolled back with the failed debit")
	n, err := l.Nation(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), n.ResearchPoints)
}

func TestCommitUnknownNation(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Commit(context.Background(), research.CommitInput{NationID: "ghost", TechID: "x", At: epoch})
	assert.ErrorIs(t, err, research.ErrNationNotFound)
	_, err = l.Nation(context.Background(), "ghost")
	assert.ErrorIs(t, err, research.ErrNationNotFound)
}

func TestProgressOrderedByTime(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedNation(t, l, "n1", 0)

	for i, id := range []string{"c", "a", "b"} {
		_, err := l.Commit(ctx, research.CommitInput{NationID: "n1", TechID: id, At: epoch.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	_, err := l.Commit(ctx, research.CommitInput{NationID: "n1", TechID: "0tie", At: epoch.Add(2 * time.Minute)})
	require.NoError(t, err)

	records, err := l.Progress(ctx, "n1")
	require.NoError(t, err)
	var ids []string
	for _, r := range records {
		ids = append(ids, r.TechID)
	}
	assert.Equal(t, []string{"c", "a", "0tie", "b"}, ids)
	assert.True(t, records[0].ResearchedAt.Equal(epoch))

	empty, err := l.Progress(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestConcurrentDuplicateCommitsSucceedOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedNation(t, l, "n1", 10_000)

	var ok, dup atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := l.Commit(ctx, research.CommitInput{NationID: "n1", TechID: "arquebus", Cost: 1500, At: epoch})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, research.ErrAlreadyResearched):
				dup.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(7), dup.Load())

	n, err := l.Nation(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(8500), n.ResearchPoints)
}

func TestConcurrentCommitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedNation(t, l, "n1", 3000)

	var ok, short atomic.Int32
	var g errgroup.Group
	for i := 0; i < 5; i++ {
		techID := fmt.Sprintf("tech_%d", i)
		g.Go(func() error {
			_, err := l.Commit(ctx, research.CommitInput{NationID: "n1", TechID: techID, Cost: 1000, At: epoch})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, research.ErrInsufficientResearchPoints):
				short.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(3), ok.Load())
	assert.Equal(t, int32(2), short.Load())

	n, err := l.Nation(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n.ResearchPoints)
	records, err := l.Progress(ctx, "n1")
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestGrantPoints(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedNation(t, l, "n1", 10)
	seedNation(t, l, "n2", 0)

	balance, err := l.GrantPoints(ctx, "n1", 15)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)

	_, err = l.GrantPoints(ctx, "ghost", 15)
	assert.ErrorIs(t, err, research.ErrNationNotFound)

	count, err := l.GrantAll(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	n2, err := l.Nation(ctx, "n2")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n2.ResearchPoints)
}
