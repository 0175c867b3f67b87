package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Terasay/viau-sub000/internal/config"
	"github.com/Terasay/viau-sub000/internal/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteFileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{Driver: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "nested", "viau.db")}

	l, closeFn, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, l.CreateNation(ctx, research.Nation{ID: "n1", Name: "Portugal", ResearchPoints: 1600, CreatedAt: epoch}))
	_, err = l.Commit(ctx, research.CommitInput{NationID: "n1", TechID: "caravel", Cost: 1450, At: epoch})
	require.NoError(t, err)
	closeFn()

	l, closeFn, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer closeFn()
	n, err := l.Nation(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), n.ResearchPoints)
	done, err := l.IsResearched(ctx, "n1", "caravel")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}
