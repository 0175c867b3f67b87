package ledger

import (
	"context"
	"fmt"

	"github.com/Terasay/viau-sub000/internal/config"
	"github.com/Terasay/viau-sub000/internal/db"
	"github.com/Terasay/viau-sub000/internal/research"
)

// Open connects the configured store, applies its schema and returns the
// ledger with a func releasing its connections.
func Open(ctx context.Context, cfg config.StoreConfig) (research.Ledger, func(), error) {
	switch cfg.Driver {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		l := NewPostgres(pool)
		if err := l.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return l, pool.Close, nil
	case config.StoreSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		l := NewSQLite(conn)
		if err := l.Migrate(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return l, func() { _ = conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
