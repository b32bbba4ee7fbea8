package loaders

import (
	"context"
	"fmt"

	"github.com/Conversly/messenger-relay/internal/config"
	"github.com/Conversly/messenger-relay/internal/core"
)

var (
	_ core.Store = (*PostgresClient)(nil)
	_ core.Store = (*SQLiteClient)(nil)
)

// NewStore opens the store selected by DATABASE_DRIVER.
func NewStore(ctx context.Context, cfg config.Database) (core.Store, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := NewPostgresClient(ctx, cfg.URL, cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "sqlite":
		lite, err := NewSQLiteClient(cfg.URL)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
