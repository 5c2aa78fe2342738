package database

import (
	"context"
	"fmt"

	"github.com/therealutkarshpriyadarshi/videosync/internal/config"
)

// Open connects the store selected by cfg.Driver and runs its migrations
func Open(ctx context.Context, cfg config.DatabaseConfig, sqlite config.SQLiteConfig) (VideoStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLiteStore(sqlite.Path)
	case "postgres":
		db, err := New(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return NewRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
