// Package store picks a MessageStore implementation from configuration.
package store

import (
	"context"
	"fmt"

	"github.com/dkeye/Duet/internal/adapters/store/gormstore"
	"github.com/dkeye/Duet/internal/adapters/store/mongostore"
	"github.com/dkeye/Duet/internal/adapters/store/sqlstore"
	"github.com/dkeye/Duet/internal/config"
	"github.com/dkeye/Duet/internal/core"
)

func Open(ctx context.Context, cfg config.StoreConfig) (core.MessageStore, error) {
	switch cfg.Driver {
	case "sqlite", "postgres":
		return sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
	case "mysql":
		return gormstore.Open(cfg.DSN)
	case "mongo":
		return mongostore.Open(ctx, cfg.DSN, cfg.Database)
	}
	return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
}
