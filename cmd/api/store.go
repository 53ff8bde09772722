package main

import (
	"fmt"
	"log/slog"

	"github.com/geocoder89/studentportal/internal/config"
	"github.com/geocoder89/studentportal/internal/db"
	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/geocoder89/studentportal/internal/observability"
	"github.com/geocoder89/studentportal/internal/repo/memory"
	mongorepo "github.com/geocoder89/studentportal/internal/repo/mongo"
	"github.com/geocoder89/studentportal/internal/repo/postgres"
)

// openStore connects the configured user store. The returned func releases it.
func openStore(cfg config.Config, prom *observability.Prom, log *slog.Logger) (user.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := db.NewMongo(cfg.MongoURI, cfg.StoreTimeout)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := config.WithTimeout(cfg.StoreTimeout)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				log.Error("mongo disconnect failed", "err", err)
			}
		}

		repo := mongorepo.NewUsersRepo(client.Database(cfg.MongoDB), prom)

		ctx, cancel := config.WithTimeout(cfg.StoreTimeout)
		defer cancel()
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return repo, closeFn, nil

	case config.DriverPostgres:
		pool, err := db.NewPool(cfg.DBURL, cfg.StoreTimeout)
		if err != nil {
			return nil, nil, err
		}

		ctx, cancel := config.WithTimeout(cfg.StoreTimeout)
		defer cancel()
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return postgres.NewUsersRepo(pool, prom), pool.Close, nil

	case config.DriverMemory:
		log.Warn("using in-memory store: data is lost on restart")
		return memory.NewUsersRepo(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

