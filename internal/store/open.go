package store

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"

	"classroom/internal/config"
	"classroom/internal/recordstore"
)

// Resources are the connections opened for the configured backends.
type Resources struct {
	Backend  recordstore.Backend
	Feed     recordstore.Feed
	DB       *DB
	Redis    *Redis
	Firebase *firebase.App
}

// Open connects the record backend and change feed named by cfg.
func Open(ctx context.Context, cfg config.App) (*Resources, error) {
	res := &Resources{}
	if cfg.FeedBackend == "redis" || cfg.QueueBackend == "redis" || cfg.RateLimitBackend == "redis" {
		res.Redis = NewRedis(cfg.RedisAddr)
	}
	if cfg.StoreBackend == "rtdb" || cfg.AuthProvider == "firebase" {
		app, err := NewFirebaseApp(ctx, cfg.FirebaseProjectID, cfg.FirebaseDatabaseURL, cfg.FirebaseCredentialsFile)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("firebase: %w", err)
		}
		res.Firebase = app
	}

	switch cfg.StoreBackend {
	case "memory", "":
		res.Backend = recordstore.NewMemoryBackend()
	case "sql":
		db, err := NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.DB = db
		if err := db.Migrate(ctx); err != nil {
			res.Close()
			return nil, err
		}
		res.Backend = NewSQLTree(db)
	case "rtdb":
		rt, err := NewRTDB(ctx, res.Firebase)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("rtdb: %w", err)
		}
		res.Backend = rt
	default:
		res.Close()
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}

	switch cfg.FeedBackend {
	case "local", "":
		res.Feed = recordstore.NewLocalFeed()
	case "redis":
		res.Feed = NewRedisFeed(res.Redis.Client, cfg.FeedChannel)
	default:
		res.Close()
		return nil, fmt.Errorf("unsupported feed backend: %s", cfg.FeedBackend)
	}
	return res, nil
}

// Close releases every opened connection.
func (r *Resources) Close() {
	if r.Feed != nil {
		r.Feed.Close()
	}
	if r.Backend != nil {
		r.Backend.Close()
	}
	if r.DB != nil {
		r.DB.Close()
	}
	if r.Redis != nil {
		r.Redis.Close()
	}
}
