package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chorecal/internal/config"
	appLog "chorecal/internal/log"
	"chorecal/internal/reconcile"
	"chorecal/internal/remote"
	"chorecal/internal/store"
)

// app is the wired object graph every command works on.
type app struct {
	cfg     *config.Config
	client  remote.Client
	store   *store.TaskStore
	sync    *reconcile.Reconciler
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	client, err := a.openRemote(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Redis.Addr != "" {
		client = a.withCache(ctx, client)
	}
	a.client = client

	loc := cfg.Location()
	a.store = store.New(store.Options{
		Account:      cfg.AccountID,
		Location:     loc,
		InitialBatch: cfg.InitialBatch,
		TopUpBatch:   cfg.TopUpBatch,
	})
	a.sync = reconcile.New(client, a.store, reconcile.Options{
		Account:      cfg.AccountID,
		Timeout:      cfg.SyncTimeout,
		SnapshotPath: cfg.SnapshotPath,
		Location:     loc,
	})
	a.store.SetSyncer(a.sync)

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", loc.String(),
		"account", cfg.AccountID,
		"remote", cfg.Remote.Kind,
		"redis", cfg.Redis.Addr != "",
		"refresh", cfg.RefreshCron,
		"horizon_days", cfg.HorizonDays,
	)
	return a, nil
}

func (a *app) openRemote(ctx context.Context) (remote.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.SyncTimeout)
	defer cancel()

	switch a.cfg.Remote.Kind {
	case config.RemoteAzure:
		az := a.cfg.Remote.Azure
		ts, err := remote.NewTableStore(az.ConnectionString, az.TasksTable, az.PersonsTable, a.cfg.AccountID)
		if err != nil {
			return nil, err
		}
		if err := ts.EnsureTables(ctx); err != nil {
			return nil, err
		}
		return ts, nil

	case config.RemotePostgres:
		pg := a.cfg.Remote.Postgres
		ss, err := remote.OpenSQLStore(pg.DSN, pg.TasksTable, pg.PersonsTable)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ss.Close)
		if err := ss.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return ss, nil

	case config.RemoteMemory:
		appLog.Warn("using in-memory remote; tasks only survive through the snapshot")
		return remote.NewMemory(), nil

	default:
		return nil, fmt.Errorf("unknown remote kind %q", a.cfg.Remote.Kind)
	}
}

// withCache puts the Redis read cache in front of client. An unreachable
// Redis is logged; the cache falls back to the backend on every call.
func (a *app) withCache(ctx context.Context, client remote.Client) remote.Client {
	rc := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, rc.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		appLog.Warn("redis unreachable; cache disabled until it recovers", "addr", a.cfg.Redis.Addr, "err", err.Error())
	}
	return remote.NewCache(client, rc, a.cfg.Redis.TTL)
}

// Close releases backend connections.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			appLog.Error("close failed", err)
		}
	}
	a.closers = nil
}

// flush waits for queued remote writes, bounded by the sync timeout.
func (a *app) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SyncTimeout)
	defer cancel()
	if err := a.sync.Flush(ctx); err != nil {
		appLog.Error("pending remote writes not flushed", err, "pending", a.sync.Status().Pending)
	}
}
