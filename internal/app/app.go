// Package app wires the dispatch services onto Postgres, Redis and the
// configured broadcast bus. Every binary builds the same graph.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/appointment"
	"github.com/hackgods/homeservice-dispatch/internal/assignment"
	"github.com/hackgods/homeservice-dispatch/internal/availability"
	"github.com/hackgods/homeservice-dispatch/internal/broadcast"
	"github.com/hackgods/homeservice-dispatch/internal/cache"
	"github.com/hackgods/homeservice-dispatch/internal/config"
	"github.com/hackgods/homeservice-dispatch/internal/db"
	"github.com/hackgods/homeservice-dispatch/internal/inventory"
	"github.com/hackgods/homeservice-dispatch/internal/metrics"
	"github.com/hackgods/homeservice-dispatch/internal/notification"
	redisclient "github.com/hackgods/homeservice-dispatch/internal/redis"
	"github.com/hackgods/homeservice-dispatch/internal/staff"
)

const metricsNamespace = "dispatch"

type App struct {
	Config   config.Config
	Logger   *zap.Logger
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Registry *prometheus.Registry

	Appointments  *appointment.Service
	Slots         *availability.Service
	Ledger        *inventory.Ledger
	Staff         *staff.Directory
	Notifications *notification.Service

	closers []func()
}

// Build connects every backend and assembles the services. The caller owns
// the returned App and must Close it.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConn)
	cancelPg()
	if err != nil {
		return nil, fmt.Errorf("postgres connection: %w", err)
	}
	a.PgPool = pool
	a.closers = append(a.closers, pool.Close)
	logger.Info("connected to postgres")

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			a.Close()
			return nil, err
		}
	}

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	a.Redis = rdb
	a.closers = append(a.closers, func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	})
	logger.Info("connected to redis")

	bus, err := a.bus(rdb)
	if err != nil {
		a.Close()
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New(a.Registry, metricsNamespace)
	}
	c := cache.New(rdb, cache.Config{TodayTTL: cfg.CacheTodayTTL, StableTTL: cfg.CacheStableTTL}, logger, m)
	tx := db.NewTxManager(pool)

	slotRepo := availability.NewPgRepository(pool)
	apptRepo := appointment.NewPgRepository(pool)
	staffRepo := staff.NewPgRepository(pool, appointment.BusyStatuses())
	notifications := notification.NewService(notification.NewPgRepository(pool), logger)
	ledger := inventory.NewLedger(inventory.NewPgRepository(pool), tx, logger, m)

	a.Slots = availability.NewService(slotRepo, c, logger)
	a.Ledger = ledger
	a.Staff = staff.NewDirectory(staffRepo, c, logger)
	a.Notifications = notifications
	a.Appointments = appointment.NewService(appointment.Deps{
		Repo:           apptRepo,
		Tx:             tx,
		Locker:         redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		Staff:          staffRepo,
		Checker:        availability.NewChecker(slotRepo, apptRepo),
		Ledger:         ledger,
		Engine:         assignment.NewEngine(staffRepo, logger, m),
		Penalty:        appointment.PenaltyFor(cfg.Policy, staffRepo, logger),
		Notifier:       notifications,
		Broadcaster:    broadcast.NewBroadcaster(bus, logger),
		Cache:          c,
		Metrics:        m,
		Logger:         logger,
		Rules:          appointment.RulesFor(cfg.Policy),
		ResponseWindow: cfg.ResponseWindow,
	})

	return a, nil
}

func (a *App) bus(rdb *redis.Client) (broadcast.Bus, error) {
	switch a.Config.BroadcastDriver {
	case "mqtt":
		b, err := broadcast.NewMQTTBus(broadcast.MQTTOptions{
			Broker:   a.Config.MQTTBroker,
			ClientID: a.Config.MQTTClientID,
			Username: a.Config.MQTTUsername,
			Password: a.Config.MQTTPassword,
			QoS:      1,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		a.Logger.Info("broadcasting over mqtt", zap.String("broker", a.Config.MQTTBroker))
		return b, nil
	case "redis":
		return broadcast.NewRedisBus(rdb, "dispatch:"), nil
	default:
		return broadcast.NewLogBus(a.Logger), nil
	}
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
