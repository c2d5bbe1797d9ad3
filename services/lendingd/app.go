package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"foxylend/config"
	"foxylend/core/events"
	"foxylend/native/lending"
	"foxylend/observability"
	"foxylend/services/lending/outbox"
	lendingserver "foxylend/services/lending/server"
	daemoncfg "foxylend/services/lendingd/config"
	"foxylend/storage"
)

// app holds every long-lived component of the daemon.
type app struct {
	db      storage.Database
	engine  *lending.Engine
	outbox  *gorm.DB
	store   *outbox.Store
	worker  *outbox.Worker
	stream  *events.Broadcaster
	handler *lendingserver.Server
}

func (a *app) Close() {
	if a.outbox != nil {
		if sqlDB, err := a.outbox.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

func bootstrap(cfg daemoncfg.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	db, err := openState(cfg)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.engine = lending.NewEngine(db)
	if err := applyGenesis(a.engine, cfg, log); err != nil {
		a.Close()
		return nil, err
	}

	outboxDB, err := openOutbox(cfg.Outbox)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.outbox = outboxDB
	if err := outbox.AutoMigrate(outboxDB); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate outbox: %w", err)
	}
	metrics := observability.LendingMetrics()
	a.store = outbox.NewStore(outboxDB)
	a.engine.SetEffectSink(a.store)
	a.stream = events.NewBroadcaster(256)
	a.engine.SetEmitter(a.stream)
	a.worker = outbox.NewWorker(a.store, outbox.LogExecutor{Logger: log},
		outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		outbox.WithLogger(log),
		outbox.WithMetrics(metrics),
	)
	a.handler = lendingserver.New(a.engine, lendingserver.Config{
		Auth: lendingserver.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		RateLimit: lendingserver.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	},
		lendingserver.WithLogger(log),
		lendingserver.WithBroadcaster(a.stream),
		lendingserver.WithJobs(a.store),
		lendingserver.WithMetrics(metrics),
	)
	if stats, err := a.engine.Stats(); err == nil {
		metrics.SetOfferCounts(stats.Open, stats.Active)
	}
	return a, nil
}

// openState opens the ledger. An empty data_dir keeps state in memory, which
// config validation only allows in dev.
func openState(cfg daemoncfg.Config) (storage.Database, error) {
	if cfg.DataDir == "" {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "lending"))
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return db, nil
}

func applyGenesis(engine *lending.Engine, cfg daemoncfg.Config, log *slog.Logger) error {
	initialised, err := engine.Initialised()
	if err != nil {
		return err
	}
	if initialised {
		return nil
	}
	path := cfg.GenesisPath
	if path == "" {
		if !cfg.IsDev() {
			return errors.New("genesis path required for first start")
		}
		path = filepath.Join(os.TempDir(), "lendingd-genesis.toml")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !cfg.IsDev() {
		return fmt.Errorf("genesis file %s not found", path)
	}
	file, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	genesis, err := file.ToLending()
	if err != nil {
		return err
	}
	if err := engine.InitGenesis(genesis); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	log.Info("lending genesis applied",
		slog.String("path", path),
		slog.Int("collections", len(genesis.Collections)))
	return nil
}

func openOutbox(cfg daemoncfg.OutboxConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case daemoncfg.DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case daemoncfg.DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported outbox driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return db, nil
}
