package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/gotrs-io/gotrs-mailpipe/internal/config"
	"github.com/gotrs-io/gotrs-mailpipe/internal/database"
	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/adapter"
	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/connector"
	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/postmaster"
	"github.com/gotrs-io/gotrs-mailpipe/internal/lock"
	"github.com/gotrs-io/gotrs-mailpipe/internal/metrics"
	"github.com/gotrs-io/gotrs-mailpipe/internal/repository"
)

// app holds the wired collaborators shared by the subcommands.
type app struct {
	cfg      *config.Config
	out      io.Writer
	logger   *log.Logger
	db       *sqlx.DB
	redis    *redis.Client
	tickets  *repository.TicketRepository
	ingester *postmaster.Ingester
	registry *prometheus.Registry
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	out, closeOut, err := openLogOutput(cfg.Logging.Output)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, out: out}
	if closeOut != nil {
		a.closers = append(a.closers, closeOut)
	}
	a.logger = a.componentLogger("MAILPIPE")

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	a.tickets = repository.NewTicketRepository(db,
		repository.WithTablePrefix(cfg.Database.TablePrefix),
		repository.WithLegacyUTF8(cfg.Database.LegacyUTF8))

	locker, err := a.newLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipingMetrics := metrics.NewPipingMetrics(a.registry)

	dialer := connector.NewIMAPDialer(
		connector.WithIMAPLogger(a.componentLogger("IMAP")),
		connector.WithIMAPDialTimeout(cfg.Scheduler.ConnectTimeout))

	opts := append(adapter.IngesterOptions(cfg),
		postmaster.WithIngesterLogger(a.logger),
		postmaster.WithLocker(locker),
		postmaster.WithRunObserver(pipingMetrics))
	a.ingester = postmaster.NewIngester(dialer, a.tickets, adapter.NewConfigProvider(), opts...)
	return a, nil
}

func (a *app) newLocker(ctx context.Context) (lock.Locker, error) {
	if !a.cfg.Redis.Enabled {
		return lock.NewLocalLocker(), nil
	}
	client, err := lock.NewRedisClient(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	return lock.NewRedisLocker(client,
		lock.WithLockTTL(a.cfg.Redis.LockTTL),
		lock.WithLockLogger(a.componentLogger("LOCK"))), nil
}

func (a *app) componentLogger(component string) *log.Logger {
	return log.New(a.out, "["+component+"] ", log.LstdFlags)
}

// Close releases collaborators in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
}

func openLogOutput(output string) (io.Writer, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(output)) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return f, f.Close, nil
}
