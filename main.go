package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appinv "github.com/Zhima-Mochi/cafeshop/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/cafeshop/internal/application/order"
	"github.com/Zhima-Mochi/cafeshop/internal/config"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/lock"
	infraobs "github.com/Zhima-Mochi/cafeshop/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/sqlite"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "cafeshop",
		Usage: "cafe storefront backend: orders, stock reservation, payments and delivery",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite database path (overrides CAFESHOP_DATABASE_PATH)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API, event workers and the delivery sweep scheduler",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address (overrides CAFESHOP_ADDR)"},
				},
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply pending schema migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "rollback", Usage: "revert the latest applied migration instead"},
				},
				Action: migrate,
			},
			{
				Name:   "seed",
				Usage:  "load the demo members and coffee catalog",
				Action: seed,
			},
			{
				Name:   "sweep",
				Usage:  "promote DELIVERY_PREPARING orders to AWAITING_DELIVERY once",
				Action: sweep,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// deps is what every command shares.
type deps struct {
	cfg      config.Config
	log      observability.Logger
	registry *prometheus.Registry
	tel      observability.Observability
	db       *sqlite.DB
}

func bootstrap(c *cli.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("db") {
		cfg.DatabasePath = c.String("db")
	}
	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}

	logger, err := zaplogger.New(zaplogger.Options{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Fields: []observability.Field{observability.F("service", cfg.ServiceName), observability.F("env", cfg.Env)},
	})
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tel := infraobs.New(oteltrace.New(nil, cfg.ServiceName), logger, prometrics.New(reg, "", ""))

	db, err := sqlite.Open(c.Context, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return &deps{cfg: cfg, log: logger, registry: reg, tel: tel, db: db}, nil
}

func (rt *deps) close() error {
	err := rt.db.Close()
	if s, ok := rt.log.(zaplogger.Syncer); ok {
		_ = s.Sync()
	}
	return err
}

func migrate(c *cli.Context) error {
	rt, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer rt.close()

	if c.Bool("rollback") {
		version, err := rt.db.Rollback(c.Context)
		if err != nil {
			return err
		}
		rt.log.Info("migration_rolled_back", observability.F("version", version))
		return nil
	}
	applied, err := rt.db.Migrate(c.Context)
	if err != nil {
		return err
	}
	current, err := rt.db.SchemaVersion(c.Context)
	if err != nil {
		return err
	}
	schema := "none"
	if current != nil {
		schema = current.String()
	}
	rt.log.Info("migrations_applied",
		observability.F("applied", applied),
		observability.F("schema_version", schema),
	)
	return nil
}

func seed(c *cli.Context) error {
	rt, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.db.Migrate(c.Context); err != nil {
		return err
	}
	if err := sqlite.DemoSeed.Apply(c.Context, rt.db); err != nil {
		return err
	}
	rt.log.Info("demo_seed_applied",
		observability.F("members", len(sqlite.DemoSeed.Members)),
		observability.F("items", len(sqlite.DemoSeed.Items)),
	)
	return nil
}

func sweep(c *cli.Context) error {
	rt, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer rt.close()

	uc := apporder.NewSweepDeliveryUseCase(rt.db, nil, rt.tel, apporder.Options{})
	res, err := uc.Execute(c.Context, apporder.SweepInput{RunID: "cli-" + uuid.NewString()})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "promoted %d, skipped %d\n", res.Promoted, res.Conflicts)
	return nil
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.db.Migrate(ctx); err != nil {
		return err
	}

	srv, err := newServer(ctx, rt)
	if err != nil {
		return err
	}
	err = srv.run(ctx)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLockCoordinator(ctx context.Context, cfg config.Config) (appinv.LockCoordinator, func() error, error) {
	if cfg.LockBackend != config.LockRedis {
		return lock.NewLocal(), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	return lock.NewRedis(client, lock.DefaultKeyPrefix), client.Close, nil
}
