package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/buildsync/bridge/dispatch"
	"github.com/buildsync/bridge/internal/config"
	"github.com/buildsync/bridge/internal/jenkins"
	"github.com/buildsync/bridge/internal/observability"
	"github.com/buildsync/bridge/internal/openshift"
	"github.com/buildsync/bridge/journal"
)

func main() {
	ctx := listenOSKillSignalsContext(context.Background())

	app := &cli.App{
		Name:  "bridge",
		Usage: "dispatches platform builds to runner jobs and keeps them in sync",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "bridge.toml",
				Usage: "path to the TOML configuration file",
			},
		},
		Commands: cli.Commands{
			&cli.Command{
				Name:  "serve",
				Usage: "run the dispatch HTTP server and the resync sweeper",
				Action: func(c *cli.Context) error {
					return runServe(c.Context, c.String("config"))
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bridge: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return err
	}
	if cfg.Platform.URL == "" {
		return errors.New("platform URL is required (set [platform] url or BRIDGE_PLATFORM_URL)")
	}
	if cfg.Runner.URL == "" {
		return errors.New("runner URL is required (set [runner] url or BRIDGE_RUNNER_URL)")
	}

	logger := observability.NewLogger("bridge")

	platformClient := openshift.NewClient(cfg.Platform.URL, cfg.Platform.Token)
	runnerClient := jenkins.NewClient(cfg.Runner.URL, cfg.Runner.User, cfg.Runner.Token)

	var recorder dispatch.Recorder
	if cfg.DatabaseURL != "" {
		db, err := openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		store := journal.NewStore(db)
		if err := store.ApplyMigrations(ctx); err != nil {
			return err
		}
		recorder = store
	}

	metrics := observability.NewMetrics(nil)
	engine := dispatch.NewEngine(platformClient, runnerClient, dispatch.NoopSyncer{}, observability.NewLogger("bridge.dispatch"), metrics, recorder)
	handler := dispatch.NewHTTPHandler(engine, runnerClient, observability.NewLogger("bridge.http"))

	server := &http.Server{
		Addr:              cfg.ListenOrDefault(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("server started", "event", "server_started", "listen", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		runResyncSweeper(ctx, engine, runnerClient, cfg, observability.NewLogger("bridge.resync"))
		return nil
	})

	return group.Wait()
}

// runResyncSweeper periodically re-reconciles the configured jobs so NEW
// builds missed by the event surface still get dispatched.
func runResyncSweeper(ctx context.Context, engine *dispatch.Engine, runnerClient *jenkins.Client, cfg config.Config, logger *slog.Logger) {
	if len(cfg.Resync.Jobs) == 0 {
		return
	}

	ticker := time.NewTicker(cfg.ResyncInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweepJobs(ctx, engine, runnerClient, cfg.Resync.Jobs, logger)
		case <-ctx.Done():
			return
		}
	}
}

func sweepJobs(ctx context.Context, engine *dispatch.Engine, runnerClient *jenkins.Client, jobs []string, logger *slog.Logger) {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, name := range jobs {
		name := name
		group.Go(func() error {
			job, err := runnerClient.LookupJob(ctx, name)
			if err != nil {
				logger.Warn("resync lookup failed", "event", "resync_lookup_failed", "job", name, "error", err)
				return nil
			}
			if err := engine.MaybeScheduleNext(ctx, job); err != nil {
				logger.Warn("resync failed", "event", "resync_failed", "job", name, "error", err)
			}
			return nil
		})
	}
	_ = group.Wait()
}

func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func listenOSKillSignalsContext(ctx context.Context) context.Context {
	var cancelFunc context.CancelFunc
	ctx, cancelFunc = context.WithCancel(ctx)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-ch:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
	return ctx
}
