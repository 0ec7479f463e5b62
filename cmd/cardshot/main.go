package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/user/cardshot/internal/adapter/chromedp_page"
	pebblestore "github.com/user/cardshot/internal/adapter/pebble"
	"github.com/user/cardshot/internal/adapter/postgres"
	"github.com/user/cardshot/internal/adapter/publish"
	redis_adapter "github.com/user/cardshot/internal/adapter/redis"
	"github.com/user/cardshot/internal/delivery/http/server"
	"github.com/user/cardshot/internal/entity"
	"github.com/user/cardshot/internal/repository"
	"github.com/user/cardshot/internal/template"
	"github.com/user/cardshot/internal/usecase"
	"github.com/user/cardshot/pkg/config"
	"github.com/user/cardshot/pkg/logger"
	"github.com/user/cardshot/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one batch and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	start := time.Now()

	// --- Configuration ---
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "cardshot:", err)
		return 1
	}

	// --- Logger ---
	log, err := logger.New(stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(stderr, "cardshot:", err)
		return 1
	}
	defer log.Sync()
	log.Debug("Configuration loaded", zap.String("config", cfg.ConfigFile), zap.Int("images", len(cfg.Images)))

	if cfg.Inspect != "" {
		return inspect(ctx, cfg, log, stdout, stderr)
	}

	var opts usecase.SessionOptions
	var progress repository.ProgressRepository
	var host repository.DocumentHost = unstartedHost{}

	// Integrations and the document host are only needed when something is rendered.
	if !cfg.Global.Debug {
		deps, err := openIntegrations(ctx, cfg, log, true)
		if err != nil {
			fmt.Fprintln(stderr, "cardshot:", err)
			return 1
		}
		defer deps.close(log)
		opts.Records, opts.Publisher, progress = deps.records, deps.publisher, deps.progress

		srv := server.NewServer(log)
		if err := srv.Start(); err != nil {
			fmt.Fprintln(stderr, "cardshot:", fmt.Errorf("%w: %w", entity.ErrResource, err))
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("Document host did not shut down cleanly", zap.Error(err))
			}
		}()
		host = srv
	}

	// --- Use Cases ---
	renderer := template.NewRenderer()
	chromeOpts := chromedp_page.Options{ExecPath: cfg.Chrome.ExecPath, NoSandbox: cfg.Chrome.NoSandbox}
	factory := func(runID string, total int) usecase.Session {
		o := opts
		o.RunID, o.Total = runID, total
		o.Timeout = cfg.Global.Timeout
		o.WaitFirst, o.WaitRest = cfg.WaitFirst, cfg.WaitRest
		return usecase.NewRenderSession(chromedp_page.NewPageDriver(chromeOpts, log), host, renderer, log, o)
	}
	runner := usecase.NewBatchRunner(factory, progress, log)

	summary, runErr := runner.Run(ctx, cfg.Global, cfg.Images)
	exportMetrics(cfg.Metrics, summary.RunID, log)

	if runErr != nil {
		log.Error("Batch failed", zap.String("run_id", summary.RunID), zap.String("error_type", entity.ErrorType(runErr)), zap.Error(runErr))
		fmt.Fprintln(stderr, "cardshot:", runErr)
		return 1
	}
	if summary.Debug {
		return 0
	}

	elapsed := time.Since(start)
	log.Info("Batch completed",
		zap.String("run_id", summary.RunID),
		zap.Int("images", summary.Count),
		zap.Int("templates", renderer.CacheSize()),
		zap.Duration("elapsed", elapsed),
	)
	fmt.Fprintf(stdout, "Done in %.3f seconds.\n", elapsed.Seconds())
	return 0
}

// inspect prints what the configured stores know about a previous run.
func inspect(ctx context.Context, cfg *config.Config, log *zap.Logger, stdout, stderr io.Writer) int {
	deps, err := openIntegrations(ctx, cfg, log, false)
	if err != nil {
		fmt.Fprintln(stderr, "cardshot:", err)
		return 1
	}
	defer deps.close(log)

	report, err := usecase.NewRunInspector(deps.records, deps.progress).Inspect(ctx, cfg.Inspect)
	if err != nil {
		fmt.Fprintln(stderr, "cardshot:", err)
		return 1
	}
	out, err := yaml.Marshal(report)
	if err != nil {
		fmt.Fprintln(stderr, "cardshot:", err)
		return 1
	}
	stdout.Write(out)
	return 0
}

type integrations struct {
	records   repository.RenderRecordRepository
	progress  repository.ProgressRepository
	publisher repository.ImagePublisher
	closers   []func() error
}

// openIntegrations connects the optional history, progress and publish
// backends. History and publish are required once configured; progress is
// advisory and dropped when Redis is unreachable.
func openIntegrations(ctx context.Context, cfg *config.Config, log *zap.Logger, publishing bool) (*integrations, error) {
	deps := &integrations{}

	switch {
	case cfg.History.PostgresURL != "":
		if cfg.History.PebbleDir != "" {
			log.Warn("Both history backends configured, using PostgreSQL")
		}
		repo, err := postgres.NewRenderRecordRepo(ctx, cfg.History.PostgresURL)
		if err != nil {
			deps.close(log)
			return nil, fmt.Errorf("%w: %w", entity.ErrResource, err)
		}
		deps.records = repo
		deps.closers = append(deps.closers, func() error { repo.Close(); return nil })
		log.Info("PostgreSQL render history enabled")
	case cfg.History.PebbleDir != "":
		store, err := pebblestore.Open(cfg.History.PebbleDir)
		if err != nil {
			deps.close(log)
			return nil, fmt.Errorf("%w: %w", entity.ErrResource, err)
		}
		deps.records = store
		deps.closers = append(deps.closers, store.Close)
		log.Info("Local render history enabled", zap.String("dir", cfg.History.PebbleDir))
	}

	if cfg.Progress.RedisAddr != "" {
		client := redis_adapter.NewClient(cfg.Progress.RedisAddr, cfg.Progress.RedisPassword, cfg.Progress.RedisDB)
		repo := redis_adapter.NewProgressRepo(client)
		if err := repo.Ping(ctx); err != nil {
			log.Warn("Redis unreachable, progress reporting disabled", zap.String("addr", cfg.Progress.RedisAddr), zap.Error(err))
			client.Close()
		} else {
			deps.progress = repo
			deps.closers = append(deps.closers, client.Close)
			log.Info("Redis progress reporting enabled", zap.String("addr", cfg.Progress.RedisAddr))
		}
	}

	if publishing && cfg.Publish.Backend != "" {
		pub, err := publish.New(ctx, cfg.Publish.Backend, cfg.Publish.AccessInfo)
		if err != nil {
			deps.close(log)
			return nil, fmt.Errorf("%w: %w", entity.ErrConfig, err)
		}
		deps.publisher = pub
		deps.closers = append(deps.closers, func() error { return publish.Close(pub) })
		log.Info("Publishing enabled", zap.String("backend", pub.Name()))
	}

	return deps, nil
}

func (d *integrations) close(log *zap.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn("Failed to close integration", zap.Error(err))
		}
	}
	d.closers = nil
}

// exportMetrics writes and pushes metrics when configured. Failures are logged only.
func exportMetrics(cfg config.MetricsConfig, runID string, log *zap.Logger) {
	if cfg.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Textfile); err != nil {
			log.Warn("Failed to export metrics", zap.Error(err))
		}
	}
	if cfg.Pushgateway != "" && runID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metrics.Push(ctx, cfg.Pushgateway, "cardshot", runID); err != nil {
			log.Warn("Failed to push metrics", zap.Error(err))
		}
	}
}

// unstartedHost stands in for the document host in debug runs, which never
// render anything.
type unstartedHost struct{}

func (unstartedHost) Host(string, string) (string, error) {
	return "", server.ErrNotStarted
}
