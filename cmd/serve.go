package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/craftercms/engine-sub000/internal/config"
	"github.com/craftercms/engine-sub000/internal/entitlement"
	"github.com/craftercms/engine-sub000/internal/executor"
	"github.com/craftercms/engine-sub000/internal/factory"
	"github.com/craftercms/engine-sub000/internal/lifecycle"
	"github.com/craftercms/engine-sub000/internal/logger"
	"github.com/craftercms/engine-sub000/internal/metrics"
	"github.com/craftercms/engine-sub000/internal/server"
	"github.com/craftercms/engine-sub000/internal/site"
	"github.com/craftercms/engine-sub000/internal/telemetry"
	"github.com/craftercms/engine-sub000/internal/ui"
	"github.com/craftercms/engine-sub000/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve every site from the sites root",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "address to listen on (default :8080)")
	serveCmd.Flags().Bool("preview", false, "run as a preview host: watch sites and rebuild on change")

	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if preview, _ := cmd.Flags().GetBool("preview"); preview {
		viper.Set("mode", config.ModePreview)
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	base := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = base.Sync() }()
	printer := ui.New()

	tel, err := openTelemetry(cfg.TelemetryPath)
	if err != nil {
		return err
	}
	defer tel.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, cancel := setupSignalContext(printer)
	defer cancel()

	lister, closeTenants, err := openTenants(ctx, cfg, logger.Named(base, logger.ComponentTenants))
	if err != nil {
		return err
	}
	defer closeTenants()

	pool := executor.NewPool(cfg.Lifecycle.Workers, cfg.Lifecycle.WorkQueue, logger.Named(base, logger.ComponentExecutor))
	defer pool.Close()

	mgr := newManager(cfg, base, lister, pool, tel, metrics.New(reg))
	defer mgr.Close()

	printer.Banner(cfg.Mode, cfg.Listen)
	if err := startContexts(ctx, mgr, cfg, base.Sugar()); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(mgr, server.Options{
		DefaultSite:  cfg.DefaultSite,
		FallbackSite: cfg.FallbackSite,
		Gatherer:     reg,
		Logger:       base.Named(logger.ComponentServer),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mgr.RunSync(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx, cfg.Listen)
	})
	return g.Wait()
}

// newManager wires the factory and lifecycle manager from cfg.
func newManager(cfg config.Config, base *zap.Logger, lister lifecycle.TenantLister, pool *executor.Pool, tel *telemetry.Emitter, met *metrics.Metrics) *lifecycle.Manager {
	fac := factory.New(factory.Options{
		SitesRoot:     cfg.SitesRoot,
		Library:       builtinLibrary(logger.Named(base, logger.ComponentScheduler)),
		TemplateFuncs: templateFuncs(),
		Site: site.Options{
			InitTimeout:     cfg.Lifecycle.InitTimeout,
			ShutdownTimeout: cfg.Lifecycle.ShutdownTimeout,
			MaxAccessors:    cfg.Lifecycle.MaxAccessors,
			QueueSize:       cfg.Lifecycle.QueueSize,
			Logger:          logger.Named(base, logger.ComponentSite),
		},
		Logger: logger.Named(base, logger.ComponentFactory),
	})

	deps := lifecycle.Deps{
		Factory:  fac,
		Tenants:  lister,
		Executor: pool,
	}
	if cfg.MaxSites > 0 {
		deps.Entitlement = entitlement.NewQuotaValidator(map[string]int{entitlement.KindSite: cfg.MaxSites})
	}

	return lifecycle.New(deps, lifecycle.Options{
		Preview:      cfg.Preview(),
		SitesRoot:    cfg.SitesRoot,
		DefaultSite:  cfg.DefaultSite,
		FallbackSite: cfg.FallbackSite,
		Retry: lifecycle.RetryPolicy{
			Base:        cfg.Lifecycle.Retry.Base,
			Multiplier:  cfg.Lifecycle.Retry.Multiplier,
			MaxAttempts: cfg.Lifecycle.Retry.MaxAttempts,
		},
		Watch: watch.Options{
			Paths:     cfg.Watch.Paths,
			Exclude:   cfg.Watch.Exclude,
			Interval:  cfg.Watch.Interval,
			Threshold: cfg.Watch.Threshold,
		},
		SyncInterval: cfg.Lifecycle.SyncInterval,
		Logger:       logger.Named(base, logger.ComponentLifecycle),
		Telemetry:    tel,
		Metrics:      met,
	})
}

// startContexts creates the startup contexts. A failed site never stops the
// host; a cancelled ctx does.
func startContexts(ctx context.Context, mgr *lifecycle.Manager, cfg config.Config, log *zap.SugaredLogger) error {
	if cfg.Lifecycle.CreateOnStart {
		if err := mgr.CreateContexts(ctx, cfg.Lifecycle.Concurrent); err != nil {
			return fmt.Errorf("create contexts: %w", err)
		}
	}
	if cfg.FallbackSite != "" {
		if _, err := mgr.GetContext(ctx, cfg.FallbackSite, true); err != nil {
			log.Warnw("fallback context unavailable", "site", cfg.FallbackSite, "error", err)
		}
	}
	return nil
}

// openTelemetry opens the lifecycle journal. An empty path disables it.
func openTelemetry(path string) (*telemetry.Emitter, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return telemetry.NewEmitter(path)
}

// setupSignalContext returns a context that is canceled on SIGINT or SIGTERM.
func setupSignalContext(printer *ui.Printer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			printer.Info("shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
