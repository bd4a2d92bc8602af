package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/candor-labs/candor/internal/dotenv"
	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/gateway/config"
	gatewayserver "github.com/candor-labs/candor/pkg/gateway/server"
	"github.com/candor-labs/candor/pkg/identity"
	"github.com/candor-labs/candor/pkg/media"
	"github.com/candor-labs/candor/pkg/media/remote"
	"github.com/candor-labs/candor/pkg/pipeline"
	"github.com/candor-labs/candor/pkg/session"
	"github.com/candor-labs/candor/pkg/store"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	openStore    func(config.Config, *slog.Logger) (store.RecordStore, func() error, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		openStore:  openStore,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func openStore(cfg config.Config, logger *slog.Logger) (store.RecordStore, func() error, error) {
	if cfg.SQLitePath == "" {
		return store.NewMemory(), func() error { return nil }, nil
	}
	db, err := store.OpenSQLite(store.SQLiteConfig{
		Path:     cfg.SQLitePath,
		PoolSize: cfg.SQLitePoolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

func buildCollaborators(cfg config.Config, logger *slog.Logger) (media.LandmarkLocator, media.FeatureExtractor, media.Transcriber) {
	opts := remote.Options{
		HTTPClient: &http.Client{Timeout: cfg.CollaboratorTimeout},
		MaxRetries: uint64(cfg.CollaboratorRetries),
		Logger:     logger,
	}

	var locator media.LandmarkLocator = media.NoopLocator{}
	if cfg.LocatorBaseURL != "" {
		locator = remote.NewLocator(cfg.LocatorBaseURL, opts)
	}
	var extractor media.FeatureExtractor = media.NoopExtractor{}
	if cfg.ExtractorBaseURL != "" {
		extractor = remote.NewExtractor(cfg.ExtractorBaseURL, opts)
	}
	var transcriber media.Transcriber = media.NoopTranscriber{}
	if cfg.TranscriberBaseURL != "" {
		transcriber = remote.NewTranscriber(cfg.TranscriberBaseURL, opts)
	}
	return locator, extractor, transcriber
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.openStore == nil {
		return errors.New("missing openStore dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	records, closeStore, err := deps.openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("close record store", "error", err)
		}
	}()

	var artifacts *pipeline.ArtifactStore
	if cfg.ArtifactRoot != "" {
		artifacts, err = pipeline.NewArtifactStore(cfg.ArtifactRoot)
		if err != nil {
			return fmt.Errorf("open artifact store: %w", err)
		}
	}

	locator, extractor, transcriber := buildCollaborators(cfg, logger)

	engine := core.NewEngine(nil, nil, nil, core.WithLogger(logger))
	service := pipeline.NewService(pipeline.ServiceConfig{
		Engine:      engine,
		Baselines:   records,
		Results:     records,
		Locator:     locator,
		Extractor:   extractor,
		Transcriber: transcriber,
		Artifacts:   artifacts,
		Logger:      logger,
	})

	machine := session.NewMachine(records, records,
		identity.NewStaticDirectory(cfg.Participants),
		session.WithLogger(logger))

	workers := pipeline.NewWorkers(cfg.WorkerCount, cfg.WorkerQueue, logger)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workers.Start(workerCtx)
	defer workers.Shutdown()

	gw := gatewayserver.New(cfg, gatewayserver.Deps{
		Sessions: machine,
		Service:  service,
		Workers:  workers,
		Records:  records,
	}, logger)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"workers", cfg.WorkerCount,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	workers.Shutdown()

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "candor-gateway: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "candor-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
