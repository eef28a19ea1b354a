package cli

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/scrollreel/internal/browser"
	"github.com/shehryarbajwa/scrollreel/internal/capture"
	"github.com/shehryarbajwa/scrollreel/internal/clock"
	"github.com/shehryarbajwa/scrollreel/internal/config"
	"github.com/shehryarbajwa/scrollreel/internal/consent"
	"github.com/shehryarbajwa/scrollreel/internal/logging"
	"github.com/shehryarbajwa/scrollreel/internal/scroll"
	"github.com/shehryarbajwa/scrollreel/internal/stability"
	"github.com/shehryarbajwa/scrollreel/internal/statestore"
	"github.com/shehryarbajwa/scrollreel/internal/storage"
)

// app holds the components shared by serve and capture
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	launcher *browser.PlaywrightLauncher
	states   *statestore.Store
	manager  *capture.Manager
	closeLog func() error
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closeLog: closeLog}

	if err := os.MkdirAll(cfg.Paths.Videos, 0755); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create videos directory: %w", err)
	}

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Paths.State != "" {
		a.states, err = statestore.New(cfg.Paths.State)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("archiving storage states", zap.String("dir", cfg.Paths.State))
	}

	a.launcher, err = browser.NewLauncher(ctx, browser.LauncherOptions{
		Mode:     browser.Mode(cfg.Browser.Mode),
		Headless: cfg.Browser.Headless,
		Install:  cfg.Browser.Install,
		Image:    cfg.Browser.Image,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("browser launcher ready", zap.String("mode", cfg.Browser.Mode))

	clk := clock.NewRealClock()
	a.manager = capture.NewManager(capture.Deps{
		Launcher:  a.launcher,
		Dismisser: consent.NewDismisser(clk, consent.DefaultOptions(), logger),
		Waiter:    stability.NewWaiter(stability.DefaultOptions(), logger),
		Driver:    scroll.NewDriver(clk, logger),
		Store:     store,
		States:    a.states,
		Clock:     clk,
	}, capture.Options{
		VideoDir:      cfg.Paths.Videos,
		MaxConcurrent: cfg.Capture.MaxConcurrent,
		Timings:       capture.DefaultTimings(),
	}, logger)

	return a, nil
}

func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "local":
		logger.Info("storing videos locally", zap.String("dir", cfg.Paths.Public))
		return storage.NewLocalStore(cfg.Paths.Public, cfg.Server.BaseURL, logger)
	default:
		logger.Info("storing videos in s3", zap.String("bucket", cfg.Storage.Bucket), zap.String("region", cfg.Storage.Region))
		return storage.NewS3Store(ctx, storage.S3Options{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			URLExpiration:   cfg.Storage.URLExpiration,
		}, logger)
	}
}

func (a *app) Close() {
	if a.launcher != nil {
		if err := a.launcher.Close(); err != nil {
			a.logger.Warn("failed to stop playwright", zap.Error(err))
		}
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}
