package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// Mode selects where browsers run
type Mode string

const (
	ModeLocal     Mode = "local"
	ModeContainer Mode = "container"
)

// DefaultArgs are the launch flags needed to run Chromium headless inside containers
var DefaultArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-features=VizDisplayCompositor",
}

// LauncherOptions configures a PlaywrightLauncher
type LauncherOptions struct {
	Mode     Mode
	Headless bool
	Args     []string
	// Install downloads the Chromium build before the driver starts.
	Install bool
	// Image is the container image used in container mode.
	Image string
}

// PlaywrightLauncher starts a fresh Chromium per Launch call, either as a local
// process or inside a docker container reached over CDP.
type PlaywrightLauncher struct {
	pw     *playwright.Playwright
	pool   *Pool
	opts   LauncherOptions
	logger *zap.Logger
}

// NewLauncher starts the playwright driver, and the docker pool in container mode
func NewLauncher(ctx context.Context, opts LauncherOptions, logger *zap.Logger) (*PlaywrightLauncher, error) {
	logger = logger.Named("browser")

	if opts.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("failed to install chromium: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	l := &PlaywrightLauncher{pw: pw, opts: opts, logger: logger}

	switch opts.Mode {
	case ModeLocal, "":
	case ModeContainer:
		pool, err := NewPool(opts.Image, logger)
		if err != nil {
			pw.Stop()
			return nil, err
		}
		if err := pool.EnsureImage(ctx); err != nil {
			pool.Close()
			pw.Stop()
			return nil, fmt.Errorf("failed to ensure browser image: %w", err)
		}
		l.pool = pool
	default:
		pw.Stop()
		return nil, fmt.Errorf("unknown browser mode %q", opts.Mode)
	}

	return l, nil
}

func (l *PlaywrightLauncher) Launch(ctx context.Context) (Browser, error) {
	if l.pool == nil {
		args := l.opts.Args
		if len(args) == 0 {
			args = DefaultArgs
		}
		b, err := l.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(l.opts.Headless),
			Args:     args,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to launch chromium: %w", err)
		}
		return &pwBrowser{browser: b}, nil
	}

	instance, err := l.pool.LaunchBrowser(ctx, uuid.New().String())
	if err != nil {
		return nil, err
	}

	stop := func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return l.pool.StopBrowser(stopCtx, instance.ContainerID)
	}

	b, err := l.pw.Chromium.ConnectOverCDP(instance.ConnectURL)
	if err != nil {
		l.logger.Warn("could not attach to browser container",
			zap.String("container_id", instance.ContainerID),
			zap.Bool("running", l.pool.IsHealthy(ctx, instance.ContainerID)),
			zap.Error(err))
		if stopErr := stop(); stopErr != nil {
			l.logger.Warn("failed to stop browser container", zap.Error(stopErr))
		}
		return nil, fmt.Errorf("failed to connect to browser container: %w", err)
	}

	return &pwBrowser{browser: b, connectURL: instance.ConnectURL, release: stop}, nil
}

// Close stops the docker pool and the playwright driver
func (l *PlaywrightLauncher) Close() error {
	if l.pool != nil {
		if err := l.pool.Close(); err != nil {
			l.logger.Warn("failed to close docker client", zap.Error(err))
		}
	}
	return l.pw.Stop()
}
