package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/scrollreel/internal/browser"
	"github.com/shehryarbajwa/scrollreel/internal/scroll"
	"github.com/shehryarbajwa/scrollreel/internal/storage"
	"github.com/shehryarbajwa/scrollreel/pkg/models"
)

const (
	pageHeightScript = `() => document.documentElement.scrollHeight`
	hideScript       = `(selector) => {
  const nodes = document.querySelectorAll(selector);
  nodes.forEach((el) => { el.style.display = 'none'; });
  return nodes.length;
}`
	stabilityRoot = "body"
)

// run is the state of one capture. Resource fields are nil once released.
type run struct {
	m      *Manager
	id     string
	req    models.CaptureRequest
	state  models.CaptureState
	logger *zap.Logger

	browser   browser.Browser
	priming   browser.Context
	recording browser.Context
}

func (r *run) transition(state models.CaptureState) {
	r.state = state
	r.m.update(r.id, func(c *models.Capture) { c.State = state })
	r.logger.Info("capture state", zap.String("state", string(state)))
}

func (r *run) fail(op string, err error) error {
	return &OpError{State: r.state, Op: op, Err: err}
}

func (r *run) execute(ctx context.Context) (*Artifact, error) {
	timings := r.m.opts.Timings
	clk := r.m.deps.Clock

	r.transition(models.StateBrowserLaunching)
	b, err := r.m.deps.Launcher.Launch(ctx)
	if err != nil {
		return nil, r.fail("launch browser", err)
	}
	r.browser = b
	if url := b.ConnectURL(); url != "" {
		r.m.update(r.id, func(c *models.Capture) { c.ConnectURL = url })
	}

	r.transition(models.StatePriming)
	r.priming, err = b.NewContext(browser.ContextOptions{
		Viewport:            r.req.Viewport,
		AcceptDownloads:     true,
		BlockServiceWorkers: true,
	})
	if err != nil {
		return nil, r.fail("open priming context", err)
	}
	setupPage, err := r.priming.NewPage()
	if err != nil {
		return nil, r.fail("open priming page", err)
	}
	setupPage.SetDefaultTimeout(timings.NavigationTimeout)
	if err := setupPage.Goto(r.req.URL); err != nil {
		return nil, r.fail("navigate", err)
	}
	if r.m.deps.Dismisser.AttemptDismiss(ctx, setupPage) {
		r.logger.Info("consent overlay dismissed")
	}
	if err := setupPage.WaitForNetworkIdle(); err != nil {
		return nil, r.fail("wait for network idle", err)
	}
	if err := clk.Sleep(ctx, timings.PrimingSettle); err != nil {
		return nil, r.fail("settle", err)
	}

	r.transition(models.StateSessionCaptured)
	state, err := r.priming.StorageState()
	if err != nil {
		return nil, r.fail("capture storage state", err)
	}
	if state.Empty() {
		r.logger.Info("priming left no cookies or storage behind")
	} else {
		r.logger.Debug("storage state captured",
			zap.Int("cookies", len(state.Cookies)),
			zap.Int("origins", len(state.Origins)))
	}
	if states := r.m.deps.States; states != nil {
		if _, err := states.Save(r.id, r.req.URL, state); err != nil {
			r.logger.Warn("failed to archive storage state", zap.Error(err))
		}
	}

	r.transition(models.StatePrimingClosed)
	if err := r.closePriming(); err != nil {
		return nil, r.fail("close priming context", err)
	}

	r.transition(models.StateRecordingOpen)
	r.recording, err = b.NewContext(browser.ContextOptions{
		Viewport:       r.req.Viewport,
		RecordVideoDir: r.m.opts.VideoDir,
		StorageState:   &state,
	})
	if err != nil {
		return nil, r.fail("open recording context", err)
	}
	page, err := r.recording.NewPage()
	if err != nil {
		return nil, r.fail("open recording page", err)
	}
	page.SetDefaultTimeout(timings.NavigationTimeout)
	if err := page.Goto(r.req.URL); err != nil {
		return nil, r.fail("navigate", err)
	}

	r.transition(models.StateStabilizing)
	r.m.deps.Waiter.WaitUntilStable(ctx, page, stabilityRoot)
	if err := clk.Sleep(ctx, timings.StabilitySettle); err != nil {
		return nil, r.fail("settle", err)
	}

	r.transition(models.StateElementsHidden)
	r.hideElements(page)

	r.transition(models.StateScrolling)
	raw, err := page.Evaluate(pageHeightScript, nil)
	if err != nil {
		return nil, r.fail("measure page height", err)
	}
	pageHeight, ok := browser.ToFloat(raw)
	if !ok {
		return nil, r.fail("measure page height", fmt.Errorf("unexpected page height %v", raw))
	}
	duration, err := scroll.EffectiveDuration(r.req.Duration, pageHeight, r.req.ScrollSpeed)
	if err != nil {
		return nil, r.fail("estimate duration", err)
	}
	r.logger.Info("scrolling",
		zap.Float64("page_height", pageHeight),
		zap.Duration("duration", duration))
	stats, err := r.m.deps.Driver.Run(ctx, page, r.req.ScrollDirection, duration, pageHeight)
	if err != nil {
		return nil, r.fail("scroll", err)
	}
	r.logger.Debug("scroll finished", zap.Int("frames", stats.Frames), zap.Duration("elapsed", stats.Elapsed))

	r.transition(models.StateFinalizing)
	videoPath, err := page.VideoPath()
	if err != nil {
		return nil, r.fail("resolve video path", err)
	}
	if err := r.closeRecording(); err != nil {
		return nil, r.fail("close recording context", err)
	}
	if err := r.closeBrowser(); err != nil {
		return nil, r.fail("close browser", err)
	}
	if err := clk.Sleep(ctx, timings.FinalizeGrace); err != nil {
		return nil, r.fail("finalize", err)
	}

	info, err := os.Stat(videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, videoPath)
	}
	r.logger.Info("video recorded", zap.String("path", videoPath), zap.String("size", fmtSize(info.Size())))

	ref, err := r.m.deps.Store.Store(ctx, videoPath, storage.ContentTypeWebM)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		CaptureID: r.id,
		LocalPath: videoPath,
		SizeBytes: info.Size(),
		Duration:  duration,
		Reference: ref,
	}, nil
}

// hideElements never fails the capture
func (r *run) hideElements(page browser.Page) {
	for _, selector := range r.req.HideElements {
		out, err := page.Evaluate(hideScript, selector)
		if err != nil {
			r.logger.Warn("could not hide elements", zap.String("selector", selector), zap.Error(err))
			continue
		}
		if n, _ := browser.ToFloat(out); n == 0 {
			r.logger.Info("no elements to hide", zap.String("selector", selector))
			continue
		}
		r.logger.Debug("elements hidden", zap.String("selector", selector), zap.Any("count", out))
	}
}

// cleanup releases whatever is still open, most recent first. Close errors are
// logged so every resource gets its attempt.
func (r *run) cleanup() {
	if err := r.closeRecording(); err != nil {
		r.logger.Warn("failed to close recording context", zap.Error(err))
	}
	if err := r.closePriming(); err != nil {
		r.logger.Warn("failed to close priming context", zap.Error(err))
	}
	if err := r.closeBrowser(); err != nil {
		r.logger.Warn("failed to close browser", zap.Error(err))
	}
}

func (r *run) closeRecording() error {
	c := r.recording
	if c == nil {
		return nil
	}
	r.recording = nil
	return c.Close()
}

func (r *run) closePriming() error {
	c := r.priming
	if c == nil {
		return nil
	}
	r.priming = nil
	return c.Close()
}

func (r *run) closeBrowser() error {
	b := r.browser
	if b == nil {
		return nil
	}
	r.browser = nil
	start := time.Now()
	err := b.Close()
	r.logger.Debug("browser closed", zap.Duration("took", time.Since(start)))
	return err
}
