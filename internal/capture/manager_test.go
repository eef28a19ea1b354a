package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/scrollreel/internal/browser"
	"github.com/shehryarbajwa/scrollreel/internal/browser/browsertest"
	"github.com/shehryarbajwa/scrollreel/internal/clock"
	"github.com/shehryarbajwa/scrollreel/internal/consent"
	"github.com/shehryarbajwa/scrollreel/internal/scroll"
	"github.com/shehryarbajwa/scrollreel/internal/stability"
	"github.com/shehryarbajwa/scrollreel/internal/statestore"
	"github.com/shehryarbajwa/scrollreel/internal/storage"
	"github.com/shehryarbajwa/scrollreel/pkg/models"
)

type fakeStore struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (s *fakeStore) Store(ctx context.Context, localPath, contentType string) (storage.Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, localPath)
	if s.err != nil {
		return storage.Reference{}, s.err
	}
	if err := os.Remove(localPath); err != nil {
		return storage.Reference{}, err
	}
	return storage.Reference{URL: "https://cdn.example.com/videos/abc.webm", Key: "abc.webm"}, nil
}

type harness struct {
	journal   *browsertest.Journal
	browser   *browsertest.Browser
	launcher  *browsertest.Launcher
	priming   *browsertest.Context
	recording *browsertest.Context
	setupPage *browsertest.Page
	page      *browsertest.Page
	store     *fakeStore
	clock     *clock.FakeClock
	videoPath string

	pageHeight float64
	matches    map[string]float64
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	videoPath := filepath.Join(t.TempDir(), "recording.webm")
	require.NoError(t, os.WriteFile(videoPath, []byte("webm"), 0644))

	h := &harness{
		journal:    &browsertest.Journal{},
		setupPage:  &browsertest.Page{},
		store:      &fakeStore{},
		clock:      clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		videoPath:  videoPath,
		pageHeight: 5000,
		matches:    map[string]float64{},
	}
	h.page = &browsertest.Page{VideoFile: videoPath, EvaluateFunc: h.evaluate}
	h.priming = &browsertest.Context{
		Name: "priming",
		Page: h.setupPage,
		State: browser.StorageState{
			Cookies: []browser.Cookie{{Name: "consent", Value: "yes", Domain: "example.com", Path: "/"}},
		},
	}
	h.recording = &browsertest.Context{Name: "recording", Page: h.page}
	h.browser = &browsertest.Browser{
		Journal:  h.journal,
		Contexts: []*browsertest.Context{h.priming, h.recording},
	}
	h.launcher = &browsertest.Launcher{Browser: h.browser}
	return h
}

func (h *harness) evaluate(expression string, arg any) (any, error) {
	switch expression {
	case pageHeightScript:
		return h.pageHeight, nil
	case hideScript:
		return h.matches[arg.(string)], nil
	}
	if _, ok := arg.(map[string]any); ok {
		// stability observer
		return true, nil
	}
	return nil, nil
}

func (h *harness) manager(opts Options) *Manager {
	logger := zap.NewNop()
	deps := Deps{
		Launcher:  h.launcher,
		Dismisser: consent.NewDismisser(h.clock, consent.DefaultOptions(), logger),
		Waiter:    stability.NewWaiter(stability.DefaultOptions(), logger),
		Driver:    scroll.NewDriver(h.clock, logger),
		Store:     h.store,
		Clock:     h.clock,
	}
	return NewManager(deps, opts, logger)
}

func fastRequest() models.CaptureRequest {
	return models.CaptureRequest{
		URL:             "https://example.com",
		ScrollSpeed:     models.SpeedFast,
		Viewport:        models.Viewport{Width: 1920, Height: 1080},
		ScrollDirection: models.DirectionDown,
	}
}

func TestGenerateEstimatesDurationFromPageHeight(t *testing.T) {
	h := newHarness(t)
	m := h.manager(Options{VideoDir: "/tmp/videos"})

	artifact, err := m.Generate(context.Background(), fastRequest())
	require.NoError(t, err)

	assert.Equal(t, 25*time.Second, artifact.Duration)
	assert.Equal(t, "https://cdn.example.com/videos/abc.webm", artifact.Reference.URL)
	assert.Equal(t, h.videoPath, artifact.LocalPath)
	assert.Equal(t, int64(4), artifact.SizeBytes)
	assert.Equal(t, []string{h.videoPath}, h.store.paths)

	record, err := m.GetCapture(artifact.CaptureID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, record.State)
	assert.Equal(t, artifact.Reference.URL, record.VideoURL)
	assert.Equal(t, 25.0, record.DurationSeconds)
	assert.NotNil(t, record.FinishedAt)
}

func TestGenerateRunsPhasesInOrder(t *testing.T) {
	h := newHarness(t)
	m := h.manager(Options{VideoDir: "/tmp/videos"})

	_, err := m.Generate(context.Background(), fastRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"browser.launch",
		"priming.open",
		"priming.goto",
		"priming.state",
		"priming.close",
		"recording.open",
		"recording.goto",
		"recording.close",
		"browser.close",
	}, h.journal.Events())

	assert.Less(t, h.journal.Index("priming.close"), h.journal.Index("recording.open"))
	assert.Equal(t, 1, h.priming.Closed)
	assert.Equal(t, 1, h.recording.Closed)
	assert.Equal(t, 1, h.browser.Closed)
}

func TestGenerateSeedsRecordingWithPrimedState(t *testing.T) {
	h := newHarness(t)
	m := h.manager(Options{VideoDir: "/tmp/videos"})

	_, err := m.Generate(context.Background(), fastRequest())
	require.NoError(t, err)

	require.Len(t, h.browser.Options, 2)
	primingOpts, recordingOpts := h.browser.Options[0], h.browser.Options[1]

	assert.True(t, primingOpts.BlockServiceWorkers)
	assert.True(t, primingOpts.AcceptDownloads)
	assert.Empty(t, primingOpts.RecordVideoDir)
	assert.Nil(t, primingOpts.StorageState)

	assert.Equal(t, "/tmp/videos", recordingOpts.RecordVideoDir)
	assert.Equal(t, models.Viewport{Width: 1920, Height: 1080}, recordingOpts.Viewport)
	require.NotNil(t, recordingOpts.StorageState)
	assert.Equal(t, h.priming.State, *recordingOpts.StorageState)

	assert.Equal(t, 30*time.Second, h.setupPage.Timeout)
	assert.Equal(t, 30*time.Second, h.page.Timeout)
}

func TestGenerateExplicitDurationWins(t *testing.T) {
	h := newHarness(t)
	h.pageHeight = 100000
	m := h.manager(Options{})

	req := fastRequest()
	ten := 10.0
	req.Duration = &ten

	start := h.clock.Now()
	artifact, err := m.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, artifact.Duration)
	// settle delays: consent 2s, priming 2s, stability 2s, grace 1s
	elapsed := h.clock.Now().Sub(start)
	assert.GreaterOrEqual(t, elapsed, 17*time.Second)
	assert.Less(t, elapsed, 18*time.Second)
}

func TestGenerateWithoutConsentBanner(t *testing.T) {
	h := newHarness(t)
	m := h.manager(Options{})

	_, err := m.Generate(context.Background(), fastRequest())
	require.NoError(t, err)

	assert.Empty(t, h.setupPage.Clicked)
	assert.Empty(t, h.setupPage.NavWaits)
}

func TestGenerateDismissesConsentOnPrimingPageOnly(t *testing.T) {
	h := newHarness(t)
	h.setupPage.Buttons = []string{"Settings", "Accept all cookies"}
	h.page.Buttons = []string{"Accept all cookies"}
	m := h.manager(Options{})

	_, err := m.Generate(context.Background(), fastRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"Accept all cookies"}, h.setupPage.Clicked)
	assert.Empty(t, h.page.Clicked)
}

func TestGenerateUploadFailureKeepsFile(t *testing.T) {
	h := newHarness(t)
	uploadErr := &storage.UploadError{Path: h.videoPath, Key: "abc.webm", Err: errors.New("access denied")}
	h.store.err = uploadErr
	m := h.manager(Options{})

	artifact, err := m.Generate(context.Background(), fastRequest())
	require.Error(t, err)
	assert.Nil(t, artifact)
	assert.Same(t, uploadErr, err)
	assert.FileExists(t, h.videoPath)

	// finalization already released everything
	assert.Equal(t, 1, h.recording.Closed)
	assert.Equal(t, 1, h.browser.Closed)

	captures := m.ListCaptures(models.StateFailed)
	require.Len(t, captures, 1)
	assert.Contains(t, captures[0].Error, "access denied")
}

func TestGenerateHidesMatchingElements(t *testing.T) {
	h := newHarness(t)
	h.matches[".ad-banner"] = 2
	m := h.manager(Options{})

	req := fastRequest()
	req.HideElements = []string{".ad-banner", "#nonexistent"}

	_, err := m.Generate(context.Background(), req)
	require.NoError(t, err)

	var hidden []any
	for _, call := range h.page.EvalCalls() {
		if call.Expression == hideScript {
			hidden = append(hidden, call.Arg)
		}
	}
	assert.Equal(t, []any{".ad-banner", "#nonexistent"}, hidden)
}

func TestGenerateHideFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.page.EvaluateFunc = func(expression string, arg any) (any, error) {
		if expression == hideScript {
			return nil, errors.New("SyntaxError: not a valid selector")
		}
		return h.evaluate(expression, arg)
	}
	m := h.manager(Options{})

	req := fastRequest()
	req.HideElements = []string{"!!!"}

	_, err := m.Generate(context.Background(), req)
	assert.NoError(t, err)
}

func TestGenerateCopiesRequest(t *testing.T) {
	h := newHarness(t)
	launcher := &blockingLauncher{
		Launcher: h.launcher,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	m := h.manager(Options{})
	m.deps.Launcher = launcher

	req := fastRequest()
	req.HideElements = []string{".ad"}

	done := make(chan error)
	go func() {
		_, err := m.Generate(context.Background(), req)
		done <- err
	}()
	<-launcher.started

	req.HideElements[0] = ".changed"
	close(launcher.release)
	require.NoError(t, <-done)

	var hidden []any
	for _, call := range h.page.EvalCalls() {
		if call.Expression == hideScript {
			hidden = append(hidden, call.Arg)
		}
	}
	assert.Equal(t, []any{".ad"}, hidden)
}

func TestGenerateRecordingFailureCleansUp(t *testing.T) {
	h := newHarness(t)
	gotoErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
	h.page.GotoErr = gotoErr
	m := h.manager(Options{})

	_, err := m.Generate(context.Background(), fastRequest())
	require.Error(t, err)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, models.StateRecordingOpen, opErr.State)
	assert.Equal(t, "navigate", opErr.Op)
	assert.ErrorIs(t, err, gotoErr)

	events := h.journal.Events()
	assert.Equal(t, []string{"recording.close", "browser.close"}, events[len(events)-2:])
	assert.Equal(t, 1, h.priming.Closed)
	assert.Equal(t, 1, h.recording.Closed)
	assert.Equal(t, 1, h.browser.Closed)
}

func TestGeneratePrimingFailureCleansUp(t *testing.T) {
	h := newHarness(t)
	h.setupPage.GotoErr = errors.New("timeout 30000ms exceeded")
	h.priming.CloseErr = errors.New("target closed")
	m := h.manager(Options{})

	_, err := m.Generate(context.Background(), fastRequest())

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, models.StatePriming, opErr.State)
	assert.ErrorIs(t, err, h.setupPage.GotoErr)

	// a failing close does not stop the cascade
	assert.Equal(t, 1, h.priming.Closed)
	assert.Equal(t, 1, h.browser.Closed)
	assert.Equal(t, 0, h.recording.Closed)
	assert.Equal(t, -1, h.journal.Index("recording.open"))
}

func TestGeneratePrimingCloseFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.priming.CloseErr = errors.New("target closed")
	m := h.manager(Options{})

	_, err := m.Generate(context.Background(), fastRequest())

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, models.StatePrimingClosed, opErr.State)
	assert.Equal(t, 1, h.priming.Closed)
	assert.Equal(t, 1, h.browser.Closed)
	assert.Equal(t, -1, h.journal.Index("recording.open"))
}

func TestGenerateLaunchFailure(t *testing.T) {
	h := newHarness(t)
	h.launcher.Err = errors.New("executable doesn't exist")
	m := h.manager(Options{})

	_, err := m.Generate(context.Background(), fastRequest())

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, models.StateBrowserLaunching, opErr.State)
	assert.Equal(t, 0, h.browser.Closed)
}

func TestGenerateScrollFailurePropagates(t *testing.T) {
	h := newHarness(t)
	scrollErr := errors.New("execution context was destroyed")
	h.page.EvaluateFunc = func(expression string, arg any) (any, error) {
		if _, ok := arg.(float64); ok && expression != pageHeightScript {
			return nil, scrollErr
		}
		return h.evaluate(expression, arg)
	}
	m := h.manager(Options{})

	_, err := m.Generate(context.Background(), fastRequest())

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, models.StateScrolling, opErr.State)
	assert.ErrorIs(t, err, scrollErr)
	assert.Equal(t, 1, h.recording.Closed)
	assert.Equal(t, 1, h.browser.Closed)
}

func TestGenerateMissingArtifact(t *testing.T) {
	h := newHarness(t)
	h.page.VideoFile = filepath.Join(t.TempDir(), "missing.webm")
	m := h.manager(Options{})

	_, err := m.Generate(context.Background(), fastRequest())

	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.Contains(t, err.Error(), "missing.webm")
	assert.Empty(t, h.store.paths)
}

func TestGenerateIgnoresCallerCancellation(t *testing.T) {
	h := newHarness(t)
	m := h.manager(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, fastRequest())
	assert.NoError(t, err)
}

type blockingLauncher struct {
	browser.Launcher
	started chan struct{}
	release chan struct{}
}

func (l *blockingLauncher) Launch(ctx context.Context) (browser.Browser, error) {
	close(l.started)
	<-l.release
	return l.Launcher.Launch(ctx)
}

func TestGenerateBusy(t *testing.T) {
	h := newHarness(t)
	launcher := &blockingLauncher{
		Launcher: h.launcher,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	m := h.manager(Options{MaxConcurrent: 1})
	m.deps.Launcher = launcher

	done := make(chan error)
	go func() {
		_, err := m.Generate(context.Background(), fastRequest())
		done <- err
	}()
	<-launcher.started

	_, err := m.Generate(context.Background(), fastRequest())
	assert.ErrorIs(t, err, ErrBusy)

	running := m.ListCaptures(models.StateBrowserLaunching)
	assert.Len(t, running, 1)

	close(launcher.release)
	require.NoError(t, <-done)
	assert.Len(t, m.ListCaptures(""), 1)
}

func TestGenerateArchivesPrimedState(t *testing.T) {
	h := newHarness(t)
	states, err := statestore.New(t.TempDir())
	require.NoError(t, err)

	m := h.manager(Options{})
	m.deps.States = states

	artifact, err := m.Generate(context.Background(), fastRequest())
	require.NoError(t, err)

	saved, err := states.Load(artifact.CaptureID)
	require.NoError(t, err)
	assert.Equal(t, h.priming.State, saved)
}

func TestGetCaptureUnknown(t *testing.T) {
	m := newHarness(t).manager(Options{})

	_, err := m.GetCapture("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, m.ListCaptures(""))
}

func TestOpErrorMessage(t *testing.T) {
	err := &OpError{State: models.StatePriming, Op: "navigate", Err: errors.New("boom")}
	assert.Equal(t, "navigate (PRIMING): boom", err.Error())
}
