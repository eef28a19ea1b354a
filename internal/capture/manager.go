// Package capture runs the two phase recording pipeline: a priming browser context
// collects consent cookies, then a recording context replays the page with that
// state while it is scrolled.
package capture

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/scrollreel/internal/browser"
	"github.com/shehryarbajwa/scrollreel/internal/clock"
	"github.com/shehryarbajwa/scrollreel/internal/consent"
	"github.com/shehryarbajwa/scrollreel/internal/scroll"
	"github.com/shehryarbajwa/scrollreel/internal/stability"
	"github.com/shehryarbajwa/scrollreel/internal/statestore"
	"github.com/shehryarbajwa/scrollreel/internal/storage"
	"github.com/shehryarbajwa/scrollreel/pkg/models"
)

// DefaultMaxConcurrent bounds in-flight captures when Options leaves it unset
const DefaultMaxConcurrent = 4

// Timings holds every fixed delay of the pipeline
type Timings struct {
	// PrimingSettle is waited after consent handling on the priming page.
	PrimingSettle time.Duration
	// StabilitySettle is waited after the recording page settled.
	StabilitySettle time.Duration
	// FinalizeGrace lets the video file flush after the browser closed.
	FinalizeGrace     time.Duration
	NavigationTimeout time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		PrimingSettle:     2 * time.Second,
		StabilitySettle:   2 * time.Second,
		FinalizeGrace:     time.Second,
		NavigationTimeout: 30 * time.Second,
	}
}

// Options configures a Manager
type Options struct {
	// VideoDir is the scratch directory recordings are written to.
	VideoDir      string
	MaxConcurrent int64
	Timings       Timings
}

// Deps are the collaborators of a Manager. States is optional.
type Deps struct {
	Launcher  browser.Launcher
	Dismisser *consent.Dismisser
	Waiter    *stability.Waiter
	Driver    *scroll.Driver
	Store     storage.Store
	States    *statestore.Store
	Clock     clock.Clock
}

// Artifact is the outcome of a successful capture
type Artifact struct {
	CaptureID string
	LocalPath string
	SizeBytes int64
	Duration  time.Duration
	Reference storage.Reference
}

// Manager runs captures and keeps a registry of them
type Manager struct {
	captures sync.Map // id -> *models.Capture
	mu       sync.RWMutex
	slots    *semaphore.Weighted
	deps     Deps
	opts     Options
	logger   *zap.Logger
}

func NewManager(deps Deps, opts Options, logger *zap.Logger) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewRealClock()
	}
	return &Manager{
		slots:  semaphore.NewWeighted(opts.MaxConcurrent),
		deps:   deps,
		opts:   opts,
		logger: logger.Named("capture"),
	}
}

// Generate records req and hands the video to the store. Once a slot is acquired
// the capture runs to completion even if ctx is cancelled.
func (m *Manager) Generate(ctx context.Context, req models.CaptureRequest) (*Artifact, error) {
	if !m.slots.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer m.slots.Release(1)

	req.HideElements = append([]string(nil), req.HideElements...)
	if req.Duration != nil {
		d := *req.Duration
		req.Duration = &d
	}

	id := uuid.New().String()
	record := &models.Capture{
		ID:              id,
		URL:             req.URL,
		ScrollSpeed:     req.ScrollSpeed,
		ScrollDirection: req.ScrollDirection,
		Resolution:      req.Viewport.String(),
		State:           models.StateIdle,
		StartedAt:       m.deps.Clock.Now(),
	}
	m.captures.Store(id, record)

	r := &run{
		m:      m,
		id:     id,
		req:    req,
		logger: m.logger.With(zap.String("capture_id", id)),
	}

	r.logger.Info("starting capture",
		zap.String("url", req.URL),
		zap.String("scroll_speed", string(req.ScrollSpeed)),
		zap.String("resolution", req.Viewport.String()),
		zap.String("scroll_direction", string(req.ScrollDirection)),
		zap.Strings("hide_elements", req.HideElements),
		zap.Any("duration", req.Duration))

	artifact, err := r.execute(context.WithoutCancel(ctx))
	if err != nil {
		r.cleanup()
		m.finish(id, models.StateFailed, func(c *models.Capture) { c.Error = err.Error() })
		r.logger.Error("capture failed", zap.String("state", string(r.state)), zap.Error(err))
		return nil, err
	}

	m.finish(id, models.StateDone, func(c *models.Capture) {
		c.VideoURL = artifact.Reference.URL
		c.DurationSeconds = artifact.Duration.Seconds()
	})
	r.logger.Info("capture finished", zap.String("video_url", artifact.Reference.URL))
	return artifact, nil
}

// GetCapture returns a snapshot of a capture
func (m *Manager) GetCapture(id string) (*models.Capture, error) {
	value, ok := m.captures.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := *value.(*models.Capture)
	return &c, nil
}

// ListCaptures returns snapshots of all captures, optionally filtered by state, oldest first
func (m *Manager) ListCaptures(state models.CaptureState) []*models.Capture {
	var captures []*models.Capture

	m.mu.RLock()
	m.captures.Range(func(key, value interface{}) bool {
		c := *value.(*models.Capture)
		if state != "" && c.State != state {
			return true
		}
		captures = append(captures, &c)
		return true
	})
	m.mu.RUnlock()

	sort.Slice(captures, func(i, j int) bool {
		return captures[i].StartedAt.Before(captures[j].StartedAt)
	})
	return captures
}

func (m *Manager) update(id string, fn func(c *models.Capture)) {
	value, ok := m.captures.Load(id)
	if !ok {
		return
	}
	m.mu.Lock()
	fn(value.(*models.Capture))
	m.mu.Unlock()
}

func (m *Manager) finish(id string, state models.CaptureState, fn func(c *models.Capture)) {
	now := m.deps.Clock.Now()
	m.update(id, func(c *models.Capture) {
		c.State = state
		c.FinishedAt = &now
		c.ConnectURL = ""
		fn(c)
	})
}

func fmtSize(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
}
