package scroll

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/scrollreel/internal/clock"
	"github.com/shehryarbajwa/scrollreel/pkg/models"
)

const (
	// FrameRate is the number of scroll steps per second.
	FrameRate = 60
	// MaxScrollPerFrame caps how far a single frame may move the page, in pixels.
	MaxScrollPerFrame = 50.0
)

const scrollScript = `(y) => window.scrollTo(0, y)`

// Evaluator runs a script in the page
type Evaluator interface {
	Evaluate(expression string, arg any) (any, error)
}

// Plan is the position arithmetic of one scroll run
type Plan struct {
	Direction  models.ScrollDirection
	PageHeight float64
	// Distance is the addressable scroll distance for the run.
	Distance float64
	Step     float64
}

func NewPlan(direction models.ScrollDirection, duration time.Duration, pageHeight float64) Plan {
	pageHeight = math.Max(pageHeight, 0)
	frames := duration.Seconds() * FrameRate
	distance := math.Min(pageHeight, MaxScrollPerFrame*frames)

	var step float64
	if frames > 0 {
		step = distance / frames
	}

	return Plan{
		Direction:  direction,
		PageHeight: pageHeight,
		Distance:   distance,
		Step:       step,
	}
}

// Start is the unclamped initial position
func (p Plan) Start() float64 {
	if p.Direction == models.DirectionUp {
		return p.PageHeight
	}
	return 0
}

// Advance moves an unclamped position by one frame
func (p Plan) Advance(pos float64) float64 {
	switch p.Direction {
	case models.DirectionUp:
		return pos - p.Step
	case models.DirectionLoop:
		pos += p.Step
		if pos > p.Distance {
			return 0
		}
		return pos
	default:
		return pos + p.Step
	}
}

// Clamp limits a position to [0, PageHeight]
func (p Plan) Clamp(pos float64) float64 {
	return math.Min(math.Max(pos, 0), p.PageHeight)
}

// Stats summarises a finished run
type Stats struct {
	Frames   int
	Elapsed  time.Duration
	Position float64
}

// Driver scrolls a page for a wall-clock duration. The number of frames actually
// rendered depends on how long each scroll evaluation takes.
type Driver struct {
	logger *zap.Logger
	clock  clock.Clock
}

func NewDriver(clk clock.Clock, logger *zap.Logger) *Driver {
	return &Driver{
		logger: logger.Named("scroll"),
		clock:  clk,
	}
}

// Run scrolls page until duration has elapsed. A failing scroll aborts the run.
func (d *Driver) Run(ctx context.Context, page Evaluator, direction models.ScrollDirection, duration time.Duration, pageHeight float64) (Stats, error) {
	plan := NewPlan(direction, duration, pageHeight)
	interval := time.Second / FrameRate

	d.logger.Debug("scroll plan",
		zap.String("direction", string(direction)),
		zap.Duration("duration", duration),
		zap.Float64("page_height", plan.PageHeight),
		zap.Float64("distance", plan.Distance),
		zap.Float64("step", plan.Step))

	var stats Stats
	pos := plan.Start()
	start := d.clock.Now()

	for d.clock.Now().Sub(start) < duration {
		pos = plan.Advance(pos)
		y := plan.Clamp(pos)

		if _, err := page.Evaluate(scrollScript, y); err != nil {
			stats.Elapsed = d.clock.Now().Sub(start)
			return stats, fmt.Errorf("scroll to %.0f: %w", y, err)
		}
		stats.Frames++
		stats.Position = y

		if err := d.clock.Sleep(ctx, interval); err != nil {
			stats.Elapsed = d.clock.Now().Sub(start)
			return stats, err
		}
	}

	stats.Elapsed = d.clock.Now().Sub(start)
	return stats, nil
}
