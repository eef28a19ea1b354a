// Package consent dismisses cookie and consent overlays. Dismissal is advisory:
// nothing in this package fails a capture.
package consent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/scrollreel/internal/browser"
	"github.com/shehryarbajwa/scrollreel/internal/clock"
)

// Options holds the fixed waits of the dismissal policy
type Options struct {
	// SettleDelay lets popups render before detection starts.
	SettleDelay time.Duration
	// NavigationWindow bounds the wait for a navigation triggered by a click.
	NavigationWindow time.Duration
}

func DefaultOptions() Options {
	return Options{
		SettleDelay:      2 * time.Second,
		NavigationWindow: 5 * time.Second,
	}
}

// Dismisser tries its strategies in order and stops at the first that clicks
type Dismisser struct {
	strategies []Strategy
	opts       Options
	clock      clock.Clock
	logger     *zap.Logger
}

// NewDismisser uses DefaultStrategies when none are given
func NewDismisser(clk clock.Clock, opts Options, logger *zap.Logger, strategies ...Strategy) *Dismisser {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Dismisser{
		strategies: strategies,
		opts:       opts,
		clock:      clk,
		logger:     logger.Named("consent"),
	}
}

// AttemptDismiss reports whether an overlay was clicked away
func (d *Dismisser) AttemptDismiss(ctx context.Context, page browser.Page) (dismissed bool) {
	d.logger.Info("Attempting to handle cookie popups")

	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("consent handling aborted", zap.Any("panic", r))
			dismissed = false
		}
	}()

	if err := d.clock.Sleep(ctx, d.opts.SettleDelay); err != nil {
		d.logger.Warn("consent handling aborted", zap.Error(err))
		return false
	}

	for _, s := range d.strategies {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("consent handling aborted", zap.Error(err))
			return false
		}

		ok, err := d.try(page, s)
		if err != nil {
			d.logger.Debug("consent strategy failed", zap.String("strategy", s.Name()), zap.Error(err))
			continue
		}
		if ok {
			d.logger.Info("Dismissed consent overlay", zap.String("strategy", s.Name()))
			return true
		}
	}

	d.logger.Info("No cookie popups found or handled")
	return false
}

func (d *Dismisser) try(page browser.Page, s Strategy) (bool, error) {
	loc, found, err := s.Detect(page)
	if err != nil || !found {
		return false, err
	}

	if err := page.ExpectNavigation(loc.Click, d.opts.NavigationWindow); err != nil {
		return false, fmt.Errorf("click: %w", err)
	}
	if err := page.WaitForNetworkIdle(); err != nil {
		return false, fmt.Errorf("wait for network idle: %w", err)
	}
	return true, nil
}
