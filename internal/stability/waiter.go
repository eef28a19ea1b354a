// Package stability waits for a page's DOM to stop mutating.
package stability

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// waitScript installs a MutationObserver on every node matching the selector and
// resolves true once the mutation credit drains to zero, or "timeout" after
// maxPolls polling intervals.
const waitScript = `({ selector, seed, intervalMs, maxPolls }) => {
	const targets = Array.from(document.querySelectorAll(selector));
	const config = { attributes: true, childList: true, subtree: true };
	let credit = seed;
	const observer = new MutationObserver(() => { credit += 1; });
	targets.forEach((target) => observer.observe(target, config));
	const drain = setInterval(() => {
		credit -= 1;
		if (credit <= 0) clearInterval(drain);
	}, intervalMs);
	return new Promise((resolve) => {
		let polls = 0;
		const poll = setInterval(() => {
			if (polls >= maxPolls) {
				clearInterval(poll);
				clearInterval(drain);
				observer.disconnect();
				resolve("timeout");
				return;
			}
			if (credit <= 0) {
				clearInterval(poll);
				observer.disconnect();
				resolve(true);
				return;
			}
			polls += 1;
		}, intervalMs);
	});
}`

// Evaluator runs a script in the page and awaits its promise
type Evaluator interface {
	Evaluate(expression string, arg any) (any, error)
}

// Options tunes the mutation credit scheme
type Options struct {
	// Seed is the initial credit, i.e. the minimum number of quiet intervals.
	Seed     int
	Interval time.Duration
	MaxPolls int
}

func DefaultOptions() Options {
	return Options{
		Seed:     5,
		Interval: 5 * time.Millisecond,
		MaxPolls: 1000,
	}
}

// Result of a stability wait
type Result struct {
	Settled bool
}

type Waiter struct {
	opts   Options
	logger *zap.Logger
}

func NewWaiter(opts Options, logger *zap.Logger) *Waiter {
	return &Waiter{opts: opts, logger: logger.Named("stability")}
}

// WaitUntilStable never fails: a timeout or a script error yields Settled=false
// and the caller carries on.
func (w *Waiter) WaitUntilStable(ctx context.Context, page Evaluator, rootSelector string) Result {
	if err := ctx.Err(); err != nil {
		w.logger.Warn("stability wait skipped", zap.Error(err))
		return Result{}
	}

	start := time.Now()
	out, err := page.Evaluate(waitScript, map[string]any{
		"selector":   rootSelector,
		"seed":       w.opts.Seed,
		"intervalMs": w.opts.Interval.Milliseconds(),
		"maxPolls":   w.opts.MaxPolls,
	})
	if err != nil {
		w.logger.Warn("stability wait failed, continuing", zap.String("selector", rootSelector), zap.Error(err))
		return Result{}
	}

	settled, _ := out.(bool)
	if !settled {
		w.logger.Warn("page did not settle before timeout, continuing",
			zap.String("selector", rootSelector),
			zap.Any("result", out),
			zap.Duration("waited", time.Since(start)))
		return Result{}
	}

	w.logger.Debug("page settled", zap.String("selector", rootSelector), zap.Duration("waited", time.Since(start)))
	return Result{Settled: true}
}
