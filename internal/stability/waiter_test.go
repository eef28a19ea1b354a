package stability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/scrollreel/internal/browser/browsertest"
)

func TestWaitUntilStable_Settled(t *testing.T) {
	page := &browsertest.Page{EvaluateFunc: func(string, any) (any, error) { return true, nil }}
	w := NewWaiter(DefaultOptions(), zap.NewNop())

	res := w.WaitUntilStable(context.Background(), page, "body")
	assert.True(t, res.Settled)

	calls := page.EvalCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{
		"selector":   "body",
		"seed":       5,
		"intervalMs": int64(5),
		"maxPolls":   1000,
	}, calls[0].Arg)
	assert.Contains(t, calls[0].Expression, "MutationObserver")
}

func TestWaitUntilStable_TimeoutIsNotAnError(t *testing.T) {
	page := &browsertest.Page{EvaluateFunc: func(string, any) (any, error) { return "timeout", nil }}
	w := NewWaiter(DefaultOptions(), zap.NewNop())

	assert.False(t, w.WaitUntilStable(context.Background(), page, "body").Settled)
}

func TestWaitUntilStable_EvaluateErrorIsSwallowed(t *testing.T) {
	page := &browsertest.Page{EvaluateFunc: func(string, any) (any, error) {
		return nil, errors.New("execution context was destroyed")
	}}
	w := NewWaiter(DefaultOptions(), zap.NewNop())

	assert.False(t, w.WaitUntilStable(context.Background(), page, "main").Settled)
}

func TestWaitUntilStable_CancelledContextSkips(t *testing.T) {
	page := &browsertest.Page{}
	w := NewWaiter(DefaultOptions(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, w.WaitUntilStable(ctx, page, "body").Settled)
	assert.Empty(t, page.EvalCalls())
}
