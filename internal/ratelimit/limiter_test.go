package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowUpToBurst(t *testing.T) {
	l := NewLimiter(100, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.Less(t, l.Tokens("10.0.0.1"), 1.0)
}

func TestClientsAreIndependent(t *testing.T) {
	l := NewLimiter(100, 1)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 100, l.PerHour())
}

func TestPruneKeepsActiveClients(t *testing.T) {
	l := NewLimiter(100, 2)

	l.Allow("busy")
	l.Tokens("idle")

	assert.Equal(t, 1, l.Prune())
	assert.Len(t, l.limiters, 1)
	assert.Contains(t, l.limiters, "busy")
}
