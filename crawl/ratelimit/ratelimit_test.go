package ratelimit

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitEnforcesMinimumSpacing(t *testing.T) {
	l := New(100 * time.Millisecond)
	target, err := url.Parse("http://example.com/a")
	require.NoError(t, err)

	require.NoError(t, l.Wait(context.Background(), target))
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), target))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
}

func TestSetMinDelayOnlyRaisesSpacing(t *testing.T) {
	l := New(500 * time.Millisecond)
	l.SetMinDelay("example.com", 10*time.Millisecond)

	l.mu.Lock()
	st := l.stateLocked("example.com")
	l.mu.Unlock()
	assert.Equal(t, 500*time.Millisecond, st.minDelay)

	l.SetMinDelay("example.com", time.Second)
	l.mu.Lock()
	st = l.stateLocked("example.com")
	l.mu.Unlock()
	assert.Equal(t, time.Second, st.minDelay)
}

func TestDifferentHostsAreIndependent(t *testing.T) {
	l := New(200 * time.Millisecond)
	a, _ := url.Parse("http://a.example.com/x")
	b, _ := url.Parse("http://b.example.com/x")

	require.NoError(t, l.Wait(context.Background(), a))
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), b))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
