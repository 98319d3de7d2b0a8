package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoomRateLimiter_Allow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRoomRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("tok"))
	require.True(t, rl.Allow("tok"))
	require.False(t, rl.Allow("tok"))
	require.True(t, rl.Allow("other"))

	now = now.Add(5 * time.Second)
	require.False(t, rl.Allow("tok"))

	// the first two attempts slide out of the window
	now = now.Add(6 * time.Second)
	require.True(t, rl.Allow("tok"))
}

func TestRoomRateLimiter_Disabled(t *testing.T) {
	rl := NewRoomRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("tok"))
	}
}

func TestRoomRateLimiter_Prune(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRoomRateLimiter(1, time.Second)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("a"))
	now = now.Add(500 * time.Millisecond)
	require.True(t, rl.Allow("b"))

	now = now.Add(700 * time.Millisecond)
	rl.Prune()

	rl.mu.Lock()
	_, hasA := rl.history["a"]
	_, hasB := rl.history["b"]
	rl.mu.Unlock()
	require.False(t, hasA)
	require.True(t, hasB)
}
