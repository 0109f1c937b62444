package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestIsInCooldown_Invariant checks spec.md §8 invariant 7 directly:
// for a model placed in cooldown at t, IsInCooldown(M, t') holds iff
// t <= t' < t+window.
func TestIsInCooldown_Invariant(t *testing.T) {
	s := New(10 * time.Minute)
	base := time.Now()

	s.mu.Lock()
	s.entries["gemini-2.5-pro"] = &entry{rateLimitedAt: base}
	s.mu.Unlock()

	require.False(t, s.IsInCooldownAt("gemini-2.5-pro", base.Add(-time.Second)))
	require.True(t, s.IsInCooldownAt("gemini-2.5-pro", base))
	require.True(t, s.IsInCooldownAt("gemini-2.5-pro", base.Add(9*time.Minute+59*time.Second)))
	require.False(t, s.IsInCooldownAt("gemini-2.5-pro", base.Add(10*time.Minute)))
}

func TestRecord_AccumulatesStatusCodes(t *testing.T) {
	s := New(time.Minute)
	s.Record("gemini-2.5-flash", 429)
	s.Record("gemini-2.5-flash", 429)
	require.Equal(t, []int{429, 429}, s.StatusCodes("gemini-2.5-flash"))
	require.True(t, s.IsInCooldown("gemini-2.5-flash"))
}

func TestClear(t *testing.T) {
	s := New(time.Minute)
	s.Record("m", 429)
	s.Clear()
	require.False(t, s.IsInCooldown("m"))
	require.Nil(t, s.StatusCodes("m"))
}
