package modelresolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty falls back to default", "", DefaultModel},
		{"budget hint stripped then aliased", "gemini-3-pro-high[10m]", "gemini-3-pro-preview"},
		{"alias table", "gemini-3", "gemini-3-flash-preview"},
		{"flash-lite alias", "gemini-2.5-flash-lite", "gemini-2.5-flash-lite-preview"},
		{"canonical passthrough", "gemini-2.5-pro", "gemini-2.5-pro"},
		{"unknown gemini- prefix passes through", "gemini-4-ultra", "gemini-4-ultra"},
		{"claude alias falls back to default", "claude-3-5-sonnet-20241022", DefaultModel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Resolve(tc.in))
		})
	}
}

func TestStripBudgetHint(t *testing.T) {
	id, minutes := StripBudgetHint("gemini-2.5-pro[30m]")
	require.Equal(t, "gemini-2.5-pro", id)
	require.Equal(t, 30, minutes)

	id, minutes = StripBudgetHint("gemini-2.5-pro")
	require.Equal(t, "gemini-2.5-pro", id)
	require.Equal(t, 0, minutes)
}

func TestCanonicalModels(t *testing.T) {
	ids := CanonicalModels()
	require.Contains(t, ids, "gemini-2.5-pro")
	require.Contains(t, ids, "gemini-2.5-flash")
	for i := 1; i < len(ids); i++ {
		require.Less(t, ids[i-1], ids[i])
	}
}

func TestPreviewFallback(t *testing.T) {
	pf := NewPreviewFallback(30 * time.Minute)
	require.False(t, pf.IsExceeded("gemini-2.5-pro"))

	pf.MarkExceeded("gemini-2.5-pro")
	require.True(t, pf.IsExceeded("gemini-2.5-pro"))
	require.False(t, pf.IsExceeded("gemini-2.5-flash"))

	pf.Clear("gemini-2.5-pro")
	require.False(t, pf.IsExceeded("gemini-2.5-pro"))
}

func TestPreviewFallback_WindowExpiry(t *testing.T) {
	pf := NewPreviewFallback(-time.Second)
	pf.MarkExceeded("gemini-2.5-pro")
	require.False(t, pf.IsExceeded("gemini-2.5-pro"))
}
