package fallback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valerka1292/gemini-cli-proxy/internal/cooldown"
)

func TestBestAvailable_NoCooldown(t *testing.T) {
	c := New(cooldown.New(time.Minute), true, time.Minute)
	require.Equal(t, "gemini-2.5-pro", c.BestAvailable("gemini-2.5-pro"))
}

func TestBestAvailable_WalksChain(t *testing.T) {
	state := cooldown.New(time.Minute)
	c := New(state, true, time.Minute)
	state.Record("gemini-2.5-pro", 429)
	require.Equal(t, "gemini-2.5-pro-preview-05-06", c.BestAvailable("gemini-2.5-pro"))

	state.Record("gemini-2.5-pro-preview-05-06", 429)
	require.Equal(t, "gemini-2.5-pro-preview-06-05", c.BestAvailable("gemini-2.5-pro"))
}

func TestBestAvailable_AllExhausted_ReturnsOriginal(t *testing.T) {
	state := cooldown.New(time.Minute)
	c := New(state, true, time.Minute)
	for _, m := range append([]string{"gemini-2.5-flash-lite"}, chain["gemini-2.5-flash-lite"]...) {
		state.Record(m, 429)
	}
	require.Equal(t, "gemini-2.5-flash-lite", c.BestAvailable("gemini-2.5-flash-lite"))
}

func TestBestAvailable_Disabled_NeverWalksChain(t *testing.T) {
	state := cooldown.New(time.Minute)
	c := New(state, false, time.Minute)
	state.Record("gemini-2.5-pro", 429)
	require.Equal(t, "gemini-2.5-pro", c.BestAvailable("gemini-2.5-pro"))
}

func TestWrapNonStreaming_RetriesOn429(t *testing.T) {
	state := cooldown.New(time.Minute)
	c := New(state, true, time.Minute)

	var tried []string
	used, status, err := c.WrapNonStreaming("gemini-2.5-pro", func(model string) (int, error) {
		tried = append(tried, model)
		if model == "gemini-2.5-pro" {
			return 429, nil
		}
		return 200, nil
	})

	require.NoError(t, err)
	require.Equal(t, 200, status)
	require.Equal(t, "gemini-2.5-pro-preview-05-06", used)
	require.Equal(t, []string{"gemini-2.5-pro", "gemini-2.5-pro-preview-05-06"}, tried)
	require.True(t, state.IsInCooldown("gemini-2.5-pro"))
}

func TestWrapNonStreaming_AllFail_ReturnsLastStatus(t *testing.T) {
	state := cooldown.New(time.Minute)
	c := New(state, true, time.Minute)

	used, status, _ := c.WrapNonStreaming("gemini-2.5-flash-lite", func(model string) (int, error) {
		return 429, nil
	})

	require.Equal(t, "gemini-2.5-flash-lite", used)
	require.Equal(t, 429, status)
}

// TestBestAvailable_QuotaExceededAloneSkipsModel exercises the independent
// quota-exceeded signal (SPEC_FULL.md §4.1): a model marked exceeded is
// skipped even with no cooldown entry at all.
func TestBestAvailable_QuotaExceededAloneSkipsModel(t *testing.T) {
	state := cooldown.New(time.Minute)
	c := New(state, true, time.Hour)
	c.previews.MarkExceeded("gemini-2.5-pro")
	require.False(t, state.IsInCooldown("gemini-2.5-pro"))

	require.Equal(t, "gemini-2.5-pro-preview-05-06", c.BestAvailable("gemini-2.5-pro"))
}

func TestWrapNonStreaming_Disabled_SurfacesRequestedModel(t *testing.T) {
	state := cooldown.New(time.Minute)
	c := New(state, false, time.Minute)

	var tried []string
	used, status, _ := c.WrapNonStreaming("gemini-2.5-pro", func(model string) (int, error) {
		tried = append(tried, model)
		return 429, nil
	})

	require.Equal(t, "gemini-2.5-pro", used)
	require.Equal(t, 429, status)
	require.Equal(t, []string{"gemini-2.5-pro"}, tried)
}
