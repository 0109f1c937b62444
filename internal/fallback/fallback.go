// Package fallback implements the fallback controller (spec.md §4.5): when
// a model is rate-limited, requests are retried against a static chain of
// substitute models instead of failing outright. Grounded on the teacher's
// quota-exceeded handling, generalized from two mechanisms into one chain
// walk: client.GeminiCLIClient.getPreviewModel/isModelQuotaExceeded
// (internal/client/gemini-cli_client.go) for model-level substitution, and
// the handlers' "outLoop:" retry-on-429 pattern
// (internal/api/handlers/openai/openai_handlers.go) for the request-level
// retry shape, here expressed as wrap_streaming/wrap_nonstreaming instead of
// an inline loop in every handler.
//
// The teacher's quota-exceeded tracking (SPEC_FULL.md §4.1) is kept as a
// second, independent skip signal alongside the cooldown state: a 429 both
// records a cooldown entry and marks the candidate quota-exceeded on its own
// (typically longer) window, so a model that falls out of cooldown but is
// still within its quota-exceeded window is still skipped.
package fallback

import (
	"sync"
	"time"

	"github.com/valerka1292/gemini-cli-proxy/internal/cooldown"
	"github.com/valerka1292/gemini-cli-proxy/internal/modelresolver"
)

// chain is the static {model -> ordered fallback candidates} table (spec.md
// §4.5). Preview aliases come first, matching the teacher's previewModels
// table; a same-tier sibling model is the last resort.
var chain = map[string][]string{
	"gemini-2.5-pro":         {"gemini-2.5-pro-preview-05-06", "gemini-2.5-pro-preview-06-05", "gemini-2.5-flash"},
	"gemini-2.5-flash":       {"gemini-2.5-flash-preview-04-17", "gemini-2.5-flash-preview-05-20", "gemini-2.5-flash-lite"},
	"gemini-2.5-flash-lite":  {"gemini-2.5-flash-lite-preview-06-17"},
	"gemini-3-pro-preview":   {"gemini-2.5-pro"},
	"gemini-3-flash-preview": {"gemini-2.5-flash"},
}

// Controller wraps upstream calls with cooldown-aware fallback.
type Controller struct {
	cooldowns *cooldown.State
	previews  *modelresolver.PreviewFallback

	mu      sync.RWMutex
	enabled bool
}

// New constructs a Controller backed by the given cooldown state and
// quota-exceeded window (0 uses modelresolver.DefaultPreviewWindow). Pass
// cooldown.Global() in production; tests should construct their own State
// so runs don't share cooldown history. enabled mirrors
// config.Fallback.Enabled (spec.md §4.5's "consulted only when auto-switching
// is enabled"); when false, neither the static chain table nor the preview
// switch is consulted, and a rate-limited model's error surfaces to the
// caller unchanged (spec.md §8 S3, the default-configuration case).
func New(state *cooldown.State, enabled bool, previewWindow time.Duration) *Controller {
	if previewWindow <= 0 {
		previewWindow = modelresolver.DefaultPreviewWindow
	}
	return &Controller{
		cooldowns: state,
		previews:  modelresolver.NewPreviewFallback(previewWindow),
		enabled:   enabled,
	}
}

// SetEnabled updates the auto-switching flag, for internal/watcher's config
// hot-reload path.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

// fallbackChain returns model's configured fallback candidates, or nil when
// auto-switching is disabled.
func (c *Controller) fallbackChain(model string) []string {
	c.mu.RLock()
	enabled := c.enabled
	c.mu.RUnlock()
	if !enabled {
		return nil
	}
	return chain[model]
}

// skip reports whether candidate should be passed over: either presently
// cooling down from a recent 429, or within its independent quota-exceeded
// window (SPEC_FULL.md §4.1). Both checks are bypassed when auto-switching
// is disabled, since the candidate set is just [model] in that case anyway.
func (c *Controller) skip(candidate string) bool {
	if c.cooldowns.IsInCooldown(candidate) {
		return true
	}
	c.mu.RLock()
	enabled := c.enabled
	c.mu.RUnlock()
	return enabled && c.previews.IsExceeded(candidate)
}

// BestAvailable walks model's fallback chain and returns the first entry
// not presently in cooldown or quota-exceeded, or model itself if every
// candidate (including model) is unavailable.
func (c *Controller) BestAvailable(model string) string {
	if !c.skip(model) {
		return model
	}
	for _, candidate := range c.fallbackChain(model) {
		if !c.skip(candidate) {
			return candidate
		}
	}
	return model
}

// Attempt is one call made by wrap_streaming/wrap_nonstreaming: the model
// name tried and the result of invoking doit with it.
type attemptFunc func(model string) (statusCode int, err error)

// WrapNonStreaming retries doit across model's fallback chain, recording
// each 429 in the cooldown state before advancing to the next candidate.
// It returns the model actually used and the terminal status/error.
func (c *Controller) WrapNonStreaming(model string, doit attemptFunc) (usedModel string, statusCode int, err error) {
	return c.run(model, doit)
}

// WrapStreaming has the same retry semantics as WrapNonStreaming; doit is
// expected to have already streamed partial output to the client before a
// 429 is detected, so callers should only invoke the next candidate when
// doit reports that no bytes were written yet. The controller itself is
// agnostic to that distinction and simply retries on 429.
func (c *Controller) WrapStreaming(model string, doit attemptFunc) (usedModel string, statusCode int, err error) {
	return c.run(model, doit)
}

func (c *Controller) run(model string, doit attemptFunc) (string, int, error) {
	candidates := append([]string{model}, c.fallbackChain(model)...)
	var lastStatus int
	var lastErr error
	for _, candidate := range candidates {
		if c.skip(candidate) {
			continue
		}
		status, err := doit(candidate)
		if status == 429 {
			c.cooldowns.Record(candidate, status)
			c.previews.MarkExceeded(candidate)
			lastStatus, lastErr = status, err
			continue
		}
		c.previews.Clear(candidate)
		return candidate, status, err
	}
	return model, lastStatus, lastErr
}

// ResolveThenFallback composes modelresolver.Resolve with BestAvailable,
// the order every request handler applies before dispatch (spec.md §4.2
// then §4.5).
func (c *Controller) ResolveThenFallback(requested string) string {
	return c.BestAvailable(modelresolver.Resolve(requested))
}

// CooldownWindow is exported for callers constructing a Controller with a
// non-default window (tests, or a config override).
const CooldownWindow = cooldown.Default
