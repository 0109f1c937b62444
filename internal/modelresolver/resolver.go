// Package modelresolver maps user-supplied model names, aliases, and
// budget-hint suffixes to canonical Gemini model ids (spec.md §4.2), and
// carries the supplemented quota-exceeded tracker described in
// SPEC_FULL.md §4.1, grounded on the teacher's `isModelQuotaExceeded`
// check in internal/client/gemini-cli_client.go. internal/fallback.Controller
// owns the actual candidate ordering (its static chain already lists the
// same preview aliases the teacher's previewModels table does), so
// PreviewFallback here is purely the exceeded/not-exceeded bookkeeping.
package modelresolver

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultModel is returned whenever the requested model can't be resolved
// to anything more specific (spec.md §4.2 step 1/6).
const DefaultModel = "gemini-2.5-pro"

// budgetSuffix matches a trailing "[<digits>m]" budget hint (spec.md §4.2
// step 2).
var budgetSuffix = regexp.MustCompile(`\[(\d+)m\]$`)

// aliases is the static table spec.md §4.2 step 3 refers to.
var aliases = map[string]string{
	"gemini-3-pro-high":     "gemini-3-pro-preview",
	"gemini-3":              "gemini-3-flash-preview",
	"gemini-2.5-flash-lite": "gemini-2.5-flash-lite-preview",
}

// canonical lists the ids step 4 recognizes as already-canonical (so they
// pass through even though they don't begin with a further alias lookup).
var canonical = map[string]bool{
	"gemini-2.5-pro":                true,
	"gemini-2.5-flash":              true,
	"gemini-2.5-flash-lite-preview": true,
	"gemini-3-pro-preview":          true,
	"gemini-3-flash-preview":        true,
}

// Resolve implements spec.md §4.2's resolution procedure.
func Resolve(name string) string {
	if name == "" {
		return DefaultModel
	}

	stripped, _ := StripBudgetHint(name)

	if resolved, ok := aliases[stripped]; ok {
		return resolved
	}
	if canonical[stripped] {
		return stripped
	}
	if strings.HasPrefix(stripped, "gemini-") {
		return stripped
	}
	return DefaultModel
}

// CanonicalModels returns the canonical Gemini model ids this proxy serves,
// sorted, for the /models endpoints (spec.md §6).
func CanonicalModels() []string {
	ids := make([]string, 0, len(canonical))
	for id := range canonical {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StripBudgetHint removes a trailing "[<digits>m]" suffix and returns the
// remaining id along with the parsed minute budget (0 if absent).
func StripBudgetHint(name string) (string, int) {
	m := budgetSuffix.FindStringSubmatchIndex(name)
	if m == nil {
		return name, 0
	}
	minutes := 0
	for _, c := range name[m[2]:m[3]] {
		minutes = minutes*10 + int(c-'0')
	}
	return name[:m[0]], minutes
}

// DefaultPreviewWindow is the quota-exceeded window the teacher hardcodes
// (30 minutes), used when a Controller isn't configured with an explicit
// override.
const DefaultPreviewWindow = 30 * time.Minute

// PreviewFallback tracks which models are presently quota-exceeded (a
// distinct, shorter-lived condition than the fallback controller's
// rate-limit cooldown) and resolves the next preview alias to try.
type PreviewFallback struct {
	mu       sync.RWMutex
	window   time.Duration
	exceeded map[string]time.Time
}

// NewPreviewFallback constructs a tracker with the given quota-exceeded
// window (the teacher hardcodes 30 minutes).
func NewPreviewFallback(window time.Duration) *PreviewFallback {
	return &PreviewFallback{window: window, exceeded: make(map[string]time.Time)}
}

// MarkExceeded records that model hit a quota-exceeded response now.
func (p *PreviewFallback) MarkExceeded(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exceeded[model] = time.Now()
}

// Clear removes any quota-exceeded marker for model (a successful call).
func (p *PreviewFallback) Clear(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.exceeded, model)
}

// IsExceeded reports whether model is presently within its quota-exceeded
// window.
func (p *PreviewFallback) IsExceeded(model string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.exceeded[model]
	if !ok {
		return false
	}
	return time.Since(t) <= p.window
}
