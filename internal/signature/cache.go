// Package signature implements the process-wide thought-signature cache
// (spec.md §3 "Signature cache entities"). It is structured after the
// teacher's global model registry (internal/registry/model_registry.go):
// a sync.Once-initialized singleton guarded by a single sync.RWMutex, with
// a small, explicit mutation interface rather than scattered writers
// (spec.md §9 "Global state").
package signature

import "sync"

// MinLength is the rejection threshold: any signature shorter than this
// many characters is discarded (spec.md §3 rejection rule).
const MinLength = 100

// Family is the thinking-signature cache key derived from a requested
// model name (spec.md GLOSSARY "Model family").
type Family string

const (
	FamilyGemini Family = "gemini"
	FamilyClaude Family = "claude"
)

// FamilyOf derives the model family for a requested model name: "claude"
// if the substring "claude" appears in it, "gemini" otherwise.
func FamilyOf(model string) Family {
	if containsClaude(model) {
		return FamilyClaude
	}
	return FamilyGemini
}

func containsClaude(s string) bool {
	const needle = "claude"
	if len(s) < len(needle) {
		return false
	}
	for i := 0; i+len(needle) <= len(s); i++ {
		match := true
		for j := 0; j < len(needle); j++ {
			c := s[i+j]
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			if c != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Cache holds the two maps spec.md §3 describes: one keyed by model
// family, one keyed by tool-call id.
type Cache struct {
	mu       sync.RWMutex
	byFamily map[Family]string
	byToolID map[string]string
}

var (
	global     *Cache
	globalOnce sync.Once
)

// Global returns the process-wide signature cache.
func Global() *Cache {
	globalOnce.Do(func() {
		global = New()
	})
	return global
}

// New constructs a standalone cache (mainly for tests, which must not share
// state with the process-wide singleton).
func New() *Cache {
	return &Cache{
		byFamily: make(map[Family]string),
		byToolID: make(map[string]string),
	}
}

// PutFamily inserts sig for family, rejecting anything under MinLength.
// Insertion is idempotent: a later call simply overwrites, matching
// spec.md §5's "mutations are idempotent insertions of new entries".
func (c *Cache) PutFamily(family Family, sig string) {
	if len(sig) < MinLength {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byFamily[family] = sig
}

// Family returns the cached signature for family, if any.
func (c *Cache) Family(family Family) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sig, ok := c.byFamily[family]
	return sig, ok
}

// PutToolCall inserts sig for a tool_call_id, rejecting anything under
// MinLength.
func (c *Cache) PutToolCall(toolCallID, sig string) {
	if len(sig) < MinLength {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byToolID[toolCallID] = sig
}

// ToolCall returns the cached signature for toolCallID, if any.
func (c *Cache) ToolCall(toolCallID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sig, ok := c.byToolID[toolCallID]
	return sig, ok
}

// Clear empties both maps. Exposed for tests per spec.md §9's
// "clear-for-tests" mutation.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byFamily = make(map[Family]string)
	c.byToolID = make(map[string]string)
}

// Snapshot returns a point-in-time copy of both maps, used by the optional
// bbolt write-behind persistence layer (persist.go) — never read on the hot
// request path.
func (c *Cache) Snapshot() (byFamily map[Family]string, byToolID map[string]string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byFamily = make(map[Family]string, len(c.byFamily))
	for k, v := range c.byFamily {
		byFamily[k] = v
	}
	byToolID = make(map[string]string, len(c.byToolID))
	for k, v := range c.byToolID {
		byToolID[k] = v
	}
	return byFamily, byToolID
}

// Restore repopulates the cache from a previously taken Snapshot, applying
// the same MinLength rejection rule entry-by-entry.
func (c *Cache) Restore(byFamily map[Family]string, byToolID map[string]string) {
	for family, sig := range byFamily {
		c.PutFamily(family, sig)
	}
	for id, sig := range byToolID {
		c.PutToolCall(id, sig)
	}
}
