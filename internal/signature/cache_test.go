package signature

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sig(n int) string {
	return strings.Repeat("s", n)
}

func TestFamilyOf(t *testing.T) {
	require.Equal(t, FamilyGemini, FamilyOf("gemini-2.5-pro"))
	require.Equal(t, FamilyClaude, FamilyOf("claude-3-5-sonnet-20241022"))
	require.Equal(t, FamilyClaude, FamilyOf("anthropic/Claude-Opus"))
	require.Equal(t, FamilyGemini, FamilyOf(""))
}

func TestCache_RejectsShortSignatures(t *testing.T) {
	c := New()
	c.PutFamily(FamilyGemini, sig(99))
	_, ok := c.Family(FamilyGemini)
	require.False(t, ok, "signatures under MinLength must be discarded")

	c.PutFamily(FamilyGemini, sig(100))
	got, ok := c.Family(FamilyGemini)
	require.True(t, ok)
	require.Equal(t, sig(100), got)
}

func TestCache_ToolCallRoundTrip(t *testing.T) {
	c := New()
	c.PutToolCall("call_1", sig(120))
	got, ok := c.ToolCall("call_1")
	require.True(t, ok)
	require.Equal(t, sig(120), got)

	_, ok = c.ToolCall("call_missing")
	require.False(t, ok)
}

func TestCache_ClearAndSnapshotRoundTrip(t *testing.T) {
	c := New()
	c.PutFamily(FamilyClaude, sig(150))
	c.PutToolCall("call_2", sig(150))

	byFamily, byToolID := c.Snapshot()
	require.Len(t, byFamily, 1)
	require.Len(t, byToolID, 1)

	c.Clear()
	_, ok := c.Family(FamilyClaude)
	require.False(t, ok)

	c.Restore(byFamily, byToolID)
	got, ok := c.Family(FamilyClaude)
	require.True(t, ok)
	require.Equal(t, sig(150), got)
}

func TestStore_SnapshotAndLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "signatures.db"))
	require.NoError(t, err)
	defer store.Close()

	c := New()
	c.PutFamily(FamilyGemini, sig(110))
	c.PutToolCall("call_9", sig(130))

	require.NoError(t, store.SnapshotTo(c))

	restored := New()
	require.NoError(t, store.LoadInto(restored))

	got, ok := restored.Family(FamilyGemini)
	require.True(t, ok)
	require.Equal(t, sig(110), got)

	got, ok = restored.ToolCall("call_9")
	require.True(t, ok)
	require.Equal(t, sig(130), got)
}
