package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/riverweft/patrolcast/internal/recommend"
)

func rec(version string) *recommend.Recommendation {
	return &recommend.Recommendation{ModelVersion: version}
}

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", rec("A"))
	c.put("b", rec("B"))

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.ModelVersion)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", rec("A"))
	c.put("b", rec("B"))
	c.put("c", rec("C")) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result.ModelVersion)

	result, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result.ModelVersion)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", rec("A"))
	c.put("b", rec("B"))

	// Access "a" to promote it
	c.get("a")

	// Insert "c", which should evict "b" (LRU), not "a"
	c.put("c", rec("C"))

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", rec("A1"))
	c.put("a", rec("A2"))

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.ModelVersion)
}

func TestLRUCache_Clear(t *testing.T) {
	c := newLRUCache(4)

	c.put("a", rec("A"))
	c.put("b", rec("B"))
	assert.Equal(t, 2, c.len())

	c.clear()
	assert.Equal(t, 0, c.len())

	_, ok := c.get("a")
	assert.False(t, ok)

	// The cleared cache must still accept and evict normally.
	c.put("x", rec("X"))
	result, ok := c.get("x")
	assert.True(t, ok)
	assert.Equal(t, "X", result.ModelVersion)
}
