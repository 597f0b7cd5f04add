package cache

import (
	"testing"
	"time"

	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheSetGetDelete(t *testing.T) {
	c := NewTTLCache[string, int]()

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 7, time.Minute)
	value, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 7, value)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 7, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheZeroTTLNeverStores(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 7, 0)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCachePurge(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Purge()

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestResolverCacheRoundTrip(t *testing.T) {
	c := NewResolverCache(time.Minute)

	snapshot := entdomain.StarterDefaults()
	c.SetEntitlements("100", snapshot)
	c.SetFlags("100", map[string]bool{entdomain.FeatureCalendar: false})

	got, ok := c.GetEntitlements("100")
	assert.True(t, ok)
	assert.Equal(t, snapshot, got)

	flags, ok := c.GetFlags("100")
	assert.True(t, ok)
	assert.False(t, flags[entdomain.FeatureCalendar])

	_, ok = c.GetEntitlements("200")
	assert.False(t, ok)
}

func TestResolverCacheInvalidateTenant(t *testing.T) {
	c := NewResolverCache(time.Minute)

	c.SetEntitlements("100", entdomain.StarterDefaults())
	c.SetFlags("100", map[string]bool{})
	c.SetEntitlements("200", entdomain.StarterDefaults())

	c.InvalidateTenant("100")

	_, ok := c.GetEntitlements("100")
	assert.False(t, ok)
	_, ok = c.GetFlags("100")
	assert.False(t, ok)

	_, ok = c.GetEntitlements("200")
	assert.True(t, ok)
}

func TestResolverCacheDisabled(t *testing.T) {
	c := NewResolverCache(0)

	c.SetEntitlements("100", entdomain.StarterDefaults())
	_, ok := c.GetEntitlements("100")
	assert.False(t, ok)
}
