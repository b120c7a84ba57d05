package hub

import "sync"

// AttrCache is the per-entity read-through cache over reported
// attributes. A live value wins and refreshes the cache; a missing
// live value falls back to the last cached one; with neither, the
// caller's default applies. This keeps entities presentable across
// partial attribute pushes and brief cloud gaps.
type AttrCache struct {
	mu     sync.Mutex
	values map[string]any
}

func NewAttrCache() *AttrCache {
	return &AttrCache{values: make(map[string]any)}
}

// Lookup resolves an attribute against the live snapshot.
func (c *AttrCache) Lookup(live Attrs, name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, ok := live[name]; ok && value != nil {
		c.values[name] = value
		return value, true
	}
	if value, ok := c.values[name]; ok {
		return value, true
	}
	return nil, false
}

// LookupFloat resolves a numeric attribute, falling back to def.
func (c *AttrCache) LookupFloat(live Attrs, name string, def float64) float64 {
	value, ok := c.Lookup(live, name)
	if !ok {
		return def
	}
	f, ok := AsFloat(value)
	if !ok {
		return def
	}
	return f
}

// Set records a value after a successful device command.
func (c *AttrCache) Set(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
}

// Get returns the cached value without consulting live state.
func (c *AttrCache) Get(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[name]
	return value, ok
}

// Refresh copies the listed keys from data into the cache when
// present. Reverse sync uses this so external changes (app, boiler
// panel) land in the cache before state is written.
func (c *AttrCache) Refresh(data Attrs, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if value, ok := data[key]; ok {
			c.values[key] = value
		}
	}
}
