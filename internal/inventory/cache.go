package inventory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"clipforge/internal/services"
)

// Component is one reusable generation input referenced by plan sections:
// a character or scene image, an optional motion reference, and an optional
// default script.
type Component struct {
	ID        string
	Kind      string
	ImageRef  string
	MotionRef string
	Script    string
}

// Loader fetches the component inventory from its source of truth. The
// cache treats the loader as opaque; anything from a spreadsheet export to
// a static fixture can serve.
type Loader interface {
	Load(ctx context.Context) ([]Component, error)
}

// LoaderFunc adapts a plain function to the Loader interface.
type LoaderFunc func(ctx context.Context) ([]Component, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context) ([]Component, error) {
	return f(ctx)
}

// Cache is an explicitly-scoped component lookup. It loads lazily on first
// use, serves from memory afterward, and reloads only after Invalidate.
// Each cache instance is independent so tests and concurrent pipelines
// never share hidden state.
type Cache struct {
	loader Loader

	mu     sync.RWMutex
	loaded bool
	items  map[string]Component
}

// NewCache builds a cache over the supplied loader.
func NewCache(loader Loader) *Cache {
	return &Cache{loader: loader}
}

// Get resolves a component by id, loading the inventory if needed.
func (c *Cache) Get(ctx context.Context, id string) (Component, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Component{}, services.Wrap(services.ErrValidation, "inventory", "get", "component id required", nil)
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return Component{}, err
	}

	c.mu.RLock()
	component, ok := c.items[id]
	c.mu.RUnlock()
	if !ok {
		return Component{}, services.Wrap(services.ErrNotFound, "inventory", "get",
			fmt.Sprintf("component %q", id), nil)
	}
	return component, nil
}

// All returns every known component, loading the inventory if needed.
func (c *Cache) All(ctx context.Context) ([]Component, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	components := make([]Component, 0, len(c.items))
	for _, component := range c.items {
		components = append(components, component)
	}
	return components, nil
}

// Invalidate drops the cached inventory; the next lookup reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.items = nil
	c.mu.Unlock()
}

func (c *Cache) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	if c.loader == nil {
		return services.Wrap(services.ErrConfiguration, "inventory", "load", "no loader configured", nil)
	}
	components, err := c.loader.Load(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "inventory", "load", "load components", err)
	}
	items := make(map[string]Component, len(components))
	for _, component := range components {
		if component.ID == "" {
			continue
		}
		items[component.ID] = component
	}
	c.items = items
	c.loaded = true
	return nil
}
