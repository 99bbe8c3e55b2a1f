// Package varcache provides the ordered, duplicate-free collection of
// variable handles associated with one message definition.
package varcache

import (
	"github.com/tjmonk/varmsg/errors"
	"github.com/tjmonk/varmsg/varstore"
)

// Default sizing used when the caller has no better estimate.
const (
	DefaultInitialSize = 50
	DefaultGrowBy      = 50
)

// Cache is an insertion-ordered set of variable handles. Adding a handle
// that is already present is a no-op, so iteration never yields duplicates.
type Cache struct {
	handles []varstore.Handle
	members map[varstore.Handle]struct{}
	growBy  int
}

// New creates a cache with the given initial capacity and growth increment.
// Non-positive values fall back to the defaults.
func New(initial, growBy int) *Cache {
	if initial <= 0 {
		initial = DefaultInitialSize
	}
	if growBy <= 0 {
		growBy = DefaultGrowBy
	}
	return &Cache{
		handles: make([]varstore.Handle, 0, initial),
		members: make(map[varstore.Handle]struct{}, initial),
		growBy:  growBy,
	}
}

// Add appends a handle unless it is already present.
func (c *Cache) Add(h varstore.Handle) error {
	if h == varstore.InvalidHandle {
		return errors.WrapInvalid(errors.ErrInvalidHandle, "Cache", "Add", "add handle")
	}
	if _, ok := c.members[h]; ok {
		return nil
	}
	if len(c.handles) == cap(c.handles) {
		grown := make([]varstore.Handle, len(c.handles), cap(c.handles)+c.growBy)
		copy(grown, c.handles)
		c.handles = grown
	}
	c.handles = append(c.handles, h)
	c.members[h] = struct{}{}
	return nil
}

// Contains reports whether the handle is a member.
func (c *Cache) Contains(h varstore.Handle) bool {
	_, ok := c.members[h]
	return ok
}

// Len returns the number of members.
func (c *Cache) Len() int {
	return len(c.handles)
}

// Handles returns the members in insertion order. The returned slice is
// shared; callers must not modify it.
func (c *Cache) Handles() []varstore.Handle {
	return c.handles
}

// ForEach calls fn for every member in insertion order. The first error
// aborts the remaining members and is returned.
func (c *Cache) ForEach(fn func(h varstore.Handle) error) error {
	for _, h := range c.handles {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

// Reset removes all members but keeps the allocated capacity.
func (c *Cache) Reset() {
	c.handles = c.handles[:0]
	clear(c.members)
}
