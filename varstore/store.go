// Package varstore defines the contract varmsg depends on to reach the
// external variable store: handle resolution, metadata and value access,
// declarative search, and the control variables a message definition
// exposes at runtime. It also ships an in-memory implementation used by
// tests and by local development without a live store.
package varstore

import (
	"context"
	"io"
)

// Handle is an opaque store-issued identifier for one variable.
type Handle uint32

// InvalidHandle is returned when a variable cannot be resolved.
const InvalidHandle Handle = 0

// Flags is a bitmask built from the store's flag vocabulary.
type Flags uint32

// Info holds the variable metadata the renderer needs.
type Info struct {
	Name       string
	InstanceID int
}

// QueryKind selects which dimensions of a Query are active.
type QueryKind uint32

// Query dimension bits. A Query with no bit set is invalid.
const (
	QueryTags QueryKind = 1 << iota
	QueryMatch
	QueryFlags
	QueryInstanceID
)

// MaxTagSpecLen bounds the tag specification string. Specs at or beyond
// this length are rejected, never truncated.
const MaxTagSpecLen = 256

// Query is a declarative filter used to select variables from the store
// instead of naming them explicitly.
type Query struct {
	Kind       QueryKind
	TagSpec    string
	Match      string
	Flags      Flags
	InstanceID int
}

// Store is the variable store contract. Implementations must return a
// stable, duplicate-free order from Search so that repeated resolution of
// the same query yields the same variable set.
type Store interface {
	// FindByName resolves a variable name to its handle.
	FindByName(ctx context.Context, name string) (Handle, error)

	// Info returns the metadata for a variable.
	Info(ctx context.Context, h Handle) (Info, error)

	// Print writes the variable's current value as text to w.
	Print(ctx context.Context, h Handle, w io.Writer) error

	// ParseFlags converts a comma-separated flag-name list into a bitmask
	// using the store's flag vocabulary.
	ParseFlags(spec string) (Flags, error)

	// Search executes a query and returns every matching handle in a
	// stable, duplicate-free order.
	Search(ctx context.Context, q Query) ([]Handle, error)

	// Create ensures a variable exists and returns its handle. Used for
	// the per-definition control/status variables.
	Create(ctx context.Context, name string) (Handle, error)

	// SetValue replaces the variable's value with the given text.
	SetValue(ctx context.Context, h Handle, value string) error

	// GetValue returns the variable's current value as text.
	GetValue(ctx context.Context, h Handle) (string, error)

	// Close releases the connection to the store.
	Close() error
}
