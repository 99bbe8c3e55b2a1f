package definition

// Registry owns every message definition loaded at startup. New
// definitions are prepended, so within one scheduler pulse the
// most-recently-loaded definition is processed first. This matches the
// reference service and is relied on by the ordering tests.
type Registry struct {
	defs []*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add prepends a definition.
func (r *Registry) Add(d *Definition) {
	r.defs = append([]*Definition{d}, r.defs...)
}

// Definitions returns the definitions in processing order
// (most-recently-loaded first). The returned slice is shared; callers
// must not modify it.
func (r *Registry) Definitions() []*Definition {
	return r.defs
}

// Len returns the number of owned definitions.
func (r *Registry) Len() int {
	return len(r.defs)
}

// Close releases every definition's sink transport. The first error is
// returned after all definitions have been closed.
func (r *Registry) Close() error {
	var firstErr error
	for _, d := range r.defs {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
