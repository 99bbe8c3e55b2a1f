package varstore

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/tjmonk/varmsg/errors"
)

// flagVocabulary maps flag names accepted by ParseFlags to their bits.
// The names mirror the store's variable flag vocabulary.
var flagVocabulary = map[string]Flags{
	"volatile": 1 << 0,
	"readonly": 1 << 1,
	"hidden":   1 << 2,
	"dirty":    1 << 3,
	"audit":    1 << 4,
	"trigger":  1 << 5,
	"metric":   1 << 6,
	"password": 1 << 7,
}

// VarDef describes one variable to seed into a MemStore.
type VarDef struct {
	Name       string
	Value      string
	InstanceID int
	Tags       []string
	Flags      Flags
}

type memVar struct {
	info     Info
	value    string
	tags     map[string]struct{}
	flags    Flags
	printErr error
}

// MemStore is an in-memory Store implementation. It preserves variable
// definition order so Search results are stable across calls.
type MemStore struct {
	mu     sync.RWMutex
	vars   []*memVar
	byName map[string]Handle
	closed bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		byName: make(map[string]Handle),
	}
}

// Define adds or replaces a variable and returns its handle.
func (s *MemStore) Define(def VarDef) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.byName[def.Name]; ok {
		v := s.vars[h-1]
		v.value = def.Value
		v.info.InstanceID = def.InstanceID
		v.tags = tagSet(def.Tags)
		v.flags = def.Flags
		return h
	}

	v := &memVar{
		info:  Info{Name: def.Name, InstanceID: def.InstanceID},
		value: def.Value,
		tags:  tagSet(def.Tags),
		flags: def.Flags,
	}
	s.vars = append(s.vars, v)

	// Handles are 1-based so InvalidHandle never aliases a real variable.
	h := Handle(len(s.vars))
	s.byName[def.Name] = h
	return h
}

// SetPrintError forces Print to fail for the given handle. Test affordance.
func (s *MemStore) SetPrintError(h Handle, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.lookup(h); ok {
		v.printErr = err
	}
}

// FindByName resolves a variable name to its handle.
func (s *MemStore) FindByName(_ context.Context, name string) (Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return InvalidHandle, errors.ErrStoreClosed
	}

	h, ok := s.byName[name]
	if !ok {
		return InvalidHandle, errors.WrapInvalid(errors.ErrNotFound, "MemStore", "FindByName", name)
	}
	return h, nil
}

// Info returns the metadata for a variable.
func (s *MemStore) Info(_ context.Context, h Handle) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.lookup(h)
	if !ok {
		return Info{}, errors.ErrInvalidHandle
	}
	return v.info, nil
}

// Print writes the variable's current value as text to w.
func (s *MemStore) Print(_ context.Context, h Handle, w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.lookup(h)
	if !ok {
		return errors.ErrInvalidHandle
	}
	if v.printErr != nil {
		return v.printErr
	}

	if _, err := io.WriteString(w, v.value); err != nil {
		return errors.WrapTransient(err, "MemStore", "Print", "write value")
	}
	return nil
}

// ParseFlags converts a comma-separated flag-name list into a bitmask.
// Unknown tokens fail the whole parse.
func (s *MemStore) ParseFlags(spec string) (Flags, error) {
	var flags Flags
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		bit, ok := flagVocabulary[strings.ToLower(token)]
		if !ok {
			return 0, errors.WrapInvalid(errors.ErrUnsupported, "MemStore", "ParseFlags", token)
		}
		flags |= bit
	}
	return flags, nil
}

// Search executes a query and returns matching handles in variable
// definition order, duplicate-free. Active dimensions combine with AND:
// the variable must carry every tag in the tag spec, contain the match
// substring in its name, carry every queried flag bit, and have the
// queried instance id.
func (s *MemStore) Search(_ context.Context, q Query) ([]Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.ErrStoreClosed
	}
	if q.Kind == 0 {
		return nil, errors.WrapInvalid(errors.ErrUnsupported, "MemStore", "Search", "empty query")
	}

	var wantTags []string
	if q.Kind&QueryTags != 0 {
		for _, t := range strings.Split(q.TagSpec, ",") {
			if t = strings.TrimSpace(t); t != "" {
				wantTags = append(wantTags, t)
			}
		}
	}

	var result []Handle
	for i, v := range s.vars {
		if !matches(v, q, wantTags) {
			continue
		}
		result = append(result, Handle(i+1))
	}
	return result, nil
}

func matches(v *memVar, q Query, wantTags []string) bool {
	if q.Kind&QueryTags != 0 {
		for _, t := range wantTags {
			if _, ok := v.tags[t]; !ok {
				return false
			}
		}
	}
	if q.Kind&QueryMatch != 0 && !strings.Contains(v.info.Name, q.Match) {
		return false
	}
	if q.Kind&QueryFlags != 0 && v.flags&q.Flags != q.Flags {
		return false
	}
	if q.Kind&QueryInstanceID != 0 && v.info.InstanceID != q.InstanceID {
		return false
	}
	return true
}

// Create ensures a variable exists and returns its handle.
func (s *MemStore) Create(_ context.Context, name string) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return InvalidHandle, errors.ErrStoreClosed
	}

	if h, ok := s.byName[name]; ok {
		return h, nil
	}

	v := &memVar{info: Info{Name: name}, tags: map[string]struct{}{}}
	s.vars = append(s.vars, v)
	h := Handle(len(s.vars))
	s.byName[name] = h
	return h, nil
}

// SetValue replaces the variable's value with the given text.
func (s *MemStore) SetValue(_ context.Context, h Handle, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.lookup(h)
	if !ok {
		return errors.ErrInvalidHandle
	}
	v.value = value
	return nil
}

// GetValue returns the variable's current value as text.
func (s *MemStore) GetValue(_ context.Context, h Handle) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.lookup(h)
	if !ok {
		return "", errors.ErrInvalidHandle
	}
	return v.value, nil
}

// Close marks the store closed. Further lookups fail with ErrStoreClosed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Names returns all defined variable names sorted, for diagnostics.
func (s *MemStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *MemStore) lookup(h Handle) (*memVar, bool) {
	if h == InvalidHandle || int(h) > len(s.vars) {
		return nil, false
	}
	return s.vars[h-1], true
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}
