// Package formstate holds the mutable field-value record behind a wizard.
// Values are keyed by field name; dotted names address nested maps and
// slices. Every mutation goes through Apply so dependency rules run inside the
// same update and subscribers see one notification per call.
package formstate

import (
	"sort"
	"sync"

	"github.com/goliatone/go-formflow/pkg/field"
	"github.com/goliatone/go-formflow/pkg/predicate"
)

// Dependency clears or sets fields when Field changes. When is optional and
// is evaluated against the values after the triggering change.
type Dependency struct {
	Field string
	When  predicate.Predicate
	Clear []string
	Set   map[string]any
}

// Event describes one completed update.
type Event struct {
	Names  []string
	Values map[string]any
	Reset  bool
}

// Option configures a State.
type Option func(*State)

// WithDependencies registers dependency rules.
func WithDependencies(deps ...Dependency) Option {
	return func(s *State) {
		for _, dep := range deps {
			if dep.Field == "" {
				continue
			}
			s.deps = append(s.deps, dep)
		}
	}
}

// WithExtras sets request-scoped values visible to dependency predicates
// under the `extras.` prefix.
func WithExtras(extras map[string]any) Option {
	return func(s *State) {
		s.extras = copyValues(extras)
	}
}

// State is safe for concurrent use. Subscribers run after the lock is
// released, in subscription order.
type State struct {
	mu      sync.RWMutex
	values  map[string]any
	touched map[string]struct{}
	extras  map[string]any
	deps    []Dependency

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)
	// depErr keeps the last predicate failure from a dependency rule.
	depErr error
}

var _ field.Store = (*State)(nil)

// New creates a State seeded with a deep copy of initial.
func New(initial map[string]any, opts ...Option) *State {
	s := &State{
		values:  copyValues(initial),
		touched: make(map[string]struct{}),
		subs:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Set replaces or inserts one value and returns a snapshot.
func (s *State) Set(name string, value any) map[string]any {
	return s.Apply(field.Change{Name: name, Value: value})
}

// SetMany applies every pair in one update. Keys are applied in sorted order
// so nested and parent paths resolve deterministically.
func (s *State) SetMany(partial map[string]any) map[string]any {
	names := make([]string, 0, len(partial))
	for name := range partial {
		names = append(names, name)
	}
	sort.Strings(names)
	changes := make([]field.Change, 0, len(names))
	for _, name := range names {
		changes = append(changes, field.Change{Name: name, Value: partial[name]})
	}
	return s.Apply(changes...)
}

// Clear stores nil under each name and records them as explicitly cleared.
func (s *State) Clear(names ...string) map[string]any {
	changes := make([]field.Change, 0, len(names))
	for _, name := range names {
		changes = append(changes, field.Change{Name: name})
	}
	return s.Apply(changes...)
}

// Apply writes changes in order, then runs dependency rules until none fire.
// Each rule fires at most once per update. Blank names are ignored.
func (s *State) Apply(changes ...field.Change) map[string]any {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	changed := make([]string, 0, len(changes))
	seen := make(map[string]struct{}, len(changes))
	write := func(name string, value any) {
		segments := splitPath(name)
		if segments == nil {
			return
		}
		setPath(s.values, segments, deepCopy(value))
		s.touched[name] = struct{}{}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			changed = append(changed, name)
		}
	}

	for _, change := range changes {
		write(change.Name, change.Value)
	}

	fired := make([]bool, len(s.deps))
	for progress := true; progress; {
		progress = false
		for i, dep := range s.deps {
			if fired[i] || !triggers(dep.Field, changed) {
				continue
			}
			fired[i] = true
			if dep.When != nil {
				ok, err := dep.When.Holds(predicate.Context{Values: s.values, Extras: s.extras})
				if err != nil {
					s.depErr = err
					continue
				}
				if !ok {
					continue
				}
			}
			for _, name := range dep.Clear {
				write(name, nil)
			}
			for _, name := range sortedKeys(dep.Set) {
				write(name, dep.Set[name])
			}
			progress = true
		}
	}

	snapshot := copyValues(s.values)
	s.mu.Unlock()

	if len(changed) > 0 {
		s.notify(Event{Names: changed, Values: snapshot})
	}
	return snapshot
}

// Reset replaces every value and forgets touched keys.
func (s *State) Reset(values map[string]any) map[string]any {
	s.mu.Lock()
	s.values = copyValues(values)
	s.touched = make(map[string]struct{})
	snapshot := copyValues(s.values)
	s.mu.Unlock()

	s.notify(Event{Values: snapshot, Reset: true})
	return snapshot
}

// Get returns the value at name or fallback when unset.
func (s *State) Get(name string, fallback any) any {
	if v, ok := s.Lookup(name); ok && v != nil {
		return v
	}
	return fallback
}

// Lookup returns a copy of the value at name and whether the key exists.
func (s *State) Lookup(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := getPath(s.values, splitPath(name))
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

// Has reports whether name holds a non-empty value.
func (s *State) Has(name string) bool {
	v, ok := s.Lookup(name)
	return ok && !isEmpty(v)
}

// Values returns a deep copy of the full record.
func (s *State) Values() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyValues(s.values)
}

// Extras returns a copy of the request-scoped extras.
func (s *State) Extras() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyValues(s.extras)
}

// Context builds a predicate context over the current values.
func (s *State) Context() predicate.Context {
	return predicate.Context{Values: s.Values(), Extras: s.Extras()}
}

// Touched reports whether name was written since creation or the last Reset.
func (s *State) Touched(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.touched[name]
	return ok
}

// Cleared reports whether name was written and currently holds nil. This is
// how an explicit clear is told apart from a field nobody filled in.
func (s *State) Cleared(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.touched[name]; !ok {
		return false
	}
	v, _ := getPath(s.values, splitPath(name))
	return v == nil
}

// Changes returns a patch of every touched key. Cleared keys are present with
// nil; untouched keys are absent.
func (s *State) Changes() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.touched))
	for name := range s.touched {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]any, len(names))
	for _, name := range names {
		v, _ := getPath(s.values, splitPath(name))
		setPath(out, splitPath(name), deepCopy(v))
	}
	return out
}

// DependencyErr returns the last error raised by a dependency predicate.
func (s *State) DependencyErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.depErr
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (s *State) Subscribe(fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *State) notify(evt Event) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}

// triggers reports whether a change to any of changed affects field, either
// directly or through a parent/child path.
func triggers(field string, changed []string) bool {
	for _, name := range changed {
		if name == field || hasPathPrefix(name, field) || hasPathPrefix(field, name) {
			return true
		}
	}
	return false
}

func hasPathPrefix(name, prefix string) bool {
	return len(name) > len(prefix) && name[:len(prefix)] == prefix && name[len(prefix)] == '.'
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
