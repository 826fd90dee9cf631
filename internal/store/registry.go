package store

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Store is the lifecycle surface the registry drives
type Store interface {
	Name() string
	Initialize(ctx context.Context) error
	IsInitialized() bool
	Destroy()
	State() any
	SubscribeAny(fn func(state any)) func()
}

// Registry is the process-wide directory of named stores. One is built at
// startup and passed to whoever needs store access.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]Store
	order  []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]Store)}
}

// Register adds s under name and returns it unchanged. Registering a name
// twice replaces the earlier store.
func Register[T Store](r *Registry, name string, s T) T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[name]; !exists {
		r.order = append(r.order, name)
	}
	r.stores[name] = s
	return s
}

// GetStore looks up a store by name
func (r *Registry) GetStore(name string) (Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[name]
	return s, ok
}

// Names returns registered store names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) snapshot() []Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Store, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.stores[name])
	}
	return out
}

// InitializeAll initializes every store concurrently and returns the first
// failure. Loads already running are left to finish.
func (r *Registry) InitializeAll(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range r.snapshot() {
		g.Go(func() error {
			return s.Initialize(ctx)
		})
	}
	return g.Wait()
}

// DestroyAll destroys every store and empties the directory
func (r *Registry) DestroyAll() {
	for _, s := range r.snapshot() {
		s.Destroy()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = make(map[string]Store)
	r.order = nil
}

// SubscribeAll registers fn on every currently registered store
func (r *Registry) SubscribeAll(fn func(name string, state any)) func() {
	stores := r.snapshot()
	unsubs := make([]func(), 0, len(stores))
	for _, s := range stores {
		name := s.Name()
		unsubs = append(unsubs, s.SubscribeAny(func(state any) { fn(name, state) }))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// AppState returns a snapshot of every store keyed by name
func (r *Registry) AppState() map[string]any {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	r.mu.RUnlock()
	sort.Strings(names)

	out := make(map[string]any, len(names))
	for _, name := range names {
		if s, ok := r.GetStore(name); ok {
			out[name] = s.State()
		}
	}
	return out
}
