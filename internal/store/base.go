// Package store holds the observable, independently persisted slices of
// application state: configuration, chat history and UI preferences.
package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/username/deskchat/internal/pkg/logutil"
)

// Key identifies one field of a store's state record
type Key string

// FieldChange describes one field that differs between two states
type FieldChange struct {
	Key Key
	Old any
	New any
}

// ChangeEvent is delivered to state listeners once per effective update
type ChangeEvent[S any] struct {
	New  S
	Old  S
	Keys []Key
}

// Snapshot is implemented by every state record held in a Base.
// Field must return copies of reference-typed values (slices, maps).
type Snapshot[S any] interface {
	Clone() S
	Keys() []Key
	Field(key Key) (any, bool)
}

// Listener receives whole-state change events
type Listener[S any] func(ChangeEvent[S])

// KeyListener receives changes to a single field
type KeyListener func(FieldChange)

// LoadFunc populates a store from durable storage
type LoadFunc func(ctx context.Context) error

type subscription[F any] struct {
	id uint64
	fn F
}

// Base is the generic observable container embedded by concrete stores
type Base[S Snapshot[S]] struct {
	name     string
	defaults func() S
	load     LoadFunc
	logger   *logutil.FieldLogger

	mu    sync.RWMutex
	state S

	initMu      sync.Mutex
	initialized bool

	listenersMu  sync.Mutex
	nextID       uint64
	listeners    []subscription[Listener[S]]
	keyListeners map[Key][]subscription[KeyListener]
}

// NewBase creates a container seeded with defaults(). load runs once on Initialize.
func NewBase[S Snapshot[S]](name string, defaults func() S, load LoadFunc, logger *logutil.Logger) *Base[S] {
	if logger == nil {
		logger = logutil.Global()
	}
	return &Base[S]{
		name:         name,
		defaults:     defaults,
		load:         load,
		logger:       logger.WithFields(logutil.Fields{"store": name}),
		state:        defaults(),
		keyListeners: make(map[Key][]subscription[KeyListener]),
	}
}

// Name returns the registry name of the store
func (b *Base[S]) Name() string {
	return b.name
}

// GetState returns a deep copy of the current state
func (b *Base[S]) GetState() S {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Clone()
}

// State returns the current state boxed as any, for registry snapshots
func (b *Base[S]) State() any {
	return b.GetState()
}

// Get reads a single field
func (b *Base[S]) Get(key Key) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Field(key)
}

// SetState applies mutate to a copy of the state and swaps it in when at least
// one field changed. It returns the changed keys; nil means nothing fired.
func (b *Base[S]) SetState(mutate func(*S)) []Key {
	b.mu.Lock()
	old := b.state
	next := old.Clone()
	mutate(&next)
	changes := diff(old, next)
	if len(changes) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.state = next
	published := next.Clone()
	b.mu.Unlock()

	keys := make([]Key, len(changes))
	for i, c := range changes {
		keys[i] = c.Key
	}
	b.notify(ChangeEvent[S]{New: published, Old: old, Keys: keys}, changes)
	return keys
}

func diff[S Snapshot[S]](old, next S) []FieldChange {
	var changes []FieldChange
	for _, key := range next.Keys() {
		before, _ := old.Field(key)
		after, _ := next.Field(key)
		if !reflect.DeepEqual(before, after) {
			changes = append(changes, FieldChange{Key: key, Old: before, New: after})
		}
	}
	return changes
}

func (b *Base[S]) notify(event ChangeEvent[S], changes []FieldChange) {
	b.listenersMu.Lock()
	listeners := make([]Listener[S], len(b.listeners))
	for i, s := range b.listeners {
		listeners[i] = s.fn
	}
	perKey := make([][]KeyListener, len(changes))
	for i, c := range changes {
		for _, s := range b.keyListeners[c.Key] {
			perKey[i] = append(perKey[i], s.fn)
		}
	}
	b.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
	for i, c := range changes {
		for _, fn := range perKey[i] {
			fn(c)
		}
	}
}

// Subscribe registers a listener for every effective state change
func (b *Base[S]) Subscribe(listener Listener[S]) func() {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, subscription[Listener[S]]{id: id, fn: listener})

	return func() {
		b.listenersMu.Lock()
		defer b.listenersMu.Unlock()
		b.listeners = removeSubscription(b.listeners, id)
	}
}

// SubscribeAny adapts Subscribe for callers that do not know S
func (b *Base[S]) SubscribeAny(fn func(state any)) func() {
	return b.Subscribe(func(e ChangeEvent[S]) { fn(e.New) })
}

// SubscribeToKey registers a listener for changes to one field
func (b *Base[S]) SubscribeToKey(key Key, listener KeyListener) func() {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()

	b.nextID++
	id := b.nextID
	b.keyListeners[key] = append(b.keyListeners[key], subscription[KeyListener]{id: id, fn: listener})

	return func() {
		b.listenersMu.Lock()
		defer b.listenersMu.Unlock()
		remaining := removeSubscription(b.keyListeners[key], id)
		if len(remaining) == 0 {
			delete(b.keyListeners, key)
			return
		}
		b.keyListeners[key] = remaining
	}
}

func removeSubscription[F any](subs []subscription[F], id uint64) []subscription[F] {
	for i, s := range subs {
		if s.id == id {
			out := make([]subscription[F], 0, len(subs)-1)
			out = append(out, subs[:i]...)
			return append(out, subs[i+1:]...)
		}
	}
	return subs
}

// Initialize runs the load function exactly once. On failure the state is
// restored to what it was before loading and a later call retries.
func (b *Base[S]) Initialize(ctx context.Context) error {
	b.initMu.Lock()
	defer b.initMu.Unlock()

	if b.initialized {
		return nil
	}

	before := b.GetState()
	if b.load != nil {
		if err := b.load(ctx); err != nil {
			b.SetState(func(s *S) { *s = before })
			b.logger.Error("Failed to initialize store", logutil.Fields{"error": err})
			return fmt.Errorf("failed to initialize %s store: %w", b.name, err)
		}
	}

	b.initialized = true
	b.logger.Debug("Store initialized")
	return nil
}

// IsInitialized reports whether Initialize has completed successfully
func (b *Base[S]) IsInitialized() bool {
	b.initMu.Lock()
	defer b.initMu.Unlock()
	return b.initialized
}

// Reset replaces the state with defaults, notifying listeners
func (b *Base[S]) Reset() {
	b.SetState(func(s *S) { *s = b.defaults() })
}

// Destroy removes every listener. It does not persist.
func (b *Base[S]) Destroy() {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = nil
	b.keyListeners = make(map[Key][]subscription[KeyListener])
}

// Logger returns the store-scoped logger
func (b *Base[S]) Logger() *logutil.FieldLogger {
	return b.logger
}
