package services

import (
	"context"
	"sync"
	"time"

	"github.com/username/deskchat/internal/domain/metrics"
	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/logutil"
	"github.com/username/deskchat/internal/store"
)

// StatePublisher pushes a store's state to UI windows
type StatePublisher interface {
	PublishStoreChange(storeName string, state any)
}

// StoreChangedEvent is published on the bus for each store change. It
// carries no state; subscribers fetch what they need.
type StoreChangedEvent struct {
	Store     string    `json:"store"`
	Timestamp time.Time `json:"timestamp"`
}

// EventBridge forwards every registered store's changes to the UI hub, the
// message bus and the metrics collector
type EventBridge struct {
	registry  *store.Registry
	publisher StatePublisher
	messaging ports.MessagingPort
	metrics   *metrics.Collector
	logger    *logutil.FieldLogger

	queue       chan StoreChangedEvent
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewEventBridge creates a new event bridge. publisher and messaging are
// optional.
func NewEventBridge(registry *store.Registry, publisher StatePublisher, messaging ports.MessagingPort, collector *metrics.Collector, logger *logutil.Logger) *EventBridge {
	if logger == nil {
		logger = logutil.Global()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &EventBridge{
		registry:  registry,
		publisher: publisher,
		messaging: messaging,
		metrics:   collector,
		logger:    logger.WithFields(logutil.Fields{"service": "event_bridge"}),
		queue:     make(chan StoreChangedEvent, constants.WebSocketSendBuffer),
	}
}

// Start subscribes to all stores. Bus publishing happens on a worker so a
// slow broker never stalls a store write; the worker exits with ctx.
func (b *EventBridge) Start(ctx context.Context) {
	b.unsubscribe = b.registry.SubscribeAll(b.handleChange)

	if b.messaging == nil {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-b.queue:
				b.publish(ctx, event)
			}
		}
	}()
}

// Stop unsubscribes from the stores and waits for the publish worker
func (b *EventBridge) Stop() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	b.wg.Wait()
}

func (b *EventBridge) handleChange(name string, state any) {
	b.metrics.RecordStoreChange(name)

	if b.publisher != nil {
		b.publisher.PublishStoreChange(name, RedactState(state))
	}

	if b.messaging != nil {
		select {
		case b.queue <- StoreChangedEvent{Store: name, Timestamp: time.Now()}:
		default:
			b.logger.Warn("Bus queue full, store change not published", logutil.Fields{"store": name})
		}
	}
}

func (b *EventBridge) publish(ctx context.Context, event StoreChangedEvent) {
	pubCtx, cancel := context.WithTimeout(ctx, constants.MessagingTimeout)
	defer cancel()

	subject := ports.StoreSubject(event.Store)
	if err := b.messaging.PublishJSON(pubCtx, subject, event); err != nil {
		b.logger.Warn("Failed to publish store change", logutil.Fields{"subject": subject, "error": err})
	}
}

// RedactState strips secrets from a store snapshot before it leaves the
// process boundary
func RedactState(state any) any {
	if cfg, ok := state.(store.ConfigState); ok {
		cfg.APIKey = ""
		return cfg
	}
	return state
}
