package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/pkg/constants"
)

// StreamName is the JetStream stream capturing every deskchat subject
const StreamName = "DESKCHAT_EVENTS"

// Adapter implements the MessagingPort interface using NATS
type Adapter struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

var _ ports.MessagingPort = (*Adapter)(nil)

// NewAdapter connects to NATS. With jsEnabled, events are also retained in a
// JetStream stream for retentionDays.
func NewAdapter(url string, jsEnabled bool, retentionDays int) (*Adapter, error) {
	conn, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Name(constants.ServiceName+"-events"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	adapter := &Adapter{conn: conn}

	if jsEnabled {
		js, err := conn.JetStream(nats.PublishAsyncMaxPending(256))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to get JetStream context: %w", err)
		}
		adapter.js = js

		if err := adapter.setupStream(retentionDays); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to setup JetStream stream: %w", err)
		}
	}

	return adapter, nil
}

// streamConfig describes the event stream for the given retention
func streamConfig(retentionDays int) *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{constants.ServiceName + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(retentionDays) * 24 * time.Hour,
		MaxMsgs:   100000,
		Storage:   nats.FileStorage,
	}
}

// setupStream creates the event stream or updates its limits
func (a *Adapter) setupStream(retentionDays int) error {
	cfg := streamConfig(retentionDays)

	info, err := a.js.StreamInfo(cfg.Name)
	if errors.Is(err, nats.ErrStreamNotFound) {
		if _, err := a.js.AddStream(cfg); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get stream info for %s: %w", cfg.Name, err)
	}

	if needsUpdate(info.Config, *cfg) {
		if _, err := a.js.UpdateStream(cfg); err != nil {
			return fmt.Errorf("failed to update stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// needsUpdate checks if a stream configuration needs updating
func needsUpdate(existing, desired nats.StreamConfig) bool {
	return existing.MaxAge != desired.MaxAge || existing.MaxMsgs != desired.MaxMsgs
}

// Publish sends a message to the specified subject
func (a *Adapter) Publish(ctx context.Context, subject string, data []byte) error {
	if a.js == nil {
		if err := a.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
		}
		return nil
	}

	ack, err := a.js.PublishAsync(subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream subject %s: %w", subject, err)
	}

	select {
	case <-ack.Ok():
		return nil
	case err := <-ack.Err():
		return fmt.Errorf("publish to %s not acknowledged: %w", subject, err)
	case <-ctx.Done():
		return fmt.Errorf("publish timeout for subject %s: %w", subject, ctx.Err())
	case <-time.After(constants.MessagingTimeout):
		return fmt.Errorf("publish timeout for subject %s", subject)
	}
}

// PublishJSON publishes a JSON-serializable object to the subject
func (a *Adapter) PublishJSON(ctx context.Context, subject string, obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal object for subject %s: %w", subject, err)
	}
	return a.Publish(ctx, subject, data)
}

// Close drains pending publishes and closes the connection
func (a *Adapter) Close() error {
	if a.conn == nil {
		return nil
	}
	if err := a.conn.Drain(); err != nil {
		a.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

// Ping checks messaging connectivity
func (a *Adapter) Ping() error {
	if a.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	if !a.conn.IsConnected() {
		return fmt.Errorf("NATS connection is not active")
	}

	rtt, err := a.conn.RTT()
	if err != nil {
		return fmt.Errorf("failed to get RTT: %w", err)
	}
	if rtt > constants.MessagingTimeout {
		return fmt.Errorf("high latency detected: %v", rtt)
	}
	return nil
}
