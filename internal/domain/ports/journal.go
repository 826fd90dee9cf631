package ports

import (
	"context"
	"time"
)

// Journal event types. Payloads never carry message content.
const (
	EventCleanupRun          = "cleanup.run"
	EventConversationDeleted = "conversation.deleted"
	EventDataCleared         = "data.cleared"
	EventDataExported        = "data.exported"
	EventSettingsImported    = "settings.imported"
)

// JournalPort records an append-only audit trail of destructive and
// export operations
type JournalPort interface {
	// Record appends an event
	Record(ctx context.Context, eventType string, payload map[string]any) error

	// Events returns the newest events first; an empty eventType matches all
	Events(ctx context.Context, eventType string, limit int) ([]Event, error)

	// Health check
	Ping(ctx context.Context) error

	// Migration support
	Migrate(ctx context.Context) error

	Close() error
}

// Event represents a stored journal entry
type Event struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
