package ports

import (
	"context"
	"fmt"
)

// MessagingPort defines the interface for event bus operations
type MessagingPort interface {
	// Publish sends a message to the specified subject
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishJSON publishes a JSON-serializable object to the subject
	PublishJSON(ctx context.Context, subject string, obj any) error

	// Close closes the messaging connection
	Close() error

	// Health check
	Ping() error
}

// Standard subjects used across the system
const (
	SubjectStoreChanged     = "deskchat.store.%s.changed" // store name
	SubjectCleanupCompleted = "deskchat.cleanup.completed"
	SubjectSystemError      = "deskchat.system.error"
)

// StoreSubject returns the change subject for a store
func StoreSubject(store string) string {
	return fmt.Sprintf(SubjectStoreChanged, store)
}
