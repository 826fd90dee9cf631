package httputil

import (
	"context"
	"time"

	"github.com/username/deskchat/internal/pkg/constants"
)

// Operation types used to pick a timeout
const (
	OperationStore      = "store"
	OperationMessaging  = "messaging"
	OperationGeneration = "generation"
)

// TimeoutConfig holds timeout configurations for different operations
type TimeoutConfig struct {
	Default time.Duration
	Short   time.Duration
	Long    time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	Default: constants.DefaultHTTPTimeout,
	Short:   constants.MessagingTimeout,
	Long:    constants.GenerationTimeout,
}

// For returns the timeout for an operation type
func (tc TimeoutConfig) For(operationType string) time.Duration {
	switch operationType {
	case OperationMessaging:
		return tc.Short
	case OperationGeneration:
		return tc.Long
	default:
		return tc.Default
	}
}

// WithTimeout derives a context from parent with the specified timeout
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, duration)
}

// WithCustomTimeout derives a context with the timeout for operationType
func WithCustomTimeout(parent context.Context, operationType string, config TimeoutConfig) (context.Context, context.CancelFunc) {
	return WithTimeout(parent, config.For(operationType))
}
