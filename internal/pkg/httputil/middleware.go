package httputil

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/logutil"
)

// ContextKey represents a context key type to avoid collisions
type ContextKey string

const (
	// TimeoutConfigKey is the context key for timeout configuration
	TimeoutConfigKey ContextKey = "timeout_config"
	// RequestIDKey is the context key for the request ID
	RequestIDKey ContextKey = "request_id"
)

// MiddlewareConfig holds middleware configuration
type MiddlewareConfig struct {
	Timeouts       TimeoutConfig
	EnableCORS     bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// DefaultMiddlewareConfig provides sensible defaults
var DefaultMiddlewareConfig = MiddlewareConfig{
	Timeouts:       DefaultTimeouts,
	EnableCORS:     true,
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	AllowedHeaders: []string{"Content-Type", "Authorization"},
}

// TimeoutMiddleware creates a middleware that injects timeout configuration into context
func TimeoutMiddleware(config TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(string(TimeoutConfigKey), config)
		c.Next()
	}
}

// CORSMiddleware creates a configurable CORS middleware
func CORSMiddleware(config MiddlewareConfig) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(config.AllowedMethods) > 0 {
		methods = strings.Join(config.AllowedMethods, ", ")
	}
	headers := "Content-Type, Authorization"
	if len(config.AllowedHeaders) > 0 {
		headers = strings.Join(config.AllowedHeaders, ", ")
	}

	return func(c *gin.Context) {
		if config.EnableCORS {
			for _, origin := range config.AllowedOrigins {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)

			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
		}
		c.Next()
	}
}

// RequestIDMiddleware propagates or assigns an X-Request-ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(constants.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(string(RequestIDKey), id)
		c.Header(constants.HeaderRequestID, id)
		c.Next()
	}
}

// LoggingMiddleware logs one structured line per request
func LoggingMiddleware(logger *logutil.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logutil.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  c.GetString(string(RequestIDKey)),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("Request failed", fields)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("Request rejected", fields)
		default:
			logger.Debug("Request handled", fields)
		}
	}
}

// requestTimeouts returns the timeouts installed by the timeout middleware
func requestTimeouts(c *gin.Context) TimeoutConfig {
	if config, ok := c.Value(string(TimeoutConfigKey)).(TimeoutConfig); ok {
		return config
	}
	return DefaultTimeouts
}

// WithOperationContext derives a timeout context from the request context
func WithOperationContext(c *gin.Context, operationType string) (context.Context, context.CancelFunc) {
	return WithCustomTimeout(c.Request.Context(), operationType, requestTimeouts(c))
}
