package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/deskchat/internal/pkg/configutil"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/logutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestWithTimeout(t *testing.T) {
	duration := 5 * time.Second
	ctx, cancel := WithTimeout(context.Background(), duration)
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok, "Context should have a deadline")
	assert.True(t, time.Until(deadline) <= duration, "Deadline should be within the specified duration")
}

func TestWithTimeout_InheritsParentCancellation(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := WithTimeout(parent, time.Minute)
	defer cancel()

	cancelParent()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestWithCustomTimeout(t *testing.T) {
	config := TimeoutConfig{
		Default: 15 * time.Second,
		Short:   3 * time.Second,
		Long:    45 * time.Second,
	}

	tests := []struct {
		name          string
		operationType string
		expectedMax   time.Duration
	}{
		{"store_operation", OperationStore, config.Default},
		{"messaging_operation", OperationMessaging, config.Short},
		{"generation_operation", OperationGeneration, config.Long},
		{"unknown_operation", "unknown", config.Default},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := WithCustomTimeout(context.Background(), tt.operationType, config)
			defer cancel()

			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.True(t, time.Until(deadline) <= tt.expectedMax)
			assert.Equal(t, tt.expectedMax, config.For(tt.operationType))
		})
	}
}

func newQueryContext(query string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/"+query, nil)
	return c, w
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected int
	}{
		{"missing", "", 50},
		{"valid", "?limit=10", 10},
		{"below_range", "?limit=-3", 1},
		{"above_range", "?limit=5000", constants.MaxQueryLimit},
		{"not_a_number", "?limit=abc", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newQueryContext(tt.query)
			assert.Equal(t, tt.expected, QueryInt(c, "limit", 50, 1, constants.MaxQueryLimit))
		})
	}
}

func TestQueryBool(t *testing.T) {
	c, _ := newQueryContext("?download=false&broken=maybe")

	assert.False(t, QueryBool(c, "download", true))
	assert.True(t, QueryBool(c, "broken", true))
	assert.False(t, QueryBool(c, "absent", false))
}

func TestQueryOneOf(t *testing.T) {
	allowed := []string{"json", "txt", "md"}

	c, _ := newQueryContext("?format=md")
	value, err := QueryOneOf(c, "format", "json", allowed)
	require.NoError(t, err)
	assert.Equal(t, "md", value)

	c, _ = newQueryContext("")
	value, err = QueryOneOf(c, "format", "json", allowed)
	require.NoError(t, err)
	assert.Equal(t, "json", value)

	c, _ = newQueryContext("?format=pdf")
	_, err = QueryOneOf(c, "format", "json", allowed)
	var verr configutil.ValidationErrors
	assert.ErrorAs(t, err, &verr)
}

func TestPathParam(t *testing.T) {
	tests := []struct {
		name        string
		paramValue  string
		expectError bool
	}{
		{"valid_param", "conv-123", false},
		{"missing_param", "", true},
		{"blank_param", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newQueryContext("")
			c.Params = []gin.Param{{Key: "id", Value: tt.paramValue}}

			result, err := PathParam(c, "id")

			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "required parameter 'id' is missing")
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.paramValue, result)
		})
	}
}

func TestDownloadResponse(t *testing.T) {
	c, w := newQueryContext("")
	DownloadResponse(c, "export.json", "application/json", []byte(`{}`))
	assert.Equal(t, `attachment; filename="export.json"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, `{}`, w.Body.String())

	c, w = newQueryContext("?download=false")
	DownloadResponse(c, "export.json", "application/json", []byte(`{}`))
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}

func TestFailureResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"single_validation", configutil.ValidationError{Field: "theme", Message: "must be one of: [light dark]"}, http.StatusBadRequest},
		{"wrapped_validation", fmt.Errorf("set theme: %w", configutil.NewValidator().RequiredString("name", "").Result()), http.StatusBadRequest},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newQueryContext("")
			FailureResponse(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body StandardResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logutil.NewLogger(logutil.LogConfig{Level: logutil.DEBUG, Format: "json", ServiceName: "test", Output: &buf})

	router := gin.New()
	router.Use(RequestIDMiddleware(), LoggingMiddleware(logger))
	router.GET("/conversations/:id", func(c *gin.Context) {
		NotFoundError(c, errors.New("conversation not found"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/conversations/abc", nil)
	req.Header.Set(constants.HeaderRequestID, "req-1")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(constants.HeaderRequestID))

	var entry struct {
		Level   string         `json:"level"`
		Message string         `json:"message"`
		Fields  map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "Request rejected", entry.Message)
	assert.Equal(t, "/conversations/:id", entry.Fields["path"])
	assert.Equal(t, "req-1", entry.Fields["request_id"])
	assert.EqualValues(t, http.StatusNotFound, entry.Fields["status"])
}
