package httputil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/username/deskchat/internal/pkg/configutil"
)

// QueryInt reads an integer query parameter clamped to [lo, hi]. Missing or
// malformed values yield def.
func QueryInt(c *gin.Context, name string, def, lo, hi int) int {
	value := def
	if raw := c.Query(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			value = parsed
		}
	}
	return min(max(value, lo), hi)
}

// QueryBool reads a boolean query parameter, falling back to def when the
// value is missing or not a boolean
func QueryBool(c *gin.Context, name string, def bool) bool {
	parsed, err := strconv.ParseBool(c.Query(name))
	if err != nil {
		return def
	}
	return parsed
}

// QueryOneOf returns the query parameter when it is one of allowed, def when
// it is absent, and a validation error otherwise
func QueryOneOf(c *gin.Context, name, def string, allowed []string) (string, error) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		return def, nil
	}
	if err := configutil.NewValidator().OneOf(name, value, allowed).Result(); err != nil {
		return "", err
	}
	return value, nil
}

// PathParam returns a non-blank path parameter
func PathParam(c *gin.Context, name string) (string, error) {
	value := strings.TrimSpace(c.Param(name))
	if value == "" {
		return "", fmt.Errorf("required parameter '%s' is missing", name)
	}
	return value, nil
}
