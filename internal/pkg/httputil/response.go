package httputil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/username/deskchat/internal/pkg/configutil"
)

// StandardResponse represents a consistent API response structure
type StandardResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

// ErrorResponse sends a standardized error response
func ErrorResponse(c *gin.Context, status int, err error) {
	c.JSON(status, StandardResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// SuccessResponse sends a standardized success response
func SuccessResponse(c *gin.Context, data any) {
	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    data,
	})
}

// SuccessResponseWithMeta sends a success response with metadata
func SuccessResponseWithMeta(c *gin.Context, data any, meta any) {
	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// CreatedResponse sends a 201 Created response
func CreatedResponse(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, StandardResponse{
		Success: true,
		Data:    data,
	})
}

// BadRequestError sends a 400 Bad Request error
func BadRequestError(c *gin.Context, err error) {
	ErrorResponse(c, http.StatusBadRequest, err)
}

// NotFoundError sends a 404 Not Found error
func NotFoundError(c *gin.Context, err error) {
	ErrorResponse(c, http.StatusNotFound, err)
}

// InternalServerError sends a 500 Internal Server Error
func InternalServerError(c *gin.Context, err error) {
	ErrorResponse(c, http.StatusInternalServerError, err)
}

// ServiceUnavailableError sends a 503 Service Unavailable error
func ServiceUnavailableError(c *gin.Context, err error) {
	ErrorResponse(c, http.StatusServiceUnavailable, err)
}

// FailureResponse maps validation errors to 400 and everything else to 500
func FailureResponse(c *gin.Context, err error) {
	var single configutil.ValidationError
	var multi configutil.ValidationErrors
	if errors.As(err, &multi) || errors.As(err, &single) {
		BadRequestError(c, err)
		return
	}
	InternalServerError(c, err)
}

// DownloadResponse writes body with the given content type. Unless the
// request passes download=false it is marked as an attachment named filename.
func DownloadResponse(c *gin.Context, filename, contentType string, body []byte) {
	if QueryBool(c, "download", true) {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	}
	c.Data(http.StatusOK, contentType, body)
}
