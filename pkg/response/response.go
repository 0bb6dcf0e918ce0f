package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/trading"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeOrderTerminal    = "ORDER_TERMINAL"
	ErrCodeDuplicateOrder   = "DUPLICATE_ORDER"
	ErrCodeNotMonitored     = "NOT_MONITORED"
	ErrCodeGatewayRejected  = "GATEWAY_REJECTED"
	ErrCodeBrokerTimeout    = "BROKER_TIMEOUT"
)

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	var ve *trading.ValidationError
	var ge *trading.GatewayRejectedError
	switch {
	case errors.As(err, &ve):
		fail(c, http.StatusBadRequest, ErrCodeValidationFailed, ve.Error())
	case errors.Is(err, trading.ErrUnknownOrder):
		NotFound(c, "Order not found")
	case errors.Is(err, trading.ErrNotMonitored):
		fail(c, http.StatusNotFound, ErrCodeNotMonitored, err.Error())
	case errors.Is(err, trading.ErrOrderTerminal):
		fail(c, http.StatusConflict, ErrCodeOrderTerminal, err.Error())
	case errors.Is(err, trading.ErrDuplicateOrder):
		fail(c, http.StatusConflict, ErrCodeDuplicateOrder, err.Error())
	case errors.As(err, &ge):
		fail(c, http.StatusBadGateway, ErrCodeGatewayRejected, ge.Error())
	case errors.Is(err, trading.ErrTimeout):
		fail(c, http.StatusGatewayTimeout, ErrCodeBrokerTimeout, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}
