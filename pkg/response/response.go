package response

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"escrow-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDKey matches middleware.CtxRequestID.
const requestIDKey = "request_id"

// retryAfterSeconds is advertised on 503 contention and 429 responses.
const retryAfterSeconds = 1

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data      any    `json:"data"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data any) {
	write(c, http.StatusOK, data)
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data any) {
	write(c, http.StatusCreated, data)
}

func write(c *gin.Context, status int, data any) {
	c.JSON(status, SuccessResponse{
		Data:      data,
		RequestID: requestID(c),
		Timestamp: now(),
	})
}

// Error sends an error response. *apperror.AppError values keep their code
// and status; anything else becomes a 500 without leaking the message.
// The original error is attached to the gin context for the request logger.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = errors.New("response.Error called with nil error")
	}
	_ = c.Error(err)

	appErr := apperror.InternalError(err)
	var target *apperror.AppError
	if errors.As(err, &target) {
		appErr = target
	}

	switch appErr.Code {
	case apperror.CodeContention, apperror.CodeRateLimitExceeded:
		if c.Writer.Header().Get("Retry-After") == "" {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		}
	}

	c.JSON(appErr.HTTPStatus, ErrorResponse{
		ErrorCode: appErr.Code,
		Message:   appErr.Message,
		RequestID: requestID(c),
		Timestamp: now(),
	})
}

// requestID returns the request's id, assigning one if no middleware did.
func requestID(c *gin.Context) string {
	if s := c.GetString(requestIDKey); s != "" {
		return s
	}
	id := uuid.NewString()
	c.Set(requestIDKey, id)
	return id
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
