package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/robomem/pkg/server/dto"
	"github.com/soundprediction/robomem/pkg/types"
)

// statusFor maps a memory error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrOutOfOrderObservation):
		return http.StatusConflict, dto.CodeOutOfOrder
	case errors.Is(err, types.ErrInvalidSpatialInput),
		errors.Is(err, &types.ValidationError{}):
		return http.StatusBadRequest, dto.CodeInvalidRequest
	case errors.Is(err, types.ErrNodeNotFound),
		errors.Is(err, types.ErrEntityNotFound):
		return http.StatusNotFound, dto.CodeNotFound
	case errors.Is(err, types.ErrStoreTransactionFailure),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, dto.CodeStoreUnavailable
	default:
		return http.StatusInternalServerError, dto.CodeInternal
	}
}

// writeError aborts the request with an ErrorResponse for err.
func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	c.AbortWithStatusJSON(status, dto.ErrorResponse{
		Error:   code,
		Message: err.Error(),
		Code:    status,
	})
}

// badRequest aborts with 400 for malformed input that never reached the memory.
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   dto.CodeInvalidRequest,
		Message: err.Error(),
		Code:    http.StatusBadRequest,
	})
}
