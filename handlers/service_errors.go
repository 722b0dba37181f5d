package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/services"
	"github.com/upb/maternal-assistant/utils"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	var writeErr error

	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, domainMessage(err))

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, domainMessage(err), details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, domainMessage(err))

	case services.IsForbiddenError(err):
		writeErr = utils.WriteError(w, http.StatusForbidden, domainMessage(err), nil)

	case services.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, domainMessage(err), details)

	case services.IsCancelledError(err):
		writeErr = utils.WriteError(w, http.StatusRequestTimeout, domainMessage(err), nil)

	case services.IsExternalError(err):
		// provider failure reasons stay in the logs
		logger.Error("external service error", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusBadGateway, domainMessage(err), nil)

	case services.IsInternalError(err):
		logger.Error("internal error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// domainMessage returns the user facing message without the wrapped cause
func domainMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
