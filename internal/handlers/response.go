package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"naszgpt-backend/internal/logger"
	"naszgpt-backend/internal/models"
	"naszgpt-backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *services.ValidationError
		notFound    *services.NotFoundError
		rateLimit   *services.RateLimitError
		unsupported *services.UnsupportedFormatError
		corrupt     *services.CorruptFileError
		empty       *services.EmptyDocumentError
		completion  *services.CompletionError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validation.Fields, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.As(err, &rateLimit):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", rateLimit.Message, r))
	case errors.As(err, &unsupported):
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", unsupported.Error(), r))
	case errors.As(err, &corrupt):
		logger.FromContext(r.Context()).Warn("attachment could not be parsed", "extension", corrupt.Extension, "error", corrupt.Err)
		writeJSON(w, http.StatusUnprocessableEntity, errorResp("CORRUPT_FILE", corrupt.Error(), r))
	case errors.As(err, &empty):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp("EMPTY_DOCUMENT", empty.Error(), r))
	case errors.As(err, &completion):
		logger.FromContext(r.Context()).Error("completion failed", "provider", completion.Provider, "model", completion.Model, "error", completion.Err)
		writeJSON(w, http.StatusBadGateway, errorResp("AI_ERROR", "The model did not return a response. Please try again.", r))
	default:
		logger.FromContext(r.Context()).Error("unhandled service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
