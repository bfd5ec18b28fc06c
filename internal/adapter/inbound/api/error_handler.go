package api

import (
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/application/common/slogger"
	"edurecovery/internal/application/service"
	"edurecovery/internal/domain/entity"
	"errors"
	"net/http"
)

// ErrNotFound is returned by handlers for unknown path resources.
var ErrNotFound = errors.New("resource not found")

const codeNotFound = "NOT_FOUND"

// ErrorHandler defines methods for handling HTTP errors.
type ErrorHandler interface {
	HandleValidationError(w http.ResponseWriter, r *http.Request, err error)
	HandleServiceError(w http.ResponseWriter, r *http.Request, err error)
}

// errorMapping describes the response for one class of error.
type errorMapping struct {
	status   int
	code     string
	fallback string
	detailed bool
}

// DefaultErrorHandler writes localized JSON error bodies.
type DefaultErrorHandler struct {
	mappings map[error]errorMapping
}

// NewDefaultErrorHandler creates a DefaultErrorHandler.
func NewDefaultErrorHandler() *DefaultErrorHandler {
	return &DefaultErrorHandler{
		mappings: map[error]errorMapping{
			service.ErrBreakerNotFound: {
				status:   http.StatusNotFound,
				code:     codeNotFound,
				fallback: "Circuit breaker not found",
			},
			ErrNotFound: {
				status:   http.StatusNotFound,
				code:     codeNotFound,
				fallback: "Resource not found",
			},
			service.ErrEmptyClientReport: {
				status:   http.StatusBadRequest,
				code:     entity.CodeInvalidInput,
				fallback: "The data you entered is not valid.",
				detailed: true,
			},
			service.ErrInvalidClientReport: {
				status:   http.StatusBadRequest,
				code:     entity.CodeInvalidInput,
				fallback: "The data you entered is not valid.",
				detailed: true,
			},
		},
	}
}

// HandleValidationError responds 400 with the validation detail.
func (h *DefaultErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	h.logError(r, "Validation error occurred", "validation", err)
	h.write(w, r, http.StatusBadRequest, ErrorResponse{
		Error:   entity.CodeInvalidInput,
		Message: err.Error(),
	})
}

// HandleServiceError maps known errors to their status and hides the rest behind 500.
func (h *DefaultErrorHandler) HandleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr ValidationError
	if errors.As(err, &validationErr) {
		h.HandleValidationError(w, r, err)
		return
	}

	for target, mapping := range h.mappings {
		if !errors.Is(err, target) {
			continue
		}
		h.logError(r, mapping.fallback, mapping.code, err)
		message := translate(r, mapping.code, mapping.fallback)
		if mapping.detailed {
			message = err.Error()
		}
		h.write(w, r, mapping.status, ErrorResponse{Error: mapping.code, Message: message})
		return
	}

	h.logError(r, "Internal server error", "internal", err)
	h.write(w, r, http.StatusInternalServerError, ErrorResponse{
		Error:   entity.CodeUnknown,
		Message: translate(r, entity.CodeUnknown, "An unexpected error occurred. Please try again."),
	})
}

func (h *DefaultErrorHandler) logError(r *http.Request, message, errorType string, err error) {
	slogger.Error(r.Context(), message, slogger.Fields{
		"error": err.Error(),
		"path":  r.URL.Path,
		"type":  errorType,
	})
}

func (h *DefaultErrorHandler) write(w http.ResponseWriter, r *http.Request, status int, response ErrorResponse) {
	response.RequestID = logging.RequestIDFromContext(r.Context())
	if err := WriteJSON(w, status, response); err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}
}

func translate(r *http.Request, code, fallback string) string {
	translator := TranslatorFromContext(r.Context())
	if translator == nil {
		return fallback
	}
	return translator.Translate(entity.MessageKey(code), fallback)
}
