package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/unisearch/internal/domain"
)

// Error codes returned in ErrorResponse.Code besides the domain validation codes.
const (
	CodeBadRequest             = "bad_request"
	CodeUnauthorized           = "unauthorized"
	CodeNotFound               = "not_found"
	CodeRebuildInProgress      = "rebuild_in_progress"
	CodeIndexNotReady          = "index_not_ready"
	CodeEmbeddingProviderError = "embedding_provider_error"
	CodeAdapterFailure         = "adapter_failure"
	CodePersistenceFailure     = "persistence_failure"
	CodeUnavailable            = "unavailable"
	CodeInternalError          = "internal_error"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	sentinels := []error{
		domain.ErrTenantRequired,
		domain.ErrUnknownModule,
		domain.ErrNotFound,
		domain.ErrRebuildInProgress,
		domain.ErrIndexNotReady,
		domain.ErrEmbeddingProviderError,
		domain.ErrAdapterFailure,
		domain.ErrPersistenceFailure,
		domain.ErrInvalidQuery,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// validationHandler answers a ValidationError with its own code.
func validationHandler(w http.ResponseWriter, err error, msg string) bool {
	code := domain.ValidationCode(err)
	if code == "" {
		return false
	}
	writeError(w, http.StatusBadRequest, code, msg)
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}
