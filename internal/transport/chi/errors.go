package chi

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retriever/internal/domain"
	logpkg "github.com/kailas-cloud/retriever/internal/logger"
)

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.
const (
	ErrorCodeBadRequest     ErrorCode = "bad_request"
	ErrorCodeUnauthorized   ErrorCode = "unauthorized"
	ErrorCodeInvalidQuery   ErrorCode = "invalid_query"
	ErrorCodeIndexNotLoaded ErrorCode = "index_not_loaded"
	ErrorCodeCorruptIndex   ErrorCode = "corrupt_index"
	ErrorCodeDimMismatch    ErrorCode = "vector_dim_mismatch"
	ErrorCodeProviderError  ErrorCode = "embedding_provider_error"
	ErrorCodeProviderDown   ErrorCode = "embedding_provider_unavailable"
	ErrorCodeRebuildFailed  ErrorCode = "rebuild_failed"
	ErrorCodeTimeout        ErrorCode = "timeout"
	ErrorCodeInternal       ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, ErrorCodeInvalidQuery),
	sentinelHandler(domain.ErrIndexNotLoaded, http.StatusServiceUnavailable, ErrorCodeIndexNotLoaded),
	sentinelHandler(domain.ErrCorruptIndex, http.StatusServiceUnavailable, ErrorCodeCorruptIndex),
	sentinelHandler(domain.ErrVectorDimMismatch, http.StatusConflict, ErrorCodeDimMismatch),
	sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, ErrorCodeProviderDown),
	sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, ErrorCodeProviderError),
	sentinelHandler(domain.ErrRebuildFailed, http.StatusUnprocessableEntity, ErrorCodeRebuildFailed),
	sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, ErrorCodeTimeout),
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrIndexNotLoaded,
		domain.ErrCorruptIndex,
		domain.ErrVectorDimMismatch,
		domain.ErrProviderUnavailable,
		domain.ErrEmbeddingProviderError,
		domain.ErrRebuildFailed,
		context.DeadlineExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := safeDomainMessage(err)
		if errors.Is(err, domain.ErrInvalidQuery) {
			// Validation messages name the offending parameter.
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	for _, h := range errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternal, "internal error")
}
