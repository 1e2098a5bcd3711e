package chi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/joelhooks/pdf-brain/internal/domain"
	logpkg "github.com/joelhooks/pdf-brain/internal/logger"
)

// errorMapping pairs a domain sentinel with its HTTP answer. Clients see the
// sentinel's message, or the full error when echo is set.
type errorMapping struct {
	sentinel error
	status   int
	code     ErrorCode
	echo     bool
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{domain.ErrInvalidInput, http.StatusBadRequest, ErrorCodeValidationFailed, true},
	{domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound, false},
	// before the provider error, which usually wraps it
	{domain.ErrRateLimited, http.StatusTooManyRequests, ErrorCodeRateLimited, false},
	{domain.ErrEmbeddingProviderError, http.StatusBadGateway, ErrorCodeEmbeddingProviderError, false},
	{domain.ErrSummarizationFailed, http.StatusBadGateway, ErrorCodeSummarizationFailed, false},
	{domain.ErrCollaboratorUnavailable, http.StatusServiceUnavailable, ErrorCodeCollaboratorUnavailable, false},
	{domain.ErrKeywordSearchNotSupported, http.StatusNotImplemented, ErrorCodeKeywordSearchNotSupported, false},
}

// writeDomainError answers with the first matching mapping, or a bare 500.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context(), s.logger)
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			log.Warn("Request failed", zap.Int("status", m.status), zap.Error(err))
			msg := m.sentinel.Error()
			if m.echo {
				msg = err.Error()
			}
			writeError(w, m.status, m.code, msg)
			return
		}
	}
	log.Error("Internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
