package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/joelhooks/pdf-brain/internal/domain"
)

// parseAPIError turns a client error into one wrapping kind, plus
// domain.ErrRateLimited for HTTP 429. Cancellation passes through unwrapped
// so callers see the context error rather than a provider failure.
func parseAPIError(op string, err error, kind error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s request: %w", op, err)
	}

	status, detail, ok := describe(err)
	if !ok {
		return fmt.Errorf("%s request failed: %w: %w", op, kind, err)
	}
	if status == http.StatusTooManyRequests {
		kind = errors.Join(kind, domain.ErrRateLimited)
	}
	return fmt.Errorf("%s API error %d: %s: %w", op, status, detail, kind)
}

// describe pulls the status and a readable message out of the two error
// shapes go-openai returns. Non-OpenAI gateways often answer
// {"detail": "..."} or plain text, which surface through RequestError.
func describe(err error) (status int, detail string, ok bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		var body struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(reqErr.Body, &body) == nil && body.Detail != "" {
			return reqErr.HTTPStatusCode, body.Detail, true
		}
		return reqErr.HTTPStatusCode, strings.TrimSpace(string(reqErr.Body)), true
	}
	return 0, "", false
}
