package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/metrics"
)

const summarizerSystemPrompt = `You summarize a cluster of related passages from a document library.
Reply with a JSON object with exactly these keys:
"summary": two or three sentences describing what the passages have in common,
"key_topics": up to five short topic phrases,
"representative_quote": one sentence copied verbatim from the passages.`

// SummarizerConfig holds the chat model settings.
type SummarizerConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxInputRunes int
	Temperature   float32
	Logger        *zap.Logger
}

// Summarizer turns the member passages of a cluster into a cluster.Digest
// through an OpenAI-compatible chat completion in JSON mode.
type Summarizer struct {
	client      *openai.Client
	model       string
	maxRunes    int
	temperature float32
	logger      *zap.Logger
}

// DefaultMaxInputRunes caps the passage text sent in one request.
const DefaultMaxInputRunes = 12000

// NewSummarizer creates a chat-completion summarizer.
func NewSummarizer(cfg *SummarizerConfig) *Summarizer {
	maxRunes := cfg.MaxInputRunes
	if maxRunes <= 0 {
		maxRunes = DefaultMaxInputRunes
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Summarizer{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		maxRunes:    maxRunes,
		temperature: cfg.Temperature,
		logger:      log,
	}
}

// Summarize implements the clustering summarizer contract. Every failure
// wraps domain.ErrSummarizationFailed.
func (s *Summarizer) Summarize(ctx context.Context, texts []string) (cluster.Digest, error) {
	if len(texts) == 0 {
		return cluster.Digest{}, fmt.Errorf("no passages: %w", domain.ErrSummarizationFailed)
	}

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: s.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: s.userPrompt(texts)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	metrics.SummarizerRequestDuration.WithLabelValues(s.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SummarizerRequestsTotal.WithLabelValues(s.model, "error").Inc()
		return cluster.Digest{}, parseAPIError("summarizer", err, domain.ErrSummarizationFailed)
	}
	if len(resp.Choices) == 0 {
		metrics.SummarizerRequestsTotal.WithLabelValues(s.model, "error").Inc()
		return cluster.Digest{}, fmt.Errorf("empty completion: %w", domain.ErrSummarizationFailed)
	}

	digest, err := parseDigest(resp.Choices[0].Message.Content)
	if err != nil {
		metrics.SummarizerRequestsTotal.WithLabelValues(s.model, "bad_response").Inc()
		s.logger.Debug("Unparseable summarizer reply", zap.String("content", resp.Choices[0].Message.Content))
		return cluster.Digest{}, err
	}

	metrics.SummarizerRequestsTotal.WithLabelValues(s.model, "success").Inc()
	return digest, nil
}

// userPrompt numbers the passages and stops before the rune cap.
func (s *Summarizer) userPrompt(texts []string) string {
	var b strings.Builder
	budget := s.maxRunes
	for i, t := range texts {
		t = strings.TrimSpace(t)
		r := []rune(t)
		if len(r) > budget {
			if i > 0 {
				break
			}
			t = string(r[:budget])
		}
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, t)
		budget -= len(r)
		if budget <= 0 {
			break
		}
	}
	return b.String()
}

// parseDigest decodes a JSON reply, tolerating a markdown code fence.
func parseDigest(content string) (cluster.Digest, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var d cluster.Digest
	if err := json.Unmarshal([]byte(content), &d); err != nil {
		return cluster.Digest{}, fmt.Errorf("decode digest: %w: %w", domain.ErrSummarizationFailed, err)
	}
	d.Summary = strings.TrimSpace(d.Summary)
	if d.Summary == "" {
		return cluster.Digest{}, fmt.Errorf("digest without summary: %w", domain.ErrSummarizationFailed)
	}
	return d, nil
}
