package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"newsroom/internal/config"
	"newsroom/internal/domain"
	"newsroom/internal/ports"
	"newsroom/pkg/retry"
)

// maxContentChars bounds how much of an item body goes into the prompt.
const maxContentChars = 10000

// Enricher calls an OpenAI-compatible chat endpoint to summarize and tag a
// batch of items in one request. Transient failures are retried with backoff
// inside EnrichBatch; a permanent failure surfaces immediately.
type Enricher struct {
	model       llms.Model
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

var _ ports.Enricher = (*Enricher)(nil)

// NewEnricher builds an enricher from configuration.
func NewEnricher(cfg config.LLMConfig, logger *slog.Logger) (*Enricher, error) {
	model, err := openai.New(
		openai.WithBaseURL(cfg.Endpoint),
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	return NewEnricherWithModel(model, cfg, logger), nil
}

// NewEnricherWithModel wires an existing model, used by tests.
func NewEnricherWithModel(model llms.Model, cfg config.LLMConfig, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &Enricher{
		model:       model,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		logger:      logger,
	}
}

type promptItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	Content     string `json:"content"`
}

type analyzedItem struct {
	ID                string   `json:"id"`
	Summary           string   `json:"summary"`
	Tags              []string `json:"tags"`
	Importance        int      `json:"importance"`
	KeyEntities       []string `json:"key_entities"`
	ActionableInsight string   `json:"actionable_insight"`
}

type analysisResponse struct {
	Results []analyzedItem `json:"results"`
}

// EnrichBatch analyzes a batch in one model call. Items the model skipped
// are omitted from the result; siblings in the batch are unaffected. The
// returned error means the whole batch call failed after the retry budget.
func (e *Enricher) EnrichBatch(ctx context.Context, items []domain.RawItem) ([]domain.EnrichedItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	payload, err := buildPayload(items)
	if err != nil {
		return nil, retry.Permanent{Err: fmt.Errorf("build prompt: %w", err)}
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(payload)},
		},
	}

	var parsed analysisResponse
	err = retry.Do(ctx, func() error {
		response, genErr := e.model.GenerateContent(ctx, content,
			llms.WithTemperature(0.0), llms.WithJSONMode())
		if genErr != nil {
			if permanentCallError(genErr) {
				return retry.Permanent{Err: genErr}
			}
			return genErr
		}
		if len(response.Choices) == 0 {
			return errors.New("no choices returned from model")
		}

		text := stripFences(response.Choices[0].Content)
		parsed = analysisResponse{}
		if uErr := json.Unmarshal([]byte(text), &parsed); uErr != nil {
			// Malformed JSON happens; a fresh generation usually fixes it.
			e.logger.Warn("unparseable model output", "err", uErr)
			return fmt.Errorf("parse model output: %w", uErr)
		}
		return nil
	}, e.maxAttempts, e.retryDelay)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]analyzedItem, len(parsed.Results))
	for _, res := range parsed.Results {
		byID[res.ID] = res
	}

	out := make([]domain.EnrichedItem, 0, len(items))
	for _, item := range items {
		res, ok := byID[string(item.CanonicalID())]
		if !ok {
			// Absent from the result means the model rejected or lost this
			// item; the caller records it as dropped.
			e.logger.Warn("model skipped item", "id", item.CanonicalID())
			continue
		}
		out = append(out, domain.EnrichedItem{
			RawItem:           item,
			Summary:           res.Summary,
			Tags:              res.Tags,
			Importance:        clampImportance(res.Importance),
			KeyEntities:       res.KeyEntities,
			ActionableInsight: res.ActionableInsight,
		})
	}
	return out, nil
}

func buildPayload(items []domain.RawItem) (string, error) {
	prompt := make([]promptItem, 0, len(items))
	for _, item := range items {
		content := item.Text
		if len(content) > maxContentChars {
			content = content[:maxContentChars]
		}
		prompt = append(prompt, promptItem{
			ID:          string(item.CanonicalID()),
			Title:       item.Title,
			Source:      item.SourceName,
			PublishedAt: item.PublishedAt.Format(time.RFC3339),
			Content:     content,
		})
	}
	raw, err := json.MarshalIndent(prompt, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clampImportance(v int) int {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// permanentCallError classifies API failures that retrying cannot fix:
// rejected input, auth problems, content policy. Rate limits, timeouts, and
// server errors stay retryable.
func permanentCallError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"status code: 400",
		"status code: 401",
		"status code: 403",
		"invalid_request_error",
		"content_filter",
		"context length",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
