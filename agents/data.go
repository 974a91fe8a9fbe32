// Package agents wraps the upstream collaborators: the data-retrieval
// agent that produces metric payloads and the chart-generation agent
// that renders validated payloads into images. Both run per metric key
// with failure isolation, so one bad key never poisons the batch.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/deckflow/deckflow-go/deckflow"
)

// RequestContext scopes one deck generation run.
type RequestContext struct {
	MerchantToken string
	StartDate     string
	EndDate       string
}

// DataAgent fetches a metric payload for one key.
type DataAgent interface {
	Fetch(ctx context.Context, key string, reqCtx RequestContext) (*deckflow.MetricResult, error)
}

// OpenAIDataAgent asks a GPT model to produce the structured payload
// for a metric key. Responses are requested in JSON mode and parsed
// into a PayloadView at the boundary.
type OpenAIDataAgent struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIDataAgent creates a data agent. An empty model selects
// gpt-4-turbo.
func NewOpenAIDataAgent(apiKey, model string, logger *slog.Logger) *OpenAIDataAgent {
	if model == "" {
		model = "gpt-4-turbo"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIDataAgent{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: 60 * time.Second,
		logger:  logger,
	}
}

const dataSystemPrompt = `You are a merchant-analytics data agent. Given a metric name and a merchant/date-range context, respond with a single JSON object with keys "structured_data" (the metric's data series), "paragraph" (a short narrative), and "total_variations" (percentage change as a number). Respond with JSON only.`

// Fetch retrieves one metric's payload. Malformed model output is
// captured in the result's Errors, not raised.
func (a *OpenAIDataAgent) Fetch(ctx context.Context, key string, reqCtx RequestContext) (*deckflow.MetricResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Metric: %s\nMerchant: %s\nPeriod: %s to %s",
		key, reqCtx.MerchantToken, reqCtx.StartDate, reqCtx.EndDate)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: dataSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("data agent call for %q: %w", key, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("data agent returned no choices for %q", key)
	}

	result := &deckflow.MetricResult{Key: key}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		a.logger.Warn("data agent returned non-JSON payload", "key", key, "error", err)
		result.Payload = deckflow.NewTextPayload(content)
		result.Errors = append(result.Errors, fmt.Sprintf("unparseable payload: %v", err))
		return result, nil
	}
	result.Payload = deckflow.NewStructuredPayload(raw)
	return result, nil
}

// FetchAll runs the data agent for every key concurrently. Per-key
// failures come back as MetricResults carrying errors; the map always
// has one entry per requested key.
func FetchAll(ctx context.Context, agent DataAgent, keys []string, reqCtx RequestContext, maxConcurrent int) map[string]*deckflow.MetricResult {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	var mu sync.Mutex
	results := make(map[string]*deckflow.MetricResult, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			res, err := agent.Fetch(gctx, key, reqCtx)
			if err != nil {
				res = &deckflow.MetricResult{Key: key, Errors: []string{err.Error()}}
			}
			mu.Lock()
			results[key] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}
