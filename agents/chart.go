package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/deckflow/deckflow-go/charttype"
	"github.com/deckflow/deckflow-go/deckflow"
	"github.com/deckflow/deckflow-go/slug"
)

// ChartAgent renders one validated metric payload into an image file.
type ChartAgent interface {
	Render(ctx context.Context, result *deckflow.MetricResult, category deckflow.ChartCategory) (string, error)
}

// GeminiChartAgent generates chart images with a Gemini image model.
type GeminiChartAgent struct {
	client    *genai.Client
	model     string
	outputDir string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGeminiChartAgent creates a chart agent writing images under
// outputDir. An empty model selects gemini-2.0-flash-exp.
func NewGeminiChartAgent(apiKey, model, outputDir string, logger *slog.Logger) (*GeminiChartAgent, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("chart agent requires an API key")
	}
	if model == "" {
		model = "gemini-2.0-flash-exp"
	}
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating chart output dir: %w", err)
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiChartAgent{
		client:    client,
		model:     model,
		outputDir: outputDir,
		timeout:   90 * time.Second,
		logger:    logger,
	}, nil
}

// Render produces one chart image and returns its local path.
func (a *GeminiChartAgent) Render(ctx context.Context, result *deckflow.MetricResult, category deckflow.ChartCategory) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	data, err := json.Marshal(result.Payload.StructuredData())
	if err != nil {
		return "", fmt.Errorf("encoding chart data for %q: %w", result.Key, err)
	}

	prompt := fmt.Sprintf(
		"Render a clean %s chart titled %q for this data series. Plain background, no watermark.\nData: %s",
		strings.ReplaceAll(string(category), "_", " "), result.Key, data)

	model := a.client.GenerativeModel(a.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("chart agent call for %q: %w", result.Key, err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			blob, ok := part.(genai.Blob)
			if !ok || !strings.HasPrefix(blob.MIMEType, "image/") {
				continue
			}
			path := filepath.Join(a.outputDir,
				fmt.Sprintf("chart_%s_%d.png", slug.Generate(result.Key), time.Now().UnixNano()))
			if err := os.WriteFile(path, blob.Data, 0o644); err != nil {
				return "", fmt.Errorf("writing chart image for %q: %w", result.Key, err)
			}
			return path, nil
		}
	}
	return "", fmt.Errorf("chart agent returned no image for %q", result.Key)
}

// Close releases the underlying client.
func (a *GeminiChartAgent) Close() error {
	return a.client.Close()
}

// RenderAll renders every result that has validated structured data,
// setting ChartPath on success and appending to Errors on failure.
// Keys whose payloads never validated are skipped, not failed again.
func RenderAll(ctx context.Context, agent ChartAgent, results map[string]*deckflow.MetricResult, maxConcurrent int) {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, result := range results {
		result := result
		if result.Payload == nil || len(result.Payload.StructuredData()) == 0 {
			continue
		}
		g.Go(func() error {
			category := charttype.Classify(result.Key, result.Payload.Narrative())
			path, err := agent.Render(gctx, result, category)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				return nil
			}
			result.ChartPath = path
			return nil
		})
	}
	g.Wait()
}
