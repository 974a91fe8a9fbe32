// Command deckflow generates one slide deck from a template: it pulls
// the requested metrics through the upstream agents, renders and
// uploads charts, and fills the template's placeholders.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/deckflow/deckflow-go/agents"
	"github.com/deckflow/deckflow-go/cache"
	"github.com/deckflow/deckflow-go/config"
	"github.com/deckflow/deckflow-go/observability"
	"github.com/deckflow/deckflow-go/pipeline"
	"github.com/deckflow/deckflow-go/slides"
)

func main() {
	var (
		documentID = flag.String("document", "", "target presentation id (required)")
		metricsArg = flag.String("metrics", "", "comma-separated metric keys (required)")
		merchant   = flag.String("merchant", "", "merchant token")
		startDate  = flag.String("start", "", "period start, YYYY-MM-DD")
		endDate    = flag.String("end", "", "period end, YYYY-MM-DD")
		timeout    = flag.Duration("timeout", 10*time.Minute, "overall deadline")
		health     = flag.Bool("health", false, "print health status after the run")
	)
	flag.Parse()

	if *documentID == "" || *metricsArg == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	observability.ConfigureLogging(parseLevel(cfg.LogLevel), cfg.StructuredLogs, true)
	logger := slog.Default()

	if _, err := observability.InitMetrics(cfg.ServiceName); err != nil {
		logger.Warn("metrics disabled", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	api, err := slides.New(ctx, slides.Config{
		CredentialsFile: cfg.CredentialsFile,
		PoolSize:        cfg.Engine.MaxConcurrentContainers,
	}, logger)
	if err != nil {
		logger.Error("document API unavailable", "error", err)
		os.Exit(1)
	}
	instrumented, err := observability.NewInstrumentedAPI(api)
	if err != nil {
		logger.Error("instrumentation failed", "error", err)
		os.Exit(1)
	}

	chartAgent, err := agents.NewGeminiChartAgent(cfg.GeminiKey, "", "", logger)
	if err != nil {
		logger.Error("chart agent unavailable", "error", err)
		os.Exit(1)
	}
	defer chartAgent.Close()

	opts := pipeline.Options{
		Config:     cfg,
		API:        instrumented,
		DataAgent:  agents.NewOpenAIDataAgent(cfg.OpenAIKey, "", logger),
		ChartAgent: chartAgent,
		Uploader:   api,
		Logger:     logger,
	}

	if cfg.AuditLogPath != "" {
		fileAdapter, err := observability.NewFileAuditAdapter(cfg.AuditLogPath)
		if err != nil {
			logger.Warn("audit trail disabled", "error", err)
		} else {
			defer fileAdapter.Close()
			opts.Audit = observability.NewAuditLogger(fileAdapter)
		}
	}

	if cfg.RedisAddr != "" {
		store, err := cache.NewRedisStore("redis://"+cfg.RedisAddr, time.Hour, "")
		if err != nil {
			logger.Warn("snapshot cache disabled", "error", err)
		} else {
			defer store.Close()
			opts.Snapshots = store
		}
	}

	orchestrator := pipeline.New(opts)

	result, err := orchestrator.GenerateDeck(ctx, pipeline.GenerateRequest{
		DocumentID:    *documentID,
		MetricKeys:    splitMetrics(*metricsArg),
		MerchantToken: *merchant,
		StartDate:     *startDate,
		EndDate:       *endDate,
	})
	if err != nil {
		logger.Error("deck generation failed", "error", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(summary(result), "", "  ")
	fmt.Println(string(out))

	if *health {
		h, _ := json.Marshal(orchestrator.Monitor().HealthStatus())
		fmt.Println(string(h))
	}
	if !result.Success {
		os.Exit(1)
	}
}

func summary(r *pipeline.DeckResult) map[string]interface{} {
	mapped := 0
	for _, ph := range r.Mappings {
		if ph != nil {
			mapped++
		}
	}
	return map[string]interface{}{
		"success":        r.Success,
		"correlation_id": r.CorrelationID,
		"elapsed":        r.Elapsed.Seconds(),
		"metrics":        len(r.Metrics),
		"mapped":         mapped,
		"text":           r.Text,
		"images":         r.Images,
		"errors":         r.Errors,
	}
}

func splitMetrics(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
