// Package pipeline is the composition root. It wires the agents,
// validation, slug and layout resolution, mapping, and the batch
// engine into one deck-generation flow, with path selection and
// outcome feedback flowing through the flag controller and monitor.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deckflow/deckflow-go/agents"
	"github.com/deckflow/deckflow-go/breaker"
	"github.com/deckflow/deckflow-go/cache"
	"github.com/deckflow/deckflow-go/charttype"
	"github.com/deckflow/deckflow-go/config"
	"github.com/deckflow/deckflow-go/deckflow"
	"github.com/deckflow/deckflow-go/discovery"
	"github.com/deckflow/deckflow-go/engine"
	"github.com/deckflow/deckflow-go/flags"
	"github.com/deckflow/deckflow-go/layout"
	"github.com/deckflow/deckflow-go/monitor"
	"github.com/deckflow/deckflow-go/observability"
	"github.com/deckflow/deckflow-go/schema"
	"github.com/deckflow/deckflow-go/tokenmap"
)

// Uploader turns a local chart image into a URL the document API can
// ingest.
type Uploader interface {
	UploadImage(ctx context.Context, localPath string) (string, error)
}

// Options carries the orchestrator's collaborators. API and the agents
// are required; the rest default sensibly.
type Options struct {
	Config     config.Config
	API        deckflow.DocumentAPI
	DataAgent  agents.DataAgent
	ChartAgent agents.ChartAgent

	// Uploader is optional; without one, chart paths are passed to the
	// document API unchanged.
	Uploader Uploader

	// Snapshots shares discovery results across runs; nil gets an
	// in-process store so repeat generations skip the template rescan.
	Snapshots cache.Store

	// Audit is optional; a nil logger disables the audit trail.
	Audit *observability.AuditLogger

	Logger *slog.Logger
}

// Orchestrator runs deck generations end to end.
type Orchestrator struct {
	cfg        config.Config
	api        deckflow.DocumentAPI
	dataAgent  agents.DataAgent
	chartAgent agents.ChartAgent
	uploader   Uploader
	snapshots  cache.Store
	audit      *observability.AuditLogger

	registry   *schema.Registry
	scanner    *discovery.Scanner
	mapper     *tokenmap.Mapper
	layouts    *layout.Resolver
	fastEngine *engine.Engine
	seqEngine  *engine.Engine
	controller *flags.Controller
	monitor    *monitor.Monitor

	logger *slog.Logger
}

// New wires an orchestrator from its collaborators. Both execution
// paths share one breaker so the legacy path cannot hammer an endpoint
// the fast path already found broken.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Snapshots == nil {
		opts.Snapshots = cache.NewMemoryStore(time.Hour)
	}

	br := breaker.New("document-api", opts.Config.Breaker, logger)
	locks := engine.NewLockManager()

	seqCfg := opts.Config.Engine
	seqCfg.MaxConcurrentContainers = 1
	seqCfg.StaggerDelay = 0

	controller := flags.NewController(opts.Config.Flags, logger)
	if opts.Audit != nil {
		br.OnOpen(opts.Audit.LogBreakerOpen)
		controller.OnRollback(opts.Audit.LogRollback)
	}

	o := &Orchestrator{
		cfg:        opts.Config,
		api:        opts.API,
		dataAgent:  opts.DataAgent,
		chartAgent: opts.ChartAgent,
		uploader:   opts.Uploader,
		snapshots:  opts.Snapshots,
		audit:      opts.Audit,
		registry:   schema.NewRegistry(),
		scanner:    discovery.NewScanner(opts.API, opts.API, logger),
		mapper:     tokenmap.NewMapper(logger),
		layouts:    layout.NewResolver(layout.NewOverrideStore(opts.Config.OverridesDir, logger)),
		fastEngine: engine.NewEngine(opts.API, br, locks, opts.Config.Engine, logger),
		seqEngine:  engine.NewEngine(opts.API, br, locks, seqCfg, logger),
		controller: controller,
		logger:     logger,
	}
	o.monitor = monitor.NewMonitor(opts.Config.Monitor, controller, logger)
	return o
}

// Controller exposes the flag controller for manual rollback.
func (o *Orchestrator) Controller() *flags.Controller { return o.controller }

// Monitor exposes the monitor for health probes and exports.
func (o *Orchestrator) Monitor() *monitor.Monitor { return o.monitor }

// GenerateRequest describes one deck generation.
type GenerateRequest struct {
	DocumentID    string
	MetricKeys    []string
	MerchantToken string
	StartDate     string
	EndDate       string
}

// DeckResult is the aggregate outcome of one generation.
type DeckResult struct {
	CorrelationID string
	Metrics       map[string]*deckflow.MetricResult
	Mappings      map[string]*deckflow.Placeholder
	Text          *deckflow.OperationResult
	Images        *deckflow.OperationResult
	Elapsed       time.Duration
	Success       bool
	Errors        []string
}

// GenerateDeck runs the full flow: fetch metrics, validate and correct
// payloads, render charts, map tokens, then mutate the document on the
// selected path. Per-key and per-container failures degrade the result
// instead of aborting it.
func (o *Orchestrator) GenerateDeck(ctx context.Context, req GenerateRequest) (*DeckResult, error) {
	corr := deckflow.NewCorrelationID()
	ctx = deckflow.WithCorrelationID(ctx, corr)
	start := time.Now()

	res := &DeckResult{CorrelationID: corr}
	o.auditOperation(observability.AuditOperationStarted, req.DocumentID, corr, nil)

	res.Metrics = agents.FetchAll(ctx, o.dataAgent, req.MetricKeys, agents.RequestContext{
		MerchantToken: req.MerchantToken,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
	}, o.cfg.Engine.MaxConcurrentContainers)

	o.validateAll(res.Metrics)
	agents.RenderAll(ctx, o.chartAgent, res.Metrics, 2)

	placeholders := o.discoverPlaceholders(ctx, req.DocumentID)
	if len(placeholders) == 0 {
		res.Errors = append(res.Errors, "no placeholders discovered")
		o.auditOperation(observability.AuditOperationFailed, req.DocumentID, corr,
			map[string]interface{}{"reason": "no placeholders"})
		res.Elapsed = time.Since(start)
		return res, nil
	}
	res.Mappings = o.mapper.Map(req.MetricKeys, placeholders)

	textMap, imageMap, layouts := o.buildMaps(ctx, req.DocumentID, res.Metrics, res.Mappings)

	useFast := !o.cfg.ForceSequential && o.controller.ShouldUseFastPath(req.DocumentID)

	res.Text = o.runText(ctx, req.DocumentID, textMap, useFast)
	res.Images = o.runImages(ctx, req.DocumentID, imageMap, layouts, useFast)

	res.Elapsed = time.Since(start)
	res.Success = res.Text.Success && res.Images.Success
	res.Errors = append(res.Errors, res.Text.Errors...)
	res.Errors = append(res.Errors, res.Images.Errors...)

	o.recordOutcome("replace_text", res.Text, corr)
	o.recordOutcome("replace_images", res.Images, corr)

	eventType := observability.AuditOperationCompleted
	if !res.Success {
		eventType = observability.AuditOperationFailed
	}
	o.auditOperation(eventType, req.DocumentID, corr, map[string]interface{}{
		"metrics":  len(req.MetricKeys),
		"elapsed":  res.Elapsed.Seconds(),
		"mode":     string(res.Text.Mode),
		"fallback": res.Text.FallbackUsed || res.Images.FallbackUsed,
	})
	return res, nil
}

// validateAll checks every payload against the registry, substituting
// corrected payloads where auto-correction applies.
func (o *Orchestrator) validateAll(results map[string]*deckflow.MetricResult) {
	for key, r := range results {
		if r.Payload == nil || r.Payload.Kind() != deckflow.PayloadStructured {
			continue
		}
		verdict := o.registry.Validate(key, r.Payload.Raw())
		if verdict.Valid {
			continue
		}
		if o.audit != nil {
			o.audit.LogValidationFailure(key, verdict.Errors, verdict.Corrected != nil)
		}
		o.logger.Warn("metric payload failed validation",
			"key", key, "errors", verdict.Errors)
		if verdict.Corrected != nil {
			r.Payload = deckflow.NewStructuredPayload(verdict.Corrected)
		} else {
			r.Errors = append(r.Errors, verdict.Errors...)
		}
	}
}

// discoverPlaceholders consults the snapshot store before scanning.
func (o *Orchestrator) discoverPlaceholders(ctx context.Context, documentID string) []deckflow.Placeholder {
	if o.snapshots != nil {
		snap, err := o.snapshots.Get(ctx, documentID)
		if err != nil {
			o.logger.Warn("snapshot fetch failed", "document_id", documentID, "error", err)
		} else if snap != nil {
			return snap.Placeholders
		}
	}

	placeholders := o.scanner.Discover(ctx, documentID)
	if o.snapshots != nil && len(placeholders) > 0 {
		err := o.snapshots.Put(ctx, &cache.Snapshot{
			DocumentID:   documentID,
			Placeholders: placeholders,
			CreatedAt:    time.Now(),
		})
		if err != nil {
			o.logger.Warn("snapshot store failed", "document_id", documentID, "error", err)
		}
	}
	return placeholders
}

// buildMaps derives the text, image, and layout inputs for the engine
// from the mapped metrics.
func (o *Orchestrator) buildMaps(ctx context.Context, documentID string, results map[string]*deckflow.MetricResult, mappings map[string]*deckflow.Placeholder) (map[string]string, map[string]string, map[string]engine.ImageLayout) {
	textMap := make(map[string]string)
	imageMap := make(map[string]string)
	layouts := make(map[string]engine.ImageLayout)

	for key, ph := range mappings {
		if ph == nil {
			continue
		}
		r := results[key]
		if r == nil {
			continue
		}

		textMap[fmt.Sprintf("{{%s_title}}", ph.Slug)] = key
		if narrative := r.Payload.Narrative(); narrative != "" {
			textMap[fmt.Sprintf("{{%s_paragraph}}", ph.Slug)] = narrative
		}

		if r.ChartPath == "" {
			continue
		}
		url := r.ChartPath
		if o.uploader != nil {
			uploaded, err := o.uploader.UploadImage(ctx, r.ChartPath)
			if err != nil {
				o.logger.Warn("chart upload failed", "key", key, "error", err)
				r.Errors = append(r.Errors, fmt.Sprintf("upload failed: %v", err))
				continue
			}
			url = uploaded
		}
		imageMap[ph.RawToken] = url

		if o.cfg.StylingEnabled {
			category := charttype.Classify(key, r.Payload.Narrative())
			style := o.layouts.Config(category, key, documentID)
			size, pos := o.layouts.Resolve(category, key, documentID)
			layouts[ph.RawToken] = engine.ImageLayout{
				Size:     size,
				Position: pos,
				Method:   style.ReplaceMethod,
			}
		}
	}
	return textMap, imageMap, layouts
}

func (o *Orchestrator) runText(ctx context.Context, documentID string, textMap map[string]string, useFast bool) *deckflow.OperationResult {
	strategies := o.strategies(useFast,
		func(ctx context.Context) (*deckflow.OperationResult, error) {
			return o.fastEngine.ReplaceText(ctx, documentID, textMap), nil
		},
		func(ctx context.Context) (*deckflow.OperationResult, error) {
			return o.seqEngine.ReplaceText(ctx, documentID, textMap), nil
		})

	result, err := engine.RunStrategies(ctx, o.logger, strategies)
	return o.finish(documentID, result, err)
}

func (o *Orchestrator) runImages(ctx context.Context, documentID string, imageMap map[string]string, layouts map[string]engine.ImageLayout, useFast bool) *deckflow.OperationResult {
	strategies := o.strategies(useFast,
		func(ctx context.Context) (*deckflow.OperationResult, error) {
			return o.fastEngine.ReplaceImages(ctx, documentID, imageMap, layouts), nil
		},
		func(ctx context.Context) (*deckflow.OperationResult, error) {
			return o.seqEngine.ReplaceImages(ctx, documentID, imageMap, layouts), nil
		})

	result, err := engine.RunStrategies(ctx, o.logger, strategies)
	return o.finish(documentID, result, err)
}

// strategies orders the execution paths: the fast path falls back to a
// sequential retry, the legacy path stands alone.
func (o *Orchestrator) strategies(useFast bool, fast, sequential func(context.Context) (*deckflow.OperationResult, error)) []engine.Strategy {
	if useFast {
		return []engine.Strategy{
			{Name: deckflow.ModeFast, Run: fast},
			{Name: deckflow.ModeSequentialFallback, Run: sequential},
		}
	}
	return []engine.Strategy{
		{Name: deckflow.ModeLegacy, Run: sequential},
	}
}

func (o *Orchestrator) finish(documentID string, result *deckflow.OperationResult, err error) *deckflow.OperationResult {
	if result == nil {
		result = &deckflow.OperationResult{}
	}
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
	}
	if result.FallbackUsed && o.audit != nil {
		o.audit.LogFallback(documentID, result.CorrelationID, result.FallbackReason)
	}
	return result
}

func (o *Orchestrator) recordOutcome(operation string, result *deckflow.OperationResult, corr string) {
	elapsed := time.Duration(result.Elapsed * float64(time.Second))
	o.monitor.Record(operation, result.Mode, result.Success, elapsed, corr, result.Details)
	o.controller.RecordOutcome(result.Mode, result.Success, elapsed)
}

func (o *Orchestrator) auditOperation(eventType observability.AuditEventType, documentID, corr string, metadata map[string]interface{}) {
	if o.audit == nil {
		return
	}
	o.audit.LogOperation(eventType, documentID, corr, "generate_deck", metadata)
}
