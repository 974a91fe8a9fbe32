// Package engine executes token-replacement operations against a
// target document with bounded parallelism, batching, retry, and
// per-container error isolation.
//
// Operations are grouped by container so one container's failure never
// aborts its siblings. Within a container, requests go out in fixed
// sub-batches in strict submission order; across containers, starts
// are staggered and a semaphore bounds concurrency. Every document-API
// call runs through the circuit breaker with a per-call timeout.
//
// The image path is two-phase: the replaced image's generated object id
// is only knowable after the replace call completes, so all replace
// calls finish before any positioning call begins.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/deckflow/deckflow-go/breaker"
	"github.com/deckflow/deckflow-go/deckflow"
	"github.com/deckflow/deckflow-go/layout"
)

// ImageLayout carries the resolved styling applied after an image
// replaces its placeholder shape.
type ImageLayout struct {
	Size     layout.Size
	Position layout.Position
	Method   deckflow.ReplaceMethod
}

// Engine is the concurrent batch executor.
type Engine struct {
	api     deckflow.DocumentAPI
	breaker *breaker.Breaker
	locks   *LockManager
	cfg     Config
	logger  *slog.Logger
}

// NewEngine builds an engine. The breaker and lock manager may be nil,
// in which case defaults are created; zero config fields use defaults.
func NewEngine(api deckflow.DocumentAPI, br *breaker.Breaker, locks *LockManager, cfg Config, logger *slog.Logger) *Engine {
	if br == nil {
		br = breaker.New("document-api", breaker.DefaultConfig(), logger)
	}
	if locks == nil {
		locks = NewLockManager()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		api:     api,
		breaker: br,
		locks:   locks,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// containerWork is the ordered request list for one container.
type containerWork struct {
	containerID string
	tokens      []string
	requests    []deckflow.Request
}

// containerOutcome is what one container's mutation produced.
type containerOutcome struct {
	containerID  string
	apiCalls     int
	replacements int
	replies      []deckflow.Reply
	err          error
}

// ReplaceText replaces each token of textMap with its value, grouped
// per container. Failures are captured in the result, never raised.
// Aggregate success requires zero errors and at least one processed
// container; an empty map is trivially successful.
func (e *Engine) ReplaceText(ctx context.Context, documentID string, textMap map[string]string) *deckflow.OperationResult {
	start := time.Now()
	res := &deckflow.OperationResult{
		Mode:          deckflow.ModeFast,
		CorrelationID: deckflow.CorrelationID(ctx),
		Details:       map[string]interface{}{"operation": "replace_text"},
	}
	defer func() { res.Elapsed = time.Since(start).Seconds() }()

	if len(textMap) == 0 {
		res.Success = true
		return res
	}

	e.locks.Lock(documentID)
	defer e.locks.Unlock(documentID)

	doc, err := e.fetchDocument(ctx, documentID)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	work := textWork(doc, textMap)
	outcomes := e.runContainers(ctx, documentID, work)

	res.ContainersTotal = len(work)
	for _, o := range outcomes {
		res.APICalls += o.apiCalls
		res.ObjectsProcessed += o.replacements
		if o.err != nil {
			res.Errors = append(res.Errors, o.err.Error())
			continue
		}
		res.ContainersOK++
	}
	res.Success = len(res.Errors) == 0 && res.ContainersOK > 0
	return res
}

// ReplaceImages swaps placeholder shapes for images, then applies each
// image's resolved size and position in a separate second phase.
// Aggregate success is a majority policy over phase-one containers.
func (e *Engine) ReplaceImages(ctx context.Context, documentID string, imageMap map[string]string, layouts map[string]ImageLayout) *deckflow.OperationResult {
	start := time.Now()
	res := &deckflow.OperationResult{
		Mode:          deckflow.ModeFast,
		CorrelationID: deckflow.CorrelationID(ctx),
		Details:       map[string]interface{}{"operation": "replace_images"},
	}
	defer func() { res.Elapsed = time.Since(start).Seconds() }()

	if len(imageMap) == 0 {
		res.Success = true
		return res
	}

	e.locks.Lock(documentID)
	defer e.locks.Unlock(documentID)

	doc, err := e.fetchDocument(ctx, documentID)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	work := imageWork(doc, imageMap, layouts)
	outcomes := e.runContainers(ctx, documentID, work)

	// Phase one aggregate plus the created ids for phase two.
	created := make(map[string]string) // token -> generated object id
	res.ContainersTotal = len(work)
	for i, o := range outcomes {
		res.APICalls += o.apiCalls
		res.ObjectsProcessed += o.replacements
		if o.err != nil {
			res.Errors = append(res.Errors, o.err.Error())
			continue
		}
		res.ContainersOK++
		for j, reply := range o.replies {
			if reply.CreatedObjectID != "" && j < len(work[i].tokens) {
				created[work[i].tokens[j]] = reply.CreatedObjectID
			}
		}
	}

	// Phase two only starts after every replace call has finished.
	positioning := positioningWork(work, created, layouts)
	if len(positioning) > 0 {
		for _, o := range e.runContainers(ctx, documentID, positioning) {
			res.APICalls += o.apiCalls
			if o.err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("positioning: %v", o.err))
			}
		}
	}

	if res.ContainersTotal > 0 {
		res.Success = float64(res.ContainersOK)/float64(res.ContainersTotal) > 0.5
	}
	res.Details["charts_positioned"] = len(positioning)
	return res
}

// textWork builds the per-container replace-text request lists.
func textWork(doc *deckflow.Document, textMap map[string]string) []containerWork {
	tokens := sortedKeys(textMap)
	var work []containerWork
	for _, c := range doc.Containers {
		var w containerWork
		w.containerID = c.ID
		for _, token := range tokens {
			if !containerHasToken(c, token) {
				continue
			}
			w.tokens = append(w.tokens, token)
			w.requests = append(w.requests, deckflow.Request{
				ReplaceAllText: &deckflow.ReplaceAllTextRequest{
					ContainsText: token,
					MatchCase:    true,
					ReplaceText:  textMap[token],
					PageIDs:      []string{c.ID},
				},
			})
		}
		if len(w.requests) > 0 {
			work = append(work, w)
		}
	}
	return work
}

// imageWork builds the per-container replace-shape-with-image lists.
func imageWork(doc *deckflow.Document, imageMap map[string]string, layouts map[string]ImageLayout) []containerWork {
	tokens := sortedKeys(imageMap)
	var work []containerWork
	for _, c := range doc.Containers {
		var w containerWork
		w.containerID = c.ID
		for _, token := range tokens {
			if !containerHasToken(c, token) {
				continue
			}
			method := deckflow.ReplaceCenterInside
			if l, ok := layouts[token]; ok && l.Method != "" {
				method = l.Method
			}
			w.tokens = append(w.tokens, token)
			w.requests = append(w.requests, deckflow.Request{
				ReplaceShapeWithImage: &deckflow.ReplaceShapeWithImageRequest{
					ContainsText:  token,
					MatchCase:     true,
					ImageURL:      imageMap[token],
					ReplaceMethod: method,
					PageIDs:       []string{c.ID},
				},
			})
		}
		if len(w.requests) > 0 {
			work = append(work, w)
		}
	}
	return work
}

// positioningWork builds the phase-two size/transform request lists for
// every successfully created image that has a resolved layout.
func positioningWork(phase1 []containerWork, created map[string]string, layouts map[string]ImageLayout) []containerWork {
	var work []containerWork
	for _, w := range phase1 {
		var p containerWork
		p.containerID = w.containerID
		for _, token := range w.tokens {
			objectID, ok := created[token]
			if !ok {
				continue
			}
			l, ok := layouts[token]
			if !ok {
				continue
			}
			p.tokens = append(p.tokens, token)
			p.requests = append(p.requests,
				layout.SizeRequest(objectID, l.Size),
				layout.TransformRequest(objectID, l.Size, l.Position, layout.AnchorTopLeft),
			)
		}
		if len(p.requests) > 0 {
			work = append(work, p)
		}
	}
	return work
}

// runContainers mutates all containers with bounded concurrency and
// staggered starts. Outcomes are positional; errors never cancel
// sibling containers.
func (e *Engine) runContainers(ctx context.Context, documentID string, work []containerWork) []containerOutcome {
	outcomes := make([]containerOutcome, len(work))
	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrentContainers))
	g, gctx := errgroup.WithContext(ctx)

	for i := range work {
		i := i
		g.Go(func() error {
			if err := e.sleep(gctx, time.Duration(i)*e.cfg.StaggerDelay); err != nil {
				outcomes[i] = containerOutcome{containerID: work[i].containerID, err: err}
				return nil
			}
			if err := sem.Acquire(gctx, 1); err != nil {
				outcomes[i] = containerOutcome{containerID: work[i].containerID, err: err}
				return nil
			}
			defer sem.Release(1)
			outcomes[i] = e.mutateContainer(gctx, documentID, work[i])
			return nil
		})
	}
	g.Wait()
	return outcomes
}

// mutateContainer issues one container's requests in sub-batches, in
// strict submission order. A failing sub-batch aborts the container's
// remaining batches; later batches may depend on earlier ones.
func (e *Engine) mutateContainer(ctx context.Context, documentID string, w containerWork) containerOutcome {
	out := containerOutcome{containerID: w.containerID}

	for batch := 0; batch*e.cfg.SubBatchSize < len(w.requests); batch++ {
		lo := batch * e.cfg.SubBatchSize
		hi := lo + e.cfg.SubBatchSize
		if hi > len(w.requests) {
			hi = len(w.requests)
		}

		if batch > 0 {
			if err := e.sleep(ctx, e.cfg.SubBatchPause); err != nil {
				out.err = err
				return out
			}
		}

		replies, calls, err := e.callWithRetry(ctx, documentID, w.containerID, w.requests[lo:hi])
		out.apiCalls += calls
		if err != nil {
			out.err = err
			return out
		}
		out.replies = append(out.replies, replies...)
		out.replacements += hi - lo
	}
	return out
}

// callWithRetry runs one BatchUpdate through the breaker, retrying
// transient failures with doubling backoff. Permanent errors fail on
// the first attempt with no delay.
func (e *Engine) callWithRetry(ctx context.Context, documentID, containerID string, requests []deckflow.Request) ([]deckflow.Reply, int, error) {
	attempts := 0
	delay := e.cfg.RetryDelay

	for {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		var replies []deckflow.Reply
		err := e.breaker.Do(callCtx, func(ctx context.Context) error {
			r, callErr := e.api.BatchUpdate(ctx, documentID, requests)
			replies = r
			return callErr
		})
		cancel()

		if err == nil {
			return replies, attempts, nil
		}
		if deckflow.IsPermanent(err) || attempts > e.cfg.RetryAttempts {
			return nil, attempts, deckflow.NewOperationError("batch_update", documentID, containerID, err)
		}

		e.logger.Warn("batch update failed, retrying",
			"document_id", documentID, "container_id", containerID,
			"attempt", attempts, "backoff", delay.String(), "error", err)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, attempts, err
		}
		delay *= 2
	}
}

func (e *Engine) fetchDocument(ctx context.Context, documentID string) (*deckflow.Document, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	var doc *deckflow.Document
	err := e.breaker.Do(callCtx, func(ctx context.Context) error {
		d, callErr := e.api.Document(ctx, documentID)
		doc = d
		return callErr
	})
	if err != nil {
		return nil, deckflow.NewOperationError("get_document", documentID, "", err)
	}
	return doc, nil
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func containerHasToken(c deckflow.Container, token string) bool {
	for _, el := range c.Elements {
		if strings.Contains(el.Text, token) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
