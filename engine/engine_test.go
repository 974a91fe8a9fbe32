package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deckflow/deckflow-go/breaker"
	"github.com/deckflow/deckflow-go/deckflow"
	"github.com/deckflow/deckflow-go/layout"
)

// fakeAPI is a programmable document API. Errors are queued per
// container and popped one per BatchUpdate call.
type fakeAPI struct {
	mu      sync.Mutex
	doc     *deckflow.Document
	docErr  error
	calls   []fakeCall
	errs    map[string][]error
	created int
}

type fakeCall struct {
	container string
	requests  []deckflow.Request
}

func (f *fakeAPI) Document(ctx context.Context, id string) (*deckflow.Document, error) {
	if f.docErr != nil {
		return nil, f.docErr
	}
	return f.doc, nil
}

func (f *fakeAPI) BatchUpdate(ctx context.Context, id string, reqs []deckflow.Request) ([]deckflow.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cid := containerOf(reqs)
	f.calls = append(f.calls, fakeCall{container: cid, requests: reqs})

	if q := f.errs[cid]; len(q) > 0 {
		err := q[0]
		f.errs[cid] = q[1:]
		if err != nil {
			return nil, err
		}
	}

	replies := make([]deckflow.Reply, len(reqs))
	for i, r := range reqs {
		switch {
		case r.ReplaceAllText != nil:
			replies[i].OccurrencesChanged = 1
		case r.ReplaceShapeWithImage != nil:
			f.created++
			replies[i].CreatedObjectID = fmt.Sprintf("img_%d", f.created)
		}
	}
	return replies, nil
}

// containerOf reads the page restriction off the first request;
// positioning requests carry none.
func containerOf(reqs []deckflow.Request) string {
	if len(reqs) == 0 {
		return ""
	}
	switch r := reqs[0]; {
	case r.ReplaceAllText != nil && len(r.ReplaceAllText.PageIDs) > 0:
		return r.ReplaceAllText.PageIDs[0]
	case r.ReplaceShapeWithImage != nil && len(r.ReplaceShapeWithImage.PageIDs) > 0:
		return r.ReplaceShapeWithImage.PageIDs[0]
	}
	return ""
}

func (f *fakeAPI) callsFor(container string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.container == container {
			out = append(out, c)
		}
	}
	return out
}

type slide struct {
	id    string
	texts []string
}

func docWith(slides ...slide) *deckflow.Document {
	doc := &deckflow.Document{ID: "doc-1", Title: "test deck"}
	for i, s := range slides {
		c := deckflow.Container{ID: s.id, Index: i}
		for j, text := range s.texts {
			c.Elements = append(c.Elements, deckflow.Element{
				ObjectID: fmt.Sprintf("%s_el%d", s.id, j),
				Text:     text,
			})
		}
		doc.Containers = append(doc.Containers, c)
	}
	return doc
}

// fastConfig removes production pacing so tests run in milliseconds.
func fastConfig() Config {
	return Config{
		MaxConcurrentContainers: 3,
		SubBatchSize:            3,
		SubBatchPause:           0,
		StaggerDelay:            0,
		RetryAttempts:           2,
		RetryDelay:              time.Millisecond,
		CallTimeout:             time.Second,
	}
}

func newTestEngine(api *fakeAPI, cfg Config) *Engine {
	// Generous breaker so retry behavior is observable on its own.
	br := breaker.New("test", breaker.Config{
		FailureThreshold: 100,
		RecoveryTimeout:  time.Minute,
	}, nil)
	return NewEngine(api, br, nil, cfg, nil)
}

func TestReplaceTextSubBatching(t *testing.T) {
	texts := make([]string, 0, 7)
	textMap := make(map[string]string, 7)
	for i := 1; i <= 7; i++ {
		token := fmt.Sprintf("{{field_%d}}", i)
		texts = append(texts, token)
		textMap[token] = fmt.Sprintf("value %d", i)
	}
	api := &fakeAPI{doc: docWith(slide{id: "slide1", texts: texts})}
	e := newTestEngine(api, fastConfig())

	res := e.ReplaceText(context.Background(), "doc-1", textMap)

	if !res.Success {
		t.Fatalf("success = false, errors = %v", res.Errors)
	}
	calls := api.callsFor("slide1")
	if len(calls) != 3 {
		t.Fatalf("API calls = %d, want 3 (3+3+1)", len(calls))
	}
	sizes := []int{len(calls[0].requests), len(calls[1].requests), len(calls[2].requests)}
	if sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Errorf("sub-batch sizes = %v, want [3 3 1]", sizes)
	}
	if res.APICalls != 3 {
		t.Errorf("result.APICalls = %d, want 3", res.APICalls)
	}
	if res.ObjectsProcessed != 7 {
		t.Errorf("objects processed = %d, want 7", res.ObjectsProcessed)
	}
}

func TestPermanentErrorNotRetried(t *testing.T) {
	api := &fakeAPI{
		doc: docWith(
			slide{id: "slide1", texts: []string{"{{alpha}}"}},
			slide{id: "slide2", texts: []string{"{{beta}}"}},
		),
		errs: map[string][]error{
			"slide1": {errors.New("quota exceeded for write requests")},
		},
	}
	cfg := fastConfig()
	cfg.RetryDelay = 5 * time.Second // would dominate the elapsed time if a retry slept
	e := newTestEngine(api, cfg)

	start := time.Now()
	res := e.ReplaceText(context.Background(), "doc-1", map[string]string{
		"{{alpha}}": "a", "{{beta}}": "b",
	})

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("elapsed %v, permanent errors must not wait out a backoff", elapsed)
	}
	if got := len(api.callsFor("slide1")); got != 1 {
		t.Errorf("attempts on failing container = %d, want exactly 1", got)
	}
	if res.Success {
		t.Error("success = true with a failed container")
	}
	if res.ContainersOK != 1 || res.ContainersTotal != 2 {
		t.Errorf("containers = %d/%d, want sibling to complete (1/2)", res.ContainersOK, res.ContainersTotal)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "quota exceeded") {
		t.Errorf("errors = %v, want the quota error recorded", res.Errors)
	}
}

func TestTransientErrorRetriedWithinBudget(t *testing.T) {
	api := &fakeAPI{
		doc: docWith(slide{id: "slide1", texts: []string{"{{alpha}}"}}),
		errs: map[string][]error{
			"slide1": {
				errors.New("backend returned 500"),
				errors.New("backend returned 500"),
			},
		},
	}
	e := newTestEngine(api, fastConfig())

	res := e.ReplaceText(context.Background(), "doc-1", map[string]string{"{{alpha}}": "a"})

	if !res.Success {
		t.Fatalf("success = false after recoverable failures, errors = %v", res.Errors)
	}
	if got := len(api.callsFor("slide1")); got != 3 {
		t.Errorf("attempts = %d, want 3 (two retries then success)", got)
	}
}

func TestTransientErrorExhaustsRetries(t *testing.T) {
	api := &fakeAPI{
		doc: docWith(slide{id: "slide1", texts: []string{"{{alpha}}"}}),
		errs: map[string][]error{
			"slide1": {
				errors.New("backend returned 500"),
				errors.New("backend returned 500"),
				errors.New("backend returned 500"),
			},
		},
	}
	e := newTestEngine(api, fastConfig())

	res := e.ReplaceText(context.Background(), "doc-1", map[string]string{"{{alpha}}": "a"})

	if res.Success {
		t.Fatal("success = true after exhausting retries")
	}
	if got := len(api.callsFor("slide1")); got != 3 {
		t.Errorf("attempts = %d, want retry_attempts+1 = 3", got)
	}
}

func TestReplaceImagesMajoritySuccess(t *testing.T) {
	tests := []struct {
		name    string
		slides  []slide
		failing []string
		want    bool
	}{
		{
			name: "two of three succeed",
			slides: []slide{
				{id: "s1", texts: []string{"{{chart_a}}"}},
				{id: "s2", texts: []string{"{{chart_b}}"}},
				{id: "s3", texts: []string{"{{chart_c}}"}},
			},
			failing: []string{"s3"},
			want:    true,
		},
		{
			name: "exactly half is not a majority",
			slides: []slide{
				{id: "s1", texts: []string{"{{chart_a}}"}},
				{id: "s2", texts: []string{"{{chart_b}}"}},
			},
			failing: []string{"s2"},
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{doc: docWith(tt.slides...), errs: map[string][]error{}}
			for _, id := range tt.failing {
				api.errs[id] = []error{errors.New("requested entity was not found")}
			}
			e := newTestEngine(api, fastConfig())

			res := e.ReplaceImages(context.Background(), "doc-1", map[string]string{
				"{{chart_a}}": "https://img/a.png",
				"{{chart_b}}": "https://img/b.png",
				"{{chart_c}}": "https://img/c.png",
			}, nil)

			if res.Success != tt.want {
				t.Errorf("success = %v, want %v (%d/%d containers)",
					res.Success, tt.want, res.ContainersOK, res.ContainersTotal)
			}
		})
	}
}

func TestReplaceImagesPositionsAfterCreate(t *testing.T) {
	api := &fakeAPI{doc: docWith(slide{id: "slide1", texts: []string{"{{aov_chart}}"}})}
	e := newTestEngine(api, fastConfig())

	size := layout.Size{Width: layout.FromInches(8), Height: layout.FromInches(3.5)}
	pos := layout.Position{X: layout.FromInches(1), Y: layout.FromInches(2)}
	res := e.ReplaceImages(context.Background(), "doc-1", map[string]string{
		"{{aov_chart}}": "https://img/aov.png",
	}, map[string]ImageLayout{
		"{{aov_chart}}": {Size: size, Position: pos, Method: deckflow.ReplaceCenterCrop},
	})

	if !res.Success {
		t.Fatalf("success = false, errors = %v", res.Errors)
	}
	if len(api.calls) != 2 {
		t.Fatalf("calls = %d, want replace then position", len(api.calls))
	}

	replace := api.calls[0].requests
	if replace[0].ReplaceShapeWithImage == nil {
		t.Fatal("first call must be the shape replacement")
	}
	if got := replace[0].ReplaceShapeWithImage.ReplaceMethod; got != deckflow.ReplaceCenterCrop {
		t.Errorf("replace method = %q, want CENTER_CROP", got)
	}

	positioning := api.calls[1].requests
	if len(positioning) != 2 || positioning[0].UpdateSize == nil || positioning[1].UpdateTransform == nil {
		t.Fatalf("second call = %+v, want size then transform", positioning)
	}
	if got := positioning[0].UpdateSize.ObjectID; got != "img_1" {
		t.Errorf("positioned object = %q, want the created id", got)
	}
	if positioning[0].UpdateSize.Width != size.Width {
		t.Errorf("width = %d, want %d", positioning[0].UpdateSize.Width, size.Width)
	}
	if positioning[1].UpdateTransform.TranslateX != pos.X {
		t.Errorf("translateX = %d, want %d", positioning[1].UpdateTransform.TranslateX, pos.X)
	}
	if res.Details["charts_positioned"] != 1 {
		t.Errorf("charts_positioned = %v, want 1", res.Details["charts_positioned"])
	}
}

func TestEmptyOperationTriviallySucceeds(t *testing.T) {
	api := &fakeAPI{doc: docWith(slide{id: "slide1", texts: []string{"hello"}})}
	e := newTestEngine(api, fastConfig())

	if res := e.ReplaceText(context.Background(), "doc-1", nil); !res.Success {
		t.Error("empty text map must succeed without work")
	}
	if res := e.ReplaceImages(context.Background(), "doc-1", nil, nil); !res.Success {
		t.Error("empty image map must succeed without work")
	}
	if len(api.calls) != 0 {
		t.Errorf("calls = %d, want none for empty input", len(api.calls))
	}
}

func TestNoMatchingContainersIsFailure(t *testing.T) {
	api := &fakeAPI{doc: docWith(slide{id: "slide1", texts: []string{"static text"}})}
	e := newTestEngine(api, fastConfig())

	res := e.ReplaceText(context.Background(), "doc-1", map[string]string{"{{missing}}": "x"})
	if res.Success {
		t.Error("success = true with zero processed containers")
	}
	if len(res.Errors) != 0 {
		t.Errorf("errors = %v, want none", res.Errors)
	}
}

func TestDocumentFetchFailureIsRecorded(t *testing.T) {
	api := &fakeAPI{docErr: errors.New("backend returned 500")}
	e := newTestEngine(api, fastConfig())

	res := e.ReplaceText(context.Background(), "doc-1", map[string]string{"{{a}}": "x"})
	if res.Success {
		t.Error("success = true without a document")
	}
	if len(res.Errors) != 1 {
		t.Errorf("errors = %v, want the fetch failure", res.Errors)
	}
}

func TestRunStrategiesFallsBack(t *testing.T) {
	calls := []string{}
	strategies := []Strategy{
		{
			Name: deckflow.ModeFast,
			Run: func(ctx context.Context) (*deckflow.OperationResult, error) {
				calls = append(calls, "fast")
				return &deckflow.OperationResult{Success: false, Errors: []string{"boom"}}, nil
			},
		},
		{
			Name: deckflow.ModeSequentialFallback,
			Run: func(ctx context.Context) (*deckflow.OperationResult, error) {
				calls = append(calls, "sequential")
				return &deckflow.OperationResult{Success: true}, nil
			},
		},
	}

	res, err := RunStrategies(context.Background(), nil, strategies)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if res.Mode != deckflow.ModeSequentialFallback {
		t.Errorf("mode = %q, want the winning strategy's mode", res.Mode)
	}
	if !res.FallbackUsed || !strings.Contains(res.FallbackReason, "fast") {
		t.Errorf("fallback = %v %q, want reason naming the first failure", res.FallbackUsed, res.FallbackReason)
	}
	if len(calls) != 2 {
		t.Errorf("calls = %v, want both strategies tried", calls)
	}
}

func TestRunStrategiesAllFail(t *testing.T) {
	strategies := []Strategy{
		{
			Name: deckflow.ModeFast,
			Run: func(ctx context.Context) (*deckflow.OperationResult, error) {
				return nil, errors.New("backend returned 500")
			},
		},
		{
			Name: deckflow.ModeLegacy,
			Run: func(ctx context.Context) (*deckflow.OperationResult, error) {
				return &deckflow.OperationResult{Success: false, Errors: []string{"still down"}}, nil
			},
		},
	}

	res, err := RunStrategies(context.Background(), nil, strategies)
	var allErr *AllFailedError
	if !errors.As(err, &allErr) {
		t.Fatalf("err = %v, want AllFailedError", err)
	}
	if len(allErr.Attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(allErr.Attempts))
	}
	if res == nil || res.Success {
		t.Error("last failing result must be returned unsuccessful")
	}
}

func TestLockManagerIsolatesDocuments(t *testing.T) {
	m := NewLockManager()
	m.Lock("doc-a")

	done := make(chan struct{})
	go func() {
		m.Lock("doc-b")
		m.Unlock("doc-b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different document must not block")
	}
	m.Unlock("doc-a")

	// Reacquiring after unlock must succeed.
	m.Lock("doc-a")
	m.Unlock("doc-a")
}
