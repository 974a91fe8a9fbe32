package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/deckflow/deckflow-go/deckflow"
)

type fakeDataAgent struct {
	mu      sync.Mutex
	failing map[string]error
	fetched []string
}

func (f *fakeDataAgent) Fetch(ctx context.Context, key string, _ RequestContext) (*deckflow.MetricResult, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, key)
	err := f.failing[key]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &deckflow.MetricResult{
		Key: key,
		Payload: deckflow.NewStructuredPayload(map[string]interface{}{
			"structured_data": map[string]interface{}{"jan": 100},
			"description":     "steady growth",
		}),
	}, nil
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	agent := &fakeDataAgent{failing: map[string]error{
		"orders by user type": errors.New("upstream unavailable"),
	}}
	keys := []string{"AOV", "monthly sales over time", "orders by user type"}

	results := FetchAll(context.Background(), agent, keys, RequestContext{MerchantToken: "m-1"}, 2)

	if len(results) != 3 {
		t.Fatalf("results = %d, want one per key", len(results))
	}
	if res := results["AOV"]; res == nil || len(res.Errors) != 0 {
		t.Errorf("AOV = %+v, want clean result", res)
	}
	failed := results["orders by user type"]
	if failed == nil || len(failed.Errors) != 1 {
		t.Fatalf("failed key = %+v, want one error", failed)
	}
	if failed.Payload != nil {
		t.Error("failed key must carry no payload")
	}
}

func TestFetchAllFetchesEveryKey(t *testing.T) {
	agent := &fakeDataAgent{}
	keys := make([]string, 10)
	for i := range keys {
		keys[i] = fmt.Sprintf("metric %d", i)
	}

	results := FetchAll(context.Background(), agent, keys, RequestContext{}, 3)

	if len(results) != 10 {
		t.Fatalf("results = %d, want 10", len(results))
	}
	agent.mu.Lock()
	defer agent.mu.Unlock()
	if len(agent.fetched) != 10 {
		t.Errorf("fetched = %d, want every key exactly once", len(agent.fetched))
	}
}

type fakeChartAgent struct {
	rendered atomic.Int32
	failKey  string
}

func (f *fakeChartAgent) Render(_ context.Context, result *deckflow.MetricResult, category deckflow.ChartCategory) (string, error) {
	if result.Key == f.failKey {
		return "", errors.New("render failed")
	}
	f.rendered.Add(1)
	return fmt.Sprintf("/tmp/%s_%s.png", result.Key, category), nil
}

func TestRenderAllSkipsUnvalidatedPayloads(t *testing.T) {
	results := map[string]*deckflow.MetricResult{
		"AOV": {
			Key: "AOV",
			Payload: deckflow.NewStructuredPayload(map[string]interface{}{
				"structured_data": map[string]interface{}{"jan": 50.0},
				"description":     "aov trending upward",
			}),
		},
		"broken": {Key: "broken", Payload: deckflow.NewTextPayload("not structured")},
		"failed": {Key: "failed", Errors: []string{"upstream unavailable"}},
	}

	agent := &fakeChartAgent{}
	RenderAll(context.Background(), agent, results, 2)

	if got := agent.rendered.Load(); got != 1 {
		t.Errorf("rendered = %d, want only the structured payload", got)
	}
	if results["AOV"].ChartPath == "" {
		t.Error("ChartPath must be set on success")
	}
	if results["broken"].ChartPath != "" || results["failed"].ChartPath != "" {
		t.Error("unvalidated payloads must not be rendered")
	}
}

func TestRenderAllRecordsFailures(t *testing.T) {
	results := map[string]*deckflow.MetricResult{
		"AOV": {
			Key: "AOV",
			Payload: deckflow.NewStructuredPayload(map[string]interface{}{
				"structured_data": map[string]interface{}{"jan": 50.0},
			}),
		},
	}

	RenderAll(context.Background(), &fakeChartAgent{failKey: "AOV"}, results, 1)

	if results["AOV"].ChartPath != "" {
		t.Error("failed render must not set a path")
	}
	if len(results["AOV"].Errors) != 1 {
		t.Errorf("errors = %v, want the render failure", results["AOV"].Errors)
	}
}
