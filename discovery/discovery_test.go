package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/deckflow/deckflow-go/deckflow"
)

// fakeAPI serves a fixed document or a fixed error.
type fakeAPI struct {
	doc  *deckflow.Document
	err  error
	gets int
}

func (f *fakeAPI) Document(ctx context.Context, id string) (*deckflow.Document, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func (f *fakeAPI) BatchUpdate(ctx context.Context, id string, reqs []deckflow.Request) ([]deckflow.Reply, error) {
	return nil, errors.New("not implemented")
}

func templateDoc() *deckflow.Document {
	return &deckflow.Document{
		ID: "doc-1",
		Containers: []deckflow.Container{
			{
				ID: "slide-1",
				Elements: []deckflow.Element{
					{ObjectID: "el-1", Text: "{{aov_title}}"},
					{ObjectID: "el-2", Text: "Revenue: {{aov_chart}} and notes"},
					{ObjectID: "el-3", Text: "no tokens here"},
				},
			},
			{
				ID: "slide-2",
				Elements: []deckflow.Element{
					{ObjectID: "el-4", Text: "{{monthly-sales-over-time_chart}}"},
					{ObjectID: "el-5", Text: "{{logo_img}}"},
					{ObjectID: "el-6", Text: "{{mystery}}"},
				},
			},
		},
	}
}

func TestExtract(t *testing.T) {
	placeholders := Extract(templateDoc())
	if len(placeholders) != 5 {
		t.Fatalf("got %d placeholders, want 5", len(placeholders))
	}

	byToken := make(map[string]deckflow.Placeholder)
	for _, p := range placeholders {
		byToken[p.RawToken] = p
	}

	title := byToken["{{aov_title}}"]
	if title.Kind != deckflow.KindText || title.Slug != "aov" {
		t.Errorf("aov_title = kind %s slug %q, want text/aov", title.Kind, title.Slug)
	}

	chart := byToken["{{aov_chart}}"]
	if chart.Kind != deckflow.KindChart || chart.Slug != "aov" {
		t.Errorf("aov_chart = kind %s slug %q, want chart/aov", chart.Kind, chart.Slug)
	}
	if chart.TypeHint != "aov" || chart.Priority != 7 {
		t.Errorf("aov_chart hint = (%q, %d), want (aov, 7)", chart.TypeHint, chart.Priority)
	}
	if chart.ContainerID != "slide-1" || chart.ObjectID != "el-2" {
		t.Errorf("aov_chart location = %s/%s", chart.ContainerID, chart.ObjectID)
	}

	sales := byToken["{{monthly-sales-over-time_chart}}"]
	if sales.TypeHint != "monthly_sales_trend" {
		t.Errorf("sales chart hint = %q, want monthly_sales_trend", sales.TypeHint)
	}

	img := byToken["{{logo_img}}"]
	if img.Kind != deckflow.KindImage {
		t.Errorf("logo_img kind = %s, want image", img.Kind)
	}

	if byToken["{{mystery}}"].Kind != deckflow.KindUnknown {
		t.Errorf("mystery kind = %s, want unknown", byToken["{{mystery}}"].Kind)
	}
}

func TestDiscoverPrimary(t *testing.T) {
	s := NewScanner(&fakeAPI{doc: templateDoc()}, nil, nil)
	got := s.Discover(context.Background(), "doc-1")
	if len(got) != 5 {
		t.Errorf("got %d placeholders, want 5", len(got))
	}
}

func TestDiscoverFallsBackToLegacy(t *testing.T) {
	primary := &fakeAPI{err: errors.New("connection refused")}
	legacy := &fakeAPI{doc: templateDoc()}
	s := NewScanner(primary, legacy, nil)

	got := s.Discover(context.Background(), "doc-1")
	if len(got) != 5 {
		t.Errorf("got %d placeholders via legacy, want 5", len(got))
	}
	if primary.gets != 1 || legacy.gets != 1 {
		t.Errorf("calls = (%d, %d), want one each", primary.gets, legacy.gets)
	}
}

func TestDiscoverDegradesToEmpty(t *testing.T) {
	s := NewScanner(
		&fakeAPI{err: errors.New("connection refused")},
		&fakeAPI{err: errors.New("also down")},
		nil,
	)
	if got := s.Discover(context.Background(), "doc-1"); len(got) != 0 {
		t.Errorf("got %d placeholders, want empty on total failure", len(got))
	}
}

func TestSlugsDeduplicates(t *testing.T) {
	got := Slugs(Extract(templateDoc()))
	want := map[string]bool{"aov": true, "monthly-sales-over-time": true, "logo_img": true, "mystery": true}
	if len(got) != len(want) {
		t.Fatalf("Slugs = %v, want %d unique entries", got, len(want))
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected slug %q", s)
		}
	}
}
