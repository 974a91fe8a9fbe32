// Package monitor records per-operation outcomes, aggregates them over
// sliding time windows, and fires alerts against a fixed threshold
// table. A critical alert invokes the fallback controller's rollback so
// sustained degradation drains traffic off the fast path without human
// intervention.
package monitor

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/deckflow/deckflow-go/deckflow"
)

// RollbackTrigger is the slice of the fallback controller the monitor
// needs. Critical alerts call it with a human-readable reason.
type RollbackTrigger interface {
	Rollback(reason string)
}

// Observation is one recorded operation outcome.
type Observation struct {
	Timestamp     time.Time              `json:"timestamp"`
	Operation     string                 `json:"operation"`
	Mode          deckflow.ExecutionMode `json:"mode"`
	Success       bool                   `json:"success"`
	Elapsed       time.Duration          `json:"elapsed"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// WindowStats are aggregates over one sliding window.
type WindowStats struct {
	Samples           int
	Failures          int
	ErrorRate         float64
	AvgElapsed        time.Duration
	MinElapsed        time.Duration
	MaxElapsed        time.Duration
	FailuresPerMinute float64
	CallsPerMinute    float64
}

// Severity tags a threshold; only critical ones trigger rollback.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Threshold is one row of the alert table.
type Threshold struct {
	Name       string
	Severity   Severity
	Window     time.Duration
	MinSamples int
	Limit      float64
	Value      func(WindowStats) float64
}

// Alert is one fired threshold.
type Alert struct {
	Name     string
	Severity Severity
	Value    float64
	Limit    float64
	At       time.Time
}

// DefaultThresholds returns the production alert table.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{
			Name:       "error_rate_high",
			Severity:   SeverityCritical,
			Window:     300 * time.Second,
			MinSamples: 5,
			Limit:      0.10,
			Value:      func(s WindowStats) float64 { return s.ErrorRate },
		},
		{
			Name:       "latency_high",
			Severity:   SeverityWarning,
			Window:     300 * time.Second,
			MinSamples: 5,
			Limit:      30.0,
			Value:      func(s WindowStats) float64 { return s.AvgElapsed.Seconds() },
		},
		{
			Name:       "failure_burst",
			Severity:   SeverityCritical,
			Window:     60 * time.Second,
			MinSamples: 3,
			Limit:      3.0,
			Value:      func(s WindowStats) float64 { return s.FailuresPerMinute },
		},
		{
			Name:       "api_rate_high",
			Severity:   SeverityWarning,
			Window:     60 * time.Second,
			MinSamples: 10,
			Limit:      100.0,
			Value:      func(s WindowStats) float64 { return s.CallsPerMinute },
		},
	}
}

// Config tunes the monitor.
type Config struct {
	// Capacity bounds the observation ring.
	Capacity int

	// AlertCooldown suppresses refiring the same alert name.
	AlertCooldown time.Duration

	// HealthWindow is the lookback used by HealthStatus.
	HealthWindow time.Duration

	Thresholds []Threshold
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Capacity:      10000,
		AlertCooldown: 300 * time.Second,
		HealthWindow:  300 * time.Second,
		Thresholds:    DefaultThresholds(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.AlertCooldown <= 0 {
		c.AlertCooldown = d.AlertCooldown
	}
	if c.HealthWindow <= 0 {
		c.HealthWindow = d.HealthWindow
	}
	if c.Thresholds == nil {
		c.Thresholds = d.Thresholds
	}
	return c
}

// Health is the reduced status surface for readiness probes.
type Health struct {
	Status string   `json:"status"`
	Issues []string `json:"issues"`
}

// Monitor is the process-wide observation sink.
type Monitor struct {
	mu        sync.Mutex
	cfg       Config
	ring      []Observation
	alerts    []Alert
	lastFired map[string]time.Time

	trigger RollbackTrigger
	logger  *slog.Logger
	now     func() time.Time

	opsCounter   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMonitor builds a monitor. The trigger may be nil, in which case
// critical alerts only log.
func NewMonitor(cfg Config, trigger RollbackTrigger, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("github.com/deckflow/deckflow-go/monitor")
	opsCounter, _ := meter.Int64Counter("deckflow.operations",
		metric.WithDescription("Completed document operations"))
	durationHist, _ := meter.Float64Histogram("deckflow.operation.duration",
		metric.WithDescription("Operation wall time"), metric.WithUnit("s"))

	return &Monitor{
		cfg:          cfg.withDefaults(),
		lastFired:    make(map[string]time.Time),
		trigger:      trigger,
		logger:       logger,
		now:          time.Now,
		opsCounter:   opsCounter,
		durationHist: durationHist,
	}
}

// Record stores one outcome and evaluates the alert table.
func (m *Monitor) Record(operation string, mode deckflow.ExecutionMode, success bool, elapsed time.Duration, correlationID string, details map[string]interface{}) {
	obs := Observation{
		Timestamp:     m.now(),
		Operation:     operation,
		Mode:          mode,
		Success:       success,
		Elapsed:       elapsed,
		CorrelationID: correlationID,
		Details:       details,
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("mode", string(mode)),
		attribute.Bool("success", success),
	)
	m.opsCounter.Add(context.Background(), 1, attrs)
	m.durationHist.Record(context.Background(), elapsed.Seconds(), attrs)

	m.mu.Lock()
	m.ring = append(m.ring, obs)
	if len(m.ring) > m.cfg.Capacity {
		m.ring = m.ring[len(m.ring)-m.cfg.Capacity:]
	}
	fired := m.evaluateLocked()
	m.mu.Unlock()

	for _, a := range fired {
		if a.Severity == SeverityCritical {
			reason := fmt.Sprintf("%s: %.2f exceeds %.2f", a.Name, a.Value, a.Limit)
			m.logger.Error("critical alert", "alert", a.Name,
				"value", a.Value, "limit", a.Limit)
			if m.trigger != nil {
				m.trigger.Rollback(reason)
			}
			continue
		}
		m.logger.Warn("alert", "alert", a.Name, "value", a.Value, "limit", a.Limit)
	}
}

// Window computes aggregates over the trailing duration.
func (m *Monitor) Window(d time.Duration) WindowStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.windowLocked(d)
}

// Alerts returns the alerts fired so far, oldest first.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// HealthStatus reduces the recent window to healthy/degraded/critical.
func (m *Monitor) HealthStatus() Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.windowLocked(m.cfg.HealthWindow)
	h := Health{Status: "healthy", Issues: []string{}}
	if stats.Samples == 0 {
		return h
	}

	if stats.ErrorRate > 0.5 {
		h.Status = "critical"
		h.Issues = append(h.Issues, fmt.Sprintf("success rate %.0f%% over recent window", (1-stats.ErrorRate)*100))
	}
	for _, th := range m.cfg.Thresholds {
		s := m.windowLocked(th.Window)
		if s.Samples < th.MinSamples {
			continue
		}
		if v := th.Value(s); v > th.Limit {
			h.Issues = append(h.Issues, fmt.Sprintf("%s: %.2f exceeds %.2f", th.Name, v, th.Limit))
			if th.Severity == SeverityCritical {
				h.Status = "critical"
			} else if h.Status == "healthy" {
				h.Status = "degraded"
			}
		}
	}
	if h.Status == "healthy" && stats.ErrorRate > 0.2 {
		h.Status = "degraded"
		h.Issues = append(h.Issues, fmt.Sprintf("success rate %.0f%% over recent window", (1-stats.ErrorRate)*100))
	}
	return h
}

// Export serializes the retained observations as "json" or "csv".
func (m *Monitor) Export(format string) ([]byte, error) {
	m.mu.Lock()
	ring := make([]Observation, len(m.ring))
	copy(ring, m.ring)
	m.mu.Unlock()

	switch format {
	case "json":
		return json.MarshalIndent(ring, "", "  ")
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		w.Write([]string{"timestamp", "operation", "mode", "success", "elapsed_seconds", "correlation_id"})
		for _, o := range ring {
			w.Write([]string{
				o.Timestamp.Format(time.RFC3339Nano),
				o.Operation,
				string(o.Mode),
				strconv.FormatBool(o.Success),
				strconv.FormatFloat(o.Elapsed.Seconds(), 'f', 3, 64),
				o.CorrelationID,
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// windowLocked aggregates observations newer than now-d. Callers hold
// m.mu.
func (m *Monitor) windowLocked(d time.Duration) WindowStats {
	cutoff := m.now().Add(-d)
	var stats WindowStats
	elapsed := make([]float64, 0, len(m.ring))

	for i := len(m.ring) - 1; i >= 0; i-- {
		o := m.ring[i]
		if o.Timestamp.Before(cutoff) {
			break
		}
		stats.Samples++
		if !o.Success {
			stats.Failures++
		}
		elapsed = append(elapsed, o.Elapsed.Seconds())
	}
	if stats.Samples == 0 {
		return stats
	}

	stats.ErrorRate = float64(stats.Failures) / float64(stats.Samples)
	stats.AvgElapsed = time.Duration(stat.Mean(elapsed, nil) * float64(time.Second))
	stats.MinElapsed = time.Duration(floats.Min(elapsed) * float64(time.Second))
	stats.MaxElapsed = time.Duration(floats.Max(elapsed) * float64(time.Second))
	minutes := d.Minutes()
	if minutes > 0 {
		stats.FailuresPerMinute = float64(stats.Failures) / minutes
		stats.CallsPerMinute = float64(stats.Samples) / minutes
	}
	return stats
}

// evaluateLocked runs the threshold table and returns alerts that fired
// outside their cooldown. Callers hold m.mu.
func (m *Monitor) evaluateLocked() []Alert {
	now := m.now()
	var fired []Alert
	for _, th := range m.cfg.Thresholds {
		stats := m.windowLocked(th.Window)
		if stats.Samples < th.MinSamples {
			continue
		}
		v := th.Value(stats)
		if v <= th.Limit {
			continue
		}
		if last, ok := m.lastFired[th.Name]; ok && now.Sub(last) < m.cfg.AlertCooldown {
			continue
		}
		m.lastFired[th.Name] = now
		a := Alert{Name: th.Name, Severity: th.Severity, Value: v, Limit: th.Limit, At: now}
		m.alerts = append(m.alerts, a)
		fired = append(fired, a)
	}
	return fired
}
