// Package flags decides, per document, whether the fast concurrent
// styling path or the guaranteed-correct legacy path handles a request.
//
// Resolution precedence: forced mode, document denylist, document
// allowlist, automatic performance fallback, percentage rollout, and
// finally legacy. The rollout bucket is a stable hash of the document
// id so a document's decision does not flap within a rollout window.
package flags

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/deckflow/deckflow-go/deckflow"
)

// Mode selects the controller's overall policy.
type Mode string

const (
	// ModeLegacy forces the sequential path for every document.
	ModeLegacy Mode = "legacy"

	// ModeFast forces the concurrent path for every document.
	ModeFast Mode = "fast"

	// ModeHybrid applies lists, performance fallback, and rollout.
	ModeHybrid Mode = "hybrid"

	// ModeAuto behaves like hybrid; it exists so configs written for
	// the autonomous policy keep working.
	ModeAuto Mode = "auto"
)

// Config tunes the controller.
type Config struct {
	Mode              Mode     `json:"mode"`
	RolloutPercentage float64  `json:"rollout_percentage"`
	Allowlist         []string `json:"allowlist"`
	Denylist          []string `json:"denylist"`

	// MinSamples is how many recent fast-path outcomes are required
	// before the performance fallback can trigger.
	MinSamples int `json:"min_samples"`

	// MaxErrorRate is the fast-path error-rate ceiling (fraction).
	MaxErrorRate float64 `json:"max_error_rate"`

	// MaxAvgElapsed is the fast-path average-latency ceiling.
	MaxAvgElapsed time.Duration `json:"-"`

	// MaxAvgElapsedSeconds mirrors MaxAvgElapsed for file configs.
	MaxAvgElapsedSeconds float64 `json:"max_avg_elapsed_seconds"`

	// WindowSize bounds the outcome ring used for the fallback check.
	WindowSize int `json:"window_size"`
}

// DefaultConfig returns the production policy: hybrid mode, nothing
// rolled out, fallback at 5% errors or 30s average over 10 samples.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeHybrid,
		RolloutPercentage: 0,
		MinSamples:        10,
		MaxErrorRate:      0.05,
		MaxAvgElapsed:     30 * time.Second,
		WindowSize:        100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.MinSamples <= 0 {
		c.MinSamples = d.MinSamples
	}
	if c.MaxErrorRate <= 0 {
		c.MaxErrorRate = d.MaxErrorRate
	}
	if c.MaxAvgElapsed <= 0 {
		if c.MaxAvgElapsedSeconds > 0 {
			c.MaxAvgElapsed = time.Duration(c.MaxAvgElapsedSeconds * float64(time.Second))
		} else {
			c.MaxAvgElapsed = d.MaxAvgElapsed
		}
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	return c
}

// LoadConfig reads a JSON config file and applies defaults. A missing
// file is not an error; the defaults are returned.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading flag config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing flag config %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

type outcome struct {
	success bool
	elapsed time.Duration
}

// Snapshot is a point-in-time view of the controller for diagnostics.
type Snapshot struct {
	Mode              Mode
	RolloutPercentage float64
	RolledBack        bool
	RollbackReason    string
	Samples           int
	ErrorRate         float64
	AvgElapsed        time.Duration
}

// Controller is the process-wide fast-path gate. All state is guarded
// by one mutex; callers never lock it directly.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	allow    map[string]struct{}
	deny     map[string]struct{}
	outcomes []outcome

	rolledBack     bool
	rollbackReason string
	onRollback     func(reason string)

	logger *slog.Logger
}

// OnRollback registers a callback fired whenever the fast path is
// rolled back. The callback runs outside the controller's mutex.
func (c *Controller) OnRollback(fn func(reason string)) {
	c.mu.Lock()
	c.onRollback = fn
	c.mu.Unlock()
}

// NewController builds a controller. Zero config fields use defaults.
func NewController(cfg Config, logger *slog.Logger) *Controller {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		cfg:    cfg,
		allow:  make(map[string]struct{}, len(cfg.Allowlist)),
		deny:   make(map[string]struct{}, len(cfg.Denylist)),
		logger: logger,
	}
	for _, id := range cfg.Allowlist {
		c.allow[id] = struct{}{}
	}
	for _, id := range cfg.Denylist {
		c.deny[id] = struct{}{}
	}
	return c
}

// ShouldUseFastPath resolves the path for one document.
func (c *Controller) ShouldUseFastPath(documentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rolledBack {
		return false
	}
	switch c.cfg.Mode {
	case ModeFast:
		return true
	case ModeLegacy:
		return false
	}

	if _, denied := c.deny[documentID]; denied {
		return false
	}
	if _, allowed := c.allow[documentID]; allowed {
		return true
	}
	if c.degraded() {
		c.logger.Warn("fast path suppressed by performance fallback",
			"document_id", documentID, "samples", len(c.outcomes))
		return false
	}
	return c.rolloutAdmits(documentID)
}

// RecordOutcome feeds one finished operation back into the controller.
// Only fast-path outcomes count toward the performance fallback.
func (c *Controller) RecordOutcome(mode deckflow.ExecutionMode, success bool, elapsed time.Duration) {
	if mode != deckflow.ModeFast {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcomes = append(c.outcomes, outcome{success: success, elapsed: elapsed})
	if len(c.outcomes) > c.cfg.WindowSize {
		c.outcomes = c.outcomes[len(c.outcomes)-c.cfg.WindowSize:]
	}
}

// Rollback forces legacy mode with zero rollout, effective for the
// very next call. Callable manually or by the monitor.
func (c *Controller) Rollback(reason string) {
	c.mu.Lock()
	c.rolledBack = true
	c.rollbackReason = reason
	c.cfg.RolloutPercentage = 0
	c.logger.Error("fast path rolled back", "reason", reason)
	cb := c.onRollback
	c.mu.Unlock()

	if cb != nil {
		cb(reason)
	}
}

// Reinstate clears a rollback, restoring the configured policy.
func (c *Controller) Reinstate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rolledBack = false
	c.rollbackReason = ""
	c.logger.Info("fast path reinstated")
}

// State reports the controller's current view for diagnostics.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Mode:              c.cfg.Mode,
		RolloutPercentage: c.cfg.RolloutPercentage,
		RolledBack:        c.rolledBack,
		RollbackReason:    c.rollbackReason,
		Samples:           len(c.outcomes),
	}
	if len(c.outcomes) > 0 {
		var failures int
		var total time.Duration
		for _, o := range c.outcomes {
			if !o.success {
				failures++
			}
			total += o.elapsed
		}
		s.ErrorRate = float64(failures) / float64(len(c.outcomes))
		s.AvgElapsed = total / time.Duration(len(c.outcomes))
	}
	return s
}

// degraded reports whether recent fast-path outcomes exceed the error
// or latency ceilings. Callers hold c.mu.
func (c *Controller) degraded() bool {
	if len(c.outcomes) < c.cfg.MinSamples {
		return false
	}
	var failures int
	var total time.Duration
	for _, o := range c.outcomes {
		if !o.success {
			failures++
		}
		total += o.elapsed
	}
	errRate := float64(failures) / float64(len(c.outcomes))
	avg := total / time.Duration(len(c.outcomes))
	return errRate > c.cfg.MaxErrorRate || avg > c.cfg.MaxAvgElapsed
}

// rolloutAdmits buckets the document id into [0, 2^32) by the first
// four bytes of its md5 digest and admits ids below the rollout cut.
// Callers hold c.mu.
func (c *Controller) rolloutAdmits(documentID string) bool {
	pct := c.cfg.RolloutPercentage
	if pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	sum := md5.Sum([]byte(documentID))
	bucket := binary.BigEndian.Uint32(sum[:4])
	return float64(bucket) < pct/100*float64(1<<32)
}
