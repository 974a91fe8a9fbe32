package config

import (
	"testing"
	"time"

	"github.com/deckflow/deckflow-go/flags"
)

func TestDefaultsWithoutEnvironment(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "deckflow" {
		t.Errorf("service = %q", cfg.ServiceName)
	}
	if cfg.Engine.SubBatchSize != 3 || cfg.Engine.MaxConcurrentContainers != 3 {
		t.Errorf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.Flags.Mode != flags.ModeHybrid || cfg.Flags.RolloutPercentage != 0 {
		t.Errorf("flag defaults = %+v", cfg.Flags)
	}
	if !cfg.StylingEnabled || cfg.ForceSequential {
		t.Error("styling must default on, forced sequential off")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DECKFLOW_SUB_BATCH_SIZE", "5")
	t.Setenv("DECKFLOW_RETRY_DELAY", "2s")
	t.Setenv("DECKFLOW_CALL_TIMEOUT", "15")
	t.Setenv("DECKFLOW_MODE", "hybrid")
	t.Setenv("DECKFLOW_ROLLOUT_PERCENTAGE", "25.5")
	t.Setenv("DECKFLOW_ALLOWLIST", "doc-1, doc-2,")
	t.Setenv("DECKFLOW_STYLING_ENABLED", "off")
	t.Setenv("DECKFLOW_FORCE_SEQUENTIAL", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.SubBatchSize != 5 {
		t.Errorf("sub batch = %d", cfg.Engine.SubBatchSize)
	}
	if cfg.Engine.RetryDelay != 2*time.Second {
		t.Errorf("retry delay = %v", cfg.Engine.RetryDelay)
	}
	// Bare numbers are seconds.
	if cfg.Engine.CallTimeout != 15*time.Second {
		t.Errorf("call timeout = %v", cfg.Engine.CallTimeout)
	}
	if cfg.Flags.RolloutPercentage != 25.5 {
		t.Errorf("rollout = %v", cfg.Flags.RolloutPercentage)
	}
	if len(cfg.Flags.Allowlist) != 2 || cfg.Flags.Allowlist[1] != "doc-2" {
		t.Errorf("allowlist = %v", cfg.Flags.Allowlist)
	}
	if cfg.StylingEnabled {
		t.Error("styling must honor off")
	}
	if !cfg.ForceSequential {
		t.Error("forced sequential must honor yes")
	}
}

func TestInvalidValuesReported(t *testing.T) {
	t.Setenv("DECKFLOW_SUB_BATCH_SIZE", "a lot")

	cfg, err := Load()
	if err == nil {
		t.Fatal("invalid int must be reported")
	}
	// The bad value falls back instead of zeroing the engine.
	if cfg.Engine.SubBatchSize != 3 {
		t.Errorf("sub batch = %d, want default kept", cfg.Engine.SubBatchSize)
	}
}

func TestBoolSpellings(t *testing.T) {
	for _, v := range []string{"true", "1", "yes", "on", "enabled", "TRUE"} {
		t.Setenv("DECKFLOW_STRUCTURED_LOGS", v)
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load with %q: %v", v, err)
		}
		if !cfg.StructuredLogs {
			t.Errorf("%q must parse as true", v)
		}
	}
	t.Setenv("DECKFLOW_STRUCTURED_LOGS", "nope")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StructuredLogs {
		t.Error("unknown spelling must parse as false")
	}
}
