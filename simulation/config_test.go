package simulation

import (
	"errors"
	"testing"

	"github.com/Readm/street_sim/core"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
		{"negative steps", func(c *Config) { c.TotalSteps = -5 }, false},
		{"negative vehicles", func(c *Config) { c.Vehicles = -1 }, false},
		{"negative spawn window", func(c *Config) { c.MaxSpawnDelay = -1 }, false},
		{"negative meters per cell", func(c *Config) { c.MetersPerCell = -7.5 }, false},
		{"factor sum above one", func(c *Config) { c.Behavior.DashFactor, c.Behavior.DawdleFactor = 0.6, 0.5 }, false},
		{"negative dawdle", func(c *Config) { c.Behavior.DawdleFactor = -0.2 }, false},
		{"negative max velocity", func(c *Config) { c.Behavior.MaxVelocity = -1 }, false},
		{"factor sum exactly one", func(c *Config) { c.Behavior.DashFactor, c.Behavior.DawdleFactor = 0.5, 0.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&cfg)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidateConfigFillsDefaults(t *testing.T) {
	var cfg Config
	if err := ValidateConfig(&cfg); err != nil {
		t.Fatalf("zero config: %v", err)
	}
	if cfg.Workers != DefaultWorkers || cfg.TotalSteps != DefaultTotalSteps {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.MetersPerCell != core.DefaultMetersPerCell {
		t.Fatalf("expected meters per cell %v, got %v", core.DefaultMetersPerCell, cfg.MetersPerCell)
	}
	if cfg.Behavior.MaxVelocity <= 0 {
		t.Fatalf("expected a default max velocity, got %d", cfg.Behavior.MaxVelocity)
	}
	if err := ValidateConfig(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected nil config to be rejected, got %v", err)
	}
}

func TestConfigHash(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	b.Workers = 8
	b.StepIntervalMs = 50
	if a.Hash() != b.Hash() {
		t.Fatalf("worker count and pacing must not change the hash")
	}
	if len(a.Hash()) != ConfigHashLength {
		t.Fatalf("expected hash of %d chars, got %q", ConfigHashLength, a.Hash())
	}
	b.Seed++
	if a.Hash() == b.Hash() {
		t.Fatalf("seed change must change the hash")
	}
}

func TestConfigHolder(t *testing.T) {
	h, err := NewConfigHolder(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	bad := h.Get()
	bad.Behavior.DashFactor = 2
	if err := h.Set(bad); err == nil {
		t.Fatalf("expected invalid config to be refused")
	}
	if h.Get().Behavior.DashFactor != DefaultConfig().Behavior.DashFactor {
		t.Fatalf("previous config must be retained")
	}

	if err := h.Update(func(c *Config) { c.Seed = 7 }); err != nil {
		t.Fatal(err)
	}
	if h.Get().Seed != 7 {
		t.Fatalf("update not applied")
	}
	if err := h.Update(func(c *Config) { c.Seed = 8; c.Workers = -2 }); err == nil {
		t.Fatalf("expected invalid update to be refused")
	}
	if h.Get().Seed != 7 {
		t.Fatalf("refused update must not leak, seed %d", h.Get().Seed)
	}

	got := h.Get()
	got.Plugins = append(got.Plugins, "trace")
	if len(h.Get().Plugins) != 0 {
		t.Fatalf("Get must return a copy")
	}
}
