package simulation

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Readm/street_sim/core"
	"github.com/Readm/street_sim/vehicle"
	"golang.org/x/crypto/sha3"
)

const (
	DefaultTotalSteps   = 1000
	DefaultWorkers      = 1
	DefaultVehicles     = 50
	DefaultSpawnWindow  = 20
	ConfigHashLength    = 12
	maxGenerationTrials = 16
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config describes one simulation run. It is immutable while a run is in
// progress; changes go through ConfigHolder and take effect on reset.
type Config struct {
	Name          string  `json:"name"`
	Seed          uint64  `json:"seed"`
	Workers       int     `json:"workers"`
	TotalSteps    int     `json:"totalSteps"`
	MetersPerCell float64 `json:"metersPerCell"`
	// StepIntervalMs paces Run for live observation; 0 runs flat out.
	StepIntervalMs int `json:"stepIntervalMs"`

	Behavior vehicle.Behavior   `json:"behavior"`
	Crossing core.CrossingLogic `json:"crossing"`

	// Vehicles and MaxSpawnDelay drive random scenario generation.
	Vehicles      int `json:"vehicles"`
	MaxSpawnDelay int `json:"maxSpawnDelay"`

	Plugins     []string                 `json:"plugins,omitempty"`
	NodePlugins map[core.NodeID][]string `json:"nodePlugins,omitempty"`
}

// DefaultConfig returns a config that passes validation unchanged.
func DefaultConfig() Config {
	return Config{
		Name:          "default",
		Seed:          1,
		Workers:       DefaultWorkers,
		TotalSteps:    DefaultTotalSteps,
		MetersPerCell: core.DefaultMetersPerCell,
		Behavior:      vehicle.DefaultBehavior(),
		Crossing:      core.DefaultCrossingLogic(),
		Vehicles:      DefaultVehicles,
		MaxSpawnDelay: DefaultSpawnWindow,
	}
}

// ValidateConfig applies structural checks to cfg and populates defaults
// where required.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("%w: Workers must be non-negative, got %d", ErrInvalidConfig, cfg.Workers)
	}
	if cfg.TotalSteps < 0 {
		return fmt.Errorf("%w: TotalSteps must be non-negative, got %d", ErrInvalidConfig, cfg.TotalSteps)
	}
	if cfg.MetersPerCell < 0 {
		return fmt.Errorf("%w: MetersPerCell must be non-negative, got %v", ErrInvalidConfig, cfg.MetersPerCell)
	}
	if cfg.Vehicles < 0 {
		return fmt.Errorf("%w: Vehicles must be non-negative, got %d", ErrInvalidConfig, cfg.Vehicles)
	}
	if cfg.MaxSpawnDelay < 0 {
		return fmt.Errorf("%w: MaxSpawnDelay must be non-negative, got %d", ErrInvalidConfig, cfg.MaxSpawnDelay)
	}
	if cfg.StepIntervalMs < 0 {
		return fmt.Errorf("%w: StepIntervalMs must be non-negative, got %d", ErrInvalidConfig, cfg.StepIntervalMs)
	}
	if cfg.Behavior.MaxVelocity == 0 {
		defaults := vehicle.DefaultBehavior()
		cfg.Behavior.MaxVelocity = defaults.MaxVelocity
	}
	if err := cfg.Behavior.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.TotalSteps == 0 {
		cfg.TotalSteps = DefaultTotalSteps
	}
	if cfg.MetersPerCell == 0 {
		cfg.MetersPerCell = core.DefaultMetersPerCell
	}
	return nil
}

// Hash is a short digest of the config used to tell runs apart. Worker
// count and pacing are excluded: they never change the outcome.
func (c Config) Hash() string {
	c.Workers = 0
	c.StepIntervalMs = 0
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])[:ConfigHashLength]
}

// ConfigHolder guards the active configuration. An invalid change is
// refused and the previous configuration stays in effect.
type ConfigHolder struct {
	mu  sync.RWMutex
	cfg Config
}

// NewConfigHolder validates cfg and wraps it.
func NewConfigHolder(cfg Config) (*ConfigHolder, error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &ConfigHolder{cfg: cfg}, nil
}

// Get returns a copy of the active configuration.
func (h *ConfigHolder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.clone()
}

// Set replaces the configuration if cfg is valid.
func (h *ConfigHolder) Set(cfg Config) error {
	if err := ValidateConfig(&cfg); err != nil {
		return err
	}
	h.mu.Lock()
	h.cfg = cfg.clone()
	h.mu.Unlock()
	return nil
}

// Update applies fn to a copy of the configuration and keeps the result if
// it validates.
func (h *ConfigHolder) Update(fn func(*Config)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := h.cfg.clone()
	fn(&next)
	if err := ValidateConfig(&next); err != nil {
		return err
	}
	h.cfg = next
	return nil
}

func (c Config) clone() Config {
	out := c
	out.Plugins = append([]string(nil), c.Plugins...)
	if c.NodePlugins != nil {
		out.NodePlugins = make(map[core.NodeID][]string, len(c.NodePlugins))
		for k, v := range c.NodePlugins {
			out.NodePlugins[k] = append([]string(nil), v...)
		}
	}
	return out
}
