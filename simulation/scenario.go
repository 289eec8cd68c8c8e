package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Readm/street_sim/core"
	"github.com/Readm/street_sim/routing"
	"github.com/Readm/street_sim/scheduler"
	"github.com/Readm/street_sim/vehicle"
	"github.com/samber/lo"
)

// ErrGenerationIncomplete is returned by Prepare when vehicle generation was
// interrupted before every vehicle was built.
var ErrGenerationIncomplete = errors.New("vehicle generation incomplete")

// Scenario populates a graph with vehicles. Generate must be deterministic
// for a given graph and config.
type Scenario interface {
	Name() string
	Generate(ctx context.Context, g *core.Graph, cfg Config) ([]*vehicle.Vehicle, error)
}

// FixedRoute is one explicitly routed vehicle.
type FixedRoute struct {
	// ID defaults to the 1-based position in the scenario.
	ID         uint64
	Seed       uint64
	SpawnDelay int
	Edges      []core.EdgeKey
	// Behavior overrides the config behavior when set.
	Behavior *vehicle.Behavior
}

// FixedRoutesScenario spawns vehicles along predetermined routes.
type FixedRoutesScenario struct {
	Label  string
	Routes []FixedRoute
}

func (s *FixedRoutesScenario) Name() string {
	if s.Label == "" {
		return "fixed"
	}
	return s.Label
}

// Generate resolves the route edge keys against g.
func (s *FixedRoutesScenario) Generate(ctx context.Context, g *core.Graph, cfg Config) ([]*vehicle.Vehicle, error) {
	vehicles := make([]*vehicle.Vehicle, 0, len(s.Routes))
	for i, fr := range s.Routes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %d of %d vehicles: %w", ErrGenerationIncomplete, i, len(s.Routes), err)
		}
		edges := make([]*core.DirectedEdge, 0, len(fr.Edges))
		for _, key := range fr.Edges {
			e, ok := g.Edge(key)
			if !ok {
				return nil, fmt.Errorf("route %d: edge %s not found", i, key)
			}
			edges = append(edges, e)
		}
		id := fr.ID
		if id == 0 {
			id = uint64(i + 1)
		}
		behavior := cfg.Behavior
		if fr.Behavior != nil {
			behavior = *fr.Behavior
		}
		v, err := vehicle.New(vehicle.Options{
			ID:         id,
			Seed:       fr.Seed,
			GlobalSeed: cfg.Seed,
			SpawnDelay: fr.SpawnDelay,
			Behavior:   behavior,
			Route:      vehicle.NewRoute(edges...),
		})
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// RandomRouteScenario draws cfg.Vehicles origin/destination pairs from a
// stream seeded by the config seed and routes them with Router. Vehicles are
// generated in parallel over cfg.Workers; each vehicle draws from its own
// stream, so the result does not depend on the worker count.
type RandomRouteScenario struct {
	Label  string
	Weight routing.Weight
}

func (s *RandomRouteScenario) Name() string {
	if s.Label == "" {
		return "random"
	}
	return s.Label
}

// Generate builds the vehicles. Vehicles for which no route is found within
// a bounded number of draws get an empty route and despawn on their first
// spawn attempt.
func (s *RandomRouteScenario) Generate(ctx context.Context, g *core.Graph, cfg Config) ([]*vehicle.Vehicle, error) {
	origins := lo.Filter(g.SortedNodes(), func(n *core.Node, _ int) bool { return len(n.Outgoing()) > 0 })
	destinations := lo.Filter(g.SortedNodes(), func(n *core.Node, _ int) bool { return len(n.Incoming()) > 0 })
	if cfg.Vehicles > 0 && (len(origins) == 0 || len(destinations) == 0) {
		return nil, errors.New("graph has no routable nodes")
	}

	router := routing.New(g, s.Weight)

	pool := scheduler.NewPool(cfg.Workers)
	defer pool.Close()

	vehicles := make([]*vehicle.Vehicle, cfg.Vehicles)
	errs := make([]error, cfg.Vehicles)
	var interrupted atomic.Int64
	err := pool.Run("generate", cfg.Vehicles, func(i int) {
		if ctx.Err() != nil {
			interrupted.Add(1)
			return
		}
		vehicles[i], errs[i] = s.generateOne(router, origins, destinations, cfg, i)
	})
	if err != nil {
		return nil, err
	}
	if n := interrupted.Load(); n > 0 {
		return nil, fmt.Errorf("%w: %d of %d vehicles missing: %w", ErrGenerationIncomplete, n, cfg.Vehicles, ctx.Err())
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return vehicles, nil
}

func (s *RandomRouteScenario) generateOne(router *routing.Router, origins, destinations []*core.Node, cfg Config, i int) (*vehicle.Vehicle, error) {
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
	var route []*core.DirectedEdge
	for range maxGenerationTrials {
		o := origins[rng.IntN(len(origins))]
		d := destinations[rng.IntN(len(destinations))]
		if o == d {
			continue
		}
		r, err := router.Route(o.ID(), d.ID())
		if err != nil {
			if errors.Is(err, routing.ErrNoRoute) {
				continue
			}
			return nil, err
		}
		route = r
		break
	}
	delay := 0
	if cfg.MaxSpawnDelay > 0 {
		delay = rng.IntN(cfg.MaxSpawnDelay + 1)
	}
	return vehicle.New(vehicle.Options{
		ID:         uint64(i + 1),
		Seed:       rng.Uint64(),
		GlobalSeed: cfg.Seed,
		SpawnDelay: delay,
		Behavior:   cfg.Behavior,
		Route:      vehicle.NewRoute(route...),
	})
}

// Setup builds a fresh graph and the scenario that populates it.
type Setup func(cfg Config) (*core.Graph, Scenario, error)

// Preset is a named, ready-to-run setup.
type Preset struct {
	Name        string
	Description string
	Config      Config
	Setup       Setup
}

var (
	presetsOnce sync.Once
	presets     []Preset
)

// GetPredefinedScenarios returns all predefined setups.
func GetPredefinedScenarios() []Preset {
	presetsOnce.Do(func() {
		presets = []Preset{
			singleEdgePreset(),
			linePreset(),
			crossPreset(),
			gridPreset(),
		}
	})
	return slices.Clone(presets)
}

// GetScenarioByName returns a preset by name.
func GetScenarioByName(name string) (Preset, bool) {
	return lo.Find(GetPredefinedScenarios(), func(p Preset) bool { return p.Name == name })
}
