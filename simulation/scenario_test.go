package simulation

import (
	"context"
	"slices"
	"testing"

	"github.com/Readm/street_sim/core"
)

func TestPredefinedScenarios(t *testing.T) {
	presets := GetPredefinedScenarios()
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	if !slices.Equal(names, []string{"single_edge", "line", "cross", "grid"}) {
		t.Fatalf("unexpected presets %v", names)
	}
	for _, p := range presets {
		cfg := p.Config.clone()
		if err := ValidateConfig(&cfg); err != nil {
			t.Fatalf("%s: config invalid: %v", p.Name, err)
		}
		g, sc, err := p.Setup(cfg)
		if err != nil {
			t.Fatalf("%s: setup: %v", p.Name, err)
		}
		m := NewManager(g, cfg, nil, quietLogger())
		if err := m.Prepare(context.Background(), sc); err != nil {
			m.Close()
			t.Fatalf("%s: prepare: %v", p.Name, err)
		}
		if len(m.Vehicles()) == 0 {
			t.Fatalf("%s: no vehicles generated", p.Name)
		}
		m.Close()
	}
	if _, ok := GetScenarioByName("grid"); !ok {
		t.Fatalf("grid preset not found")
	}
	if _, ok := GetScenarioByName("nope"); ok {
		t.Fatalf("unexpected preset found")
	}
}

func TestGridGraphShape(t *testing.T) {
	g, err := GridGraph(5, 5, 75, 7.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes()) != 25 {
		t.Fatalf("expected 25 nodes, got %d", len(g.Nodes()))
	}
	// 2 * (rows*(cols-1) + cols*(rows-1)) directed edges
	if len(g.Edges()) != 80 {
		t.Fatalf("expected 80 edges, got %d", len(g.Edges()))
	}
	main, ok := g.EdgeBetween(11, 12)
	if !ok || len(main.Lanes()) != 2 || main.Priority() != 1 {
		t.Fatalf("expected two-lane priority main road between 11 and 12, got %v", main)
	}
	side, _ := g.EdgeBetween(1, 2)
	if len(side.Lanes()) != 1 || side.Priority() != 0 || side.Length() != 10 {
		t.Fatalf("unexpected side street %v (length %d)", side, side.Length())
	}
	if _, err := GridGraph(1, 1, 75, 7.5); err == nil {
		t.Fatalf("expected single-node grid to be rejected")
	}
}

func TestLineRoute(t *testing.T) {
	forward := LineRoute(1, 3)
	want := []core.EdgeKey{{Street: 1, Origin: 1, Destination: 2}, {Street: 2, Origin: 2, Destination: 3}}
	if !slices.Equal(forward, want) {
		t.Fatalf("forward route %v, want %v", forward, want)
	}
	backward := LineRoute(3, 1)
	want = []core.EdgeKey{{Street: 2, Origin: 3, Destination: 2}, {Street: 1, Origin: 2, Destination: 1}}
	if !slices.Equal(backward, want) {
		t.Fatalf("backward route %v, want %v", backward, want)
	}
	g, err := LineGraph(3, 150, 7.5)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range append(forward, backward...) {
		if _, ok := g.Edge(k); !ok {
			t.Fatalf("edge %s missing from line graph", k)
		}
	}
}

func TestFixedRoutesUnknownEdge(t *testing.T) {
	g, err := SingleEdgeGraph(5, 5, 7.5)
	if err != nil {
		t.Fatal(err)
	}
	sc := &FixedRoutesScenario{Routes: []FixedRoute{{Edges: []core.EdgeKey{{Street: 9, Origin: 1, Destination: 2}}}}}
	m := NewManager(g, DefaultConfig(), nil, quietLogger())
	defer m.Close()
	if err := m.Prepare(context.Background(), sc); err == nil {
		t.Fatalf("expected unknown edge to fail preparation")
	}
	if err := m.Step(); err != ErrNotPrepared {
		t.Fatalf("expected ErrNotPrepared, got %v", err)
	}
}

func TestFixedRoutesDuplicateIDs(t *testing.T) {
	g, err := SingleEdgeGraph(5, 5, 7.5)
	if err != nil {
		t.Fatal(err)
	}
	edge := []core.EdgeKey{{Street: 1, Origin: 1, Destination: 2}}
	sc := &FixedRoutesScenario{Routes: []FixedRoute{{ID: 3, Edges: edge}, {ID: 3, Edges: edge}}}
	m := NewManager(g, DefaultConfig(), nil, quietLogger())
	defer m.Close()
	if err := m.Prepare(context.Background(), sc); err == nil {
		t.Fatalf("expected duplicate vehicle ids to be rejected")
	}
}

func TestRandomScenarioIndependentOfWorkers(t *testing.T) {
	generate := func(workers int) []string {
		g, err := GridGraph(4, 4, 75, 7.5)
		if err != nil {
			t.Fatal(err)
		}
		cfg := DefaultConfig()
		cfg.Workers = workers
		cfg.Vehicles = 60
		vs, err := (&RandomRouteScenario{}).Generate(context.Background(), g, cfg)
		if err != nil {
			t.Fatal(err)
		}
		out := make([]string, len(vs))
		for i, v := range vs {
			route := v.Route().Remaining()
			out[i] = v.String()
			for _, e := range route {
				out[i] += " " + e.Key().String()
			}
		}
		return out
	}
	base := generate(1)
	if len(base) != 60 {
		t.Fatalf("expected 60 vehicles, got %d", len(base))
	}
	if got := generate(5); !slices.Equal(base, got) {
		t.Fatalf("generation depends on worker count")
	}
}

func TestEmptyRouteDespawnsOnFirstStep(t *testing.T) {
	g, err := SingleEdgeGraph(5, 5, 7.5)
	if err != nil {
		t.Fatal(err)
	}
	sc := &FixedRoutesScenario{Routes: []FixedRoute{{}}}
	m := NewManager(g, DefaultConfig(), nil, quietLogger())
	defer m.Close()
	if err := m.Prepare(context.Background(), sc); err != nil {
		t.Fatal(err)
	}
	if err := m.Step(); err != nil {
		t.Fatal(err)
	}
	st := m.Stats()
	if st.Despawned != 1 || st.DespawnedThisStep != 1 || st.InvalidRoutes != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
