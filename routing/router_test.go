package routing

import (
	"errors"
	"math"
	"testing"

	"github.com/Readm/street_sim/core"
	"github.com/paulmach/orb"
)

type edgeDef struct {
	from, to core.NodeID
	cells    int
}

func buildGraph(t *testing.T, nodes int, edges []edgeDef) *core.Graph {
	t.Helper()
	g := core.NewGraph(0)
	for i := 1; i <= nodes; i++ {
		if _, err := g.AddNode(core.NodeID(i), orb.Point{float64(i) * 10, float64(i%2) * 10}); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	for i, e := range edges {
		_, err := g.AddEdge(core.EdgeSpec{StreetID: int64(i + 1), Origin: e.from, Destination: e.to, Lanes: 1, MaxVelocity: 5, Cells: e.cells})
		if err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	return g
}

func keys(route []*core.DirectedEdge) [][2]core.NodeID {
	out := make([][2]core.NodeID, len(route))
	for i, e := range route {
		out[i] = [2]core.NodeID{e.Origin().ID(), e.Destination().ID()}
	}
	return out
}

func TestShortestRouteWithCycle(t *testing.T) {
	const a, b, c, d, e = 1, 2, 3, 4, 5
	g := buildGraph(t, 5, []edgeDef{
		{a, b, 1}, {b, c, 2}, {c, d, 1}, {d, e, 1}, {e, c, 1},
	})
	before := core.GUIDFrom(g)

	route, err := New(g, nil).Route(a, e)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	want := [][2]core.NodeID{{a, b}, {b, c}, {c, d}, {d, e}}
	got := keys(route)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if after := core.GUIDFrom(g); after != before {
		t.Fatalf("route query mutated the graph")
	}
}

func TestRoutePrefersCheaperDetour(t *testing.T) {
	g := buildGraph(t, 3, []edgeDef{{1, 3, 10}, {1, 2, 3}, {2, 3, 3}})
	r := New(g, nil)
	route, err := r.Route(1, 3)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(route) != 2 || route[0].Destination().ID() != 2 {
		t.Fatalf("expected detour over node 2, got %v", keys(route))
	}
	if r.Distance(1, 3) != 6 {
		t.Fatalf("expected distance 6, got %v", r.Distance(1, 3))
	}
}

func TestRouteTieBreakIsStable(t *testing.T) {
	g := buildGraph(t, 4, []edgeDef{{1, 3, 2}, {3, 4, 2}, {1, 2, 2}, {2, 4, 2}})
	for i := 0; i < 20; i++ {
		route, err := New(g, nil).Route(1, 4)
		if err != nil {
			t.Fatalf("Route: %v", err)
		}
		if route[0].Destination().ID() != 2 {
			t.Fatalf("run %d: expected tie broken towards node 2, got %v", i, keys(route))
		}
	}
}

func TestRouteUnreachable(t *testing.T) {
	g := buildGraph(t, 3, []edgeDef{{1, 2, 1}})
	r := New(g, nil)
	if _, err := r.Route(2, 1); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
	if !math.IsInf(r.Distance(1, 3), 1) {
		t.Fatalf("expected infinite distance")
	}
	if _, err := r.Route(1, 42); err == nil {
		t.Fatalf("expected unknown node error")
	}
	if route, err := r.Route(1, 1); err != nil || len(route) != 0 {
		t.Fatalf("expected empty route to self, got %v %v", route, err)
	}
}

func TestTravelTimeWeight(t *testing.T) {
	g := core.NewGraph(0)
	for i := 1; i <= 3; i++ {
		g.AddNode(core.NodeID(i), orb.Point{float64(i), 0})
	}
	g.AddEdge(core.EdgeSpec{StreetID: 1, Origin: 1, Destination: 3, MaxVelocity: 1, Cells: 6})
	g.AddEdge(core.EdgeSpec{StreetID: 2, Origin: 1, Destination: 2, MaxVelocity: 5, Cells: 5})
	g.AddEdge(core.EdgeSpec{StreetID: 3, Origin: 2, Destination: 3, MaxVelocity: 5, Cells: 5})

	if route, _ := New(g, nil).Route(1, 3); len(route) != 1 {
		t.Fatalf("by cells the direct street wins, got %v", keys(route))
	}
	if route, _ := New(g, ByTravelTime).Route(1, 3); len(route) != 2 {
		t.Fatalf("by travel time the fast detour wins, got %v", keys(route))
	}
}
