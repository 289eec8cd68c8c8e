package simulation

import (
	"fmt"

	"github.com/Readm/street_sim/core"
	"github.com/Readm/street_sim/routing"
	"github.com/Readm/street_sim/vehicle"
	"github.com/paulmach/orb"
)

const defaultStreetVelocity = 5

// addStreet adds the forward and backward edges of a two-way street.
func addStreet(g *core.Graph, street int64, a, b core.NodeID, lanes, priority int) error {
	for _, dir := range [][2]core.NodeID{{a, b}, {b, a}} {
		if _, err := g.AddEdge(core.EdgeSpec{
			StreetID:    street,
			Origin:      dir[0],
			Destination: dir[1],
			Lanes:       lanes,
			MaxVelocity: defaultStreetVelocity,
			Priority:    priority,
		}); err != nil {
			return err
		}
	}
	return nil
}

// SingleEdgeGraph is two nodes joined by one one-lane edge of cells cells.
func SingleEdgeGraph(cells, maxVelocity int, metersPerCell float64) (*core.Graph, error) {
	g := core.NewGraph(metersPerCell)
	if _, err := g.AddNode(1, orb.Point{0, 0}); err != nil {
		return nil, err
	}
	if _, err := g.AddNode(2, orb.Point{float64(cells) * g.MetersPerCell(), 0}); err != nil {
		return nil, err
	}
	if _, err := g.AddEdge(core.EdgeSpec{StreetID: 1, Origin: 1, Destination: 2, Lanes: 1, MaxVelocity: maxVelocity, Cells: cells}); err != nil {
		return nil, err
	}
	return g, nil
}

// LineGraph is a chain of nodes 1..n spaced spacing meters apart along the
// x axis, joined by two-way streets.
func LineGraph(n int, spacing, metersPerCell float64) (*core.Graph, error) {
	if n < 2 {
		return nil, fmt.Errorf("line needs at least 2 nodes, got %d", n)
	}
	g := core.NewGraph(metersPerCell)
	for i := 1; i <= n; i++ {
		if _, err := g.AddNode(core.NodeID(i), orb.Point{float64(i-1) * spacing, 0}); err != nil {
			return nil, err
		}
	}
	for i := 1; i < n; i++ {
		if err := addStreet(g, int64(i), core.NodeID(i), core.NodeID(i+1), 1, 0); err != nil {
			return nil, err
		}
	}
	if err := g.ConnectAll(false); err != nil {
		return nil, err
	}
	return g, nil
}

// CrossGraph is a four-way intersection: node 0 in the centre and arms 1
// (north), 2 (east), 3 (south), 4 (west) armMeters away. All streets share
// one priority level.
func CrossGraph(armMeters, metersPerCell float64) (*core.Graph, error) {
	g := core.NewGraph(metersPerCell)
	arms := []orb.Point{{0, 0}, {0, armMeters}, {armMeters, 0}, {0, -armMeters}, {-armMeters, 0}}
	for id, p := range arms {
		if _, err := g.AddNode(core.NodeID(id), p); err != nil {
			return nil, err
		}
	}
	for arm := 1; arm <= 4; arm++ {
		if err := addStreet(g, int64(arm), core.NodeID(arm), 0, 1, 0); err != nil {
			return nil, err
		}
	}
	if err := g.ConnectAll(false); err != nil {
		return nil, err
	}
	return g, nil
}

// GridGraph is a rows x cols Manhattan grid with spacing meters between
// junctions. Node ids are row*cols+col+1. The middle row is a two-lane main
// road with priority 1.
func GridGraph(rows, cols int, spacing, metersPerCell float64) (*core.Graph, error) {
	if rows < 1 || cols < 1 || rows*cols < 2 {
		return nil, fmt.Errorf("grid needs at least 2 nodes, got %dx%d", rows, cols)
	}
	g := core.NewGraph(metersPerCell)
	id := func(r, c int) core.NodeID { return core.NodeID(r*cols + c + 1) }
	for r := range rows {
		for c := range cols {
			if _, err := g.AddNode(id(r, c), orb.Point{float64(c) * spacing, -float64(r) * spacing}); err != nil {
				return nil, err
			}
		}
	}
	main := rows / 2
	street := int64(1)
	for r := range rows {
		for c := range cols {
			if c+1 < cols {
				lanes, priority := 1, 0
				if r == main {
					lanes, priority = 2, 1
				}
				if err := addStreet(g, street, id(r, c), id(r, c+1), lanes, priority); err != nil {
					return nil, err
				}
				street++
			}
			if r+1 < rows {
				if err := addStreet(g, street, id(r, c), id(r+1, c), 1, 0); err != nil {
					return nil, err
				}
				street++
			}
		}
	}
	if err := g.ConnectAll(false); err != nil {
		return nil, err
	}
	return g, nil
}

// LineRoute lists the edge keys of a LineGraph from node a to node b.
func LineRoute(a, b int) []core.EdgeKey {
	var keys []core.EdgeKey
	for i := a; i != b; {
		next := i + 1
		street := i
		if b < a {
			next = i - 1
			street = next
		}
		keys = append(keys, core.EdgeKey{Street: int64(street), Origin: core.NodeID(i), Destination: core.NodeID(next)})
		i = next
	}
	return keys
}

func singleEdgePreset() Preset {
	cfg := DefaultConfig()
	cfg.Name = "single_edge"
	cfg.TotalSteps = 10
	cfg.Behavior = vehicle.Behavior{MaxVelocity: 5}
	return Preset{
		Name:        "single_edge",
		Description: "One vehicle on a single 5-cell edge without dash or dawdle",
		Config:      cfg,
		Setup: func(cfg Config) (*core.Graph, Scenario, error) {
			g, err := SingleEdgeGraph(5, 5, cfg.MetersPerCell)
			if err != nil {
				return nil, nil, err
			}
			return g, &FixedRoutesScenario{
				Label:  "single_edge",
				Routes: []FixedRoute{{Edges: []core.EdgeKey{{Street: 1, Origin: 1, Destination: 2}}}},
			}, nil
		},
	}
}

func linePreset() Preset {
	cfg := DefaultConfig()
	cfg.Name = "line"
	cfg.TotalSteps = 200
	const nodes = 5
	return Preset{
		Name:        "line",
		Description: "Five-node two-way street with platoons driving in both directions",
		Config:      cfg,
		Setup: func(cfg Config) (*core.Graph, Scenario, error) {
			g, err := LineGraph(nodes, 150, cfg.MetersPerCell)
			if err != nil {
				return nil, nil, err
			}
			var routes []FixedRoute
			for i := range 12 {
				fr := FixedRoute{Seed: uint64(i), SpawnDelay: 2 * i, Edges: LineRoute(1, nodes)}
				if i%3 == 2 {
					fr.Edges = LineRoute(nodes, 1)
				}
				routes = append(routes, fr)
			}
			return g, &FixedRoutesScenario{Label: "line", Routes: routes}, nil
		},
	}
}

func crossPreset() Preset {
	cfg := DefaultConfig()
	cfg.Name = "cross"
	cfg.Vehicles = 40
	cfg.MaxSpawnDelay = 60
	cfg.TotalSteps = 300
	return Preset{
		Name:        "cross",
		Description: "Four-way intersection of equal streets with random routes",
		Config:      cfg,
		Setup: func(cfg Config) (*core.Graph, Scenario, error) {
			g, err := CrossGraph(75, cfg.MetersPerCell)
			if err != nil {
				return nil, nil, err
			}
			return g, &RandomRouteScenario{Label: "cross"}, nil
		},
	}
}

func gridPreset() Preset {
	cfg := DefaultConfig()
	cfg.Name = "grid"
	cfg.Vehicles = 200
	cfg.MaxSpawnDelay = 100
	cfg.TotalSteps = 600
	cfg.Workers = 4
	return Preset{
		Name:        "grid",
		Description: "5x5 grid with a two-lane main road, random routes by travel time",
		Config:      cfg,
		Setup: func(cfg Config) (*core.Graph, Scenario, error) {
			g, err := GridGraph(5, 5, 75, cfg.MetersPerCell)
			if err != nil {
				return nil, nil, err
			}
			return g, &RandomRouteScenario{Label: "grid", Weight: routing.ByTravelTime}, nil
		},
	}
}
