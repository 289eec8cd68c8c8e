package simulation

import (
	"github.com/Readm/street_sim/core"
	"github.com/Readm/street_sim/vehicle"
)

// EdgeFrame is the occupancy of one edge.
type EdgeFrame struct {
	Key      core.EdgeKey `json:"key"`
	Length   int          `json:"length"`
	Lanes    int          `json:"lanes"`
	Vehicles int          `json:"vehicles"`
	Density  float64      `json:"density"`
}

// Frame is a snapshot published after every step.
type Frame struct {
	Step       int                `json:"step"`
	State      State              `json:"state"`
	Scenario   string             `json:"scenario"`
	GraphGUID  string             `json:"graphGuid"`
	ConfigHash string             `json:"configHash"`
	Vehicles   []vehicle.Position `json:"vehicles"`
	Edges      []EdgeFrame        `json:"edges"`
	Stats      Stats              `json:"stats"`
}
