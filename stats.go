package main

import (
	"fmt"
	"io"

	"github.com/Readm/street_sim/simulation"
)

// PrintStats writes a human-readable summary of a finished run.
func PrintStats(w io.Writer, frame *simulation.Frame) {
	if frame == nil {
		fmt.Fprintln(w, "No stats available")
		return
	}
	s := frame.Stats
	fmt.Fprintln(w, "=== Simulation ===")
	fmt.Fprintf(w, "Scenario: %s\n", frame.Scenario)
	fmt.Fprintf(w, "Graph GUID: %s\n", frame.GraphGUID)
	fmt.Fprintf(w, "Config Hash: %s\n", frame.ConfigHash)
	fmt.Fprintf(w, "State: %s\n", frame.State)
	fmt.Fprintf(w, "Steps: %d\n", s.Step)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Vehicles ===")
	fmt.Fprintf(w, "Total: %d\n", s.Total)
	fmt.Fprintf(w, "Not Spawned: %d\n", s.NotSpawned)
	fmt.Fprintf(w, "Active: %d\n", s.Active)
	fmt.Fprintf(w, "Despawned: %d (%.2f%%)\n", s.Despawned, percent(s.Despawned, s.Total))
	fmt.Fprintf(w, "Invalid Routes: %d\n", s.InvalidRoutes)
	fmt.Fprintf(w, "Mean Velocity: %.2f cells/step\n", s.MeanVelocity)
	fmt.Fprintf(w, "Anger: mean %.2f, max %d, total %d\n", s.MeanAnger, s.MaxAnger, s.TotalAnger)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Timing ===")
	fmt.Fprintf(w, "Mean Step Duration: %s\n", s.MeanStepDuration)
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}
