package main

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// dump prints a one-row-per-robot state table after a step, the way a
// human watching the simulation run would want to see it.
func (h *host) dump(step uint32) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"step", "robot", "state", "neighbors", "fault"})
	for _, snap := range h.snapshot() {
		table.Append([]string{
			strconv.FormatUint(uint64(step), 10),
			strconv.FormatUint(uint64(snap.ID), 10),
			snap.State,
			strconv.Itoa(snap.Neighbors),
			snap.Err,
		})
	}
	table.Render()
}
