package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/peterh/liner"
)

// REPL drops into an interactive prompt after a run completes, letting
// an operator step the fleet further or inspect a single robot without
// restarting bzzhost.
func (h *host) REPL() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("bzzhost interactive mode; commands: step [n], show <robot>, quit")
	for {
		input, err := line.Prompt("bzzhost> ")
		if err != nil { // EOF or Ctrl-C
			return nil
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "step":
			n := 1
			if len(fields) > 1 {
				if v, err := strconv.Atoi(fields[1]); err == nil {
					n = v
				}
			}
			if err := h.Run(n); err != nil {
				fmt.Println("error:", err)
			}
		case "show":
			if len(fields) < 2 {
				fmt.Println("usage: show <robot>")
				continue
			}
			id, err := strconv.ParseUint(fields[1], 10, 16)
			if err != nil {
				fmt.Println("bad robot id:", fields[1])
				continue
			}
			h.showRobot(uint16(id))
		case "quit", "exit":
			return nil
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func (h *host) showRobot(id uint16) {
	for _, r := range h.robots {
		if r.id != id {
			continue
		}
		fmt.Printf("robot %d: state=%s step=%d neighbors=%d\n", r.id, r.vm.State(), r.vm.Step, r.vm.NeighborsCount())
		if err := r.vm.Err(); err != nil {
			fmt.Println("  fault:", err)
		}
		return
	}
	fmt.Println("no such robot:", id)
}
