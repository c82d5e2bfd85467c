// Command bzzhost is the Buzz ambient simulator (§6 [FULL]): it loads one
// compiled program per configured robot, instantiates one VM per robot,
// and steps the fleet, relaying packets between robots' queues over an
// in-process transport. It mirrors the teacher's cmd/gprobe relationship
// to its node/eth packages — a thin cli.v1 front end over a long-running
// fleet loop — though gprobe's own main.go isn't in the retrieval pack,
// so the command/flag shape below follows the sibling devp2p tool's
// cli.Command/cli.Flag usage instead.
package main

import (
	"fmt"
	"os"

	"github.com/buzzlang/buzz/internal/buzzlog"
	"github.com/buzzlang/buzz/internal/config"
	"gopkg.in/urfave/cli.v1"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a swarm.toml fleet configuration",
	}
	stepsFlag = cli.IntFlag{
		Name:  "steps",
		Usage: "number of simulation steps to run (0 runs until interrupted)",
		Value: 20,
	}
	netFlag = cli.StringFlag{
		Name:  "net",
		Usage: "serve a websocket state bridge at this address, e.g. :8765",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "log every VM fault and step transition",
	}
	interactiveFlag = cli.BoolFlag{
		Name:  "i",
		Usage: "drop into an interactive REPL after the run completes",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "bzzhost"
	app.Usage = "run a simulated Buzz swarm"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{configFlag, stepsFlag, netFlag, verboseFlag, interactiveFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bzzhost: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	log := buzzlog.Root
	if ctx.Bool(verboseFlag.Name) {
		log.SetLevel(buzzlog.LvlDebug)
	} else {
		log.SetLevel(buzzlog.LvlInfo)
	}

	cfg := config.Defaults
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		cfg = loaded
	}
	if len(cfg.Robots) == 0 {
		return fmt.Errorf("no robots configured; pass -config swarm.toml with a [[Robots]] table")
	}

	h, err := newHost(cfg, log)
	if err != nil {
		return err
	}
	defer h.Close()

	if addr := ctx.String(netFlag.Name); addr != "" {
		bridge := newBridge(log)
		go bridge.serve(addr)
		h.observers = append(h.observers, bridge)
	}

	steps := ctx.Int(stepsFlag.Name)
	if err := h.Run(steps); err != nil {
		return err
	}

	if ctx.Bool(interactiveFlag.Name) {
		return h.REPL()
	}
	return nil
}
