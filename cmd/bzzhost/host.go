package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/buzzlang/buzz/internal/buzzlog"
	"github.com/buzzlang/buzz/internal/config"
	"github.com/buzzlang/buzz/lang/assembler"
	"github.com/buzzlang/buzz/lang/lexer"
	"github.com/buzzlang/buzz/lang/parser"
	"github.com/buzzlang/buzz/lang/token"
	"github.com/buzzlang/buzz/queue"
	"github.com/buzzlang/buzz/stdlib"
	"github.com/buzzlang/buzz/vm"
)

// robot bundles one simulated robot's VM with the assembled program it
// re-runs every step: Buzz's step semantics re-enter the bytecode from
// pc 0 each tick while Globals/Heap/swarm state persist, so the host
// drives this by reloading the same blob into the VM every round rather
// than by a dedicated "tick" entry point.
type robot struct {
	id   uint16
	vm   *vm.VM
	blob []byte
}

// observer receives a snapshot after every step; the websocket bridge
// (bridge.go) is the only implementation, but the interface keeps the
// fleet loop decoupled from it.
type observer interface {
	notify(step uint32, snapshot []robotSnapshot)
}

type robotSnapshot struct {
	ID        uint16
	State     string
	Step      uint32
	Neighbors int
	Err       string
}

// host runs a fleet of robots and the in-process transport relaying
// packets between them.
type host struct {
	cfg       config.Swarm
	log       *buzzlog.Logger
	robots    []*robot
	observers []observer
}

func newHost(cfg config.Swarm, log *buzzlog.Logger) (*host, error) {
	h := &host{cfg: cfg, log: log}
	if cfg.IncludePath != "" {
		os.Setenv("BUZZ_INCLUDE_PATH", cfg.IncludePath)
	}
	for _, rc := range cfg.Robots {
		blob, err := loadProgram(rc.Program)
		if err != nil {
			return nil, fmt.Errorf("robot %d: %w", rc.ID, err)
		}
		v := vm.New(rc.ID)
		if err := stdlib.Register(v); err != nil {
			return nil, fmt.Errorf("robot %d: registering stdlib: %w", rc.ID, err)
		}
		if err := v.Load(blob); err != nil {
			return nil, fmt.Errorf("robot %d: loading program: %w", rc.ID, err)
		}
		h.robots = append(h.robots, &robot{id: rc.ID, vm: v, blob: blob})
	}
	return h, nil
}

// loadProgram reads path and returns an assembled bytecode blob: .bzz
// sources are lexed, parsed and assembled; .basm is assembly text fed
// straight to the assembler; anything else is assumed to already be an
// assembled .bzzb blob.
func loadProgram(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bzz":
		l := lexer.New(path, src)
		toks, err := l.Tokenize()
		if err != nil {
			return nil, err
		}
		p := parser.New(toks, parser.Options{
			Builtins: stdlib.GlobalNames,
			Warn:     func(token.Position, string, ...any) {},
		})
		asm, err := p.Compile()
		if err != nil {
			return nil, err
		}
		return assembler.Assemble(asm)
	case ".basm":
		return assembler.Assemble(string(src))
	default:
		return src, nil
	}
}

// Run steps the fleet `steps` times (forever if steps<=0), printing a
// tablewriter state dump after every step.
func (h *host) Run(steps int) error {
	for step := 0; steps <= 0 || step < steps; step++ {
		if err := h.step(); err != nil {
			return err
		}
		h.dump(uint32(step))
		if err := h.notify(uint32(step)); err != nil {
			return err
		}
	}
	return nil
}

// step advances every robot one round: each VM processes its inbox,
// re-runs its program from pc 0, and ticks its swarm-broadcast clock,
// all independent of the others so this phase runs concurrently; the
// relay phase that follows is single-threaded because it writes into
// every *other* robot's queues.
func (h *host) step() error {
	var g errgroup.Group
	for _, r := range h.robots {
		r := r
		g.Go(func() error {
			if err := r.vm.ProcessInbox(); err != nil {
				return fmt.Errorf("robot %d: %w", r.id, err)
			}
			if err := r.vm.Load(r.blob); err != nil {
				return fmt.Errorf("robot %d: reloading: %w", r.id, err)
			}
			if err := r.vm.Run(); err != nil {
				if r.vm.State() != vm.StateError {
					return fmt.Errorf("robot %d: %w", r.id, err)
				}
				h.log.Warn("robot fault", "robot", r.id, "err", err)
			}
			r.vm.Tick()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	h.relay()
	return nil
}

// relay is the in-process transport (§4.3 [FULL]): every robot's
// outgoing packets are delivered to every other robot, and the receiver
// learns of the sender as a neighbor. There is no physical layout model,
// so every delivery reports a zero range/bearing reading; a simulator
// wanting real topology would set robot positions and compute these
// from them instead.
func (h *host) relay() {
	type outbound struct {
		sender  uint16
		packets [][]byte
	}
	var pending []outbound
	for _, r := range h.robots {
		if pkts := r.vm.OutQueue.Packets(h.cfg.MTU); len(pkts) > 0 {
			pending = append(pending, outbound{sender: r.id, packets: pkts})
		}
	}
	for _, out := range pending {
		for _, r := range h.robots {
			if r.id == out.sender {
				continue
			}
			for _, pkt := range out.packets {
				for _, payload := range queue.SplitPacket(pkt) {
					r.vm.InQueue.Push(out.sender, payload)
				}
			}
			r.vm.SetNeighborPosition(out.sender, 0, 0, 0)
		}
	}
}

func (h *host) notify(step uint32) error {
	if len(h.observers) == 0 {
		return nil
	}
	snap := h.snapshot()
	for _, o := range h.observers {
		o.notify(step, snap)
	}
	return nil
}

func (h *host) snapshot() []robotSnapshot {
	out := make([]robotSnapshot, len(h.robots))
	for i, r := range h.robots {
		s := robotSnapshot{
			ID:        r.id,
			State:     r.vm.State().String(),
			Step:      r.vm.Step,
			Neighbors: r.vm.NeighborsCount(),
		}
		if err := r.vm.Err(); err != nil {
			s.Err = err.Error()
		}
		out[i] = s
	}
	return out
}

// Close tears down the host's resources. The in-process VMs need no
// explicit cleanup; this exists for observer implementations that do
// (the websocket bridge closes its listener here).
func (h *host) Close() {
	for _, o := range h.observers {
		if c, ok := o.(interface{ close() }); ok {
			c.close()
		}
	}
}
