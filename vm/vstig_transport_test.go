package vm_test

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buzzlang/buzz/queue"
	"github.com/buzzlang/buzz/vm"
)

// deliver relays every packet currently queued on sender's OutQueue onto
// recipient's InQueue, the same framing/splitting the in-process
// transport in cmd/bzzhost does between simulated robots.
func deliver(t *testing.T, sender, recipient *vm.VM, mtu int) {
	t.Helper()
	for _, pkt := range sender.OutQueue.Packets(mtu) {
		for _, payload := range queue.SplitPacket(pkt) {
			recipient.InQueue.Push(sender.RobotID, payload)
		}
	}
}

// TestVStigAdoptsRemoteWriteThenBreaksTieByRobotID exercises a full round
// trip through the wire codec and both queue disciplines: robot 1 writes
// a key, robot 2 receives and adopts it (no local entry yet), then both
// robots write the same key again at the same timestamp and robot 1's
// write loses the tie to robot 2's higher robot id.
func TestVStigAdoptsRemoteWriteThenBreaksTieByRobotID(t *testing.T) {
	a := vm.New(1)
	b := vm.New(2)

	vsA := a.VStigCreate(42)
	key, err := a.Heap.InternProtected("target")
	require.NoError(t, err)

	a.VStigPut(vsA, key, vm.Int(10))
	deliver(t, a, b, 127)
	require.NoError(t, b.ProcessInbox())

	vsB := b.VStigCreate(42)
	keyB, err := b.Heap.InternProtected("target")
	require.NoError(t, err)
	got := vsB.Get(keyB)
	assert.Equal(t, int32(10), got.AsInt(), "b should have adopted a's write:\n%s", spew.Sdump(vsB))

	// b writes locally (its clock, synced to a's timestamp 1 on adoption,
	// goes to 2), then a's next write arrives also stamped 2; the tie goes
	// to the higher robot id, so a's write must lose.
	b.VStigPut(vsB, keyB, vm.Int(20))
	a.VStigPut(vsA, key, vm.Int(30))
	deliver(t, a, b, 127)
	require.NoError(t, b.ProcessInbox())

	got = vsB.Get(keyB)
	assert.Equal(t, int32(20), got.AsInt(), "b's local write should win the equal-timestamp tie on robot id:\n%s", spew.Sdump(vsB))
}

// pickSide returns a foreign closure usable as an on_conflict callback
// that always names one particular side (local=1, remote=2) as winner by
// mirroring its {robot, data} fields straight back, regardless of the
// default (timestamp, robot id) ordering.
func pickSide(v *vm.VM, argIdx int) vm.Value {
	idx := int32(len(v.Foreign))
	v.Foreign = append(v.Foreign, func(v *vm.VM) *vm.VMError {
		side := v.Arg(argIdx).Table()
		robotKey, _ := v.Heap.InternProtected("robot")
		dataKey, _ := v.Heap.InternProtected("data")
		out := v.Heap.NewTable()
		_ = out.Table().Put(robotKey, side.Get(robotKey))
		_ = out.Table().Put(dataKey, side.Get(dataKey))
		v.Push(out)
		return nil
	})
	return v.Heap.NewClosure(false, idx, nil)
}

// TestVStigOnConflictOverridesDefaultWinner registers an on_conflict
// callback that always keeps the local entry, then delivers a remote
// write that the default (timestamp, robot id) policy would otherwise
// let win, and checks the callback's verdict — not the default
// ordering — determines the outcome.
func TestVStigOnConflictOverridesDefaultWinner(t *testing.T) {
	b := vm.New(2)
	c := vm.New(3)
	require.NoError(t, b.Load(buildBlob(nil))) // callbacks run through CallValue, which needs an activation

	vsB := b.VStigCreate(42)
	keyB, err := b.Heap.InternProtected("target")
	require.NoError(t, err)
	b.VStigPut(vsB, keyB, vm.Int(100)) // b's clock -> 1

	vsC := c.VStigCreate(42)
	keyC, err := c.Heap.InternProtected("target")
	require.NoError(t, err)
	c.VStigPut(vsC, keyC, vm.Int(555)) // c's clock -> 1, same timestamp as b

	// Without a callback the default policy (higher robot id wins a tie)
	// would let c's robot id 3 beat b's robot id 2. Force local to stay
	// instead.
	vsB.SetCallbacks(pickSide(b, 1), vm.Nil)

	deliver(t, c, b, 127)
	require.NoError(t, b.ProcessInbox())

	got := vsB.Get(keyB)
	assert.Equal(t, int32(100), got.AsInt(), "on_conflict's verdict must override the default winner:\n%s", spew.Sdump(vsB))
}

// TestVStigOnConflictLostFiresOnlyForLocalsOwnLoss checks that
// on_conflict_lost fires with (key, old_local_data) when the robot's own
// previously-held entry is the one that loses, and does not fire at all
// when a vstig key is simply adopted fresh from a remote peer (no local
// entry existed to lose).
func TestVStigOnConflictLostFiresOnlyForLocalsOwnLoss(t *testing.T) {
	a := vm.New(1)
	b := vm.New(2)
	c := vm.New(3)
	require.NoError(t, b.Load(buildBlob(nil))) // callbacks run through CallValue, which needs an activation

	var lostKey, lostData vm.Value
	lostCalls := 0
	idx := int32(len(b.Foreign))
	b.Foreign = append(b.Foreign, func(v *vm.VM) *vm.VMError {
		lostCalls++
		lostKey = v.Arg(0)
		lostData = v.Arg(1)
		v.Push(vm.Nil)
		return nil
	})
	onConflictLost := b.Heap.NewClosure(false, idx, nil)

	// Fresh adoption from a: no local entry existed yet, so losing isn't
	// possible here and on_conflict_lost must stay silent.
	vsA := a.VStigCreate(42)
	keyA, err := a.Heap.InternProtected("target")
	require.NoError(t, err)
	a.VStigPut(vsA, keyA, vm.Int(10))

	vsB := b.VStigCreate(42)
	vsB.SetCallbacks(vm.Nil, onConflictLost)
	deliver(t, a, b, 127)
	require.NoError(t, b.ProcessInbox())
	assert.Equal(t, 0, lostCalls, "adopting a fresh key from a peer must not fire on_conflict_lost")

	// Now b writes its own value, and c's conflicting write (higher robot
	// id, same timestamp) beats it under the default policy: this time
	// it's b's own prior write that lost.
	keyB, err := b.Heap.InternProtected("target")
	require.NoError(t, err)
	b.VStigPut(vsB, keyB, vm.Int(20))

	vsC := c.VStigCreate(42)
	keyC, err := c.Heap.InternProtected("target")
	require.NoError(t, err)
	warmupKey, err := c.Heap.InternProtected("warmup")
	require.NoError(t, err)
	c.VStigPut(vsC, warmupKey, vm.Int(0)) // advance c's clock to match b's timestamp of 2
	c.VStigPut(vsC, keyC, vm.Int(30))

	deliver(t, c, b, 127)
	require.NoError(t, b.ProcessInbox())

	assert.Equal(t, 1, lostCalls, "b's own entry lost the conflict and must fire on_conflict_lost exactly once")
	assert.Equal(t, int32(20), lostData.AsInt(), "on_conflict_lost must receive the old local value, not the winner")
	assert.Equal(t, keyB.AsStringID(), lostKey.AsStringID())
	got := vsB.Get(keyB)
	assert.Equal(t, int32(30), got.AsInt(), "c's write should now be in effect")
}
