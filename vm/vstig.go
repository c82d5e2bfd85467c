package vm

import "github.com/buzzlang/buzz/message"

// vstigEntry is one replicated key's state: the value currently held plus
// the Lamport (timestamp, robot id) pair that produced it, used to decide
// which of two conflicting writes wins (§4.11).
type vstigEntry struct {
	value     Value
	timestamp uint32
	robotID   uint16
}

// VStig is one virtual stigmergy structure: a replicated key/value store
// where conflicting concurrent writes are resolved by Lamport timestamp,
// ties broken by robot id, with optional user callbacks notified of the
// outcome.
type VStig struct {
	id             uint16
	entries        map[Value]vstigEntry
	clock          uint32
	onConflict     Value // closure(key, local, remote) -> {robot, data}, or Nil
	onConflictLost Value // closure(key, oldLocalData) or Nil
}

func newVStig(id uint16) *VStig {
	return &VStig{id: id, entries: make(map[Value]vstigEntry)}
}

// VStigCreate returns the VStig for id, creating it on first use.
func (v *VM) VStigCreate(id uint16) *VStig {
	vs, ok := v.vstigs[id]
	if !ok {
		vs = newVStig(id)
		v.vstigs[id] = vs
	}
	return vs
}

// SetCallbacks installs the on_conflict / on_conflict_lost closures.
func (vs *VStig) SetCallbacks(onConflict, onConflictLost Value) {
	vs.onConflict = onConflict
	vs.onConflictLost = onConflictLost
}

// Callbacks returns the currently installed on_conflict / on_conflict_lost closures.
func (vs *VStig) Callbacks() (Value, Value) { return vs.onConflict, vs.onConflictLost }

// ID returns the identifier this VStig was created under.
func (vs *VStig) ID() uint16 { return vs.id }

// Get returns the locally held value for key, or Nil if unset.
func (vs *VStig) Get(key Value) Value {
	return vs.entries[key].value
}

// Size reports how many keys this VStig currently holds locally.
func (vs *VStig) Size() int { return len(vs.entries) }

// VStigPut writes value at key locally, advancing the Lamport clock, and
// queues a VStigPut so neighbors converge on it. This is an unconditional
// local write (the local robot is always authoritative over its own
// direct put), distinct from receiving a remote put, which goes through
// conflict resolution.
func (v *VM) VStigPut(vs *VStig, key, value Value) {
	vs.clock++
	vs.entries[key] = vstigEntry{value: value, timestamp: vs.clock, robotID: v.RobotID}
	v.OutQueue.Push(message.Message{
		Type:      message.TypeVStigPut,
		RobotID:   v.RobotID,
		VStigID:   vs.id,
		Key:       toWire(v.Heap, key),
		Value:     toWire(v.Heap, value),
		Timestamp: vs.clock,
	})
}

// handleVStigPut applies a remote write that conflicts with a locally
// held entry. If on_conflict is registered, it is called with
// (key, local, remote) — each a {robot, data, timestamp} table — and its
// return value (a {robot, data} table) names the winner outright; an
// unregistered on_conflict falls back to the default policy of the
// higher (timestamp, robot id) pair winning, ties broken by robot id. If
// the entry this robot itself wrote is the one that loses, on_conflict_lost
// is called with (key, old_local_data).
func (v *VM) handleVStigPut(senderRobot, vstigID uint16, key, value Value, timestamp uint32) {
	vs := v.VStigCreate(vstigID)
	local, had := vs.entries[key]
	remote := vstigEntry{value: value, timestamp: timestamp, robotID: senderRobot}

	if !had {
		vs.entries[key] = remote
		if timestamp > vs.clock {
			vs.clock = timestamp
		}
		return
	}
	if local.timestamp == remote.timestamp && local.robotID == remote.robotID {
		return // same write, already applied
	}

	winner := v.resolveConflict(vs, key, local, remote)
	if winner.robotID != local.robotID || winner.timestamp != local.timestamp {
		vs.entries[key] = winner
		if local.robotID == v.RobotID {
			v.invokeConflictLost(vs.onConflictLost, key, local.value)
		}
	}
	if remote.timestamp > vs.clock {
		vs.clock = remote.timestamp
	}
}

// resolveConflict decides which of local/remote survives. With no
// on_conflict registered it applies the default (timestamp, robot id)
// ordering; otherwise on_conflict's returned {robot, data} table is
// authoritative, however it compares to the Lamport ordering.
func (v *VM) resolveConflict(vs *VStig, key Value, local, remote vstigEntry) vstigEntry {
	if vs.onConflict.IsNil() || vs.onConflict.Closure() == nil {
		remoteWins := remote.timestamp > local.timestamp ||
			(remote.timestamp == local.timestamp && remote.robotID > local.robotID)
		if remoteWins {
			return remote
		}
		return local
	}

	result, err := v.CallValue(vs.onConflict, key,
		v.newConflictEntry(local.robotID, local.value, local.timestamp),
		v.newConflictEntry(remote.robotID, remote.value, remote.timestamp))
	if err != nil {
		return local
	}
	tbl := result.Table()
	if tbl == nil {
		return local
	}
	robotKey, err1 := v.Heap.InternProtected("robot")
	dataKey, err2 := v.Heap.InternProtected("data")
	if err1 != nil || err2 != nil {
		return local
	}
	winnerRobot := uint16(tbl.Get(robotKey).AsInt())
	winnerData := tbl.Get(dataKey)
	if winnerRobot == remote.robotID {
		return vstigEntry{value: winnerData, timestamp: remote.timestamp, robotID: remote.robotID}
	}
	return vstigEntry{value: winnerData, timestamp: local.timestamp, robotID: local.robotID}
}

// newConflictEntry builds the {robot, data, timestamp} table on_conflict
// receives for one side of a conflicting pair.
func (v *VM) newConflictEntry(robotID uint16, data Value, timestamp uint32) Value {
	out := v.Heap.NewTable()
	tbl := out.Table()
	if k, err := v.Heap.InternProtected("robot"); err == nil {
		_ = tbl.Put(k, Int(int32(robotID)))
	}
	if k, err := v.Heap.InternProtected("data"); err == nil {
		_ = tbl.Put(k, data)
	}
	if k, err := v.Heap.InternProtected("timestamp"); err == nil {
		_ = tbl.Put(k, Int(int32(timestamp)))
	}
	return out
}

func (v *VM) invokeConflictLost(cb Value, key, oldLocal Value) {
	if cb.IsNil() || cb.Closure() == nil {
		return
	}
	_, _ = v.CallValue(cb, key, oldLocal) // best-effort: a faulty callback shouldn't fault the caller's own step
}

// handleVStigQuery answers a remote query for key by replying with our
// own VStigPut if we hold a value for it (§4.11): queries are answered
// opportunistically, not acknowledged otherwise.
func (v *VM) handleVStigQuery(requester, vstigID uint16, key Value) {
	vs, ok := v.vstigs[vstigID]
	if !ok {
		return
	}
	e, ok := vs.entries[key]
	if !ok {
		return
	}
	v.OutQueue.Push(message.Message{
		Type:      message.TypeVStigPut,
		RobotID:   v.RobotID,
		VStigID:   vstigID,
		Key:       toWire(v.Heap, key),
		Value:     toWire(v.Heap, e.value),
		Timestamp: e.timestamp,
	})
}

// VStigQueryRemote broadcasts a VStigQuery for key, hoping a neighbor answers
// with an authoritative VStigPut.
func (v *VM) VStigQueryRemote(vstigID uint16, key Value) {
	v.OutQueue.Push(message.Message{
		Type:    message.TypeVStigQuery,
		RobotID: v.RobotID,
		VStigID: vstigID,
		Key:     toWire(v.Heap, key),
	})
}

func (vs *VStig) roots() []Value {
	out := make([]Value, 0, len(vs.entries)*2+2)
	for k, e := range vs.entries {
		out = append(out, k, e.value)
	}
	out = append(out, vs.onConflict, vs.onConflictLost)
	return out
}
