package vm

import "github.com/buzzlang/buzz/message"

// NeighborInfo is what a VM remembers about one neighboring robot: the
// last step it was heard from, and the most recently reported range and
// bearing the host's transport layer supplied for it (§4.9). Buzz scripts
// never set these directly; the host updates them as the physical layer
// reports new readings.
type NeighborInfo struct {
	RobotID   uint16
	Distance  float32
	Azimuth   float32
	Elevation float32
	LastSeen  uint32
}

// SetNeighborPosition records (or refreshes) a neighbor's range/bearing,
// called by the host simulator/transport once per reading.
func (v *VM) SetNeighborPosition(robotID uint16, distance, azimuth, elevation float32) {
	v.neighbors[robotID] = NeighborInfo{RobotID: robotID, Distance: distance, Azimuth: azimuth, Elevation: elevation, LastSeen: v.Step}
}

// NeighborsForEach visits every currently known neighbor.
func (v *VM) NeighborsForEach(fn func(NeighborInfo) bool) {
	for _, n := range v.neighbors {
		if !fn(n) {
			return
		}
	}
}

// NeighborsCount reports the number of currently known neighbors.
func (v *VM) NeighborsCount() int { return len(v.neighbors) }

// NeighborsGet returns the recorded info for robotID, if any.
func (v *VM) NeighborsGet(robotID uint16) (NeighborInfo, bool) {
	n, ok := v.neighbors[robotID]
	return n, ok
}

// NeighborsKin returns the neighbors that share at least one swarm
// membership with this robot; NeighborsNonKin returns the rest.
func (v *VM) NeighborsKin() []NeighborInfo     { return v.partitionKin(true) }
func (v *VM) NeighborsNonKin() []NeighborInfo  { return v.partitionKin(false) }

func (v *VM) partitionKin(wantKin bool) []NeighborInfo {
	var out []NeighborInfo
	mySwarms := v.swarms.ToSlice()
	for _, n := range v.neighbors {
		isKin := false
		for _, s := range mySwarms {
			for _, member := range v.swarmMembers.Members(s.(uint16)) {
				if member == n.RobotID {
					isKin = true
					break
				}
			}
			if isKin {
				break
			}
		}
		if isKin == wantKin {
			out = append(out, n)
		}
	}
	return out
}

// Broadcast queues a message for every neighbor under topic.
func (v *VM) Broadcast(topic string, val Value) {
	v.OutQueue.Push(message.Message{
		Type:    message.TypeBroadcast,
		RobotID: v.RobotID,
		Topic:   topic,
		Payload: toWire(v.Heap, val),
	})
}

// Listen registers closure as topic's broadcast handler, replacing any
// previous one.
func (v *VM) Listen(topic string, closure Value) { v.listeners[topic] = closure }

// Ignore removes topic's broadcast handler, if any.
func (v *VM) Ignore(topic string) { delete(v.listeners, topic) }

// ProcessInbox drains every packet currently queued on InQueue (already
// split into individual framed messages by the transport), decodes each,
// and dispatches it to the matching per-type handler. It should be called
// once per VM step before Run, so in-script listener closures observe
// this step's traffic.
func (v *VM) ProcessInbox() error {
	for {
		_, payload, ok := v.InQueue.Pop()
		if !ok {
			return nil
		}
		m, err := message.Decode(payload)
		if err != nil {
			continue // malformed payload from a neighbor: drop, don't fault
		}
		v.dispatch(m)
	}
}

func (v *VM) dispatch(m message.Message) {
	prev := v.neighborOr(m.RobotID)
	v.neighbors[m.RobotID] = NeighborInfo{
		RobotID: m.RobotID, LastSeen: v.Step,
		Distance:  prev.Distance,
		Azimuth:   prev.Azimuth,
		Elevation: prev.Elevation,
	}
	switch m.Type {
	case message.TypeBroadcast:
		cb, ok := v.listeners[m.Topic]
		if !ok || cb.Closure() == nil {
			return
		}
		val := fromWire(v.Heap, m.Payload)
		_, _ = v.CallValue(cb, Int(int32(m.RobotID)), val)
	case message.TypeSwarmList:
		v.handleSwarmList(m.RobotID, m.SwarmIDs)
	case message.TypeVStigPut:
		v.handleVStigPut(m.RobotID, m.VStigID, fromWire(v.Heap, m.Key), fromWire(v.Heap, m.Value), m.Timestamp)
	case message.TypeVStigQuery:
		v.handleVStigQuery(m.RobotID, m.VStigID, fromWire(v.Heap, m.Key))
	case message.TypeSwarmJoin:
		v.swarmMembers.Join(m.RobotID, m.SwarmID)
	case message.TypeSwarmLeave:
		v.swarmMembers.Leave(m.RobotID, m.SwarmID)
	}
}

func (v *VM) neighborOr(id uint16) NeighborInfo {
	return v.neighbors[id]
}
