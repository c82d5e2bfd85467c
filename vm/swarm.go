package vm

import "github.com/buzzlang/buzz/message"

// SwarmBroadcastPeriod is how often (in VM steps) a robot announces its
// swarm memberships to its neighbors via a SwarmList message (§4.10).
const SwarmBroadcastPeriod = 10

// SwarmStackPush makes id the active swarm context; stdlib's swarm exec
// pushes its swarm's id before running the closure (nested execs push
// further ids) and pops it once the closure has returned.
func (v *VM) SwarmStackPush(id uint16) { v.swarmStack = append(v.swarmStack, id) }

// SwarmStackPop removes the innermost active swarm context, if any.
func (v *VM) SwarmStackPop() {
	if len(v.swarmStack) > 0 {
		v.swarmStack = v.swarmStack[:len(v.swarmStack)-1]
	}
}

// SwarmStackTop returns the active swarm context and whether one exists.
func (v *VM) SwarmStackTop() (uint16, bool) {
	if len(v.swarmStack) == 0 {
		return 0, false
	}
	return v.swarmStack[len(v.swarmStack)-1], true
}

// SwarmJoin marks this robot as a member of swarm id and queues a
// SwarmJoin announcement to neighbors.
func (v *VM) SwarmJoin(id uint16) {
	v.swarms.Add(id)
	v.OutQueue.Push(message.Message{Type: message.TypeSwarmJoin, RobotID: v.RobotID, SwarmID: id})
}

// SwarmLeave removes this robot from swarm id and queues a SwarmLeave
// announcement.
func (v *VM) SwarmLeave(id uint16) {
	v.swarms.Remove(id)
	v.OutQueue.Push(message.Message{Type: message.TypeSwarmLeave, RobotID: v.RobotID, SwarmID: id})
}

// SwarmIsMember reports whether this robot belongs to swarm id.
func (v *VM) SwarmIsMember(id uint16) bool { return v.swarms.Contains(id) }

// SwarmMemberIDs returns the robot ids this VM has most recently heard
// claim membership of swarm id, via neighbors' swarm traffic.
func (v *VM) SwarmMemberIDs(id uint16) []uint16 { return v.swarmMembers.Members(id) }

// handleSwarmList records sender's claimed swarm memberships wholesale,
// replacing any previous record for that sender.
func (v *VM) handleSwarmList(sender uint16, ids []uint16) {
	v.swarmMembers.Refresh(sender, ids)
}

// Tick advances the VM's step counter, ages the swarm-member table
// (evicting peers not heard from in swarmrt.MaxAge steps) and, every
// SwarmBroadcastPeriod steps, queues a SwarmList announcement of this
// robot's current memberships. The host calls Tick once per simulation
// tick, independent of how many bytecode instructions Run executes
// within it.
func (v *VM) Tick() {
	v.Step++
	v.swarmMembers.Update()
	if v.Step%SwarmBroadcastPeriod != 0 {
		return
	}
	members := v.swarms.ToSlice()
	ids := make([]uint16, 0, len(members))
	for _, id := range members {
		ids = append(ids, id.(uint16))
	}
	v.OutQueue.Push(message.Message{Type: message.TypeSwarmList, RobotID: v.RobotID, SwarmIDs: ids})
}
