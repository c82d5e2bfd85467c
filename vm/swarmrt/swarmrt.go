// Package swarmrt is the bounded, aging record of which swarms each
// known peer robot claims membership in (§4.10 [FULL]). It backs
// vm.VM.SwarmMemberIDs: a VM's own picture of "who else is in swarm S"
// built entirely from neighbors' SwarmList/SwarmJoin/SwarmLeave traffic,
// since there is no central membership authority.
package swarmrt

import (
	mapset "github.com/deckarep/golang-set"
	lru "github.com/hashicorp/golang-lru"
)

// MaxAge is how many steps a peer's record survives without a refresh
// before Update evicts it (§4.10 [FULL]).
const MaxAge = 50

// capacity bounds how many distinct peers Table tracks at once, so a
// robot that hears from an unbounded number of transient neighbors over
// a long run doesn't grow this table without limit.
const capacity = 512

type entry struct {
	age    uint16
	swarms mapset.Set
}

// Table maps peer robot id to the swarms it last claimed membership in.
type Table struct {
	cache *lru.Cache
}

// NewTable returns an empty Table.
func NewTable() *Table {
	c, err := lru.New(capacity)
	if err != nil {
		panic(err) // only returns an error for capacity<=0, which capacity above never is
	}
	return &Table{cache: c}
}

func (t *Table) entryFor(robot uint16) *entry {
	if v, ok := t.cache.Get(robot); ok {
		return v.(*entry)
	}
	e := &entry{swarms: mapset.NewSet()}
	t.cache.Add(robot, e)
	return e
}

// Refresh replaces robot's entire known membership set, as reported by a
// SwarmList broadcast.
func (t *Table) Refresh(robot uint16, swarmIDs []uint16) {
	swarms := mapset.NewSet()
	for _, id := range swarmIDs {
		swarms.Add(id)
	}
	t.cache.Add(robot, &entry{swarms: swarms})
}

// Join records robot as having joined swarmID, per a granular SwarmJoin
// message.
func (t *Table) Join(robot, swarmID uint16) {
	e := t.entryFor(robot)
	e.swarms.Add(swarmID)
	e.age = 0
}

// Leave records robot as having left swarmID, per a granular SwarmLeave
// message.
func (t *Table) Leave(robot, swarmID uint16) {
	e := t.entryFor(robot)
	e.swarms.Remove(swarmID)
	e.age = 0
}

// Members returns the robot ids currently recorded as claiming
// membership of swarmID.
func (t *Table) Members(swarmID uint16) []uint16 {
	var out []uint16
	for _, key := range t.cache.Keys() {
		v, ok := t.cache.Peek(key)
		if !ok {
			continue
		}
		if v.(*entry).swarms.Contains(swarmID) {
			out = append(out, key.(uint16))
		}
	}
	return out
}

// Update ages every tracked peer by one step and evicts any entry that
// has gone more than MaxAge steps without a refresh. The host's VM.Tick calls this
// once per simulation step.
func (t *Table) Update() {
	for _, key := range t.cache.Keys() {
		v, ok := t.cache.Peek(key)
		if !ok {
			continue
		}
		e := v.(*entry)
		e.age++
		if e.age > MaxAge {
			t.cache.Remove(key)
		}
	}
}
