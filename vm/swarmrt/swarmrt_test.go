package swarmrt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/buzzlang/buzz/vm/swarmrt"
)

func TestRefreshReplacesWholeMembership(t *testing.T) {
	tbl := swarmrt.NewTable()
	tbl.Refresh(7, []uint16{1, 2})
	assert.ElementsMatch(t, []uint16{7}, tbl.Members(1))
	assert.ElementsMatch(t, []uint16{7}, tbl.Members(2))

	tbl.Refresh(7, []uint16{2})
	assert.Empty(t, tbl.Members(1))
	assert.ElementsMatch(t, []uint16{7}, tbl.Members(2))
}

func TestJoinAndLeaveAreGranular(t *testing.T) {
	tbl := swarmrt.NewTable()
	tbl.Join(3, 5)
	tbl.Join(3, 6)
	assert.ElementsMatch(t, []uint16{3}, tbl.Members(5))
	assert.ElementsMatch(t, []uint16{3}, tbl.Members(6))

	tbl.Leave(3, 5)
	assert.Empty(t, tbl.Members(5))
	assert.ElementsMatch(t, []uint16{3}, tbl.Members(6))
}

func TestUpdateEvictsStaleEntries(t *testing.T) {
	tbl := swarmrt.NewTable()
	tbl.Join(9, 1)

	for i := 0; i < swarmrt.MaxAge; i++ {
		tbl.Update()
		assert.ElementsMatch(t, []uint16{9}, tbl.Members(1), "entry should survive until MaxAge steps without a refresh")
	}
	tbl.Update()
	assert.Empty(t, tbl.Members(1), "entry should be evicted once it exceeds MaxAge")
}

func TestRefreshResetsAge(t *testing.T) {
	tbl := swarmrt.NewTable()
	tbl.Join(4, 2)
	for i := 0; i < swarmrt.MaxAge; i++ {
		tbl.Update()
	}
	tbl.Refresh(4, []uint16{2}) // heard again just before eviction
	for i := 0; i < swarmrt.MaxAge; i++ {
		tbl.Update()
	}
	assert.ElementsMatch(t, []uint16{4}, tbl.Members(2), "a refresh should reset the age clock")
}
