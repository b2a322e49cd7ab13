package vortex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadScheduler_AssignsToLeastLoadedPartitionFirst(t *testing.T) {
	ls := CreateLoadScheduler(2)
	first := ls.Assign("a", 10)
	second := ls.Assign("b", 1)
	assert.NotEqual(t, first, second)
}

func TestLoadScheduler_BalancesCumulativeLoadAcrossPartitions(t *testing.T) {
	ls := CreateLoadScheduler(2)
	ls.Assign("a", 5)
	ls.Assign("b", 5)
	ls.Assign("c", 1)

	totals := ls.Totals()
	sum := totals[0] + totals[1]
	assert.InDelta(t, 11.0, sum, 0.0001)
	assert.ElementsMatch(t, []float64{5, 6}, totals)
}

func TestLoadScheduler_Assignments_RecordsEveryAssignInOrder(t *testing.T) {
	ls := CreateLoadScheduler(3)
	ls.Assign("a", 1)
	ls.Assign("b", 2)

	tasks := ls.Assignments()
	assert.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].componentName)
	assert.Equal(t, "b", tasks[1].componentName)
}
