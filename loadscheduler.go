package vortex

// loadscheduler.go adapts ITI-mrnes/scheduler.go's TaskScheduler —
// originally a multi-core timeslice scheduler driven by an evtm event
// manager — into the Partitioner's load-balancing heuristic. The
// core/waiting/inservice-heap shape survives; "cores" becomes
// "partitions", "service requirement" becomes "estimated component
// load", and joinQueue's greedy least-loaded assignment replaces the
// timeslice-completion event scheduling the original used, since a
// partitioner runs once at wire-up rather than across simulated time.

import "container/heap"

// loadTask is one component's estimated load, staged for assignment.
type loadTask struct {
	componentName string
	load          float64
	partition     int // filled in once assigned
}

// loadHeap is a min-heap over partitions ordered by their running load
// total, letting AssignGreedy always hand the next component to the
// least-loaded partition — the same reqSrvHeap shape as the teacher's
// TaskScheduler, but keyed on cumulative assigned load rather than
// residual service time.
type loadHeap []*partitionLoad

type partitionLoad struct {
	index int
	total float64
}

func (h loadHeap) Len() int            { return len(h) }
func (h loadHeap) Less(i, j int) bool  { return h[i].total < h[j].total }
func (h loadHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *loadHeap) Push(x any)         { *h = append(*h, x.(*partitionLoad)) }
func (h *loadHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// LoadScheduler assigns components to a fixed number of partitions by
// greedy least-loaded-first, the same joinQueue policy the teacher's
// TaskScheduler used to hand a task to whichever waiting slot frees up
// first, generalized here from "next core to free" to "partition with
// the smallest running total".
type LoadScheduler struct {
	partitions int
	h          loadHeap
	tasks      []*loadTask
}

// CreateLoadScheduler is a constructor, named to match
// ITI-mrnes/scheduler.go's CreateTaskScheduler.
func CreateLoadScheduler(partitions int) *LoadScheduler {
	ls := &LoadScheduler{partitions: partitions}
	ls.h = make(loadHeap, partitions)
	for i := range ls.h {
		ls.h[i] = &partitionLoad{index: i}
	}
	heap.Init(&ls.h)
	return ls
}

// Assign records componentName with the given estimated load and
// greedily binds it to whichever partition currently has the smallest
// cumulative assigned load, returning that partition index.
func (ls *LoadScheduler) Assign(componentName string, load float64) int {
	least := heap.Pop(&ls.h).(*partitionLoad)
	assigned := least.index
	least.total += load
	heap.Push(&ls.h, least)
	ls.tasks = append(ls.tasks, &loadTask{componentName: componentName, load: load, partition: assigned})
	return assigned
}

// Totals returns the final cumulative load assigned to each partition,
// for reporting or --print-timing style diagnostics.
func (ls *LoadScheduler) Totals() []float64 {
	out := make([]float64, ls.partitions)
	for _, pl := range ls.h {
		out[pl.index] = pl.total
	}
	return out
}

// Assignments returns a copy of the task recorded by every Assign call
// (component name, load and assigned partition), in assignment order.
func (ls *LoadScheduler) Assignments() []loadTask {
	out := make([]loadTask, len(ls.tasks))
	for i, t := range ls.tasks {
		out[i] = *t
	}
	return out
}
