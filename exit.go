package vortex

// exit.go implements the Exit distributed termination detector, per
// spec.md §4.6. Grounded on flow.go's Flow/FlowList lifecycle
// (a registry map keyed by id, with explicit register/remove calls
// and a StartFlow-style "everyone's now accounted for" pass),
// repurposed from flow rate bookkeeping to activity reference
// counting.

import (
	"fmt"
	"sync/atomic"
)

// Exit is the per-partition termination detector: every component
// registers at setup, and may call RefInc/RefDec during the run to
// represent outstanding work. The scheduler polls Local() at each
// sync point; ThreadSync and RankSync fold Local() across threads and
// ranks respectively to get the global sum spec.md §4.6/§8 requires
// to be >= 0 at every barrier and to reach exactly 0 once.
type Exit struct {
	registered map[ComponentID]bool
	local      int64 // may transiently go negative between barriers, per spec.md §4.6
	stopTime   SimTime
	hasStop    bool
	completed  atomic.Bool
}

// NewExit is a constructor. stopTime, if set via SetStopTime, gives an
// unconditional end time independent of the reference count.
func NewExit() *Exit {
	return &Exit{registered: make(map[ComponentID]bool)}
}

// SetStopTime installs the configured end time (spec.md §4.6: "Also
// terminates when current_sim_time >= configured_stop_time").
func (e *Exit) SetStopTime(t SimTime) {
	e.stopTime = t
	e.hasStop = true
}

// Register enrolls a component in the termination count at setup.
func (e *Exit) Register(id ComponentID) {
	if e.registered[id] {
		panic(fmt.Errorf("exit: component %d already registered", id))
	}
	e.registered[id] = true
}

// RefInc records that a component has outstanding work pending.
func (e *Exit) RefInc(id ComponentID) {
	if !e.registered[id] {
		panic(fmt.Errorf("exit: RefInc from unregistered component %d", id))
	}
	atomic.AddInt64(&e.local, 1)
}

// RefDec records that a component's previously-pending work is done.
func (e *Exit) RefDec(id ComponentID) {
	if !e.registered[id] {
		panic(fmt.Errorf("exit: RefDec from unregistered component %d", id))
	}
	atomic.AddInt64(&e.local, -1)
}

// SetLocal overwrites the reference count directly, used only by
// checkpoint restore to reinstate a partition's count without
// replaying every individual RefInc/RefDec call that produced it.
func (e *Exit) SetLocal(n int64) {
	atomic.StoreInt64(&e.local, n)
}

// Local returns this partition's current reference count. May be
// transiently negative between barriers (spec.md §4.6); only the
// global sum at a barrier is asserted to be >= 0.
func (e *Exit) Local() int64 {
	return atomic.LoadInt64(&e.local)
}

// ShouldStop reports whether the partition should transition to
// COMPLETE: either the global reference sum (already folded by
// ThreadSync/RankSync into globalSum) has reached zero, or the
// current time has reached the configured stop time.
func (e *Exit) ShouldStop(globalSum int64, now SimTime) bool {
	if e.hasStop && now >= e.stopTime {
		return true
	}
	if globalSum <= 0 {
		if !e.completed.Swap(true) {
			return true
		}
		// already reported completion once; a caller polling again
		// after COMPLETE shouldn't re-trigger the transition.
		return false
	}
	return false
}
