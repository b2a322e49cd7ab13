package vortex

// activity.go holds the Activity family: the polymorphic unit
// scheduled in a partition's TimeVortex, per spec.md §3.

import (
	"sync/atomic"

	"golang.org/x/crypto/sha3"
)

// ActivityKey is the total order TimeVortex sorts by: lower
// DeliverTime first, then lower Priority, then lower OrderTag, then
// lower QueueOrder (insertion sequence).
type ActivityKey struct {
	DeliverTime SimTime
	Priority    int32
	OrderTag    uint64
	QueueOrder  uint64
}

// Less reports whether k sorts before other under the vortex's total
// order (spec.md §8's invariant key(A) <= key(B)).
func (k ActivityKey) Less(other ActivityKey) bool {
	if k.DeliverTime != other.DeliverTime {
		return k.DeliverTime < other.DeliverTime
	}
	if k.Priority != other.Priority {
		return k.Priority < other.Priority
	}
	if k.OrderTag != other.OrderTag {
		return k.OrderTag < other.OrderTag
	}
	return k.QueueOrder < other.QueueOrder
}

// Activity is the interface every unit pushed into a TimeVortex
// implements: the four-field ordering key plus a discriminant used by
// the scheduler dispatch loop.
type Activity interface {
	Key() ActivityKey
	// Kind identifies which concrete variant this is, so the
	// scheduler can dispatch without a type switch on every pop.
	Kind() ActivityKind
}

// ActivityKind discriminates Event, Action, and NullEvent.
type ActivityKind int

const (
	EventKind ActivityKind = iota
	ActionKind
	NullEventKind
)

var globalQueueOrder uint64

// nextQueueOrder hands out a monotonically increasing insertion
// sequence, process-wide, guaranteeing the vortex's tie-break is
// stable within a partition even though multiple links may stamp
// concurrently-constructed events before send.
func nextQueueOrder() uint64 {
	return atomic.AddUint64(&globalQueueOrder, 1)
}

// DeliveryKind tags where an Event's delivery_info points, replacing
// the source's uintptr_t delivery_info with a proper sum type
// (spec.md §9's "pointer-tagged delivery -> enum" design note).
type DeliveryKind int

const (
	DeliveryLocal DeliveryKind = iota
	DeliveryCrossThread
	DeliveryCrossRank
)

// DeliveryInfo identifies where a popped Event should be routed.
type DeliveryInfo struct {
	Kind        DeliveryKind
	HandlerID   ComponentID // valid when Kind == DeliveryLocal
	PeerLinkID  LinkID      // valid when Kind is CrossThread or CrossRank
	PeerThread  int         // valid when Kind == DeliveryCrossThread
	PeerRank    int         // valid when Kind == DeliveryCrossRank
}

// Event is the user-payload carrying Activity variant.
type Event struct {
	key          ActivityKey
	Payload      any
	PayloadHash  [32]byte
	Delivery     DeliveryInfo
	SrcLinkID    LinkID
}

func (e *Event) Key() ActivityKey    { return e.key }
func (e *Event) Kind() ActivityKind  { return EventKind }

// NewEvent constructs an Event and stamps its ordering key and
// payload hash. hashBytes should be a stable serialization of
// payload; callers that cannot cheaply serialize may pass nil, in
// which case PayloadHash is the zero hash.
func NewEvent(deliverTime SimTime, priority int32, orderTag uint64, payload any, hashBytes []byte) *Event {
	ev := &Event{
		key: ActivityKey{
			DeliverTime: deliverTime,
			Priority:    priority,
			OrderTag:    orderTag,
			QueueOrder:  nextQueueOrder(),
		},
		Payload: payload,
	}
	if hashBytes != nil {
		ev.PayloadHash = sha3.Sum256(hashBytes)
	}
	return ev
}

// ActionSubKind discriminates the engine-internal Action variants.
type ActionSubKind int

const (
	ActionBarrier ActionSubKind = iota
	ActionClockTick
	ActionCheckpointTrigger
	ActionExitPoll
	// ActionStatEngineTick and ActionStatEngineStop drive the per-rank
	// StatEngine's self-rescheduling periodic flush; they are engine
	// plumbing, distinct from a Statistic's own start/stop lifecycle
	// below.
	ActionStatEngineTick
	ActionStatEngineStop
	// ActionStatisticStart and ActionStatisticStop are the one-shot
	// actions spec.md §4.8's "startEvent enables the stat; stopEvent
	// disables it" installs at a Statistic's configured start/stop
	// time. Payload is the *Statistic to toggle.
	ActionStatisticStart
	ActionStatisticStop
)

// Action is the engine-internal Activity variant: clock ticks, sync
// barriers, checkpoint triggers, exit polls, and statistic
// enable/disable and engine tick/stop.
type Action struct {
	key     ActivityKey
	What    ActionSubKind
	Payload any
}

func (a *Action) Key() ActivityKey   { return a.key }
func (a *Action) Kind() ActivityKind { return ActionKind }

// NewAction constructs an Action activity. Actions never carry a
// priority above ordinary events at the same tick would use, unless
// the caller supplies one, since barrier/exit-poll ordering only
// needs to be deterministic relative to other actions at that tick.
func NewAction(deliverTime SimTime, priority int32, what ActionSubKind, payload any) *Action {
	return &Action{
		key: ActivityKey{
			DeliverTime: deliverTime,
			Priority:    priority,
			OrderTag:    0,
			QueueOrder:  nextQueueOrder(),
		},
		What:    what,
		Payload: payload,
	}
}

// NullEvent is the empty carrier used to push a sync window forward
// on a link with no real traffic (spec.md §4.4's "empty-traffic
// case").
type NullEvent struct {
	key      ActivityKey
	LinkID   LinkID
}

func (n *NullEvent) Key() ActivityKey   { return n.key }
func (n *NullEvent) Kind() ActivityKind { return NullEventKind }

// NewNullEvent constructs a NullEvent for the given link, timed to
// arrive at deliverTime.
func NewNullEvent(deliverTime SimTime, link LinkID) *NullEvent {
	return &NullEvent{
		key: ActivityKey{
			DeliverTime: deliverTime,
			Priority:    0,
			OrderTag:    0,
			QueueOrder:  nextQueueOrder(),
		},
		LinkID: link,
	}
}
