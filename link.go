package vortex

// link.go holds the Link type: a directional, latency-bearing
// channel between two component ports, and the routing logic that
// stamps and delivers an Event through it. Grounded on net.go's
// intrfcStruct send/route staging (enterEgressIntrfc -> ... -> next
// hop), generalized away from network-device semantics to the
// generic Local/CrossThread/CrossRank routing spec.md §4.2 describes.

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"
)

// LinkID identifies a Link endpoint, unique within a partition's
// LinkManager (and globally unique across the whole ConfigGraph,
// assigned at wire-up).
type LinkID int

// ComponentID identifies a wired-up Component instance.
type ComponentID int

// PortName is the declared name of a component's connection point.
type PortName string

// Handler is the callable a Local delivery target invokes. It
// receives the popped Event's payload and the simulated time of
// delivery, and returns an error if the user's handler logic failed
// (spec.md §7's "runtime exception from user handler" -> caught at
// the scheduler boundary, not via panic/recover).
type Handler func(sim *Simulation, comp ComponentID, at SimTime, payload any) error

// Link is a directional endpoint with fixed latency, per spec.md §3.
// The invariant that both endpoints of a logical link agree on
// latency is enforced at wire-up (wireup.go); Link itself just uses
// whatever latency it was configured with, per the sending
// endpoint's value (spec.md §3's override-behavior note).
type Link struct {
	ID            LinkID
	Name          string // "srcPort->dstPort", used to derive SortTag
	Latency       SimTime
	Target        DeliveryInfo
	PartnerLinkID LinkID
	EventType     string // declared allowable payload type name for this port
	SortTag       uint64 // deterministic tie-break tag, derived from sorted endpoint names
}

// deriveSortTag computes a deterministic order_tag from the sorted
// pair of endpoint names, so that two links between the same
// component pair (in either direction) agree on a tag independent of
// which side constructed the Link first.
func deriveSortTag(endpointA, endpointB string) uint64 {
	names := []string{endpointA, endpointB}
	sort.Strings(names)
	joined := strings.Join(names, "|")
	sum := sha3.Sum256([]byte(joined))
	var tag uint64
	for i := 0; i < 8; i++ {
		tag = (tag << 8) | uint64(sum[i])
	}
	return tag
}

// NewLink is a constructor used by wire-up once both endpoints of a
// ConfigLink have been resolved to a partition assignment.
func NewLink(id LinkID, endpointA, endpointB string, latency SimTime, eventType string) *Link {
	return &Link{
		ID:        id,
		Name:      endpointA + "->" + endpointB,
		Latency:   latency,
		EventType: eventType,
		SortTag:   deriveSortTag(endpointA, endpointB),
	}
}

// LinkManager owns every Link wired to components resident in one
// partition, and the sequence counter used to stamp QueueOrder.
type LinkManager struct {
	links map[LinkID]*Link
	seq   uint64
}

// NewLinkManager is a constructor.
func NewLinkManager() *LinkManager {
	return &LinkManager{links: make(map[LinkID]*Link)}
}

// Register adds a wired Link to the manager. Fatal (per spec.md §4.9)
// if the id is already registered — wire-up bugs should never be
// silently overwritten.
func (lm *LinkManager) Register(l *Link) {
	if _, present := lm.links[l.ID]; present {
		panic(fmt.Errorf("link: id %d already registered", l.ID))
	}
	lm.links[l.ID] = l
}

// Get looks up a Link by id, panicking (a wire-up bug, not a runtime
// condition a partition should try to recover from) if absent.
func (lm *LinkManager) Get(id LinkID) *Link {
	l, present := lm.links[id]
	if !present {
		panic(fmt.Errorf("link: id %d not registered", id))
	}
	return l
}

func (lm *LinkManager) nextSeq() uint64 {
	lm.seq++
	return lm.seq
}

// All returns every Link registered with this partition, in no
// particular order. Used by the sync layer to find cross-partition
// links that saw no traffic during a window (spec.md §4.4's
// empty-traffic case).
func (lm *LinkManager) All() []*Link {
	out := make([]*Link, 0, len(lm.links))
	for _, l := range lm.links {
		out = append(out, l)
	}
	return out
}

// SendResult reports where a stamped Event was routed, so the caller
// (Simulation.Send, in scheduler.go) knows which sync layer, if any,
// to hand it to.
type SendResult int

const (
	RoutedLocal SendResult = iota
	RoutedThreadSync
	RoutedRankSync
)

// Send stamps and routes an event over link, per spec.md §4.2:
//   deliver_time = current + latency + additionalDelay
//   delivery_info = target endpoint
//   order_tag = link.SortTag
//   queue_order = next_seq(partition)
// The caller (component handler) must not retain a mutable reference
// to payload after this call returns (spec.md §4.2's ownership rule);
// Send does not enforce that in Go, since Go has no move semantics,
// but the contract is documented here for callers.
func (lm *LinkManager) Send(linkID LinkID, current SimTime, additionalDelay SimTime, priority int32, payload any, hashBytes []byte) (*Event, SendResult) {
	link := lm.Get(linkID)
	// The port/event-type mismatch check (spec.md §4.2) runs once at
	// wire-up (wireup.go's checkPortEventType), not per Send: every
	// Event sent over this link has already been proven to match the
	// declared type before the simulation started running.
	ev := NewEvent(current+link.Latency+additionalDelay, priority, link.SortTag, payload, hashBytes)
	ev.Delivery = link.Target
	ev.SrcLinkID = linkID
	ev.key.QueueOrder = lm.nextSeq()

	switch link.Target.Kind {
	case DeliveryLocal:
		return ev, RoutedLocal
	case DeliveryCrossThread:
		return ev, RoutedThreadSync
	case DeliveryCrossRank:
		return ev, RoutedRankSync
	default:
		panic(fmt.Errorf("link: id %d has unset delivery target", linkID))
	}
}
