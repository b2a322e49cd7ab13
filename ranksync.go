package vortex

// ranksync.go implements RankSync, the inter-process synchronization
// and event-exchange layer, per spec.md §4.5. No file in the
// retrieved pack shows a real multi-process/MPI binding, so RankSync
// is built against a small Transport interface; the shipped
// implementation runs each rank as a goroutine exchanging batches
// over Go channels, which lets a single OS process exercise the
// R*T-partition model (and the wire format of spec.md §6) end to end
// for tests and the CLI's default mode (see DESIGN.md's Open Question
// 4). A real MPI or TCP transport would satisfy the same interface.

import (
	"encoding/binary"
	"fmt"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/crypto/sha3"
)

// Transport performs one collective all-to-all exchange: every rank
// contributes outbound[r] (its batch destined for rank r) and
// receives inbound[r] (what every other rank sent to it).
type Transport interface {
	Exchange(rank int, outbound [][]byte) (inbound [][]byte, err error)
}

// wireEvent is the on-the-wire shape of one activity in a cross-rank
// batch, matching spec.md §6: class_id/length/bytes, with class_id -1
// denoting null (used here for NullEvent). The four ordering-key
// fields and the routing fields needed to re-home the activity at the
// destination rank are carried as exported fields rather than
// through Activity's unexported key field directly (JSON reflection
// never sees unexported fields, so the wire DTO is deliberately a
// separate, fully-exported type — the discipline
// original_source/serializer.h calls "pack" producing a
// stream-identified, self-contained record).
type wireEvent struct {
	ClassID     int64  `json:"class_id"`
	DeliverTime uint64 `json:"deliver_time"`
	Priority    int32  `json:"priority"`
	OrderTag    uint64 `json:"order_tag"`
	QueueOrder  uint64 `json:"queue_order"`
	SrcLinkID   int    `json:"src_link_id"`
	HandlerID   int    `json:"handler_id,omitempty"`
	PayloadHash [32]byte `json:"payload_hash"`
	Payload     []byte `json:"payload,omitempty"`
	What        int    `json:"what,omitempty"`
}

// EncodeBatch serializes a slice of Activities bound for one
// destination rank into the wire format, using sonnet (a
// JSON-compatible fast codec, grounded on codewanderer42820-evm_triarb)
// rather than a bespoke binary layout, while preserving the
// [count][(class_id,length,bytes)...] shape spec.md §6 specifies at
// the semantic level.
func EncodeBatch(activities []Activity) ([]byte, error) {
	wire := make([]wireEvent, 0, len(activities))
	for _, a := range activities {
		switch v := a.(type) {
		case *Event:
			payload, err := sonnet.Marshal(v.Payload)
			if err != nil {
				return nil, fmt.Errorf("ranksync: encode event payload: %w", err)
			}
			key := v.Key()
			wire = append(wire, wireEvent{
				ClassID:     int64(EventKind),
				DeliverTime: uint64(key.DeliverTime),
				Priority:    key.Priority,
				OrderTag:    key.OrderTag,
				QueueOrder:  key.QueueOrder,
				SrcLinkID:   int(v.SrcLinkID),
				HandlerID:   int(v.Delivery.HandlerID),
				PayloadHash: v.PayloadHash,
				Payload:     payload,
			})
		case *NullEvent:
			key := v.Key()
			wire = append(wire, wireEvent{
				ClassID:     -1,
				DeliverTime: uint64(key.DeliverTime),
				SrcLinkID:   int(v.LinkID),
			})
		case *Action:
			payload, err := sonnet.Marshal(v.Payload)
			if err != nil {
				return nil, fmt.Errorf("ranksync: encode action payload: %w", err)
			}
			key := v.Key()
			wire = append(wire, wireEvent{
				ClassID:     int64(ActionKind),
				DeliverTime: uint64(key.DeliverTime),
				Priority:    key.Priority,
				OrderTag:    key.OrderTag,
				QueueOrder:  key.QueueOrder,
				What:        int(v.What),
				Payload:     payload,
			})
		default:
			return nil, fmt.Errorf("ranksync: unknown activity type %T", a)
		}
	}
	return sonnet.Marshal(wire)
}

// DecodeBatch is the inverse of EncodeBatch. Event/Action payloads are
// decoded into a generic any (typically map[string]any for struct
// payloads) since the wire format carries no type registry; a
// consuming component that round-trips its own payload type across
// ranks is expected to re-assert it after delivery.
func DecodeBatch(buf []byte) ([]Activity, error) {
	var wire []wireEvent
	if err := sonnet.Unmarshal(buf, &wire); err != nil {
		return nil, fmt.Errorf("ranksync: decode batch: %w", err)
	}
	out := make([]Activity, 0, len(wire))
	for _, we := range wire {
		if we.ClassID == -1 {
			out = append(out, &NullEvent{
				key:    ActivityKey{DeliverTime: SimTime(we.DeliverTime), QueueOrder: nextQueueOrder()},
				LinkID: LinkID(we.SrcLinkID),
			})
			continue
		}
		switch ActivityKind(we.ClassID) {
		case EventKind:
			var payload any
			if len(we.Payload) > 0 {
				if err := sonnet.Unmarshal(we.Payload, &payload); err != nil {
					return nil, fmt.Errorf("ranksync: decode event payload: %w", err)
				}
			}
			out = append(out, &Event{
				key: ActivityKey{
					DeliverTime: SimTime(we.DeliverTime),
					Priority:    we.Priority,
					OrderTag:    we.OrderTag,
					QueueOrder:  we.QueueOrder,
				},
				Payload:     payload,
				PayloadHash: we.PayloadHash,
				SrcLinkID:   LinkID(we.SrcLinkID),
				Delivery:    DeliveryInfo{Kind: DeliveryLocal, HandlerID: ComponentID(we.HandlerID)},
			})
		case ActionKind:
			var payload any
			if len(we.Payload) > 0 {
				if err := sonnet.Unmarshal(we.Payload, &payload); err != nil {
					return nil, fmt.Errorf("ranksync: decode action payload: %w", err)
				}
			}
			out = append(out, &Action{
				key: ActivityKey{
					DeliverTime: SimTime(we.DeliverTime),
					Priority:    we.Priority,
					OrderTag:    we.OrderTag,
					QueueOrder:  we.QueueOrder,
				},
				What:    ActionSubKind(we.What),
				Payload: payload,
			})
		default:
			return nil, fmt.Errorf("ranksync: unknown class_id %d", we.ClassID)
		}
	}
	return out, nil
}

// BatchDigest returns a sha3-256 digest of an encoded batch, usable as
// an optional per-batch integrity check by a Transport implementation
// that crosses an untrusted boundary (a real network transport would
// use this; the in-process channel Transport below does not need to,
// since Go's memory model already guarantees the bytes are unchanged).
func BatchDigest(encoded []byte) [32]byte {
	return sha3.Sum256(encoded)
}

// ChannelTransport realizes Transport by running each rank as a
// goroutine and exchanging batches over buffered channels — the
// resolution to DESIGN.md's Open Question 4.
type ChannelTransport struct {
	numRanks int
	inboxes  []chan rankMsg
}

type rankMsg struct {
	from    int
	payload []byte
}

// NewChannelTransport constructs a ChannelTransport for numRanks
// participants. Every rank must call Exchange exactly once per round;
// Exchange blocks until all numRanks contributions for that round have
// been collected and distributed.
func NewChannelTransport(numRanks int) *ChannelTransport {
	ct := &ChannelTransport{numRanks: numRanks}
	ct.inboxes = make([]chan rankMsg, numRanks)
	for i := range ct.inboxes {
		ct.inboxes[i] = make(chan rankMsg, numRanks)
	}
	return ct
}

// Exchange implements Transport. It is a logical Alltoallv (spec.md
// §4.5): rank sends outbound[r] to rank r for every r, and receives
// one inbound message from every rank (including itself).
func (ct *ChannelTransport) Exchange(rank int, outbound [][]byte) ([][]byte, error) {
	if len(outbound) != ct.numRanks {
		return nil, fmt.Errorf("ranksync: outbound batch count %d != numRanks %d", len(outbound), ct.numRanks)
	}
	for dst := 0; dst < ct.numRanks; dst++ {
		ct.inboxes[dst] <- rankMsg{from: rank, payload: outbound[dst]}
	}
	inbound := make([][]byte, ct.numRanks)
	for i := 0; i < ct.numRanks; i++ {
		msg := <-ct.inboxes[rank]
		inbound[msg.from] = msg.payload
	}
	return inbound, nil
}

// RankSync coordinates exchange across every rank's thread 0, folding
// in the combined thread+rank barrier (spec.md §4.5: "rank sync
// strictly includes thread sync"). Symmetric in structure to
// ThreadSync but operating on serialized batches via a Transport.
type RankSync struct {
	rank       int
	transport  Transport
	minLatency SimTime
}

// NewRankSync is a constructor.
func NewRankSync(rank int, transport Transport, minLatency SimTime) *RankSync {
	return &RankSync{rank: rank, transport: transport, minLatency: minLatency}
}

// ExchangeRound performs one Alltoallv round: outboundByRank[r] holds
// this rank's pending activities for rank r, already collected from
// thread 0's per-destination-rank staging queues. It returns the
// decoded activities every rank sent to this one, keyed by source
// rank.
func (rs *RankSync) ExchangeRound(outboundByRank map[int][]Activity, numRanks int) (map[int][]Activity, error) {
	outbound := make([][]byte, numRanks)
	for r := 0; r < numRanks; r++ {
		encoded, err := EncodeBatch(outboundByRank[r])
		if err != nil {
			return nil, err
		}
		outbound[r] = encoded
	}
	inboundBytes, err := rs.transport.Exchange(rs.rank, outbound)
	if err != nil {
		return nil, err
	}
	inbound := make(map[int][]Activity, numRanks)
	for src, buf := range inboundBytes {
		acts, err := DecodeBatch(buf)
		if err != nil {
			return nil, fmt.Errorf("ranksync: rank %d decode from rank %d: %w", rs.rank, src, err)
		}
		inbound[src] = acts
	}
	return inbound, nil
}

// ExchangeExit folds this rank's rank-local Exit reference sum
// (already folded across the rank's own threads by
// ThreadSync.FoldExitLocal) into the global sum across every rank, per
// spec.md §4.6's Propagation paragraph. It rides the same Transport
// used for activity exchange: every rank broadcasts its own sum to
// every other rank, then sums whatever it receives back — an Allreduce
// expressed in terms of the Alltoallv primitive Transport already
// provides.
func (rs *RankSync) ExchangeExit(localSum int64, numRanks int) (int64, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(localSum))
	outbound := make([][]byte, numRanks)
	for r := range outbound {
		outbound[r] = buf
	}
	inbound, err := rs.transport.Exchange(rs.rank, outbound)
	if err != nil {
		return 0, fmt.Errorf("ranksync: exchange exit sum: %w", err)
	}
	var global int64
	for _, b := range inbound {
		if len(b) != 8 {
			return 0, fmt.Errorf("ranksync: exit sum payload has %d bytes, want 8", len(b))
		}
		global += int64(binary.BigEndian.Uint64(b))
	}
	return global, nil
}

// NextWindow computes the next combined safe window exactly as
// ThreadSync.NextWindow does, given the global minimum inter-rank
// pending-outgoing time (already Allreduce-min'd across ranks by the
// caller).
func (rs *RankSync) NextWindow(currentBarrierTime SimTime, globalMinPending SimTime, havePending bool) SimTime {
	next := currentBarrierTime + rs.minLatency
	if havePending && globalMinPending > next {
		next = globalMinPending
	}
	return next
}
