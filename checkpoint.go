package vortex

// checkpoint.go implements Checkpoint/Restart, per spec.md §4.10/§6.
// The overall shape — one sonnet-encoded GlobalCheckpoint file per
// round, holding a version header, every partition's snapshot and a
// sha3-256 digest; there is no separate registry file and no
// length-prefixed blob — is grounded on trace.go's WriteToFile
// pattern (one struct, one file, one WriteToFile/ReadFile pair); the
// requirement that no two components sharing a
// pointer get double-serialized is grounded on
// original_source/src/sst/core/serialization/serializer.h's
// pointer-identity map, translated to Go: since Go has no user-visible
// pointer identity comparison across an encode/decode boundary the way
// C++ serializer.h's ser_pointer_map does, ComponentID (already a
// plain integer, not a pointer) is used as the identity key instead —
// the same problem serializer.h solves, solved with the identity Go
// values already carry.

import (
	"fmt"
	"os"
	"sync"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/crypto/sha3"
)

// writeFileAtomically writes data to a temp file in the same
// directory as path, then renames it into place, so a checkpoint file
// is never observed half-written by a concurrent restore.
func writeFileAtomically(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// EngineVersion is stamped into every checkpoint's header. Restore
// refuses to load a checkpoint whose version differs (DESIGN.md's
// Open Question 3: version compatibility across engine releases is
// unsupported by the core, not silently attempted).
const EngineVersion = "vortex-checkpoint-v1"

// ComponentCheckpoint is one component's Serialize-d state, keyed by
// its ComponentID so RestorePartition can hand it back to the right
// freshly wired-up instance (spec.md §9's "pointer-identity preserved"
// requirement, translated to ComponentID since Go values carry no
// serializable pointer identity of their own).
type ComponentCheckpoint struct {
	ID   ComponentID `json:"id"`
	Data []byte      `json:"data,omitempty"`
}

// PartitionCheckpoint is one partition's serialized state: its
// TimeVortex contents, current time, phase, Exit reference count, and
// every registered component's own Serialize-d snapshot, per spec.md
// §4.10's "all registered components and their subcomponents,
// depth-first, with pointer identity preserved".
type PartitionCheckpoint struct {
	Coords     PartitionCoords       `json:"coords"`
	Now        SimTime               `json:"now"`
	Phase      Phase                 `json:"phase"`
	ExitLocal  int64                 `json:"exit_local"`
	Vortex     []wireEvent           `json:"vortex"`
	Components []ComponentCheckpoint `json:"components"`
}

// GlobalCheckpoint is the full checkpoint written at one sync barrier
// across every partition of the process, per spec.md §4.10's "a
// checkpoint captures the full distributed state at one barrier".
type GlobalCheckpoint struct {
	EngineVersion string  `json:"engine_version"`
	ExpName       string  `json:"exp_name"`
	BarrierTime   SimTime `json:"barrier_time"`
	// NumRanks/NumThreads record the (ranks, threads) shape the
	// checkpoint was taken under. Restore-from-checkpoint must abort
	// if the current launch's shape differs, per spec.md §4.10 —
	// re-instantiating into a superset or subset of partitions would
	// silently leave some partitions unrestored or some checkpointed
	// state with nowhere to land.
	NumRanks   int                   `json:"num_ranks"`
	NumThreads int                   `json:"num_threads"`
	Partitions []PartitionCheckpoint `json:"partitions"`
	Digest     [32]byte              `json:"digest"`
}

// Checkpointer drives periodic snapshotting for one Simulation,
// dispatched from an ActionCheckpointTrigger Action, per spec.md's
// "checkpoint requests are scheduled the same way any other Action
// is".
type Checkpointer struct {
	dir        string
	expName    string
	numRanks   int
	numThreads int

	mu        sync.Mutex
	collector *checkpointCollector
}

// checkpointCollector accumulates one PartitionCheckpoint per
// partition until every partition of the process has reported in,
// then writes the combined GlobalCheckpoint — the multi-partition
// analogue of trace.go's single-struct WriteToFile.
type checkpointCollector struct {
	expected int
	got      map[PartitionCoords]PartitionCheckpoint
	barrier  SimTime
}

// NewCheckpointer constructs a Checkpointer shared by every partition
// of the process, writing to dir. numRanks/numThreads describe the
// current launch's shape, stamped into every GlobalCheckpoint written
// so a later --load-checkpoint run can refuse to restore into a
// different shape (spec.md §4.10); their product is the number of
// partitions that must report a snapshot before a round is folded
// into one GlobalCheckpoint and written. Pass 0 for either to disable
// collection and rely solely on TakePendingCheckpoint's per-partition
// polling.
func NewCheckpointer(dir, expName string, numRanks, numThreads int) *Checkpointer {
	c := &Checkpointer{dir: dir, expName: expName, numRanks: numRanks, numThreads: numThreads}
	expected := numRanks * numThreads
	if expected > 0 {
		c.collector = &checkpointCollector{
			expected: expected,
			got:      make(map[PartitionCoords]PartitionCheckpoint),
		}
	}
	return c
}

// Snapshot captures sim's own partition state into a
// PartitionCheckpoint, stashes it on sim for TakePendingCheckpoint,
// and folds it into this Checkpointer's shared collector. Once every
// expected partition has reported for the round, the collector writes
// one GlobalCheckpoint and resets for the next round.
func (c *Checkpointer) Snapshot(sim *Simulation) error {
	components, err := serializeComponents(sim)
	if err != nil {
		return err
	}
	pc := PartitionCheckpoint{
		Coords:     sim.Coords,
		Now:        sim.now,
		Phase:      sim.phase,
		ExitLocal:  sim.Exit.Local(),
		Vortex:     activitiesToWire(sim.Vortex.Snapshot()),
		Components: components,
	}
	sim.pendingCheckpoint = &pc
	return c.collect(pc)
}

// serializeComponents calls Serialize on every component registered
// with sim, skipping components whose Serialize returns nil data (the
// BaseComponentData default, meaning stateless).
func serializeComponents(sim *Simulation) ([]ComponentCheckpoint, error) {
	out := make([]ComponentCheckpoint, 0, len(sim.Components))
	for id, comp := range sim.Components {
		data, err := comp.Serialize()
		if err != nil {
			return nil, fmt.Errorf("checkpoint: serialize component %d: %w", id, err)
		}
		if data == nil {
			continue
		}
		out = append(out, ComponentCheckpoint{ID: id, Data: data})
	}
	return out, nil
}

// collect folds pc into the shared collector, writing a GlobalCheckpoint
// once every expected partition has reported for the current round.
func (c *Checkpointer) collect(pc PartitionCheckpoint) error {
	if c.collector == nil {
		return nil
	}

	var toWrite []PartitionCheckpoint
	var barrier SimTime

	c.mu.Lock()
	if pc.Now > c.collector.barrier {
		c.collector.barrier = pc.Now
	}
	c.collector.got[pc.Coords] = pc
	ready := len(c.collector.got) >= c.collector.expected
	if ready {
		toWrite = make([]PartitionCheckpoint, 0, len(c.collector.got))
		for _, p := range c.collector.got {
			toWrite = append(toWrite, p)
		}
		barrier = c.collector.barrier
		c.collector.got = make(map[PartitionCoords]PartitionCheckpoint)
		c.collector.barrier = 0
	}
	c.mu.Unlock()

	if !ready {
		return nil
	}
	return WriteCheckpoint(c.dir, c.expName, barrier, c.numRanks, c.numThreads, toWrite)
}

// activitiesToWire reuses ranksync.go's wireEvent encoding so a
// checkpointed TimeVortex round-trips through the same shape a
// cross-rank batch does.
func activitiesToWire(activities []Activity) []wireEvent {
	out := make([]wireEvent, 0, len(activities))
	for _, a := range activities {
		encoded, err := EncodeBatch([]Activity{a})
		if err != nil {
			panic(fmt.Errorf("checkpoint: encode activity: %w", err))
		}
		var wire []wireEvent
		if err := sonnet.Unmarshal(encoded, &wire); err != nil {
			panic(fmt.Errorf("checkpoint: re-decode activity wire shape: %w", err))
		}
		out = append(out, wire...)
	}
	return out
}

// WriteCheckpoint serializes a fully-collected GlobalCheckpoint to
// dir/expName.checkpoint using sonnet, stamping a sha3-256 integrity
// digest over the partition payload before writing (spec.md §4.10's
// "a checkpoint file's integrity is independently verifiable").
// numRanks/numThreads are stamped alongside the digest so a later
// restore can refuse a launch-shape mismatch.
func WriteCheckpoint(dir, expName string, barrierTime SimTime, numRanks, numThreads int, partitions []PartitionCheckpoint) error {
	gc := GlobalCheckpoint{
		EngineVersion: EngineVersion,
		ExpName:       expName,
		BarrierTime:   barrierTime,
		NumRanks:      numRanks,
		NumThreads:    numThreads,
		Partitions:    partitions,
	}
	payload, err := sonnet.Marshal(gc.Partitions)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal partitions: %w", err)
	}
	gc.Digest = sha3.Sum256(payload)

	full, err := sonnet.Marshal(gc)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal checkpoint: %w", err)
	}
	path := dir + "/" + expName + ".checkpoint"
	return writeFileAtomically(path, full)
}

// ReadCheckpoint loads and validates a checkpoint file. It refuses a
// version mismatch and a digest mismatch, both fatal per spec.md's
// "restore integrity is checked before any partition resumes".
func ReadCheckpoint(path string) (*GlobalCheckpoint, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}
	var gc GlobalCheckpoint
	if err := sonnet.Unmarshal(data, &gc); err != nil {
		return nil, fmt.Errorf("checkpoint: decode %s: %w", path, err)
	}
	if gc.EngineVersion != EngineVersion {
		return nil, fmt.Errorf("checkpoint: version mismatch: file has %q, engine is %q", gc.EngineVersion, EngineVersion)
	}
	payload, err := sonnet.Marshal(gc.Partitions)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: re-marshal partitions for digest check: %w", err)
	}
	if sha3.Sum256(payload) != gc.Digest {
		return nil, fmt.Errorf("checkpoint: digest mismatch, file is corrupt")
	}
	return &gc, nil
}

// RestorePartition rebuilds a Simulation's TimeVortex, clock, phase,
// and every registered component's internal state from its
// PartitionCheckpoint. sim's components must already be registered
// (by a fresh WireUp call, per cmd/vortex's --load-checkpoint path)
// before calling RestorePartition, so their Restore method has an
// instance to install the snapshot into.
func RestorePartition(sim *Simulation, pc PartitionCheckpoint) error {
	encoded, err := sonnet.Marshal(pc.Vortex)
	if err != nil {
		return fmt.Errorf("checkpoint: re-encode vortex snapshot: %w", err)
	}
	activities, err := DecodeBatch(encoded)
	if err != nil {
		return fmt.Errorf("checkpoint: decode vortex snapshot: %w", err)
	}
	sim.Vortex = RestoreTimeVortex(activities)
	sim.now = pc.Now
	sim.phase = pc.Phase
	sim.Exit.SetLocal(pc.ExitLocal)

	for _, cc := range pc.Components {
		comp, present := sim.Components[cc.ID]
		if !present {
			return fmt.Errorf("checkpoint: restore: component %d not registered on this partition", cc.ID)
		}
		if err := comp.Restore(cc.Data); err != nil {
			return fmt.Errorf("checkpoint: restore component %d: %w", cc.ID, err)
		}
	}
	return nil
}
