package vortex

// wireup.go implements the Wire-up stage, per spec.md §4.9: resolve
// every ConfigComponent's factory, assign partitions, compute the
// minimum inter-partition latency each ThreadSync/RankSync needs, and
// bind every ConfigLink into concrete Links on both endpoints'
// partitions. The top-level orchestration mirrors
// mrnes.go's BuildExperimentNet: a short sequence of sub-builder calls
// (GetExperimentNetDicts -> createTopoReferences -> buildDevExecTimeTbl
// -> setModelParameters -> checkConnections), each one a distinct,
// separately named phase, with a panic if any required dictionary is
// missing — generalized here from network-topology assembly to
// generic component/link assembly.

import (
	"fmt"
	"strings"
)

// WiredModel is the fully wired-up, ready-to-run set of per-partition
// Simulation instances plus the shared sync infrastructure that
// coordinates them, per spec.md §4.9's "wire-up produces a complete,
// checkable Simulation per partition, or fails fatally before any
// partition starts running."
type WiredModel struct {
	Simulations map[PartitionCoords]*Simulation
	NumRanks    int
	NumThreads  int
	TimeLord    *TimeLord

	ThreadSyncs map[int]*ThreadSync     // per rank
	ThreadBars  map[int]*CyclicBarrier  // per rank
	RankSyncMgr *RankSync               // always nil: each rank's thread-0 Simulation holds its own RankSync
	RankBarrier *CyclicBarrier

	// StatsByRank collects every Statistic declared by cg.Statistics,
	// grouped by the rank its owning component landed on. cmd/vortex
	// folds each rank's slice into a StatGroup/StatEngine bound to the
	// sink the --stat-sink flag selects, then attaches the engine to
	// that rank's thread-0 Simulation.
	StatsByRank map[int][]*Statistic
}

// WireUp builds a WiredModel from cg using assignments (typically the
// output of a Partitioner). It resolves every component's factory
// from the ComponentRegistry, computes each rank's minimum
// cross-thread link latency and the model's minimum cross-rank link
// latency, and binds every ConfigLink to concrete Links on both
// endpoints. Any unresolved component type, dangling link endpoint, or
// non-positive latency is fatal (returned as an error, per spec.md
// §4.9/§7 — "fatal before simulation starts" translated to a returned
// error rather than a panic, since wire-up is expected to be callable
// from a CLI that reports the failure and exits cleanly rather than
// crashing).
func WireUp(cg *ConfigGraph, assignments map[string]PartitionAssignment, timeLord *TimeLord, transport Transport) (*WiredModel, error) {
	if cg.NumRanks <= 0 || cg.NumThreads <= 0 {
		return nil, fmt.Errorf("wireup: num_ranks and num_threads must be positive")
	}

	minCrossThread := make(map[int]SimTime) // per rank
	minCrossRank := SimTime(0)
	haveCrossRank := false

	endpointPartition := make(map[string]PartitionAssignment, len(assignments))
	for name, a := range assignments {
		endpointPartition[name] = a
	}

	for _, l := range cg.Links {
		aName, bName := componentOf(l.EndpointA), componentOf(l.EndpointB)
		aPart, aok := endpointPartition[aName]
		bPart, bok := endpointPartition[bName]
		if !aok || !bok {
			return nil, fmt.Errorf("wireup: link %q references unassigned component", l.Name)
		}
		if l.Latency <= 0 {
			return nil, fmt.Errorf("wireup: link %q has non-positive latency", l.Name)
		}
		latencyTicks := timeLord.GetTimeConverter(fmt.Sprintf("%gs", l.Latency)).ToSimTime(1)
		if aPart.Rank == bPart.Rank {
			if aPart.Thread != bPart.Thread {
				if cur, present := minCrossThread[aPart.Rank]; !present || latencyTicks < cur {
					minCrossThread[aPart.Rank] = latencyTicks
				}
			}
		} else {
			if !haveCrossRank || latencyTicks < minCrossRank {
				minCrossRank = latencyTicks
				haveCrossRank = true
			}
		}
	}

	wm := &WiredModel{
		Simulations: make(map[PartitionCoords]*Simulation),
		NumRanks:    cg.NumRanks,
		NumThreads:  cg.NumThreads,
		TimeLord:    timeLord,
		ThreadSyncs: make(map[int]*ThreadSync),
		ThreadBars:  make(map[int]*CyclicBarrier),
		StatsByRank: make(map[int][]*Statistic),
	}

	if haveCrossRank && transport != nil {
		wm.RankSyncMgr = nil // per-rank RankSync instances are created below, one per rank
		wm.RankBarrier = NewCyclicBarrier(cg.NumRanks)
	}

	for r := 0; r < cg.NumRanks; r++ {
		latency := minCrossThread[r]
		if latency == 0 {
			latency = 1
		}
		ts := NewThreadSync(cg.NumThreads, latency)
		bar := NewCyclicBarrier(cg.NumThreads)
		wm.ThreadSyncs[r] = ts
		wm.ThreadBars[r] = bar

		var rs *RankSync
		if haveCrossRank && transport != nil {
			rankLatency := minCrossRank
			if rankLatency == 0 {
				rankLatency = 1
			}
			rs = NewRankSync(r, transport, rankLatency)
		}

		for t := 0; t < cg.NumThreads; t++ {
			coords := PartitionCoords{Rank: r, Thread: t}
			var simRankSync *RankSync
			var simRankBar *CyclicBarrier
			if t == 0 {
				simRankSync = rs
				simRankBar = wm.RankBarrier
			}
			sim := NewSimulation(coords, cg.NumRanks, cg.NumThreads, timeLord, ts, bar, simRankSync, simRankBar)
			wm.Simulations[coords] = sim
		}
	}

	componentID := ComponentID(0)
	linkID := LinkID(0)
	instantiated := make(map[string]Component, len(cg.Components))

	sharedByName := make(map[string]*Params, len(cg.SharedParams))
	for _, sp := range cg.SharedParams {
		p := NewParams()
		for k, v := range sp.Params {
			p.Insert(k, v, true)
		}
		p.MarkAsSharedSet(sp.Name)
		sharedByName[sp.Name] = p
	}

	for _, c := range cg.Components {
		factory, present := LookupComponentFactory(c.Type)
		if !present {
			return nil, fmt.Errorf("wireup: component %q has unresolved type %q", c.Name, c.Type)
		}
		part, present := endpointPartition[c.Name]
		if !present {
			return nil, fmt.Errorf("wireup: component %q has no partition assignment", c.Name)
		}
		params := NewParams()
		for k, v := range c.Params {
			params.Insert(k, v, true)
		}
		for _, setName := range c.SharedSets {
			set, present := sharedByName[setName]
			if !present {
				return nil, fmt.Errorf("wireup: component %q references unknown shared set %q", c.Name, setName)
			}
			params.AttachSharedSet(set)
		}

		base := BaseComponentData{
			ID:     componentID,
			Name:   c.Name,
			Type:   c.Type,
			Rank:   part.Rank,
			Thread: part.Thread,
			Params: params,
			Ports:  make(map[PortName]LinkID),
		}
		comp := factory(base)
		instantiated[c.Name] = comp
		componentID++

		sim := wm.Simulations[PartitionCoords{Rank: part.Rank, Thread: part.Thread}]
		sim.AddComponent(comp)
	}

	for _, l := range cg.Links {
		aComp, aPort := splitEndpoint(l.EndpointA)
		bComp, bPort := splitEndpoint(l.EndpointB)
		aC, aok := instantiated[aComp]
		bC, bok := instantiated[bComp]
		if !aok || !bok {
			return nil, fmt.Errorf("wireup: link %q references unknown component", l.Name)
		}
		if l.EventType != "" {
			if err := checkPortEventType(aC, PortName(aPort), l.EventType); err != nil {
				return nil, fmt.Errorf("wireup: link %q: %w", l.Name, err)
			}
			if err := checkPortEventType(bC, PortName(bPort), l.EventType); err != nil {
				return nil, fmt.Errorf("wireup: link %q: %w", l.Name, err)
			}
		}
		aPart, bPart := endpointPartition[aComp], endpointPartition[bComp]

		latencyTicks := timeLord.GetTimeConverter(fmt.Sprintf("%gs", l.Latency)).ToSimTime(1)

		idAB := linkID
		linkID++
		idBA := linkID
		linkID++

		linkAB := NewLink(idAB, l.EndpointA, l.EndpointB, latencyTicks, l.EventType)
		linkBA := NewLink(idBA, l.EndpointB, l.EndpointA, latencyTicks, l.EventType)
		linkAB.PartnerLinkID = idBA
		linkBA.PartnerLinkID = idAB
		linkAB.Target = deliveryFor(aPart, bPart, bC.Base().ID)
		linkBA.Target = deliveryFor(bPart, aPart, aC.Base().ID)

		simA := wm.Simulations[PartitionCoords{Rank: aPart.Rank, Thread: aPart.Thread}]
		simB := wm.Simulations[PartitionCoords{Rank: bPart.Rank, Thread: bPart.Thread}]
		simA.Links.Register(linkAB)
		simB.Links.Register(linkBA)
		aC.Base().Ports[PortName(aPort)] = idAB
		bC.Base().Ports[PortName(bPort)] = idBA
	}

	for _, cs := range cg.Statistics {
		comp, present := instantiated[cs.Component]
		if !present {
			return nil, fmt.Errorf("wireup: statistic %q references unknown component %q", cs.Name, cs.Component)
		}
		part := endpointPartition[cs.Component]
		stat := NewStatistic(comp.Base().ID, cs.Name, parseStatMode(cs.Mode), cs.CollectionRate)
		stat.ResetOnOutput = cs.ResetOnOutput
		stat.ClearOnOutput = cs.ClearOnOutput
		stat.RollingWindow = cs.RollingWindow
		if cs.Disabled || cs.StartAt != "" {
			// a configured StartAt means the statistic is dormant until
			// that tick's ActionStatisticStart fires, per spec.md §4.8.
			stat.Disable()
		}
		comp.Base().Stats = append(comp.Base().Stats, stat)
		wm.StatsByRank[part.Rank] = append(wm.StatsByRank[part.Rank], stat)

		sim := wm.Simulations[PartitionCoords{Rank: part.Rank, Thread: part.Thread}]
		if cs.StartAt != "" {
			startTicks := timeLord.GetTimeConverter(cs.StartAt).ToSimTime(1)
			sim.Vortex.Insert(NewAction(startTicks, 0, ActionStatisticStart, stat))
		}
		if cs.StopAt != "" {
			stopTicks := timeLord.GetTimeConverter(cs.StopAt).ToSimTime(1)
			sim.Vortex.Insert(NewAction(stopTicks, 0, ActionStatisticStop, stat))
		}
	}

	return wm, nil
}

// parseStatMode maps a ConfigStatistic's Mode string to a StatMode,
// defaulting to StatPeriodic per spec.md §4.8's most common case.
func parseStatMode(mode string) StatMode {
	switch strings.ToLower(mode) {
	case "count":
		return StatCount
	case "dumpatend":
		return StatDumpAtEnd
	default:
		return StatPeriodic
	}
}

// checkPortEventType enforces spec.md §4.2's wire-up mismatch check:
// a component that has declared a reflect.Type for port (via
// BaseComponentData.DeclarePortType) must agree with the link's
// declared event type name. A component that never declared a type
// for the port is untyped and is skipped, so typed and untyped ports
// can coexist on the same graph.
func checkPortEventType(c Component, port PortName, declared string) error {
	t, present := c.Base().PortTypes[port]
	if !present {
		return nil
	}
	if t.Name() != declared {
		return fmt.Errorf("port %s.%s declares payload type %q, link declares event type %q", c.Base().Name, port, t.Name(), declared)
	}
	return nil
}

// deliveryFor computes the DeliveryInfo a Link stamps into every Event
// it sends. HandlerID is always the destination component, regardless
// of Kind: TimeVortex.Insert normalizes Kind back to DeliveryLocal
// once the event actually lands on the destination partition, at
// which point only HandlerID is consulted.
func deliveryFor(from, to PartitionAssignment, targetID ComponentID) DeliveryInfo {
	if from.Rank == to.Rank && from.Thread == to.Thread {
		return DeliveryInfo{Kind: DeliveryLocal, HandlerID: targetID}
	}
	if from.Rank == to.Rank {
		return DeliveryInfo{Kind: DeliveryCrossThread, HandlerID: targetID, PeerThread: to.Thread}
	}
	return DeliveryInfo{Kind: DeliveryCrossRank, HandlerID: targetID, PeerRank: to.Rank}
}

// splitEndpoint parses a "component.port" string.
func splitEndpoint(endpoint string) (component, port string) {
	for i := 0; i < len(endpoint); i++ {
		if endpoint[i] == '.' {
			return endpoint[:i], endpoint[i+1:]
		}
	}
	return endpoint, ""
}
