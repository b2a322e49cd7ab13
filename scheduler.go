package vortex

// scheduler.go implements Simulation, the one-per-partition run loop
// described in spec.md §4.3: INIT -> SETUP -> PREPARE -> RUN <-> SYNC
// -> COMPLETE -> FINISH -> DONE. Grounded on ITI-mrnes/scheduler.go's
// TaskScheduler, which is the teacher's own precedent for a
// service-loop-plus-heap type driving work forward step by step
// against a shared clock; here the "task" being scheduled is an
// Activity pop rather than a core timeslice, and the loop's phases are
// spec.md's rather than round-robin core allocation. TaskScheduler
// itself survives, adapted, as the Partitioner's load heuristic (see
// loadscheduler.go); this file is a new run loop grounded on the same
// event-processing shape.

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Phase enumerates Simulation's run-loop states, per spec.md §4.3.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSetup
	PhasePrepare
	PhaseRun
	PhaseSync
	PhaseComplete
	PhaseFinish
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseSetup:
		return "SETUP"
	case PhasePrepare:
		return "PREPARE"
	case PhaseRun:
		return "RUN"
	case PhaseSync:
		return "SYNC"
	case PhaseComplete:
		return "COMPLETE"
	case PhaseFinish:
		return "FINISH"
	case PhaseDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// PartitionCoords locates a Simulation within the R*T grid, per
// spec.md §2.
type PartitionCoords struct {
	Rank   int
	Thread int
}

// Simulation is one partition's engine instance: exactly one goroutine
// drives its run loop, matching spec.md §5's "exactly one goroutine
// per partition; no partition's state is touched by any other
// goroutine outside the sync protocol".
type Simulation struct {
	Coords PartitionCoords

	Vortex   *TimeVortex
	Links    *LinkManager
	Exit     *Exit
	TimeLord *TimeLord

	Components map[ComponentID]Component

	threadSync   *ThreadSync
	threadBarrier *CyclicBarrier
	rankSync     *RankSync
	rankBarrier  *CyclicBarrier
	numThreads   int
	numRanks     int

	now   SimTime
	phase Phase

	stopped   atomic.Bool
	trace     *EventTrace
	log       *logrus.Entry
	checkpointer     *Checkpointer
	checkpointPeriod SimTime
	pendingCheckpoint *PartitionCheckpoint

	statEngine  *StatEngine
	statPeriod  SimTime
	statTicking bool

	// stopSoon, checkpointNow, and dumpStatus are set by cmd/vortex's
	// signal handler goroutine (SIGINT, SIGALRM, SIGUSR1/SIGUSR2) and
	// polled at every SYNC barrier on thread 0 of each rank, per
	// spec.md's "handlers never receive raw signals".
	stopSoon      atomic.Bool
	checkpointNow atomic.Bool
	dumpStatus    atomic.Bool

	// crossThreadOutbox[dstThread] accumulates activities addressed to
	// a peer thread within the same rank until the next SYNC drain.
	crossThreadOutbox map[int][]Activity
	// crossRankOutbox[dstRank] accumulates activities addressed to a
	// peer rank until the next SYNC exchange.
	crossRankOutbox map[int][]Activity
	// linkSeenTraffic[linkID] records whether a link carried real
	// traffic during the window just completed; reset every
	// syncBarrier round after ensureNullTraffic consults it.
	linkSeenTraffic map[LinkID]bool
}

// NewSimulation constructs one partition's Simulation. threadSync and
// threadBarrier are shared by every thread of the same rank;
// rankSync/rankBarrier are shared by thread-0 of every rank (nil on
// non-zero threads, since only thread 0 participates in the rank
// exchange per spec.md §4.5).
func NewSimulation(coords PartitionCoords, numRanks, numThreads int, timeLord *TimeLord, ts *ThreadSync, threadBarrier *CyclicBarrier, rs *RankSync, rankBarrier *CyclicBarrier) *Simulation {
	return &Simulation{
		Coords:            coords,
		Vortex:            NewTimeVortex(),
		Links:             NewLinkManager(),
		Exit:              NewExit(),
		TimeLord:          timeLord,
		Components:        make(map[ComponentID]Component),
		threadSync:        ts,
		threadBarrier:     threadBarrier,
		rankSync:          rs,
		rankBarrier:       rankBarrier,
		numThreads:        numThreads,
		numRanks:          numRanks,
		phase:             PhaseInit,
		log:               logrus.WithFields(logrus.Fields{"rank": coords.Rank, "thread": coords.Thread}),
		crossThreadOutbox: make(map[int][]Activity),
		crossRankOutbox:   make(map[int][]Activity),
		linkSeenTraffic:   make(map[LinkID]bool),
	}
}

// Now returns the partition's current simulated time.
func (s *Simulation) Now() SimTime { return s.now }

// Phase returns the run loop's current state.
func (s *Simulation) Phase() Phase { return s.phase }

// AddComponent registers a wired component instance with this
// partition and with Exit.
func (s *Simulation) AddComponent(c Component) {
	base := c.Base()
	if _, present := s.Components[base.ID]; present {
		panic(fmt.Errorf("scheduler: component %d already added to partition", base.ID))
	}
	s.Components[base.ID] = c
	s.Exit.Register(base.ID)
}

// SetTrace installs an EventTrace sink; nil disables tracing.
func (s *Simulation) SetTrace(t *EventTrace) { s.trace = t }

// SetCheckpointer installs the checkpoint driver used at PhaseSync
// boundaries, ticking every period units of simulated time once
// StartCheckpointTicking is called. A zero period disables automatic
// ticking; the checkpointer is still available for a manually
// scheduled ActionCheckpointTrigger.
func (s *Simulation) SetCheckpointer(c *Checkpointer, period SimTime) {
	s.checkpointer = c
	s.checkpointPeriod = period
}

// RequestStopSoon asks this partition to wind down at its next SYNC
// barrier, as if the configured stop time had been reached. Set from
// a SIGINT handler.
func (s *Simulation) RequestStopSoon() { s.stopSoon.Store(true) }

// RequestCheckpointNow asks this partition to snapshot at its next
// SYNC barrier, independent of any configured checkpoint period. Set
// from a SIGALRM handler.
func (s *Simulation) RequestCheckpointNow() { s.checkpointNow.Store(true) }

// RequestStatusDump asks this partition to log a one-line status
// summary at its next SYNC barrier. Set from a SIGUSR1/SIGUSR2
// handler.
func (s *Simulation) RequestStatusDump() { s.dumpStatus.Store(true) }

// StartCheckpointTicking schedules the first ActionCheckpointTrigger
// Action. A no-op if no Checkpointer or a non-positive period was
// configured.
func (s *Simulation) StartCheckpointTicking() {
	if s.checkpointer == nil || s.checkpointPeriod <= 0 {
		return
	}
	s.Vortex.Insert(NewAction(s.now+s.checkpointPeriod, 0, ActionCheckpointTrigger, nil))
}

// SetStatEngine installs the statistics engine driving this
// partition's StatPeriodic groups, ticking every period units of
// simulated time once StartStatTicking is called.
func (s *Simulation) SetStatEngine(e *StatEngine, period SimTime) {
	s.statEngine = e
	s.statPeriod = period
}

// StartStatTicking schedules the first ActionStatEngineTick Action,
// per spec.md's ambient statistics collection. A no-op if no
// StatEngine or a non-positive period was configured.
func (s *Simulation) StartStatTicking() {
	if s.statEngine == nil || s.statPeriod <= 0 {
		return
	}
	s.statTicking = true
	s.Vortex.Insert(NewAction(s.now+s.statPeriod, 0, ActionStatEngineTick, nil))
}

// Send stamps and routes payload over linkID, exactly as spec.md §4.2
// describes, then files the resulting Event into the right outbox
// (local insertion, cross-thread mailbox, or cross-rank mailbox).
func (s *Simulation) Send(linkID LinkID, additionalDelay SimTime, priority int32, payload any, hashBytes []byte) {
	ev, routed := s.Links.Send(linkID, s.now, additionalDelay, priority, payload, hashBytes)
	switch routed {
	case RoutedLocal:
		s.Vortex.Insert(ev)
	case RoutedThreadSync:
		dst := ev.Delivery.PeerThread
		s.crossThreadOutbox[dst] = append(s.crossThreadOutbox[dst], ev)
		s.linkSeenTraffic[linkID] = true
	case RoutedRankSync:
		dst := ev.Delivery.PeerRank
		s.crossRankOutbox[dst] = append(s.crossRankOutbox[dst], ev)
		s.linkSeenTraffic[linkID] = true
	}
}

// Run drives the partition's full lifecycle to completion, per
// spec.md §4.3. stopAt, if hasStopAt, is the configured stop time
// (Exit.SetStopTime); initialWindow is the initial safe window boundary
// (usually the rank/thread minimum inter-partition latency).
func (s *Simulation) Run(hasStopAt bool, stopAt SimTime, initialWindow SimTime) error {
	s.phase = PhaseInit
	phase := 0
	for {
		anyWork, anyInFlight := false, false
		for _, c := range s.Components {
			didWork, inFlight := c.Init(phase)
			anyWork = anyWork || didWork
			anyInFlight = anyInFlight || inFlight
		}
		phase++
		if !anyWork && !anyInFlight {
			break
		}
	}

	s.phase = PhaseSetup
	for _, c := range s.Components {
		c.Setup()
	}

	s.phase = PhasePrepare
	if hasStopAt {
		s.Exit.SetStopTime(stopAt)
	}

	windowEnd := initialWindow
	s.phase = PhaseRun
	s.StartStatTicking()
	s.StartCheckpointTicking()
	for {
		if err := s.runWindow(windowEnd); err != nil {
			return err
		}

		s.phase = PhaseSync
		nextWindowEnd, globalSum, err := s.syncBarrier(windowEnd)
		if err != nil {
			return err
		}

		if s.Coords.Thread == 0 {
			if s.dumpStatus.Swap(false) {
				s.log.Infof("status: now=%d phase=%s components=%d vortex_depth=%d", s.now, s.phase, len(s.Components), s.Vortex.CurrentDepth())
			}
			if s.checkpointNow.Swap(false) && s.checkpointer != nil {
				if err := s.checkpointer.Snapshot(s); err != nil {
					return err
				}
			}
		}

		if s.Exit.ShouldStop(globalSum, s.now) || (s.Coords.Thread == 0 && s.stopSoon.Load()) {
			s.phase = PhaseComplete
			break
		}
		windowEnd = nextWindowEnd
		s.phase = PhaseRun
	}

	phase = 0
	for {
		anyWork, anyInFlight := false, false
		for _, c := range s.Components {
			didWork, inFlight := c.Complete(phase)
			anyWork = anyWork || didWork
			anyInFlight = anyInFlight || inFlight
		}
		phase++
		if !anyWork && !anyInFlight {
			break
		}
	}

	s.phase = PhaseFinish
	for _, c := range s.Components {
		c.Finish()
	}
	if s.statEngine != nil {
		if err := s.statEngine.EndOfSimulation(s.now); err != nil {
			return err
		}
	}
	s.phase = PhaseDone
	s.stopped.Store(true)
	return nil
}

// runWindow pops and dispatches every activity strictly before
// windowEnd, per spec.md §4.3's RUN phase.
func (s *Simulation) runWindow(windowEnd SimTime) error {
	for !s.Vortex.Empty() && s.Vortex.Peek().Key().DeliverTime < windowEnd {
		a := s.Vortex.Pop()
		s.now = a.Key().DeliverTime
		if err := s.dispatch(a); err != nil {
			return fmt.Errorf("scheduler: rank %d thread %d: dispatch at %d: %w", s.Coords.Rank, s.Coords.Thread, s.now, err)
		}
	}
	s.now = windowEnd
	return nil
}

// dispatch routes a popped Activity to its handler, per spec.md §4.3's
// dispatch table.
func (s *Simulation) dispatch(a Activity) error {
	switch v := a.(type) {
	case *Event:
		if v.Delivery.Kind != DeliveryLocal {
			return fmt.Errorf("scheduler: event with non-local delivery popped locally (link %d)", v.SrcLinkID)
		}
		comp, present := s.Components[v.Delivery.HandlerID]
		if !present {
			return fmt.Errorf("scheduler: no component %d for delivered event", v.Delivery.HandlerID)
		}
		if s.trace != nil {
			s.trace.Record(v.Key().DeliverTime, v.Key().Priority, v.Delivery.HandlerID, v.PayloadHash)
		}
		port := PortName("")
		for p, link := range comp.Base().Ports {
			if link == v.SrcLinkID {
				port = p
				break
			}
		}
		return comp.HandleEvent(s, port, s.now, v.Payload)
	case *Action:
		return s.dispatchAction(v)
	case *NullEvent:
		return nil
	default:
		return fmt.Errorf("scheduler: unknown activity type %T", a)
	}
}

func (s *Simulation) dispatchAction(a *Action) error {
	switch a.What {
	case ActionCheckpointTrigger:
		if s.checkpointer == nil {
			return nil
		}
		if err := s.checkpointer.Snapshot(s); err != nil {
			return err
		}
		if s.checkpointPeriod > 0 {
			s.Vortex.Insert(NewAction(s.now+s.checkpointPeriod, 0, ActionCheckpointTrigger, nil))
		}
		return nil
	case ActionStatEngineTick:
		if s.statEngine == nil {
			return nil
		}
		if err := s.statEngine.HandlePeriodicTick(s.now); err != nil {
			return err
		}
		if s.statTicking {
			s.Vortex.Insert(NewAction(s.now+s.statPeriod, 0, ActionStatEngineTick, nil))
		}
		return nil
	case ActionStatEngineStop:
		s.statTicking = false
		return nil
	case ActionStatisticStart:
		if stat, ok := a.Payload.(*Statistic); ok {
			stat.Enable()
		}
		return nil
	case ActionStatisticStop:
		if stat, ok := a.Payload.(*Statistic); ok {
			stat.Disable()
		}
		return nil
	default:
		return nil
	}
}

// ensureNullTraffic synthesizes a NullEvent on every cross-thread or
// cross-rank link that carried no real traffic during the window just
// completed, per spec.md §4.4's empty-traffic case ("Empty-link
// progression": a silent link must still exchange a NullEvent each
// round so its destination partition's sync protocol keeps advancing
// rather than waiting forever on a link it never hears from). Resets
// the per-link traffic tracker for the next window once done.
func (s *Simulation) ensureNullTraffic() {
	for _, link := range s.Links.All() {
		switch link.Target.Kind {
		case DeliveryCrossThread:
			EnsureNullTraffic(s.threadSync, s.Coords.Thread, link.Target.PeerThread, link, s.now, s.linkSeenTraffic[link.ID])
		case DeliveryCrossRank:
			if !s.linkSeenTraffic[link.ID] {
				ne := NewNullEvent(s.now+link.Latency, link.ID)
				s.crossRankOutbox[link.Target.PeerRank] = append(s.crossRankOutbox[link.Target.PeerRank], ne)
			}
		}
	}
	s.linkSeenTraffic = make(map[LinkID]bool)
}

// syncBarrier performs one full sync round (spec.md §4.4/§4.5): stamp
// this thread's fence, rendezvous at the thread barrier, drain
// cross-thread mailboxes, and — on thread 0 only — exchange with every
// other rank before computing the next window and the folded global
// exit sum.
func (s *Simulation) syncBarrier(currentWindowEnd SimTime) (SimTime, int64, error) {
	s.ensureNullTraffic()

	haveOutgoing := false
	var earliest SimTime
	for dst, acts := range s.crossThreadOutbox {
		for _, a := range acts {
			s.threadSync.Send(s.Coords.Thread, dst, a)
			if !haveOutgoing || a.Key().DeliverTime < earliest {
				earliest = a.Key().DeliverTime
				haveOutgoing = true
			}
		}
	}
	s.crossThreadOutbox = make(map[int][]Activity)

	s.threadSync.SealWithFence(s.Coords.Thread, earliest, haveOutgoing)
	s.threadSync.ReportExitLocal(s.Coords.Thread, s.Exit.Local())
	s.threadBarrier.Wait()

	localWindow := s.threadSync.NextWindow(currentWindowEnd)
	rankLocalExitSum := s.threadSync.FoldExitLocal()

	if s.rankSync != nil && s.Coords.Thread == 0 {
		outboundByRank := s.crossRankOutbox
		s.crossRankOutbox = make(map[int][]Activity)

		inbound, err := s.rankSync.ExchangeRound(outboundByRank, s.numRanks)
		if err != nil {
			return 0, 0, err
		}

		globalMinPending := SimTime(0)
		haveGlobalPending := false
		for _, acts := range outboundByRank {
			for _, a := range acts {
				if !haveGlobalPending || a.Key().DeliverTime < globalMinPending {
					globalMinPending = a.Key().DeliverTime
					haveGlobalPending = true
				}
			}
		}
		finalWindow := s.rankSync.NextWindow(currentWindowEnd, globalMinPending, haveGlobalPending)
		if localWindow > finalWindow {
			finalWindow = localWindow
		}
		for _, acts := range inbound {
			for _, a := range acts {
				if a.Key().DeliverTime < finalWindow {
					s.Vortex.Insert(a)
				}
			}
		}

		globalExitSum, err := s.rankSync.ExchangeExit(rankLocalExitSum, s.numRanks)
		if err != nil {
			return 0, 0, err
		}

		s.threadSync.SetSharedWindow(finalWindow)
		s.threadSync.SetSharedExitSum(globalExitSum)
	} else if s.rankSync == nil && s.Coords.Thread == 0 {
		s.threadSync.SetSharedWindow(localWindow)
		s.threadSync.SetSharedExitSum(rankLocalExitSum)
	}

	s.threadBarrier.Wait()

	nextWindow := localWindow
	globalSum := rankLocalExitSum
	if s.rankSync != nil {
		nextWindow = s.threadSync.SharedWindow()
		globalSum = s.threadSync.SharedExitSum()
	} else if s.numThreads > 1 {
		nextWindow = s.threadSync.SharedWindow()
		globalSum = s.threadSync.SharedExitSum()
	}

	s.threadSync.DrainInto(s.Coords.Thread, s.Vortex, nextWindow)

	return nextWindow, globalSum, nil
}

// TakePendingCheckpoint returns and clears the partition checkpoint
// captured by this partition's most recent Checkpointer.Snapshot, if
// any. The checkpoint file itself is written by the Checkpointer once
// every partition has reported for the round.
func (s *Simulation) TakePendingCheckpoint() (*PartitionCheckpoint, bool) {
	pc := s.pendingCheckpoint
	s.pendingCheckpoint = nil
	if pc == nil {
		return nil, false
	}
	return pc, true
}

// Stopped reports whether this partition's run loop has reached DONE.
func (s *Simulation) Stopped() bool {
	return s.stopped.Load()
}
