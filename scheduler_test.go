package vortex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testComponent is a minimal Component used to drive Simulation.Run
// through concrete scenarios without going through the full
// ConfigGraph/Partitioner/WireUp pipeline.
type testComponent struct {
	BaseComponentData
	onSetup      func()
	onInit       func(phase int) (bool, bool)
	onHandleEvent func(sim *Simulation, port PortName, at SimTime, payload any) error
	onComplete   func(phase int) (bool, bool)
	onFinish     func()
}

func (c *testComponent) Setup() {
	if c.onSetup != nil {
		c.onSetup()
	}
}

func (c *testComponent) Init(phase int) (bool, bool) {
	if c.onInit != nil {
		return c.onInit(phase)
	}
	return false, false
}

func (c *testComponent) HandleEvent(sim *Simulation, port PortName, at SimTime, payload any) error {
	if c.onHandleEvent != nil {
		return c.onHandleEvent(sim, port, at, payload)
	}
	return nil
}

func (c *testComponent) Complete(phase int) (bool, bool) {
	if c.onComplete != nil {
		return c.onComplete(phase)
	}
	return false, false
}

func (c *testComponent) Finish() {
	if c.onFinish != nil {
		c.onFinish()
	}
}

// newSinglePartitionSim builds a one-thread, one-rank Simulation, with
// no ThreadSync/RankSync fan-out to coordinate (numThreads == 1 makes
// the thread barrier and shared-window plumbing a no-op single party).
func newSinglePartitionSim(t *testing.T) *Simulation {
	t.Helper()
	tl, err := CreateTimeLord("1ns")
	require.NoError(t, err)
	ts := NewThreadSync(1, 1)
	bar := NewCyclicBarrier(1)
	return NewSimulation(PartitionCoords{Rank: 0, Thread: 0}, 1, 1, tl, ts, bar, nil, nil)
}

func TestSimulation_PingPong_BouncesUntilExitReachesZero(t *testing.T) {
	sim := newSinglePartitionSim(t)

	const bounces = 4
	pingCount, pongCount := 0, 0

	ping := &testComponent{BaseComponentData: BaseComponentData{ID: 0, Name: "ping", Ports: map[PortName]LinkID{}}}
	pong := &testComponent{BaseComponentData: BaseComponentData{ID: 1, Name: "pong", Ports: map[PortName]LinkID{}}}

	pingOutLink := NewLink(0, "ping.out", "pong.in", 1, "")
	pingOutLink.Target = DeliveryInfo{Kind: DeliveryLocal, HandlerID: pong.ID}
	pongOutLink := NewLink(1, "pong.out", "ping.in", 1, "")
	pongOutLink.Target = DeliveryInfo{Kind: DeliveryLocal, HandlerID: ping.ID}
	sim.Links.Register(pingOutLink)
	sim.Links.Register(pongOutLink)
	ping.Ports["out"] = 0
	ping.Ports["in"] = 1
	pong.Ports["in"] = 0
	pong.Ports["out"] = 1

	ping.onInit = func(phase int) (bool, bool) {
		if phase == 0 {
			sim.Exit.RefInc(ping.ID)
			sim.Send(0, 0, 0, "serve", nil)
			return true, false
		}
		return false, false
	}
	ping.onHandleEvent = func(_ *Simulation, port PortName, at SimTime, payload any) error {
		pingCount++
		if pingCount < bounces {
			sim.Send(0, 0, 0, "serve", nil)
		} else {
			sim.Exit.RefDec(ping.ID)
		}
		return nil
	}
	pong.onHandleEvent = func(_ *Simulation, port PortName, at SimTime, payload any) error {
		pongCount++
		sim.Send(1, 0, 0, "return", nil)
		return nil
	}

	sim.AddComponent(ping)
	sim.AddComponent(pong)

	require.NoError(t, sim.Run(false, 0, 1))
	assert.True(t, sim.Stopped())
	assert.Equal(t, PhaseDone, sim.Phase())
	assert.Equal(t, bounces, pingCount)
	assert.Equal(t, bounces, pongCount)
}

func TestSimulation_Run_StopsAtConfiguredStopTimeEvenWithOutstandingWork(t *testing.T) {
	sim := newSinglePartitionSim(t)

	comp := &testComponent{BaseComponentData: BaseComponentData{ID: 0, Name: "spinner", Ports: map[PortName]LinkID{}}}
	l := NewLink(0, "spinner.out", "spinner.in", 1, "")
	l.Target = DeliveryInfo{Kind: DeliveryLocal, HandlerID: comp.ID}
	sim.Links.Register(l)
	comp.Ports["out"] = 0

	comp.onInit = func(phase int) (bool, bool) {
		if phase == 0 {
			sim.Exit.RefInc(comp.ID) // never decremented; only stop-at should end the run
			sim.Send(0, 0, 0, "tick", nil)
			return true, false
		}
		return false, false
	}
	comp.onHandleEvent = func(_ *Simulation, port PortName, at SimTime, payload any) error {
		sim.Send(0, 0, 0, "tick", nil)
		return nil
	}

	sim.AddComponent(comp)

	require.NoError(t, sim.Run(true, 20, 1))
	assert.Equal(t, PhaseDone, sim.Phase())
	assert.GreaterOrEqual(t, sim.Now(), SimTime(20))
}

func TestSimulation_Run_TicksAndClosesStatEngine(t *testing.T) {
	sim := newSinglePartitionSim(t)

	comp := &testComponent{BaseComponentData: BaseComponentData{ID: 0, Name: "spinner", Ports: map[PortName]LinkID{}}}
	l := NewLink(0, "spinner.out", "spinner.in", 1, "")
	l.Target = DeliveryInfo{Kind: DeliveryLocal, HandlerID: comp.ID}
	sim.Links.Register(l)
	comp.Ports["out"] = 0

	comp.onInit = func(phase int) (bool, bool) {
		if phase == 0 {
			sim.Exit.RefInc(comp.ID)
			sim.Send(0, 0, 0, "tick", nil)
			return true, false
		}
		return false, false
	}
	comp.onHandleEvent = func(_ *Simulation, port PortName, at SimTime, payload any) error {
		sim.Send(0, 0, 0, "tick", nil)
		return nil
	}
	sim.AddComponent(comp)

	out := &fakeStatOutput{}
	group := NewStatGroup("g", out, 0)
	group.Add(NewStatistic(comp.ID, "count", StatPeriodic, 5))
	engine := NewStatEngine()
	engine.RegisterGroup(group)
	sim.SetStatEngine(engine, 5)

	require.NoError(t, sim.Run(true, 20, 1))
	assert.Equal(t, PhaseDone, sim.Phase())
	assert.NotEmpty(t, out.records)
	assert.True(t, out.closed)
}

func TestSimulation_RequestStopSoon_EndsRunBeforeOutstandingWorkClears(t *testing.T) {
	sim := newSinglePartitionSim(t)

	comp := &testComponent{BaseComponentData: BaseComponentData{ID: 0, Name: "spinner", Ports: map[PortName]LinkID{}}}
	l := NewLink(0, "spinner.out", "spinner.in", 1, "")
	l.Target = DeliveryInfo{Kind: DeliveryLocal, HandlerID: comp.ID}
	sim.Links.Register(l)
	comp.Ports["out"] = 0

	ticks := 0
	comp.onInit = func(phase int) (bool, bool) {
		if phase == 0 {
			sim.Exit.RefInc(comp.ID)
			sim.Send(0, 0, 0, "tick", nil)
			return true, false
		}
		return false, false
	}
	comp.onHandleEvent = func(_ *Simulation, port PortName, at SimTime, payload any) error {
		ticks++
		if ticks == 2 {
			sim.RequestStopSoon()
		}
		sim.Send(0, 0, 0, "tick", nil)
		return nil
	}
	sim.AddComponent(comp)

	require.NoError(t, sim.Run(false, 0, 1))
	assert.Equal(t, PhaseDone, sim.Phase())
}

// TestSimulation_EnsureNullTraffic_KeepsASilentCrossThreadLinkAdvancing
// exercises spec.md §4.4's empty-traffic case: a link that never
// carries a real event must still exchange a NullEvent every round so
// its destination thread's sync protocol keeps advancing.
func TestSimulation_EnsureNullTraffic_KeepsASilentCrossThreadLinkAdvancing(t *testing.T) {
	tl, err := CreateTimeLord("1ns")
	require.NoError(t, err)
	ts := NewThreadSync(2, 5)
	bar := NewCyclicBarrier(2)
	sim := NewSimulation(PartitionCoords{Rank: 0, Thread: 0}, 1, 2, tl, ts, bar, nil, nil)

	silentLink := NewLink(0, "a.out", "b.in", 5, "")
	silentLink.Target = DeliveryInfo{Kind: DeliveryCrossThread, PeerThread: 1}
	sim.Links.Register(silentLink)

	for round := 0; round < 3; round++ {
		sim.ensureNullTraffic()
		v := NewTimeVortex()
		ts.DrainInto(1, v, sim.now+100)
		require.Equal(t, 1, v.Len(), "round %d: expected exactly one NullEvent on the silent link", round)
		ne, ok := v.Pop().(*NullEvent)
		require.True(t, ok)
		assert.Equal(t, silentLink.ID, ne.LinkID)
	}
}

func TestSimulation_EnsureNullTraffic_SkipsALinkThatSentRealTraffic(t *testing.T) {
	tl, err := CreateTimeLord("1ns")
	require.NoError(t, err)
	ts := NewThreadSync(2, 5)
	bar := NewCyclicBarrier(2)
	sim := NewSimulation(PartitionCoords{Rank: 0, Thread: 0}, 1, 2, tl, ts, bar, nil, nil)

	link := NewLink(0, "a.out", "b.in", 5, "")
	link.Target = DeliveryInfo{Kind: DeliveryCrossThread, PeerThread: 1}
	sim.Links.Register(link)

	sim.Send(0, 0, 0, "payload", nil)
	require.True(t, sim.linkSeenTraffic[link.ID])

	sim.ensureNullTraffic()

	v := NewTimeVortex()
	ts.DrainInto(1, v, sim.now+100)
	assert.True(t, v.Empty(), "real traffic should suppress the synthetic NullEvent")
	assert.False(t, sim.linkSeenTraffic[link.ID], "tracker resets for the next window")
}

func TestSimulation_AddComponent_PanicsOnDuplicateID(t *testing.T) {
	sim := newSinglePartitionSim(t)
	c1 := &testComponent{BaseComponentData: BaseComponentData{ID: 0, Ports: map[PortName]LinkID{}}}
	c2 := &testComponent{BaseComponentData: BaseComponentData{ID: 0, Ports: map[PortName]LinkID{}}}
	sim.AddComponent(c1)
	assert.Panics(t, func() { sim.AddComponent(c2) })
}

// TestSyncBarrier_FoldsExitAcrossTwoThreadsInOneRank drives two
// partitions of the same rank through one syncBarrier round directly
// (rather than through Simulation.Run) and asserts each gets back the
// sum of both threads' local Exit counts, not just its own — spec.md
// §4.6's Propagation paragraph and §8's cross-partition exit-sum
// invariant.
func TestSyncBarrier_FoldsExitAcrossTwoThreadsInOneRank(t *testing.T) {
	tl, err := CreateTimeLord("1ns")
	require.NoError(t, err)
	ts := NewThreadSync(2, 1)
	bar := NewCyclicBarrier(2)

	sim0 := NewSimulation(PartitionCoords{Rank: 0, Thread: 0}, 1, 2, tl, ts, bar, nil, nil)
	sim1 := NewSimulation(PartitionCoords{Rank: 0, Thread: 1}, 1, 2, tl, ts, bar, nil, nil)

	c0 := &testComponent{BaseComponentData: BaseComponentData{ID: 0, Ports: map[PortName]LinkID{}}}
	c1 := &testComponent{BaseComponentData: BaseComponentData{ID: 1, Ports: map[PortName]LinkID{}}}
	sim0.AddComponent(c0)
	sim1.AddComponent(c1)
	sim0.Exit.RefInc(c0.ID)
	sim0.Exit.RefInc(c0.ID)
	sim1.Exit.RefInc(c1.ID)

	results := make([]int64, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0], errs[0] = sim0.syncBarrier(0)
	}()
	go func() {
		defer wg.Done()
		_, results[1], errs[1] = sim1.syncBarrier(0)
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int64(3), results[0])
	assert.Equal(t, int64(3), results[1])
}

// TestSyncBarrier_FoldsExitAcrossTwoRanksViaRankSync mirrors the
// thread-fold test one level up: two single-threaded ranks connected
// by a ChannelTransport must each observe the sum of both ranks'
// local Exit counts.
func TestSyncBarrier_FoldsExitAcrossTwoRanksViaRankSync(t *testing.T) {
	tl, err := CreateTimeLord("1ns")
	require.NoError(t, err)
	ct := NewChannelTransport(2)

	ts0 := NewThreadSync(1, 1)
	ts1 := NewThreadSync(1, 1)
	rs0 := NewRankSync(0, ct, 1)
	rs1 := NewRankSync(1, ct, 1)

	sim0 := NewSimulation(PartitionCoords{Rank: 0, Thread: 0}, 2, 1, tl, ts0, NewCyclicBarrier(1), rs0, nil)
	sim1 := NewSimulation(PartitionCoords{Rank: 1, Thread: 0}, 2, 1, tl, ts1, NewCyclicBarrier(1), rs1, nil)

	c0 := &testComponent{BaseComponentData: BaseComponentData{ID: 0, Ports: map[PortName]LinkID{}}}
	c1 := &testComponent{BaseComponentData: BaseComponentData{ID: 1, Ports: map[PortName]LinkID{}}}
	sim0.AddComponent(c0)
	sim1.AddComponent(c1)
	sim0.Exit.RefInc(c0.ID)
	sim1.Exit.RefInc(c1.ID)
	sim1.Exit.RefInc(c1.ID)

	results := make([]int64, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0], errs[0] = sim0.syncBarrier(0)
	}()
	go func() {
		defer wg.Done()
		_, results[1], errs[1] = sim1.syncBarrier(0)
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int64(3), results[0])
	assert.Equal(t, int64(3), results[1])
}
