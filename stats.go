package vortex

// stats.go implements the Statistics engine, per spec.md §4 (the
// PERIODIC/COUNT/DUMP_AT_END collection modes and per-group output
// routing SST's StatisticProcessingEngine describes in
// original_source/src/sst/core/statapi/statengine.cc). Every group is
// scoped to a single rank (see DESIGN.md's Open Question 2 —
// cross-rank statistic aggregation is out of scope for the core), with
// RankScope left as an explicit extension point rather than a silent
// limitation. Output routing follows trace.go's dual-format
// WriteToFile split, generalized to a StatOutput interface with two
// concrete sinks: a CSV file sink and a sqlite3 sink (the pack's only
// database driver, used by codewanderer42820-evm_triarb's
// syncharvester.go via database/sql).

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// StatMode is a Statistic's collection mode, per
// StatisticBase::STAT_MODE_*.
type StatMode int

const (
	StatPeriodic StatMode = iota
	StatCount
	StatDumpAtEnd
)

// Statistic accumulates one named measurement for one component.
// Update and Sample are the two verbs SST's StatisticBase exposes for
// this purpose (add-to-accumulator vs. record-a-value); Statistic
// tracks both a running sum/count and, for STAT_MODE_COUNT collection,
// the raw sample count needed to decide when a group should flush.
//
// Enabled, ResetOnOutput, and ClearOnOutput are the flags spec.md §3
// lists alongside mode/collection-rate/start-stop; OutputAtEndOfSim is
// folded into StatEngine.EndOfSimulation always flushing every
// enabled statistic once, regardless of mode, so it has no separate
// field here.
type Statistic struct {
	mu sync.Mutex

	Name        string
	ComponentID ComponentID
	Mode        StatMode
	// CollectionRate is the sample-count flush threshold when
	// Mode == StatCount (0 means "never automatically flush"). It is
	// not consulted for StatPeriodic statistics: those flush on every
	// StatEngine tick, at the single period given to
	// Simulation.SetStatEngine.
	CollectionRate uint64
	ResetOnOutput  bool
	ClearOnOutput  bool

	// RollingWindow, when non-zero, limits sum/count to the most
	// recent RollingWindow AddData samples instead of the statistic's
	// full history, per statengine.cc's distinction between a stat
	// that clears on output and one that keeps a sliding n-sample
	// window. A rolling statistic is never reset by flushOne: old
	// samples age out of the window on their own as new ones arrive.
	RollingWindow uint64

	// group is the StatGroup this statistic was Add-ed to, used by
	// AddData to trigger an immediate flush once a STAT_MODE_COUNT
	// statistic's threshold is reached.
	group *StatGroup

	enabled   bool
	sum       float64
	count     uint64
	window    []float64
	windowPos int
}

// NewStatistic constructs a Statistic, enabled by default per spec.md
// §3. No check is made for a duplicate (component, name) pair.
func NewStatistic(compID ComponentID, name string, mode StatMode, collectionRate uint64) *Statistic {
	return &Statistic{ComponentID: compID, Name: name, Mode: mode, CollectionRate: collectionRate, enabled: true}
}

// Enable turns the statistic on, per spec.md §4.8's startEvent.
func (s *Statistic) Enable() {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
}

// Disable turns the statistic off, per spec.md §4.8's stopEvent. A
// disabled statistic's AddData calls are silently dropped.
func (s *Statistic) Disable() {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
}

// IsEnabled reports whether the statistic currently accepts samples
// and participates in periodic/end-of-sim flushes.
func (s *Statistic) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Update adds delta to the running accumulator, unconditionally, with
// no mode/enabled dispatch. Exposed for callers (and tests) that only
// need the raw accumulator, without spec.md §4.8's COUNT(N)
// auto-flush; component code should prefer AddData.
func (s *Statistic) Update(delta float64) {
	s.mu.Lock()
	s.sum += delta
	s.count++
	s.mu.Unlock()
}

// AddData records one sample at simulated time now, honoring Enabled
// and, for Mode == StatCount, spec.md §4.8's "the statistic itself
// counts addData invocations; when count reaches N, output and
// reset": once CollectionRate samples have accumulated, AddData
// flushes and resets through the owning StatGroup itself.
func (s *Statistic) AddData(now SimTime, delta float64) error {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return nil
	}
	if s.RollingWindow > 0 {
		s.addToWindowLocked(delta)
	} else {
		s.sum += delta
		s.count++
	}
	ready := s.Mode == StatCount && s.CollectionRate > 0 && s.count >= s.CollectionRate
	group := s.group
	s.mu.Unlock()

	if ready && group != nil {
		return group.flushOne(now, s)
	}
	return nil
}

// addToWindowLocked folds delta into the rolling window's ring
// buffer, then recomputes sum/count over just the samples currently
// in scope. Caller must hold s.mu.
func (s *Statistic) addToWindowLocked(delta float64) {
	if s.window == nil {
		s.window = make([]float64, 0, s.RollingWindow)
	}
	if uint64(len(s.window)) < s.RollingWindow {
		s.window = append(s.window, delta)
	} else {
		s.window[s.windowPos] = delta
		s.windowPos = (s.windowPos + 1) % int(s.RollingWindow)
	}
	var sum float64
	for _, v := range s.window {
		sum += v
	}
	s.sum = sum
	s.count = uint64(len(s.window))
}

// Snapshot returns the running (sum, count) without resetting them.
func (s *Statistic) Snapshot() (sum float64, count uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum, s.count
}

// reset zeroes the accumulator, used after a flush that must not
// carry samples into the next collection period.
func (s *Statistic) reset() {
	s.mu.Lock()
	s.sum = 0
	s.count = 0
	s.window = nil
	s.windowPos = 0
	s.mu.Unlock()
}

// StatRecord is one flushed measurement, the unit every StatOutput
// sink writes.
type StatRecord struct {
	Time        SimTime
	ComponentID ComponentID
	Name        string
	Sum         float64
	Count       uint64
}

// StatOutput is the sink every flushed StatRecord is written to,
// mirroring StatisticOutput's role in statengine.cc: pluggable,
// selected by configuration, and expected to buffer internally if it
// wants to (spec.md carries no explicit flush-buffering requirement).
type StatOutput interface {
	WriteRecord(r StatRecord) error
	Close() error
}

// CSVOutput writes one line per StatRecord to a CSV file, grounded on
// the pack's general preference for a plain-text tabular sink
// alongside the sqlite one (trace.go's own dual-format split, applied
// here as CSV-vs-sqlite instead of YAML-vs-JSON).
type CSVOutput struct {
	f *os.File
}

// NewCSVOutput creates (or truncates) filename and writes the header
// row.
func NewCSVOutput(filename string) (*CSVOutput, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("stats: create csv output: %w", err)
	}
	if _, err := f.WriteString("time,component_id,name,sum,count\n"); err != nil {
		f.Close()
		return nil, err
	}
	return &CSVOutput{f: f}, nil
}

// WriteRecord implements StatOutput.
func (c *CSVOutput) WriteRecord(r StatRecord) error {
	line := strings.Join([]string{
		strconv.FormatUint(uint64(r.Time), 10),
		strconv.Itoa(int(r.ComponentID)),
		r.Name,
		strconv.FormatFloat(r.Sum, 'g', -1, 64),
		strconv.FormatUint(r.Count, 10),
	}, ",")
	_, err := c.f.WriteString(line + "\n")
	return err
}

// Close implements StatOutput.
func (c *CSVOutput) Close() error { return c.f.Close() }

// SQLiteOutput writes StatRecords into a sqlite3 database via
// database/sql, using the same driver-registration idiom
// (`_ "github.com/mattn/go-sqlite3"` + `sql.Open("sqlite3", ...)`)
// syncharvester.go uses for its pool-reserve table.
type SQLiteOutput struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// NewSQLiteOutput opens (creating if necessary) a sqlite3 database at
// path and prepares the stat_records table and insert statement.
func NewSQLiteOutput(path string) (*SQLiteOutput, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("stats: open sqlite output: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS stat_records (
		time INTEGER, component_id INTEGER, name TEXT, sum REAL, count INTEGER
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("stats: create stat_records table: %w", err)
	}
	stmt, err := db.Prepare(`INSERT INTO stat_records (time, component_id, name, sum, count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("stats: prepare stat_records insert: %w", err)
	}
	return &SQLiteOutput{db: db, stmt: stmt}, nil
}

// WriteRecord implements StatOutput.
func (s *SQLiteOutput) WriteRecord(r StatRecord) error {
	_, err := s.stmt.Exec(int64(r.Time), int64(r.ComponentID), r.Name, r.Sum, int64(r.Count))
	return err
}

// Close implements StatOutput.
func (s *SQLiteOutput) Close() error {
	s.stmt.Close()
	return s.db.Close()
}

// StatGroup is a named collection of Statistics sharing one output
// sink and one rank scope, per statengine.cc's StatisticGroup.
type StatGroup struct {
	Name       string
	Output     StatOutput
	rankScope  int // rank this group is bound to; see RankScope()
	statistics []*Statistic
}

// NewStatGroup constructs a group bound to a single rank's output.
func NewStatGroup(name string, output StatOutput, rank int) *StatGroup {
	return &StatGroup{Name: name, Output: output, rankScope: rank}
}

// RankScope returns the rank this group's statistics are collected
// on. The core engine never aggregates a group across ranks (DESIGN.md
// Open Question 2); a future cross-rank rollup would extend this
// method rather than change StatGroup's shape.
func (g *StatGroup) RankScope() int { return g.rankScope }

// Add enrolls a Statistic in the group and points it back at the
// group, so a STAT_MODE_COUNT statistic's AddData can trigger its own
// flush without the caller driving one.
func (g *StatGroup) Add(s *Statistic) {
	s.group = g
	g.statistics = append(g.statistics, s)
}

// flushOne writes s's current snapshot to the group's output at
// simulated time now, then resets s's accumulator if s.ResetOnOutput,
// s.ClearOnOutput, or s.Mode == StatCount asks for it (COUNT(N)
// always resets after output, per spec.md §4.8). A statistic with a
// non-zero RollingWindow is never reset here: its window already
// slides on its own as AddData retires old samples, rather than
// clearing to zero at output time.
func (g *StatGroup) flushOne(now SimTime, s *Statistic) error {
	sum, count := s.Snapshot()
	rec := StatRecord{Time: now, ComponentID: s.ComponentID, Name: s.Name, Sum: sum, Count: count}
	if err := g.Output.WriteRecord(rec); err != nil {
		return fmt.Errorf("stats: group %q write record: %w", g.Name, err)
	}
	if s.RollingWindow == 0 && (s.ResetOnOutput || s.ClearOnOutput || s.Mode == StatCount) {
		s.reset()
	}
	return nil
}

// Flush drives one periodic tick, per spec.md §4.8's PERIODIC(rate)
// regime: only enabled, StatPeriodic statistics fire here. COUNT
// statistics flush themselves through AddData; DUMP_AT_END statistics
// wait for EndOfSimulation's FlushAll.
func (g *StatGroup) Flush(now SimTime) error {
	for _, s := range g.statistics {
		if !s.IsEnabled() || s.Mode != StatPeriodic {
			continue
		}
		if err := g.flushOne(now, s); err != nil {
			return err
		}
	}
	return nil
}

// FlushAll writes every enabled statistic's current snapshot exactly
// once, regardless of mode, mirroring
// performStatisticGroupOutputImpl's end-of-sim pass over DUMP_AT_END
// and still-running PERIODIC/COUNT statistics alike.
func (g *StatGroup) FlushAll(now SimTime) error {
	for _, s := range g.statistics {
		if !s.IsEnabled() {
			continue
		}
		if err := g.flushOne(now, s); err != nil {
			return err
		}
	}
	return nil
}

// StatEngine is the per-rank statistics processing engine, per
// spec.md's ambient stack and statengine.cc's
// StatisticProcessingEngine. One StatEngine instance is shared by
// every thread of a rank (statistics are rank-scoped, not
// thread-scoped, since a rank's threads share memory and can safely
// share the accumulator).
type StatEngine struct {
	mu     sync.Mutex
	groups map[string]*StatGroup
}

// NewStatEngine is a constructor.
func NewStatEngine() *StatEngine {
	return &StatEngine{groups: make(map[string]*StatGroup)}
}

// RegisterGroup adds a group to the engine. Fatal on a duplicate name.
func (e *StatEngine) RegisterGroup(g *StatGroup) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, present := e.groups[g.Name]; present {
		panic(fmt.Errorf("stats: group %q already registered", g.Name))
	}
	e.groups[g.Name] = g
}

// HandlePeriodicTick flushes every registered group. The scheduler
// calls it for each ActionStatEngineTick Action, which
// Simulation.StartStatTicking schedules every statPeriod ticks; a
// statistic's own CollectionRate plays no part in this schedule.
func (e *StatEngine) HandlePeriodicTick(now SimTime) error {
	e.mu.Lock()
	groups := make([]*StatGroup, 0, len(e.groups))
	for _, g := range e.groups {
		groups = append(groups, g)
	}
	e.mu.Unlock()
	for _, g := range groups {
		if err := g.Flush(now); err != nil {
			return err
		}
	}
	return nil
}

// EndOfSimulation flushes every group exactly once more, mirroring
// StatisticProcessingEngine::endOfSimulation's "double dump" final
// pass, then closes every distinct output sink.
func (e *StatEngine) EndOfSimulation(now SimTime) error {
	e.mu.Lock()
	groups := make([]*StatGroup, 0, len(e.groups))
	closed := make(map[StatOutput]bool)
	for _, g := range e.groups {
		groups = append(groups, g)
	}
	e.mu.Unlock()
	for _, g := range groups {
		if err := g.FlushAll(now); err != nil {
			return err
		}
	}
	for _, g := range groups {
		if closed[g.Output] {
			continue
		}
		closed[g.Output] = true
		if err := g.Output.Close(); err != nil {
			return err
		}
	}
	return nil
}
