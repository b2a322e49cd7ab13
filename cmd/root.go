package cmd

// root.go is the CLI entry point, grounded on
// inference-sim-inference-sim/cmd/root.go's shape: a package-level
// flag var block, a rootCmd with a "run" subcommand carrying every
// flag, logrus for level-gated logging, and an Execute() wrapper that
// turns a cobra error into os.Exit(-1).

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	vortex "github.com/iti/vortex"
)

var (
	configFile      string
	numRanksFlag    int
	numThreadsFlag  int
	stopAtFlag      string
	partitionerFlag string
	checkpointPeriod string
	checkpointDir   string
	loadCheckpoint  string
	outputDot       string
	outputJSON      string
	outputConfig    string
	verbose         bool
	printTiming     bool
	timingJSON      string
	statSink        string
	statDir         string
	statPeriodFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "vortex",
	Short: "Conservative parallel discrete-event simulation engine",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Wire up and run a simulation model from a config graph",
	Run: func(cmd *cobra.Command, args []string) {
		level := logrus.InfoLevel
		if verbose {
			level = logrus.DebugLevel
		}
		logrus.SetLevel(level)

		if configFile == "" {
			logrus.Fatal("vortex: --config is required")
		}

		useYAML := strings.HasSuffix(configFile, ".yaml") || strings.HasSuffix(configFile, ".yml")
		cg, err := vortex.ReadConfigGraph(configFile, useYAML, nil)
		if err != nil {
			logrus.Fatalf("vortex: read config: %v", err)
		}
		if numRanksFlag > 0 {
			cg.NumRanks = numRanksFlag
		}
		if numThreadsFlag > 0 {
			cg.NumThreads = numThreadsFlag
		}
		if stopAtFlag != "" {
			cg.StopAt = stopAtFlag
		}

		timeLord, err := vortex.CreateTimeLord(cg.BasePeriod)
		if err != nil {
			logrus.Fatalf("vortex: %v", err)
		}

		partitioner, err := vortex.LookupPartitioner(partitionerFlag)
		if err != nil {
			logrus.Fatalf("vortex: %v", err)
		}
		assignments, err := partitioner.Partition(cg)
		if err != nil {
			logrus.Fatalf("vortex: partition: %v", err)
		}

		if outputConfig != "" {
			if err := cg.WriteToFile(outputConfig); err != nil {
				logrus.Fatalf("vortex: write --output-config: %v", err)
			}
		}
		if outputDot != "" {
			if err := writeDot(outputDot, cg, assignments); err != nil {
				logrus.Fatalf("vortex: write --output-dot: %v", err)
			}
		}

		var transport vortex.Transport
		if cg.NumRanks > 1 {
			transport = vortex.NewChannelTransport(cg.NumRanks)
		}

		wm, err := vortex.WireUp(cg, assignments, timeLord, transport)
		if err != nil {
			logrus.Fatalf("vortex: wire-up: %v", err)
		}

		if checkpointDir != "" && checkpointPeriod != "" {
			periodTicks := timeLord.GetTimeConverter(checkpointPeriod).ToSimTime(1)
			ckpt := vortex.NewCheckpointer(checkpointDir, cg.ExpName, cg.NumRanks, cg.NumThreads)
			for _, sim := range wm.Simulations {
				sim.SetCheckpointer(ckpt, periodTicks)
			}
		}

		if statSink != "" && len(wm.StatsByRank) > 0 {
			if statDir == "" {
				logrus.Fatal("vortex: --stat-sink requires --stat-dir")
			}
			var statPeriodTicks vortex.SimTime
			if statPeriodFlag != "" {
				statPeriodTicks = timeLord.GetTimeConverter(statPeriodFlag).ToSimTime(1)
			}
			for rank, stats := range wm.StatsByRank {
				output, err := newStatOutput(statSink, statDir, cg.ExpName, rank)
				if err != nil {
					logrus.Fatalf("vortex: rank %d stat output: %v", rank, err)
				}
				group := vortex.NewStatGroup(fmt.Sprintf("rank-%d", rank), output, rank)
				for _, s := range stats {
					group.Add(s)
				}
				engine := vortex.NewStatEngine()
				engine.RegisterGroup(group)
				sim := wm.Simulations[vortex.PartitionCoords{Rank: rank, Thread: 0}]
				sim.SetStatEngine(engine, statPeriodTicks)
			}
		}

		if loadCheckpoint != "" {
			gc, err := vortex.ReadCheckpoint(loadCheckpoint)
			if err != nil {
				logrus.Fatalf("vortex: load checkpoint: %v", err)
			}
			if err := checkLaunchShape(gc, cg); err != nil {
				logrus.Fatalf("vortex: %v", err)
			}
			for _, pc := range gc.Partitions {
				sim, present := wm.Simulations[pc.Coords]
				if !present {
					logrus.Fatalf("vortex: checkpoint references unknown partition %+v", pc.Coords)
				}
				if err := vortex.RestorePartition(sim, pc); err != nil {
					logrus.Fatalf("vortex: restore partition %+v: %v", pc.Coords, err)
				}
			}
		}

		var hasStopAt bool
		var stopAtTicks vortex.SimTime
		if cg.StopAt != "" {
			hasStopAt = true
			stopAtTicks = timeLord.GetTimeConverter(cg.StopAt).ToSimTime(1)
		}

		// One signal-handler goroutine stands in for spec.md's "thread 0
		// of each rank"; handlers never touch a Simulation's state
		// directly, they only set the atomic flags Run polls at its next
		// SYNC barrier.
		sigCh := make(chan os.Signal, 4)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGALRM, syscall.SIGUSR1, syscall.SIGUSR2)
		go func() {
			for sig := range sigCh {
				for coords, sim := range wm.Simulations {
					if coords.Thread != 0 {
						continue
					}
					switch sig {
					case syscall.SIGINT, syscall.SIGTERM:
						sim.RequestStopSoon()
					case syscall.SIGALRM:
						sim.RequestCheckpointNow()
					case syscall.SIGUSR1, syscall.SIGUSR2:
						sim.RequestStatusDump()
					}
				}
			}
		}()

		start := time.Now()

		var wg sync.WaitGroup
		errs := make(chan error, len(wm.Simulations))
		for _, sim := range wm.Simulations {
			wg.Add(1)
			go func(s *vortex.Simulation) {
				defer wg.Done()
				if err := s.Run(hasStopAt, stopAtTicks, 1); err != nil {
					errs <- err
				}
			}(sim)
		}
		wg.Wait()
		signal.Stop(sigCh)
		close(sigCh)
		close(errs)

		elapsed := time.Since(start)

		var runErr error
		for e := range errs {
			if e != nil {
				runErr = e
				logrus.Error(e)
			}
		}
		if runErr != nil {
			os.Exit(1)
		}

		logrus.Infof("simulation complete in %s wall-clock", elapsed)

		if printTiming || timingJSON != "" {
			report := timingReport(cg, elapsed)
			if printTiming {
				fmt.Printf("wall_clock_seconds=%g partitions=%d\n", report.WallClockSeconds, report.Partitions)
			}
			if timingJSON != "" {
				bytes, err := json.MarshalIndent(report, "", "\t")
				if err != nil {
					logrus.Fatalf("vortex: marshal timing report: %v", err)
				}
				if err := os.WriteFile(timingJSON, bytes, 0o644); err != nil {
					logrus.Fatalf("vortex: write --timing-json: %v", err)
				}
			}
		}

		if outputJSON != "" {
			bytes, err := json.MarshalIndent(assignments, "", "\t")
			if err != nil {
				logrus.Fatalf("vortex: marshal --output-json: %v", err)
			}
			if err := os.WriteFile(outputJSON, bytes, 0o644); err != nil {
				logrus.Fatalf("vortex: write --output-json: %v", err)
			}
		}
	},
}

// timingSummary is the shape written by --timing-json.
type timingSummary struct {
	ExpName          string  `json:"exp_name"`
	WallClockSeconds float64 `json:"wall_clock_seconds"`
	Partitions       int     `json:"partitions"`
}

func timingReport(cg *vortex.ConfigGraph, elapsed time.Duration) timingSummary {
	return timingSummary{
		ExpName:          cg.ExpName,
		WallClockSeconds: elapsed.Seconds(),
		Partitions:       cg.NumRanks * cg.NumThreads,
	}
}

// writeDot renders the wired-up model as a Graphviz DOT file, one
// node per component (labeled with its assigned rank/thread) and one
// edge per link, for --output-dot.
func writeDot(filename string, cg *vortex.ConfigGraph, assignments map[string]vortex.PartitionAssignment) error {
	var b strings.Builder
	b.WriteString("graph vortex {\n")
	for _, c := range cg.Components {
		a := assignments[c.Name]
		fmt.Fprintf(&b, "  %q [label=%q];\n", c.Name, fmt.Sprintf("%s\\nr%d.t%d", c.Name, a.Rank, a.Thread))
	}
	for _, l := range cg.Links {
		fmt.Fprintf(&b, "  %q -- %q;\n", componentPart(l.EndpointA), componentPart(l.EndpointB))
	}
	b.WriteString("}\n")
	if ext := path.Ext(filename); ext == "" {
		filename += ".dot"
	}
	return os.WriteFile(filename, []byte(b.String()), 0o644)
}

// newStatOutput builds the StatOutput sink --stat-sink names, writing
// into statDir at a per-rank path so concurrent ranks never contend
// for the same file.
func newStatOutput(sink, statDir, expName string, rank int) (vortex.StatOutput, error) {
	switch sink {
	case "csv":
		return vortex.NewCSVOutput(fmt.Sprintf("%s/%s-rank%d.csv", statDir, expName, rank))
	case "sqlite":
		return vortex.NewSQLiteOutput(fmt.Sprintf("%s/%s-rank%d.db", statDir, expName, rank))
	default:
		return nil, fmt.Errorf("unrecognized --stat-sink %q (want csv or sqlite)", sink)
	}
}

// checkLaunchShape refuses a checkpoint taken under a different
// (ranks, threads) shape than the current launch, per spec.md §4.10 —
// restoring into a superset or subset of partitions would silently
// leave some partitions unrestored or some checkpointed state with
// nowhere to land.
func checkLaunchShape(gc *vortex.GlobalCheckpoint, cg *vortex.ConfigGraph) error {
	if gc.NumRanks != cg.NumRanks || gc.NumThreads != cg.NumThreads {
		return fmt.Errorf("checkpoint was taken with %d ranks x %d threads, current launch is %d ranks x %d threads",
			gc.NumRanks, gc.NumThreads, cg.NumRanks, cg.NumThreads)
	}
	return nil
}

func componentPart(endpoint string) string {
	for i := 0; i < len(endpoint); i++ {
		if endpoint[i] == '.' {
			return endpoint[:i]
		}
	}
	return endpoint
}

// Execute runs the CLI root command. A cobra Execute error means
// argument parsing failed before Run ever started, per spec.md §7's
// "-1 argument error" (distinct from a logged runtime fatal, which
// exits 1 via logrus).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(-1)
	}
}

func init() {
	runCmd.Flags().StringVar(&configFile, "config", "", "path to the model's ConfigGraph file (.yaml or .json)")
	runCmd.Flags().IntVar(&numRanksFlag, "num-ranks", 0, "override the config's number of ranks")
	runCmd.Flags().IntVar(&numThreadsFlag, "num-threads", 0, "override the config's number of threads per rank")
	runCmd.Flags().StringVar(&stopAtFlag, "stop-at", "", "override the config's stop time (e.g. \"10ms\")")
	runCmd.Flags().StringVar(&partitionerFlag, "partitioner", "roundrobin", "partition strategy: roundrobin, loadaware, minlink, random")
	runCmd.Flags().StringVar(&checkpointPeriod, "checkpoint-period", "", "checkpoint interval (e.g. \"1ms\"); requires --checkpoint-dir")
	runCmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "directory to write checkpoint files into")
	runCmd.Flags().StringVar(&loadCheckpoint, "load-checkpoint", "", "restore from a checkpoint file before running")
	runCmd.Flags().StringVar(&outputDot, "output-dot", "", "write the wired-up model topology as Graphviz DOT")
	runCmd.Flags().StringVar(&outputJSON, "output-json", "", "write the partition assignment as JSON")
	runCmd.Flags().StringVar(&outputConfig, "output-config", "", "write the resolved ConfigGraph (after flag overrides) back out")
	runCmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")
	runCmd.Flags().BoolVar(&printTiming, "print-timing", false, "print a one-line wall-clock timing summary")
	runCmd.Flags().StringVar(&timingJSON, "timing-json", "", "write a timing summary as JSON")
	runCmd.Flags().StringVar(&statSink, "stat-sink", "", "statistics output sink: csv or sqlite (requires --stat-dir)")
	runCmd.Flags().StringVar(&statDir, "stat-dir", "", "directory to write per-rank statistics output into")
	runCmd.Flags().StringVar(&statPeriodFlag, "stat-period", "", "periodic statistic flush interval (e.g. \"1ms\")")

	rootCmd.AddCommand(runCmd)
}
