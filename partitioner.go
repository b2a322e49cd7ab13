package vortex

// partitioner.go implements the Partitioner stage, per spec.md §4.8:
// assigns each ConfigComponent to a (rank, thread) pair before
// wire-up. Four strategies are offered: "roundrobin" cycles through
// the R*T grid, "loadaware" uses loadscheduler.go's least-loaded
// heuristic, and the other two are grounded on two different teacher
// files: "minlink" builds a gonum WeightedUndirectedGraph
// from the ConfigGraph's links exactly as routes.go's buildconnGraph
// does, then use path.DijkstraFrom the same way routes.go's
// getSPTree/routeFrom do, to group tightly-linked components onto the
// same partition and minimize the number of cross-partition edges;
// "random" uses rngstream.New the way flow-sim.go and net.go seed
// every device's RNG, for a reproducible-by-seed baseline a caller can
// compare against.

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// PartitionAssignment maps a component name to its assigned (rank,
// thread) coordinates.
type PartitionAssignment struct {
	Rank   int
	Thread int
}

// Partitioner assigns every ConfigComponent in a ConfigGraph to a
// partition.
type Partitioner interface {
	Partition(cg *ConfigGraph) (map[string]PartitionAssignment, error)
}

// RoundRobinPartitioner assigns components to partitions in the order
// they appear in the ConfigGraph, cycling through the R*T grid. This
// is spec.md §4.8's baseline strategy: it ignores link topology
// entirely, so any two linked components may end up on different
// partitions regardless of latency.
type RoundRobinPartitioner struct{}

// Partition implements Partitioner.
func (RoundRobinPartitioner) Partition(cg *ConfigGraph) (map[string]PartitionAssignment, error) {
	if cg.NumRanks <= 0 || cg.NumThreads <= 0 {
		return nil, fmt.Errorf("partitioner: num_ranks and num_threads must be positive")
	}
	out := make(map[string]PartitionAssignment, len(cg.Components))
	i := 0
	for _, c := range cg.Components {
		total := cg.NumRanks * cg.NumThreads
		slot := i % total
		out[c.Name] = PartitionAssignment{Rank: slot / cg.NumThreads, Thread: slot % cg.NumThreads}
		i++
	}
	return out, nil
}

// LoadAwarePartitioner assigns components using LoadScheduler's
// greedy least-loaded heuristic, weighting each component by however
// many links touch it (a cheap proxy for expected message volume,
// since spec.md's core has no notion of per-component CPU cost).
type LoadAwarePartitioner struct{}

// Partition implements Partitioner.
func (LoadAwarePartitioner) Partition(cg *ConfigGraph) (map[string]PartitionAssignment, error) {
	if cg.NumRanks <= 0 || cg.NumThreads <= 0 {
		return nil, fmt.Errorf("partitioner: num_ranks and num_threads must be positive")
	}
	touchCount := make(map[string]int)
	for _, l := range cg.Links {
		touchCount[componentOf(l.EndpointA)]++
		touchCount[componentOf(l.EndpointB)]++
	}
	total := cg.NumRanks * cg.NumThreads
	ls := CreateLoadScheduler(total)
	out := make(map[string]PartitionAssignment, len(cg.Components))
	for _, c := range cg.Components {
		load := float64(touchCount[c.Name])
		if load == 0 {
			load = 1
		}
		slot := ls.Assign(c.Name, load)
		out[c.Name] = PartitionAssignment{Rank: slot / cg.NumThreads, Thread: slot % cg.NumThreads}
	}
	return out, nil
}

// MinLinkPartitioner groups components so as to minimize
// cross-partition edges, using the same gonum shortest-path machinery
// routes.go uses for network routing, repurposed here as a min-cut
// proxy: components are clustered around the connected component they
// fall into after Dijkstra distance-thresholding, then clusters are
// round-robin-assigned to partitions so no single partition is
// starved.
type MinLinkPartitioner struct{}

// Partition implements Partitioner.
func (MinLinkPartitioner) Partition(cg *ConfigGraph) (map[string]PartitionAssignment, error) {
	if cg.NumRanks <= 0 || cg.NumThreads <= 0 {
		return nil, fmt.Errorf("partitioner: num_ranks and num_threads must be positive")
	}
	nameToID := make(map[string]int64)
	idToName := make(map[int64]string)
	var nextID int64
	for _, c := range cg.Components {
		nameToID[c.Name] = nextID
		idToName[nextID] = c.Name
		nextID++
	}

	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	nodes := make(map[int64]simple.Node, len(nameToID))
	for _, id := range nameToID {
		nodes[id] = simple.Node(id)
	}
	for _, l := range cg.Links {
		a, aok := nameToID[componentOf(l.EndpointA)]
		b, bok := nameToID[componentOf(l.EndpointB)]
		if !aok || !bok {
			continue
		}
		g.SetWeightedEdge(simple.WeightedEdge{F: nodes[a], T: nodes[b], W: 1.0})
	}

	visited := make(map[int64]bool)
	var clusters [][]string
	for _, c := range cg.Components {
		id := nameToID[c.Name]
		if visited[id] {
			continue
		}
		tree := path.DijkstraFrom(nodes[id], g)
		cluster := []string{c.Name}
		visited[id] = true
		for otherID, otherName := range idToName {
			if otherID == id || visited[otherID] {
				continue
			}
			if seq, weight := tree.To(otherID); len(seq) > 0 && !math.IsInf(weight, 1) {
				cluster = append(cluster, otherName)
				visited[otherID] = true
			}
		}
		clusters = append(clusters, cluster)
	}

	total := cg.NumRanks * cg.NumThreads
	out := make(map[string]PartitionAssignment, len(cg.Components))
	for ci, cluster := range clusters {
		slot := ci % total
		for _, name := range cluster {
			out[name] = PartitionAssignment{Rank: slot / cg.NumThreads, Thread: slot % cg.NumThreads}
		}
	}
	return out, nil
}

// RandomPartitioner assigns components to partitions uniformly at
// random, seeded reproducibly the way every mrnes device seeds its own
// rngstream.RngStream from its name.
type RandomPartitioner struct {
	SeedName string
}

// Partition implements Partitioner.
func (rp RandomPartitioner) Partition(cg *ConfigGraph) (map[string]PartitionAssignment, error) {
	if cg.NumRanks <= 0 || cg.NumThreads <= 0 {
		return nil, fmt.Errorf("partitioner: num_ranks and num_threads must be positive")
	}
	seed := rp.SeedName
	if seed == "" {
		seed = "vortex-partitioner"
	}
	rng := rngstream.New(seed)
	total := cg.NumRanks * cg.NumThreads
	out := make(map[string]PartitionAssignment, len(cg.Components))
	for _, c := range cg.Components {
		slot := int(rng.RandU01() * float64(total))
		if slot >= total {
			slot = total - 1
		}
		out[c.Name] = PartitionAssignment{Rank: slot / cg.NumThreads, Thread: slot % cg.NumThreads}
	}
	return out, nil
}

// LookupPartitioner resolves a --partitioner flag value to a
// Partitioner instance; unrecognized names are fatal at wire-up time.
func LookupPartitioner(name string) (Partitioner, error) {
	switch name {
	case "roundrobin", "":
		return RoundRobinPartitioner{}, nil
	case "loadaware":
		return LoadAwarePartitioner{}, nil
	case "minlink":
		return MinLinkPartitioner{}, nil
	case "random":
		return RandomPartitioner{}, nil
	default:
		return nil, fmt.Errorf("partitioner: unknown strategy %q", name)
	}
}

// componentOf extracts the component name from a "component.port"
// endpoint string, as ConfigLink.EndpointA/EndpointB encode it.
func componentOf(endpoint string) string {
	for i := 0; i < len(endpoint); i++ {
		if endpoint[i] == '.' {
			return endpoint[:i]
		}
	}
	return endpoint
}
