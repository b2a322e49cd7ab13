package vortex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fourComponentGraph() *ConfigGraph {
	cg := CreateConfigGraph("test", 2, 2, "1ns")
	for _, name := range []string{"a", "b", "c", "d"} {
		cg.AddComponent(ConfigComponent{Name: name, Type: "noop"})
	}
	cg.AddLink(ConfigLink{Name: "l1", EndpointA: "a.out", EndpointB: "b.in", Latency: 1e-9})
	cg.AddLink(ConfigLink{Name: "l2", EndpointA: "c.out", EndpointB: "d.in", Latency: 1e-9})
	return cg
}

func TestRoundRobinPartitioner_AssignsEveryComponentToAValidSlot(t *testing.T) {
	cg := fourComponentGraph()
	assignments, err := RoundRobinPartitioner{}.Partition(cg)
	require.NoError(t, err)
	assert.Len(t, assignments, 4)
	for _, a := range assignments {
		assert.GreaterOrEqual(t, a.Rank, 0)
		assert.Less(t, a.Rank, cg.NumRanks)
		assert.GreaterOrEqual(t, a.Thread, 0)
		assert.Less(t, a.Thread, cg.NumThreads)
	}
}

func TestRoundRobinPartitioner_RejectsNonPositiveGrid(t *testing.T) {
	cg := fourComponentGraph()
	cg.NumRanks = 0
	_, err := RoundRobinPartitioner{}.Partition(cg)
	assert.Error(t, err)
}

func TestLoadAwarePartitioner_AssignsEveryComponent(t *testing.T) {
	cg := fourComponentGraph()
	assignments, err := LoadAwarePartitioner{}.Partition(cg)
	require.NoError(t, err)
	assert.Len(t, assignments, 4)
}

func TestMinLinkPartitioner_KeepsLinkedComponentsOnTheSamePartition(t *testing.T) {
	cg := fourComponentGraph()
	assignments, err := MinLinkPartitioner{}.Partition(cg)
	require.NoError(t, err)
	assert.Equal(t, assignments["a"], assignments["b"])
	assert.Equal(t, assignments["c"], assignments["d"])
}

func TestRandomPartitioner_IsReproducibleForTheSameSeed(t *testing.T) {
	cg := fourComponentGraph()
	first, err := RandomPartitioner{SeedName: "fixed-seed"}.Partition(cg)
	require.NoError(t, err)
	second, err := RandomPartitioner{SeedName: "fixed-seed"}.Partition(cg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLookupPartitioner_ResolvesKnownNamesAndRejectsUnknown(t *testing.T) {
	for _, name := range []string{"roundrobin", "", "loadaware", "minlink", "random"} {
		p, err := LookupPartitioner(name)
		require.NoError(t, err)
		assert.NotNil(t, p)
	}
	_, err := LookupPartitioner("bogus")
	assert.Error(t, err)
}
