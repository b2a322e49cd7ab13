package vortex

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSampleGraph() *ConfigGraph {
	cg := CreateConfigGraph("sample", 1, 2, "1ns")
	cg.AddComponent(ConfigComponent{Name: "ping", Type: "ping", Rank: 0, Thread: 0})
	cg.AddComponent(ConfigComponent{Name: "pong", Type: "pong", Rank: 0, Thread: 1})
	cg.AddLink(ConfigLink{Name: "l1", EndpointA: "ping.out", EndpointB: "pong.in", Latency: 1e-9})
	return cg
}

func TestConfigGraph_WriteThenReadYAML_RoundTrips(t *testing.T) {
	cg := buildSampleGraph()
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, cg.WriteToFile(path))

	read, err := ReadConfigGraph(path, true, nil)
	require.NoError(t, err)
	assert.Equal(t, cg.ExpName, read.ExpName)
	assert.Equal(t, cg.NumRanks, read.NumRanks)
	assert.Len(t, read.Components, 2)
	assert.Len(t, read.Links, 1)
}

func TestConfigGraph_WriteThenReadJSON_RoundTrips(t *testing.T) {
	cg := buildSampleGraph()
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, cg.WriteToFile(path))

	read, err := ReadConfigGraph(path, false, nil)
	require.NoError(t, err)
	assert.Equal(t, cg.NumThreads, read.NumThreads)
	assert.Equal(t, "ping", read.Components[0].Name)
}

func TestConfigGraph_WriteToFile_PanicsOnUnrecognizedExtension(t *testing.T) {
	cg := buildSampleGraph()
	path := filepath.Join(t.TempDir(), "graph.txt")
	assert.Panics(t, func() { _ = cg.WriteToFile(path) })
}

func TestReadConfigGraph_PrefersInMemoryDictOverFile(t *testing.T) {
	cg := buildSampleGraph()
	encoded, err := json.Marshal(cg)
	require.NoError(t, err)

	read, err := ReadConfigGraph("/nonexistent/path.json", false, encoded)
	require.NoError(t, err)
	assert.Equal(t, cg.ExpName, read.ExpName)
}
