package vortex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTrace_Record_NoOpWhenManagerInactive(t *testing.T) {
	tm := CreateTraceManager("exp", false)
	et := NewEventTrace(tm)
	et.Record(10, 1, 2, [32]byte{})
	assert.Empty(t, tm.Traces)
}

func TestEventTrace_Record_AppendsUnderComponentID(t *testing.T) {
	tm := CreateTraceManager("exp", true)
	et := NewEventTrace(tm)
	et.Record(10, 1, 2, [32]byte{})
	et.Record(20, 2, 2, [32]byte{})

	require.Len(t, tm.Traces[2], 2)
	assert.Contains(t, tm.Traces[2][0].TraceStr, "deliver_time")
}

func TestTraceManager_WriteToFile_NoOpWhenInactive(t *testing.T) {
	tm := CreateTraceManager("exp", false)
	path := filepath.Join(t.TempDir(), "trace.yaml")
	assert.False(t, tm.WriteToFile(path))
}

func TestTraceManager_WriteToFile_WritesYAMLAndJSON(t *testing.T) {
	tm := CreateTraceManager("exp", true)
	et := NewEventTrace(tm)
	et.Record(1, 0, 1, [32]byte{1})

	yamlPath := filepath.Join(t.TempDir(), "trace.yaml")
	assert.True(t, tm.WriteToFile(yamlPath))

	jsonPath := filepath.Join(t.TempDir(), "trace.json")
	assert.True(t, tm.WriteToFile(jsonPath))
}

func TestTraceManager_WriteToFile_PanicsOnUnrecognizedExtension(t *testing.T) {
	tm := CreateTraceManager("exp", true)
	path := filepath.Join(t.TempDir(), "trace.txt")
	assert.Panics(t, func() { tm.WriteToFile(path) })
}
