package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vortex "github.com/iti/vortex"
)

func TestComponentPart_ExtractsNameBeforeDot(t *testing.T) {
	assert.Equal(t, "sender", componentPart("sender.out"))
	assert.Equal(t, "solo", componentPart("solo"))
}

func TestTimingReport_ReportsPartitionCountAndElapsedSeconds(t *testing.T) {
	cg := vortex.CreateConfigGraph("exp", 2, 3, "1ns")
	report := timingReport(cg, 2*time.Second)
	assert.Equal(t, "exp", report.ExpName)
	assert.Equal(t, 6, report.Partitions)
	assert.InDelta(t, 2.0, report.WallClockSeconds, 0.001)
}

func TestNewStatOutput_RejectsUnrecognizedSink(t *testing.T) {
	_, err := newStatOutput("carrier-pigeon", t.TempDir(), "exp", 0)
	assert.Error(t, err)
}

func TestNewStatOutput_CSVSinkWritesToPerRankFile(t *testing.T) {
	dir := t.TempDir()
	out, err := newStatOutput("csv", dir, "exp", 3)
	require.NoError(t, err)
	require.NoError(t, out.Close())
	assert.FileExists(t, filepath.Join(dir, "exp-rank3.csv"))
}

func TestCheckLaunchShape_AcceptsMatchingShape(t *testing.T) {
	cg := vortex.CreateConfigGraph("exp", 2, 3, "1ns")
	gc := &vortex.GlobalCheckpoint{NumRanks: 2, NumThreads: 3}
	assert.NoError(t, checkLaunchShape(gc, cg))
}

func TestCheckLaunchShape_RejectsDifferentRankCount(t *testing.T) {
	cg := vortex.CreateConfigGraph("exp", 4, 1, "1ns")
	gc := &vortex.GlobalCheckpoint{NumRanks: 2, NumThreads: 1}
	assert.Error(t, checkLaunchShape(gc, cg))
}

func TestCheckLaunchShape_RejectsDifferentThreadCount(t *testing.T) {
	cg := vortex.CreateConfigGraph("exp", 1, 2, "1ns")
	gc := &vortex.GlobalCheckpoint{NumRanks: 1, NumThreads: 8}
	assert.Error(t, checkLaunchShape(gc, cg))
}
