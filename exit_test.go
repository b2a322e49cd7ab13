package vortex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExit_RefIncRefDec_TracksLocalCount(t *testing.T) {
	e := NewExit()
	e.Register(1)
	e.RefInc(1)
	e.RefInc(1)
	e.RefDec(1)
	assert.Equal(t, int64(1), e.Local())
}

func TestExit_RefInc_PanicsOnUnregisteredComponent(t *testing.T) {
	e := NewExit()
	assert.Panics(t, func() { e.RefInc(99) })
}

func TestExit_Register_PanicsOnDuplicateRegistration(t *testing.T) {
	e := NewExit()
	e.Register(1)
	assert.Panics(t, func() { e.Register(1) })
}

func TestExit_ShouldStop_TrueWhenGlobalSumReachesZero(t *testing.T) {
	e := NewExit()
	assert.True(t, e.ShouldStop(0, 100))
}

func TestExit_ShouldStop_FalseWhilePositiveSumAndNoStopTime(t *testing.T) {
	e := NewExit()
	assert.False(t, e.ShouldStop(3, 100))
}

func TestExit_ShouldStop_TrueOnceStopTimeReached(t *testing.T) {
	e := NewExit()
	e.SetStopTime(50)
	assert.True(t, e.ShouldStop(10, 50))
	assert.True(t, e.ShouldStop(10, 51))
	assert.False(t, e.ShouldStop(10, 49))
}

func TestExit_ShouldStop_OnlyReportsCompletionOnce(t *testing.T) {
	e := NewExit()
	assert.True(t, e.ShouldStop(0, 100))
	assert.False(t, e.ShouldStop(0, 101))
}

func TestExit_SetLocal_OverwritesCountForRestore(t *testing.T) {
	e := NewExit()
	e.SetLocal(42)
	assert.Equal(t, int64(42), e.Local())
}
