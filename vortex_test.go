package vortex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeVortex_PopsInDeliverTimeOrder(t *testing.T) {
	v := NewTimeVortex()
	v.Insert(NewEvent(30, 0, 0, "c", nil))
	v.Insert(NewEvent(10, 0, 0, "a", nil))
	v.Insert(NewEvent(20, 0, 0, "b", nil))

	var order []string
	for !v.Empty() {
		ev := v.Pop().(*Event)
		order = append(order, ev.Payload.(string))
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTimeVortex_BreaksTiesByPriorityThenQueueOrder(t *testing.T) {
	v := NewTimeVortex()
	v.Insert(NewEvent(10, 5, 0, "low-pri", nil))
	v.Insert(NewEvent(10, 1, 0, "high-pri", nil))
	v.Insert(NewEvent(10, 1, 0, "high-pri-later", nil))

	first := v.Pop().(*Event)
	second := v.Pop().(*Event)
	third := v.Pop().(*Event)
	assert.Equal(t, "high-pri", first.Payload)
	assert.Equal(t, "high-pri-later", second.Payload)
	assert.Equal(t, "low-pri", third.Payload)
}

func TestTimeVortex_Insert_NormalizesEventDeliveryToLocal(t *testing.T) {
	v := NewTimeVortex()
	ev := NewEvent(0, 0, 0, nil, nil)
	ev.Delivery = DeliveryInfo{Kind: DeliveryCrossRank, HandlerID: 7, PeerRank: 2}
	v.Insert(ev)

	popped := v.Pop().(*Event)
	assert.Equal(t, DeliveryLocal, popped.Delivery.Kind)
	assert.Equal(t, ComponentID(7), popped.Delivery.HandlerID)
}

func TestTimeVortex_MaxDepth_TracksHighWaterMark(t *testing.T) {
	v := NewTimeVortex()
	v.Insert(NewEvent(1, 0, 0, nil, nil))
	v.Insert(NewEvent(2, 0, 0, nil, nil))
	v.Insert(NewEvent(3, 0, 0, nil, nil))
	assert.Equal(t, 3, v.MaxDepth())
	v.Pop()
	v.Pop()
	assert.Equal(t, 1, v.CurrentDepth())
	assert.Equal(t, 3, v.MaxDepth())
}

func TestTimeVortex_SnapshotAndRestore_RoundTripsPendingActivities(t *testing.T) {
	v := NewTimeVortex()
	v.Insert(NewEvent(5, 0, 0, "x", nil))
	v.Insert(NewEvent(1, 0, 0, "y", nil))
	v.Insert(NewAction(3, 0, ActionClockTick, nil))

	snap := v.Snapshot()
	require.Len(t, snap, 3)

	restored := RestoreTimeVortex(snap)
	assert.Equal(t, 3, restored.Len())
	first := restored.Pop()
	assert.Equal(t, SimTime(1), first.Key().DeliverTime)
}
