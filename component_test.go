package vortex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterComponentFactory_LookupReturnsRegisteredFactory(t *testing.T) {
	typeName := "test-widget-unique-name"
	RegisterComponentFactory(typeName, func(base BaseComponentData) Component {
		return &testComponent{BaseComponentData: base}
	})

	factory, present := LookupComponentFactory(typeName)
	require.True(t, present)
	comp := factory(BaseComponentData{ID: 1, Name: "w"})
	assert.Equal(t, ComponentID(1), comp.Base().ID)
}

func TestRegisterComponentFactory_PanicsOnDuplicateType(t *testing.T) {
	typeName := "test-widget-duplicate-name"
	RegisterComponentFactory(typeName, func(base BaseComponentData) Component {
		return &testComponent{BaseComponentData: base}
	})
	assert.Panics(t, func() {
		RegisterComponentFactory(typeName, func(base BaseComponentData) Component {
			return &testComponent{BaseComponentData: base}
		})
	})
}

func TestLookupComponentFactory_MissReportsAbsent(t *testing.T) {
	_, present := LookupComponentFactory("no-such-type-registered")
	assert.False(t, present)
}

func TestBaseComponentData_PortLink_PanicsOnUnwiredPort(t *testing.T) {
	b := &BaseComponentData{Name: "c", Ports: map[PortName]LinkID{}}
	assert.Panics(t, func() { b.PortLink("missing") })
}

func TestBaseComponentData_PortLink_ResolvesWiredPort(t *testing.T) {
	b := &BaseComponentData{Name: "c", Ports: map[PortName]LinkID{"out": 5}}
	assert.Equal(t, LinkID(5), b.PortLink("out"))
}
