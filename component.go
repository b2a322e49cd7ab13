package vortex

// component.go realizes spec.md §9's first design note: "deep
// inheritance -> tagged variants + capability traits". Shared state
// lives in an embedded BaseComponentData struct; the polymorphism the
// source expressed through Component/SubComponent/BaseComponent
// inheritance is expressed here as the Component interface's
// capability-method set.

import (
	"fmt"
	"reflect"
)

// Component is the trait every user-defined simulation entity
// implements. Concrete components embed BaseComponentData and
// implement the capability set spec.md §9 names: init, setup,
// complete, finish, serialize, handle_event.
type Component interface {
	Base() *BaseComponentData
	Init(phase int) (didWork bool, inFlight bool)
	Setup()
	HandleEvent(sim *Simulation, port PortName, at SimTime, payload any) error
	Complete(phase int) (didWork bool, inFlight bool)
	Finish()
	// Serialize returns a snapshot of the component's internal state,
	// captured into every checkpoint alongside the partition's
	// TimeVortex, per spec.md §4.10's "all registered components ...
	// serialized". Restore installs a previously-Serialize-d snapshot
	// back into a freshly wired-up component of the same type at
	// restore-from-checkpoint time. BaseComponentData's embedded
	// default treats a component as stateless; a component carrying
	// meaningful internal state overrides both.
	Serialize() ([]byte, error)
	Restore(data []byte) error
}

// BaseComponentData holds the fields every Component shares: identity,
// parameters, and the link map, mirroring the source's BaseComponent
// (composed into every concrete component rather than inherited from,
// since Go has no implementation inheritance).
type BaseComponentData struct {
	ID     ComponentID
	Name   string
	Type   string
	Rank   int
	Thread int
	Params *Params
	Ports  map[PortName]LinkID
	Stats  []*Statistic

	// PortTypes optionally records the reflect.Type this component
	// expects/produces on a given port, populated via DeclarePortType.
	// Wire-up compares it against the port's declared
	// ConfigLink.EventType string, per spec.md §4.2's mismatch check.
	// A port never registered here is untyped and skipped by the
	// check, so typed and untyped ports can coexist on the same graph.
	PortTypes map[PortName]reflect.Type
}

// Base implements the trivial half of Component for embedders that
// don't need to override it.
func (b *BaseComponentData) Base() *BaseComponentData { return b }

// Serialize is the stateless default: a component embedding
// BaseComponentData without overriding Serialize/Restore carries no
// internal state beyond what wire-up already reconstructs (Params,
// Ports, Stats), so there is nothing to snapshot.
func (b *BaseComponentData) Serialize() ([]byte, error) { return nil, nil }

// Restore is the stateless default's matching no-op. See Serialize.
func (b *BaseComponentData) Restore(data []byte) error { return nil }

// DeclarePortType registers the reflect.Type of the payload port
// sends or expects, for wire-up's port/event-type mismatch check
// (spec.md §4.2). sample's type is captured via reflect.TypeOf; pass
// a zero value of the expected payload type. Typically called from a
// component's Factory, alongside Ports assignment.
func (b *BaseComponentData) DeclarePortType(port PortName, sample any) {
	if b.PortTypes == nil {
		b.PortTypes = make(map[PortName]reflect.Type)
	}
	b.PortTypes[port] = reflect.TypeOf(sample)
}

// PortLink resolves a declared port name to its wired LinkID. Fatal
// (wire-up bug) if the port was never bound.
func (b *BaseComponentData) PortLink(port PortName) LinkID {
	id, present := b.Ports[port]
	if !present {
		panic(fmt.Errorf("component %s: port %q not wired", b.Name, port))
	}
	return id
}

// Stat looks up one of this component's declared Statistics by name,
// so HandleEvent/Setup/Finish code can call AddData on it. Panics if
// none was declared under that name (a wire-up bug), mirroring
// PortLink's convention.
func (b *BaseComponentData) Stat(name string) *Statistic {
	for _, s := range b.Stats {
		if s.Name == name {
			return s
		}
	}
	panic(fmt.Errorf("component %s: statistic %q not registered", b.Name, name))
}

// Factory constructs a Component instance from its wired parameters.
// Registered per component Type via RegisterComponentFactory.
type Factory func(base BaseComponentData) Component

// ComponentRegistry is the read-only-after-startup element registry
// spec.md §9's fifth design note calls for: an inventory mechanism
// standing in for the source's macro-based ELI static registration.
// Populated by explicit RegisterComponentFactory calls at program
// start, before any partition goroutine is spawned; never mutated
// again (spec.md §5's "Element-library registry ... read-only
// afterward").
type ComponentRegistry struct {
	factories map[string]Factory
}

var globalRegistry = &ComponentRegistry{factories: make(map[string]Factory)}

// RegisterComponentFactory adds a factory for the given component
// type name to the process-wide registry. Intended to be called from
// package init() functions in element libraries, exactly the way the
// source's macro registration runs before main(). Panics on a
// duplicate registration, since that is always a build-time mistake.
func RegisterComponentFactory(typeName string, f Factory) {
	if _, present := globalRegistry.factories[typeName]; present {
		panic(fmt.Errorf("component registry: type %q already registered", typeName))
	}
	globalRegistry.factories[typeName] = f
}

// LookupComponentFactory returns the factory for typeName, and
// whether it was found. Wire-up treats a miss as fatal (spec.md
// §4.9's "any unresolved type ... is fatal before simulation
// starts").
func LookupComponentFactory(typeName string) (Factory, bool) {
	f, present := globalRegistry.factories[typeName]
	return f, present
}
