// Package iface implements the interface provider collaborator the
// protocol engine is injected with (spec §6): by-value snapshots of
// host interfaces, their enabled/disabled state and configured cost.
package iface

// Interface is a by-value snapshot of one host interface (spec §6):
// "get_interface(index) -> {ip, subnet_mask, enabled, cost} — by-value
// snapshot; all fields zero if index invalid".
type Interface struct {
	IP      uint32
	Mask    uint32
	Enabled bool
	Cost    uint32
}

// Provider is the interface-enumeration collaborator injected into the
// protocol engine.
type Provider interface {
	// Count returns the number of interfaces currently known.
	Count() int
	// Get returns a snapshot of the interface at index. All fields are
	// zero if index is out of range (spec §6); this is never an error.
	Get(index int) Interface
}

// StaticProvider is a fixed-size Provider useful for tests and for any
// deployment where interfaces are configured rather than discovered.
type StaticProvider []Interface

func (p StaticProvider) Count() int { return len(p) }

func (p StaticProvider) Get(index int) Interface {
	if index < 0 || index >= len(p) {
		return Interface{}
	}
	return p[index]
}
