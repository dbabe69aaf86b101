package iface

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"

	nl "github.com/vishvananda/netlink"
)

// CostOverrides supplies the per-interface cost and enable/disable
// policy the kernel itself has no notion of; it is populated from
// internal/config.
type CostOverrides interface {
	// CostFor returns the configured cost and enabled state for the
	// named interface, and ok reporting whether an override exists at
	// all. A cost of 0 is a legal override (a free directly-connected
	// link, spec invariant 2), so callers must branch on ok rather than
	// on cost being non-zero to decide whether to fall back to the
	// kernel-derived default.
	CostFor(name string) (cost uint32, enabled bool, ok bool)
}

// NetlinkProvider enumerates real host links and their first IPv4
// address via github.com/vishvananda/netlink, grounded on the
// Netlinker wrapping pattern in the teacher's routing/netlink.go.
// Interfaces are refreshed into an ordered snapshot slice so that
// Count/Get indices are stable between Refresh calls, matching the
// index-into-host-interface-array contract of spec §3/§6.
type NetlinkProvider struct {
	log       *slog.Logger
	overrides CostOverrides

	mu    sync.RWMutex
	snaps []Interface
	names []string // snaps[i] came from host link names[i]
}

// NewNetlinkProvider returns a NetlinkProvider. Refresh must be called
// at least once before Count/Get report anything.
func NewNetlinkProvider(overrides CostOverrides, log *slog.Logger) *NetlinkProvider {
	if log == nil {
		log = slog.Default()
	}
	return &NetlinkProvider{log: log, overrides: overrides}
}

func (p *NetlinkProvider) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.snaps)
}

func (p *NetlinkProvider) Get(index int) Interface {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 || index >= len(p.snaps) {
		return Interface{}
	}
	return p.snaps[index]
}

// NameAt returns the host link name backing index, for transport code
// that needs to resolve an outgoing_interface index to a real
// net.Interface for multicast send. Returns "" if index is invalid.
func (p *NetlinkProvider) NameAt(index int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 || index >= len(p.names) {
		return ""
	}
	return p.names[index]
}

// Refresh re-enumerates host links and their IPv4 addresses, rebuilding
// the index-stable snapshot. Link ordering from the kernel is sorted by
// name so that index assignment is deterministic across calls absent
// topology changes.
func (p *NetlinkProvider) Refresh() error {
	links, err := nl.LinkList()
	if err != nil {
		return fmt.Errorf("iface: list links: %w", err)
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].Attrs().Name < links[j].Attrs().Name
	})

	var names []string
	var snaps []Interface
	for _, link := range links {
		name := link.Attrs().Name
		addrs, err := nl.AddrList(link, nl.FAMILY_V4)
		if err != nil {
			p.log.Warn("iface: list addresses failed", "link", name, "err", err)
			continue
		}
		for _, a := range addrs {
			ip4 := a.IPNet.IP.To4()
			if ip4 == nil {
				continue
			}
			mask := net.IP(a.IPNet.Mask).To4()
			if mask == nil {
				continue
			}
			cost, enabled := uint32(1), link.Attrs().OperState == nl.OperUp
			if p.overrides != nil {
				if c, e, ok := p.overrides.CostFor(name); ok {
					cost, enabled = c, e
				}
			}
			names = append(names, name)
			snaps = append(snaps, Interface{
				IP:      ipToUint32(ip4),
				Mask:    ipToUint32(mask),
				Enabled: enabled,
				Cost:    cost,
			})
			break
		}
	}

	p.mu.Lock()
	p.snaps, p.names = snaps, names
	p.mu.Unlock()
	return nil
}

func ipToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

// ChangeHandler is invoked when a link's administrative state or
// configured cost changes, carrying the index it was found at during
// the preceding Refresh. It maps onto the protocol engine's
// handle_interface_changed(index, state_changed, cost_changed) (spec
// §4.5.5).
type ChangeHandler func(index int, stateChanged, costChanged bool)

// Watch subscribes to netlink link updates and re-runs Refresh on each
// kernel notification, until ctx is cancelled. onChange is invoked only
// when the notified link was already known and its enabled state or
// cost differs after the Refresh. It runs until ctx.Done(); callers
// should start it in its own goroutine.
func (p *NetlinkProvider) Watch(ctx context.Context, onChange ChangeHandler) error {
	updates := make(chan nl.LinkUpdate)
	done := make(chan struct{})
	if err := nl.LinkSubscribe(updates, done); err != nil {
		return fmt.Errorf("iface: subscribe to link updates: %w", err)
	}
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			p.mu.RLock()
			var idx = -1
			for i, name := range p.names {
				if name == u.Link.Attrs().Name {
					idx = i
					break
				}
			}
			before := Interface{}
			if idx >= 0 {
				before = p.snaps[idx]
			}
			p.mu.RUnlock()

			if err := p.Refresh(); err != nil {
				p.log.Error("iface: refresh after link update failed", "err", err)
				continue
			}
			if idx < 0 {
				continue
			}
			after := p.Get(idx)
			if after.Enabled != before.Enabled {
				onChange(idx, true, false)
			} else if after.Cost != before.Cost {
				onChange(idx, false, true)
			}
		}
	}
}
