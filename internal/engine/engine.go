// Package engine implements the protocol engine (spec §4.5): the state
// machine that reacts to inbound packets, the periodic tick, and
// interface-change notifications, and emits advertisements. Init,
// Routes, GetNextHop and the Handle* methods acquire the engine's
// recursive lock on entry and release it on every return path (spec
// §4.2, §5); WithClock and Close take no lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ripdaemon/ripd/internal/clock"
	"github.com/ripdaemon/ripd/internal/iface"
	"github.com/ripdaemon/ripd/internal/rlock"
	"github.com/ripdaemon/ripd/internal/table"
	"github.com/ripdaemon/ripd/internal/wire"
)

// ErrAlreadyInitialized is returned by Init if called more than once
// (spec §6: "init(interface_provider, sender) — idempotent prohibited;
// call once."). The core spec treats a second init as undefined; this
// implementation surfaces it as an ordinary Go error rather than
// aborting the process, which is the idiomatic substitute for "treated
// as fatal" in a language where the caller, not the callee, decides
// whether an error is fatal.
var ErrAlreadyInitialized = errors.New("engine: already initialized")

// InterfaceProvider is the injected interface-enumeration collaborator
// (spec §6).
type InterfaceProvider interface {
	Count() int
	Get(index int) iface.Interface
}

// Sender is the injected advertisement-transmission collaborator (spec
// §6).
type Sender interface {
	Send(dstIP, nextHopIP uint32, outgoingInterface uint32, payload []byte) error
}

// Config holds the engine's tunable timing and behavior parameters
// (spec §3 Configuration constants, plus the SPEC_FULL.md §4 optional
// garbage-collection supplement).
type Config struct {
	AdvertInterval time.Duration
	Timeout        time.Duration
	Garbage        time.Duration
	TickInterval   time.Duration
	MulticastAddr  uint32

	// EnableGarbageCollection opts into removing cost==16 entries after
	// Garbage has elapsed since their last update. Off by default,
	// preserving the core's literal "entries accumulate" behavior
	// (SPEC_FULL.md §5 item 1).
	EnableGarbageCollection bool
}

// DefaultConfig returns the constants named in spec §3.
func DefaultConfig() Config {
	return Config{
		AdvertInterval: 10 * time.Second,
		Timeout:        20 * time.Second,
		Garbage:        20 * time.Second,
		TickInterval:   1 * time.Second,
		MulticastAddr:  0xE0000009, // 224.0.0.9
	}
}

// Engine is the single owning object holding all protocol-engine state
// (spec §9 re-architecture guidance: "a single owning engine object
// constructed at init, passed by reference to every operation", in
// place of the original's module-global mutable state).
type Engine struct {
	lock  *rlock.RecursiveLock
	table *table.Table
	clock clock.Clock
	cfg   Config
	log   *slog.Logger

	ifaces InterfaceProvider
	sender Sender

	initialized     bool
	lastBroadcastMS int64
	cancel          context.CancelFunc
}

// New constructs an Engine. It is not usable until Init is called.
func New(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		lock:  rlock.New(),
		table: table.New(),
		clock: clock.NewSystemClock(),
		cfg:   cfg,
		log:   log,
	}
}

// WithClock overrides the engine's time source. Exposed for tests that
// need to simulate timeout/garbage windows without sleeping.
func (e *Engine) WithClock(c clock.Clock) *Engine {
	e.clock = c
	return e
}

// Init executes the engine's one-time bootstrap (spec §4.5.1):
// snapshots the interface list, inserts a directly-connected entry for
// every enabled interface, and starts the periodic-tick goroutine. ctx
// governs the tick goroutine's lifetime; cancel it (or call Close) to
// stop it (SPEC_FULL.md §5 item 6).
func (e *Engine) Init(ctx context.Context, ifaces InterfaceProvider, sender Sender) error {
	tok := e.lock.Lock(0)
	defer e.lock.Unlock()

	if e.initialized {
		return ErrAlreadyInitialized
	}
	e.ifaces = ifaces
	e.sender = sender

	n := ifaces.Count()
	for i := 0; i < n; i++ {
		ifc := ifaces.Get(i)
		if !ifc.Enabled {
			continue
		}
		subnet := ifc.IP & ifc.Mask
		if _, ok := e.table.Find(subnet, ifc.Mask); ok {
			continue
		}
		e.table.Insert(&table.Entry{
			Subnet:            subnet,
			Mask:              ifc.Mask,
			NextHopIP:         0,
			OutgoingInterface: uint32(i),
			Cost:              ifc.Cost,
			LastUpdatedMS:     table.Never,
			IsGarbage:         ifc.Cost >= table.Infinity,
		})
	}

	e.initialized = true
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.runTicker(runCtx, tok)
	metricTableSize.Set(float64(e.table.Len()))
	e.log.Info("engine: initialized", "interfaces", n, "routes", e.table.Len())
	return nil
}

// Close stops the periodic-tick goroutine started by Init. Safe to call
// even if Init was never called.
func (e *Engine) Close() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) runTicker(ctx context.Context, _ int64) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.HandlePeriodic()
		}
	}
}

// RouteView is a JSON-friendly projection of one routing table entry,
// used by the status introspection endpoint (SPEC_FULL.md §4).
type RouteView struct {
	Subnet            string `json:"subnet"`
	Mask              string `json:"mask"`
	NextHopIP         string `json:"next_hop_ip"`
	OutgoingInterface uint32 `json:"outgoing_interface"`
	Cost              uint32 `json:"cost"`
	IsGarbage         bool   `json:"is_garbage"`
}

// Routes returns a snapshot of every table entry in insertion order,
// for the status introspection endpoint.
func (e *Engine) Routes() []RouteView {
	tok := e.lock.Lock(0)
	defer e.lock.Unlock()
	_ = tok
	rows := e.table.All()
	views := make([]RouteView, len(rows))
	for i, r := range rows {
		views[i] = RouteView{
			Subnet:            ipv4String(r.Subnet),
			Mask:              ipv4String(r.Mask),
			NextHopIP:         ipv4String(r.NextHopIP),
			OutgoingInterface: r.OutgoingInterface,
			Cost:              r.Cost,
			IsGarbage:         r.IsGarbage,
		}
	}
	return views
}

func ipv4String(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// GetNextHop resolves the outgoing interface and next hop for ip (spec
// §4.5.2): a pure read delegating to the routing table's
// longest-prefix-match lookup.
func (e *Engine) GetNextHop(ip uint32) (outgoingInterface uint32, nextHop uint32) {
	e.lock.Lock(0)
	defer e.lock.Unlock()
	return e.table.Lookup(ip)
}

// HandlePacket processes an inbound advertisement (spec §4.5.3).
func (e *Engine) HandlePacket(senderIP uint32, arrivalInterface uint32, buf []byte) {
	tok := e.lock.Lock(0)
	defer e.lock.Unlock()
	e.handlePacket(tok, senderIP, arrivalInterface, buf)
}

func (e *Engine) handlePacket(tok int64, senderIP uint32, arrivalInterface uint32, buf []byte) {
	tok = e.lock.Lock(tok)
	defer e.lock.Unlock()

	ifc := e.ifaces.Get(int(arrivalInterface))
	if !ifc.Enabled {
		return
	}
	metricPacketsHandled.Inc()
	linkCost := ifc.Cost
	entries := wire.DecodeEntries(buf)
	now := e.clock.NowMS()
	changed := false

	for _, ent := range entries {
		eSubnet := ent.IP & ent.SubnetMask
		r, ok := e.table.Find(eSubnet, ent.SubnetMask)
		total := ent.Metric + linkCost

		switch {
		case !ok && total <= 15:
			e.table.Insert(&table.Entry{
				Subnet:            eSubnet,
				Mask:              ent.SubnetMask,
				NextHopIP:         senderIP,
				OutgoingInterface: arrivalInterface,
				Cost:              total,
				LastUpdatedMS:     now,
			})
			changed = true
			metricEntriesLearned.Inc()

		case !ok:
			// total >= 16: ignore (spec §4.5.3 case 2).

		case r.OutgoingInterface == arrivalInterface && r.NextHopIP != 0:
			newCost := total
			if newCost > table.Infinity {
				newCost = table.Infinity
			}
			if newCost != r.Cost {
				changed = true
			}
			r.Cost = newCost
			r.IsGarbage = r.Cost == table.Infinity
			r.LastUpdatedMS = now
			e.table.Refresh(r)

		case r.OutgoingInterface != arrivalInterface:
			if total < r.Cost {
				r.Cost = total
				r.OutgoingInterface = arrivalInterface
				r.NextHopIP = senderIP
				r.LastUpdatedMS = now
				r.IsGarbage = false
				e.table.Refresh(r)
				changed = true
			}

		default:
			// r.OutgoingInterface == arrivalInterface && r.NextHopIP == 0:
			// directly connected; ignore the advertisement (case 5).
		}
	}

	if changed {
		e.broadcast(tok)
	}
}

// HandlePeriodic runs the 1s periodic-tick logic (spec §4.5.4): timeout
// scanning with rescue, and the periodic-interval advertisement.
func (e *Engine) HandlePeriodic() {
	tok := e.lock.Lock(0)
	defer e.lock.Unlock()
	e.handlePeriodic(tok)
}

func (e *Engine) handlePeriodic(tok int64) {
	tok = e.lock.Lock(tok)
	defer e.lock.Unlock()

	send := false
	now := e.clock.NowMS()

	if e.cfg.EnableGarbageCollection {
		e.collectGarbage(now)
	}

	for _, r := range e.table.All() {
		if r.LastUpdatedMS != table.Never && now-r.LastUpdatedMS > e.cfg.Timeout.Milliseconds() {
			if e.rescue(r, now) {
				metricRescues.Inc()
			} else {
				r.Cost = table.Infinity
				r.LastUpdatedMS = now
				send = true
				metricTimeouts.Inc()
			}
			e.table.Refresh(r)
		}
		if r.Cost == table.Infinity {
			r.IsGarbage = true
		}
	}

	if now-e.lastBroadcastMS > e.cfg.AdvertInterval.Milliseconds() {
		send = true
		e.lastBroadcastMS = now
	}

	if send {
		e.broadcast(tok)
	}
}

// rescue attempts to re-home a stale entry onto a still-enabled
// directly-connected interface covering its subnet (spec §4.5.4). Cost
// is deliberately left untouched — SPEC_FULL.md §5 item 2 / Open
// Question 2.
func (e *Engine) rescue(r *table.Entry, now int64) bool {
	n := e.ifaces.Count()
	for i := 0; i < n; i++ {
		ifc := e.ifaces.Get(i)
		if ifc.Enabled && (ifc.IP&ifc.Mask) == r.Subnet && ifc.Cost < table.Infinity {
			r.LastUpdatedMS = table.Never
			r.IsGarbage = false
			r.OutgoingInterface = uint32(i)
			r.NextHopIP = 0
			return true
		}
	}
	return false
}

// collectGarbage is the optional pass resolving Open Question 1: remove
// entries that have been unreachable for longer than Garbage since their
// last update. Disabled unless Config.EnableGarbageCollection is set. It
// runs before the timeout scan, which re-stamps LastUpdatedMS on
// unreachable entries once more than Timeout has passed; entries are
// therefore only removed when Garbage does not exceed Timeout.
func (e *Engine) collectGarbage(now int64) {
	for _, r := range e.table.All() {
		if r.Cost == table.Infinity && r.LastUpdatedMS != table.Never &&
			now-r.LastUpdatedMS > e.cfg.Garbage.Milliseconds() {
			e.table.Delete(r.Subnet, r.Mask)
		}
	}
}

// HandleInterfaceChanged reacts to a host interface's administrative
// state or cost changing (spec §4.5.5).
func (e *Engine) HandleInterfaceChanged(index uint32, stateChanged, costChanged bool) {
	tok := e.lock.Lock(0)
	defer e.lock.Unlock()
	e.handleInterfaceChanged(tok, index, stateChanged, costChanged)
}

func (e *Engine) handleInterfaceChanged(tok int64, index uint32, stateChanged, costChanged bool) {
	tok = e.lock.Lock(tok)
	defer e.lock.Unlock()

	ifc := e.ifaces.Get(int(index))
	now := e.clock.NowMS()
	send := false

	switch {
	case stateChanged && !ifc.Enabled:
		for _, r := range e.table.All() {
			if r.OutgoingInterface == index {
				r.Cost = table.Infinity
				r.IsGarbage = true
				r.LastUpdatedMS = now
				e.table.Refresh(r)
			}
		}
		send = true

	case stateChanged && ifc.Enabled:
		subnet := ifc.IP & ifc.Mask
		r, ok := e.table.Find(subnet, ifc.Mask)
		switch {
		case ok && ifc.Cost < r.Cost:
			r.OutgoingInterface = index
			r.Cost = ifc.Cost
			r.NextHopIP = 0
			r.Mask = ifc.Mask
			r.LastUpdatedMS = now
			r.IsGarbage = false
			e.table.Refresh(r)
			send = true
		case !ok:
			e.table.Insert(&table.Entry{
				Subnet:            subnet,
				Mask:              ifc.Mask,
				NextHopIP:         0,
				OutgoingInterface: index,
				Cost:              ifc.Cost,
				LastUpdatedMS:     now,
				IsGarbage:         ifc.Cost >= table.Infinity,
			})
			send = true
		}

	case costChanged:
		subnet := ifc.IP & ifc.Mask
		own, ownFound := e.table.Find(subnet, ifc.Mask)
		var oldCost uint32
		if ownFound {
			oldCost = own.Cost
		}
		newCost := ifc.Cost

		for _, r := range e.table.All() {
			if r.OutgoingInterface != index {
				continue
			}
			if r.NextHopIP != 0 {
				r.Cost = clampCost(int64(r.Cost) - int64(oldCost) + int64(newCost))
			} else {
				r.Cost = newCost
			}
			r.LastUpdatedMS = now
			if r.Cost >= table.Infinity {
				r.IsGarbage = true
			}
			e.table.Refresh(r)
		}

		n := e.ifaces.Count()
		for i := 0; i < n; i++ {
			other := e.ifaces.Get(i)
			if !other.Enabled {
				continue
			}
			otherSubnet := other.IP & other.Mask
			for _, r := range e.table.All() {
				if r.Subnet == otherSubnet && other.Cost < r.Cost {
					r.OutgoingInterface = uint32(i)
					r.Cost = other.Cost
					r.LastUpdatedMS = table.Never
					e.table.Refresh(r)
				}
			}
		}

		if !ownFound {
			e.table.Insert(&table.Entry{
				Subnet:            subnet,
				Mask:              ifc.Mask,
				NextHopIP:         0,
				OutgoingInterface: index,
				Cost:              newCost,
				LastUpdatedMS:     now,
				IsGarbage:         newCost >= table.Infinity,
			})
		}
		send = true
	}

	e.log.Info("engine: interface changed", "index", index, "state_changed", stateChanged, "cost_changed", costChanged)

	if send {
		e.broadcast(tok)
	}
}

func clampCost(v int64) uint32 {
	if v < 0 {
		return 0
	}
	if v > int64(table.Infinity) {
		return table.Infinity
	}
	return uint32(v)
}

// broadcast emits the routing table on every enabled interface with
// split-horizon-with-poisoned-reverse applied (spec §4.5.6). It is
// invoked by HandlePacket, HandlePeriodic, and HandleInterfaceChanged,
// exercising the lock's re-entrancy (spec §5: "the broadcast path...
// may be invoked by three different entries").
func (e *Engine) broadcast(tok int64) {
	tok = e.lock.Lock(tok)
	defer e.lock.Unlock()

	n := e.ifaces.Count()
	rows := e.table.All()

	for j := 0; j < n; j++ {
		ifc := e.ifaces.Get(j)
		if !ifc.Enabled {
			continue
		}
		entries := make([]wire.Entry, 0, len(rows))
		for _, r := range rows {
			metric := r.Cost
			if metric > table.Infinity {
				metric = table.Infinity
			}
			if r.OutgoingInterface == uint32(j) && r.NextHopIP != 0 {
				metric = table.Infinity
			}
			entries = append(entries, wire.Entry{
				AddressFamily: wire.AddressFamilyIPv4,
				IP:            r.Subnet,
				SubnetMask:    r.Mask,
				NextHop:       r.NextHopIP,
				Metric:        metric,
			})
		}
		payload := wire.EncodeEntries(entries)
		if err := e.sender.Send(e.cfg.MulticastAddr, e.cfg.MulticastAddr, uint32(j), payload); err != nil {
			e.log.Error("engine: broadcast send failed", "interface", j, "err", fmt.Errorf("%w", err))
		}
	}
	metricBroadcastsTotal.Inc()
	metricTableSize.Set(float64(e.table.Len()))
}
