package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ripdaemon/ripd/internal/clock"
	"github.com/ripdaemon/ripd/internal/engine"
	"github.com/ripdaemon/ripd/internal/iface"
	"github.com/ripdaemon/ripd/internal/table"
	"github.com/ripdaemon/ripd/internal/wire"
)

func ip(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

type fakeIfaces []iface.Interface

func (f fakeIfaces) Count() int { return len(f) }
func (f fakeIfaces) Get(i int) iface.Interface {
	if i < 0 || i >= len(f) {
		return iface.Interface{}
	}
	return f[i]
}

type sentPacket struct {
	dstIP, nextHopIP, outIface uint32
	entries                    []wire.Entry
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentPacket
}

func (f *fakeSender) Send(dstIP, nextHopIP uint32, outIface uint32, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPacket{dstIP, nextHopIP, outIface, wire.DecodeEntries(payload)}) //nolint:govet
	return nil
}

func (f *fakeSender) last(iface uint32) (sentPacket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].outIface == iface {
			return f.sent[i], true
		}
	}
	return sentPacket{}, false
}

func newTestEngine(t *testing.T, ifaces fakeIfaces) (*engine.Engine, *fakeSender, *clock.FakeClock) {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.TickInterval = time.Hour // tests drive HandlePeriodic explicitly
	eng := engine.New(cfg, nil)
	clk := clock.NewFakeClock()
	eng.WithClock(clk)
	sender := &fakeSender{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := eng.Init(ctx, ifaces, sender); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return eng, sender, clk
}

func findEntry(entries []wire.Entry, subnet uint32) (wire.Entry, bool) {
	for _, e := range entries {
		if e.IP == subnet {
			return e, true
		}
	}
	return wire.Entry{}, false
}

// Scenario 1: single-hop learn.
func TestScenarioSingleHopLearn(t *testing.T) {
	ifaces := fakeIfaces{
		{IP: ip(10, 0, 0, 1), Mask: ip(255, 255, 255, 0), Enabled: true, Cost: 1},
		{IP: ip(192, 168, 0, 1), Mask: ip(255, 255, 255, 0), Enabled: true, Cost: 1},
	}
	eng, sender, _ := newTestEngine(t, ifaces)

	payload := wire.EncodeEntries([]wire.Entry{
		{AddressFamily: 2, IP: ip(10, 0, 1, 0), SubnetMask: ip(255, 255, 255, 0), NextHop: 0, Metric: 5},
	})
	eng.HandlePacket(ip(10, 0, 0, 2), 0, payload)

	iface, nh := eng.GetNextHop(ip(10, 0, 1, 5))
	if iface != 0 || nh != ip(10, 0, 0, 2) {
		t.Fatalf("expected route via interface 0 next-hop 10.0.0.2, got iface=%d nh=%x", iface, nh)
	}

	sent1, ok := sender.last(1)
	if !ok {
		t.Fatal("expected a broadcast on interface 1")
	}
	e1, ok := findEntry(sent1.entries, ip(10, 0, 1, 0))
	if !ok || e1.Metric != 6 {
		t.Fatalf("expected metric 6 on interface 1, got %+v ok=%v", e1, ok)
	}

	sent0, ok := sender.last(0)
	if !ok {
		t.Fatal("expected a broadcast on interface 0")
	}
	e0, ok := findEntry(sent0.entries, ip(10, 0, 1, 0))
	if !ok || e0.Metric != table.Infinity {
		t.Fatalf("expected poisoned metric 16 on interface 0, got %+v ok=%v", e0, ok)
	}
}

// Scenario 2: longest prefix match.
func TestScenarioLongestPrefixMatch(t *testing.T) {
	ifaces := fakeIfaces{
		{IP: ip(10, 0, 0, 1), Mask: ip(255, 0, 0, 0), Enabled: true, Cost: 1},
	}
	eng, _, _ := newTestEngine(t, ifaces)

	payload := wire.EncodeEntries([]wire.Entry{
		{AddressFamily: 2, IP: ip(10, 0, 0, 0), SubnetMask: ip(255, 0, 0, 0), NextHop: 0, Metric: 2},
		{AddressFamily: 2, IP: ip(10, 0, 1, 0), SubnetMask: ip(255, 255, 255, 0), NextHop: 0, Metric: 3},
	})
	eng.HandlePacket(ip(10, 0, 0, 9), 0, payload)

	iface, nh := eng.GetNextHop(ip(10, 0, 1, 5))
	if iface != 0 || nh != ip(10, 0, 0, 9) {
		t.Fatalf("expected the /24 entry to win, got iface=%d nh=%x", iface, nh)
	}
}

// Scenario 3: timeout.
func TestScenarioTimeout(t *testing.T) {
	ifaces := fakeIfaces{
		{IP: ip(10, 0, 0, 1), Mask: ip(255, 255, 255, 0), Enabled: true, Cost: 1},
	}
	eng, sender, clk := newTestEngine(t, ifaces)

	payload := wire.EncodeEntries([]wire.Entry{
		{AddressFamily: 2, IP: ip(10, 0, 1, 0), SubnetMask: ip(255, 255, 255, 0), NextHop: 0, Metric: 2},
	})
	eng.HandlePacket(ip(10, 0, 0, 2), 0, payload)

	clk.Advance(20*time.Second + time.Millisecond)
	before := len(sender.sent)
	eng.HandlePeriodic()

	iface, nh := eng.GetNextHop(ip(10, 0, 1, 5))
	if iface != 0 || nh != 0xFFFFFFFF {
		t.Fatalf("expected sentinel after timeout, got iface=%d nh=%x", iface, nh)
	}
	if len(sender.sent) <= before {
		t.Fatal("expected a broadcast after timeout")
	}
}

// Scenario 4: interface down.
func TestScenarioInterfaceDown(t *testing.T) {
	ifaces := fakeIfaces{
		{IP: ip(10, 0, 0, 1), Mask: ip(255, 255, 255, 0), Enabled: true, Cost: 1},
		{IP: ip(10, 0, 2, 1), Mask: ip(255, 255, 255, 0), Enabled: true, Cost: 1},
	}
	eng, sender, _ := newTestEngine(t, ifaces)

	payload := wire.EncodeEntries([]wire.Entry{
		{AddressFamily: 2, IP: ip(10, 0, 1, 0), SubnetMask: ip(255, 255, 255, 0), Metric: 2},
		{AddressFamily: 2, IP: ip(10, 0, 3, 0), SubnetMask: ip(255, 255, 255, 0), Metric: 3},
		{AddressFamily: 2, IP: ip(10, 0, 4, 0), SubnetMask: ip(255, 255, 255, 0), Metric: 4},
	})
	eng.HandlePacket(ip(10, 0, 0, 9), 1, payload)

	before := len(sender.sent)
	ifaces[1] = iface.Interface{IP: ip(10, 0, 2, 1), Mask: ip(255, 255, 255, 0), Enabled: false, Cost: 1}
	eng.HandleInterfaceChanged(1, true, false)

	if len(sender.sent) <= before {
		t.Fatal("expected a broadcast after interface down")
	}
	for _, subnet := range []uint32{ip(10, 0, 1, 0), ip(10, 0, 3, 0), ip(10, 0, 4, 0)} {
		iface, nh := eng.GetNextHop(subnet | 5)
		if iface != 0 || nh != 0xFFFFFFFF {
			t.Fatalf("expected subnet %x to become unreachable, got iface=%d nh=%x", subnet, iface, nh)
		}
	}
}

// Scenario 5: cost raise.
func TestScenarioCostRaise(t *testing.T) {
	ifaces := fakeIfaces{
		{IP: ip(10, 0, 0, 1), Mask: ip(255, 255, 255, 0), Enabled: true, Cost: 1},
	}
	eng, _, _ := newTestEngine(t, ifaces)

	payload := wire.EncodeEntries([]wire.Entry{
		{AddressFamily: 2, IP: ip(10, 0, 1, 0), SubnetMask: ip(255, 255, 255, 0), Metric: 2},
	})
	eng.HandlePacket(ip(10, 0, 0, 9), 0, payload)

	ifaces[0] = iface.Interface{IP: ip(10, 0, 0, 1), Mask: ip(255, 255, 255, 0), Enabled: true, Cost: 5}
	eng.HandleInterfaceChanged(0, false, true)

	iface, nh := eng.GetNextHop(ip(10, 0, 1, 5))
	if iface != 0 || nh != ip(10, 0, 0, 9) {
		t.Fatalf("expected learned route to survive cost raise, got iface=%d nh=%x", iface, nh)
	}

	own, nh := eng.GetNextHop(ip(10, 0, 0, 5))
	if own != 0 || nh != 0 {
		t.Fatalf("expected own subnet to stay directly connected via interface 0, got iface=%d nh=%x", own, nh)
	}
}

// Scenario 6: split horizon.
func TestScenarioSplitHorizon(t *testing.T) {
	ifaces := fakeIfaces{
		{IP: ip(10, 0, 0, 1), Mask: ip(255, 255, 255, 0), Enabled: true, Cost: 1},
		{IP: ip(10, 0, 1, 1), Mask: ip(255, 255, 255, 0), Enabled: true, Cost: 1},
	}
	eng, sender, _ := newTestEngine(t, ifaces)

	payload := wire.EncodeEntries([]wire.Entry{
		{AddressFamily: 2, IP: ip(192, 168, 5, 0), SubnetMask: ip(255, 255, 255, 0), Metric: 2},
	})
	eng.HandlePacket(ip(10, 0, 1, 2), 1, payload)

	sent1, _ := sender.last(1)
	e1, _ := findEntry(sent1.entries, ip(192, 168, 5, 0))
	if e1.Metric != table.Infinity {
		t.Fatalf("expected poisoned metric 16 on interface 1, got %d", e1.Metric)
	}

	sent0, _ := sender.last(0)
	e0, _ := findEntry(sent0.entries, ip(192, 168, 5, 0))
	if e0.Metric != 3 {
		t.Fatalf("expected metric 3 on interface 0, got %d", e0.Metric)
	}
}

func TestDoubleInitReturnsError(t *testing.T) {
	ifaces := fakeIfaces{{IP: ip(10, 0, 0, 1), Mask: ip(255, 255, 255, 0), Enabled: true, Cost: 1}}
	eng, sender, _ := newTestEngine(t, ifaces)
	if err := eng.Init(context.Background(), ifaces, sender); err != engine.ErrAlreadyInitialized {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestHandlePacketOnDisabledInterfaceIsDropped(t *testing.T) {
	ifaces := fakeIfaces{{IP: ip(10, 0, 0, 1), Mask: ip(255, 255, 255, 0), Enabled: false, Cost: 1}}
	eng, sender, _ := newTestEngine(t, ifaces)

	payload := wire.EncodeEntries([]wire.Entry{
		{AddressFamily: 2, IP: ip(10, 0, 1, 0), SubnetMask: ip(255, 255, 255, 0), Metric: 2},
	})
	eng.HandlePacket(ip(10, 0, 0, 2), 0, payload)

	if len(sender.sent) != 0 {
		t.Fatalf("expected no broadcast from a disabled-interface packet, got %d sends", len(sender.sent))
	}
	iface, nh := eng.GetNextHop(ip(10, 0, 1, 5))
	if iface != 0 || nh != 0xFFFFFFFF {
		t.Fatalf("expected no route learned, got iface=%d nh=%x", iface, nh)
	}
}

func TestMetricAtBoundaryBecomesUnreachableNotNewEntry(t *testing.T) {
	ifaces := fakeIfaces{{IP: ip(10, 0, 0, 1), Mask: ip(255, 255, 255, 0), Enabled: true, Cost: 1}}
	eng, _, _ := newTestEngine(t, ifaces)

	payload := wire.EncodeEntries([]wire.Entry{
		{AddressFamily: 2, IP: ip(10, 0, 1, 0), SubnetMask: ip(255, 255, 255, 0), Metric: 15},
	})
	eng.HandlePacket(ip(10, 0, 0, 2), 0, payload)

	iface, nh := eng.GetNextHop(ip(10, 0, 1, 5))
	if iface != 0 || nh != 0xFFFFFFFF {
		t.Fatalf("expected metric 15 + link cost 1 = 16 to never create a reachable entry, got iface=%d nh=%x", iface, nh)
	}
}
