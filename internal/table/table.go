// Package table implements the routing table (spec §4.3): an ordered,
// uniquely-keyed collection of route entries supporting exact lookup,
// insertion-order traversal, and longest-prefix-match next-hop lookup.
package table

import (
	"math/bits"
	"net/netip"

	"github.com/gaissmai/bart"
)

// Infinity is the reserved cost value meaning unreachable (spec §3).
const Infinity uint32 = 16

// Never is the last_updated_ms sentinel meaning "pinned, never expires"
// (spec §3), used for directly-connected routes.
const Never int64 = -1

// Entry is a single route table row (spec §3 Data Model). Subnet, Mask
// and NextHopIP are 32-bit IPv4 values in network byte order; Cost and
// OutgoingInterface are host-order integers.
type Entry struct {
	Subnet            uint32
	Mask              uint32
	NextHopIP         uint32
	OutgoingInterface uint32
	Cost              uint32
	LastUpdatedMS     int64
	IsGarbage         bool
}

// Key uniquely identifies a table entry (spec invariant 3).
type Key struct {
	Subnet uint32
	Mask   uint32
}

func keyOf(e *Entry) Key { return Key{Subnet: e.Subnet, Mask: e.Mask} }

// Table is the engine's routing table. It is not safe for concurrent
// use on its own — the protocol engine serializes all access under its
// recursive lock (spec §5), so Table keeps no internal locking.
type Table struct {
	entries   map[Key]*Entry
	order     []*Entry
	reachable *bart.Table[*Entry]
}

// New returns an empty Table.
func New() *Table {
	return &Table{
		entries:   make(map[Key]*Entry),
		reachable: new(bart.Table[*Entry]),
	}
}

// Insert appends a new entry. The caller guarantees (subnet, mask) is
// not already present (spec §4.3 insert: "caller guarantees no
// duplicate key").
func (t *Table) Insert(e *Entry) {
	k := keyOf(e)
	t.entries[k] = e
	t.order = append(t.order, e)
	t.syncReachable(e)
}

// Find performs an exact (subnet, mask) lookup.
func (t *Table) Find(subnet, mask uint32) (*Entry, bool) {
	e, ok := t.entries[Key{Subnet: subnet, Mask: mask}]
	return e, ok
}

// All returns every entry in insertion order. The returned slice shares
// entry pointers with the table; callers may mutate an entry in place
// but must call Refresh afterward if Cost changed, so the
// longest-prefix-match index stays consistent.
func (t *Table) All() []*Entry {
	return t.order
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return len(t.order)
}

// Refresh re-synchronizes the longest-prefix-match index after e's Cost
// has been mutated in place. It must be called whenever a caller
// changes Cost on an entry obtained from Find or All.
func (t *Table) Refresh(e *Entry) {
	t.syncReachable(e)
}

// Delete removes the entry keyed by (subnet, mask), if present. The
// core spec's base behavior never removes entries (§3 Lifecycle); this
// exists only to support the optional garbage-collection pass described
// in SPEC_FULL.md §5 item 1, gated by configuration and unused unless
// that feature is enabled.
func (t *Table) Delete(subnet, mask uint32) {
	k := Key{Subnet: subnet, Mask: mask}
	e, ok := t.entries[k]
	if !ok {
		return
	}
	delete(t.entries, k)
	for i, o := range t.order {
		if o == e {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.reachable.Delete(prefixOf(e.Subnet, e.Mask))
}

// syncReachable keeps the bart-backed LPM index containing exactly the
// entries with Cost < Infinity, since lookup() must exclude unreachable
// entries (spec §4.3) but the table itself retains them (spec §3
// Lifecycle).
func (t *Table) syncReachable(e *Entry) {
	pfx := prefixOf(e.Subnet, e.Mask)
	if e.Cost < Infinity {
		t.reachable.Insert(pfx, e)
	} else {
		t.reachable.Delete(pfx)
	}
}

// Lookup performs longest-prefix-match next-hop resolution (spec
// §4.3): select the entry whose subnet equals ip & mask, maximizing
// mask as an unsigned integer, excluding entries with cost == 16. If
// none matches, returns the sentinel (interface=0, next_hop=0xFFFFFFFF)
// per spec §6.
func (t *Table) Lookup(ip uint32) (outgoingInterface uint32, nextHop uint32) {
	addr := addrOf(ip)
	e, ok := t.reachable.Lookup(addr)
	if !ok {
		return 0, 0xFFFFFFFF
	}
	return e.OutgoingInterface, e.NextHopIP
}

func addrOf(ip uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)})
}

// maskLen converts a contiguous subnet mask to a CIDR prefix length.
func maskLen(mask uint32) int {
	return bits.OnesCount32(mask)
}

func prefixOf(subnet, mask uint32) netip.Prefix {
	return netip.PrefixFrom(addrOf(subnet), maskLen(mask))
}
