package wire_test

import (
	"testing"

	"github.com/ripdaemon/ripd/internal/wire"
)

func TestEntryRoundTrip(t *testing.T) {
	e := wire.Entry{
		AddressFamily: wire.AddressFamilyIPv4,
		IP:            0x0A000100,
		SubnetMask:    0xFFFFFF00,
		NextHop:       0x0A000002,
		Metric:        6,
	}
	buf, err := e.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(buf) != wire.EntryLen {
		t.Fatalf("expected %d bytes, got %d", wire.EntryLen, len(buf))
	}
	got := wire.UnmarshalEntry(buf)
	if got != e {
		t.Fatalf("round trip mismatch: want %+v, got %+v", e, got)
	}
}

func TestDecodeEntriesDiscardsTrailingBytes(t *testing.T) {
	entries := []wire.Entry{
		{AddressFamily: 2, IP: 1, SubnetMask: 2, NextHop: 3, Metric: 4},
		{AddressFamily: 2, IP: 5, SubnetMask: 6, NextHop: 7, Metric: 8},
	}
	buf := wire.EncodeEntries(entries)
	buf = append(buf, 0x01, 0x02, 0x03) // short trailing remainder

	got := wire.DecodeEntries(buf)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	for i := range entries {
		if got[i] != entries[i] {
			t.Fatalf("entry %d mismatch: want %+v, got %+v", i, entries[i], got[i])
		}
	}
}

func TestDecodeEntriesShorterThanOneEntry(t *testing.T) {
	got := wire.DecodeEntries([]byte{0x01, 0x02, 0x03})
	if got != nil {
		t.Fatalf("expected no entries, got %v", got)
	}
}

func TestDecodeEntriesIgnoresHeader(t *testing.T) {
	// The core's read path treats the whole buffer as entries, with no
	// header skipped — a 4-byte header prefix is just consumed as the
	// first 4 bytes of whatever entry happens to start there.
	h := wire.Header{Command: wire.CommandResponse, Version: wire.Version}
	hb, _ := h.MarshalBinary()
	entry := wire.Entry{AddressFamily: 2, IP: 10, SubnetMask: 20, NextHop: 30, Metric: 1}
	eb, _ := entry.MarshalBinary()

	buf := append(hb, eb...)
	got := wire.DecodeEntries(buf)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 entry from header+entry buffer, got %d", len(got))
	}
	if got[0] == entry {
		t.Fatalf("expected the header bytes to shift entry decoding, not align with entry boundaries")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := wire.Header{Command: wire.CommandRequest, Version: wire.Version}
	buf, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	got, ok := wire.UnmarshalHeader(buf)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got != h {
		t.Fatalf("round trip mismatch: want %+v, got %+v", h, got)
	}
}
