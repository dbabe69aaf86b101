// Package wire implements the fixed-layout advertisement packet codec
// (spec §4.4): a 4-byte header and a contiguous array of 20-byte route
// entries, both explicitly serialized field-by-field in network byte
// order — never cast from memory.
package wire

import "encoding/binary"

const (
	// HeaderLen is the size in bytes of an advertisement header.
	HeaderLen = 4
	// EntryLen is the size in bytes of a single advertisement entry.
	EntryLen = 20

	// CommandRequest marks an advertisement requesting the peer's table.
	CommandRequest = 1
	// CommandResponse marks an advertisement carrying route entries.
	CommandResponse = 2

	// Version is the only advertisement version this codec emits or
	// expects.
	Version = 2

	// AddressFamilyIPv4 is the address_family value for IPv4 entries.
	AddressFamilyIPv4 = 2
)

// Header is the 4-byte advertisement header.
type Header struct {
	Command byte
	Version byte
}

// MarshalBinary encodes h as 4 bytes: command, version, 2 bytes of zero
// padding.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderLen)
	buf[0] = h.Command
	buf[1] = h.Version
	return buf, nil
}

// UnmarshalHeader decodes the first 4 bytes of buf as a Header. It does
// not validate length beyond requiring at least HeaderLen bytes.
func UnmarshalHeader(buf []byte) (Header, bool) {
	if len(buf) < HeaderLen {
		return Header{}, false
	}
	return Header{Command: buf[0], Version: buf[1]}, true
}

// Entry is a single 20-byte advertisement entry. IP, SubnetMask, and
// NextHop are 32-bit IPv4 addresses; arithmetic on them (masking,
// equality) is byte-order invariant, but the numeric longest-prefix
// comparison used by the routing table requires the canonical
// big-endian-decoded value this codec produces, not a raw host-endian
// reinterpretation of the wire bytes.
type Entry struct {
	AddressFamily uint16
	IP            uint32
	SubnetMask    uint32
	NextHop       uint32
	Metric        uint32
}

// MarshalBinary encodes e as 20 bytes in network byte order.
func (e Entry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, EntryLen)
	binary.BigEndian.PutUint16(buf[0:2], e.AddressFamily)
	// buf[2:4] left zero (pad).
	binary.BigEndian.PutUint32(buf[4:8], e.IP)
	binary.BigEndian.PutUint32(buf[8:12], e.SubnetMask)
	binary.BigEndian.PutUint32(buf[12:16], e.NextHop)
	binary.BigEndian.PutUint32(buf[16:20], e.Metric)
	return buf, nil
}

// UnmarshalEntry decodes the first EntryLen bytes of buf into an Entry.
// It requires len(buf) >= EntryLen.
func UnmarshalEntry(buf []byte) Entry {
	return Entry{
		AddressFamily: binary.BigEndian.Uint16(buf[0:2]),
		IP:            binary.BigEndian.Uint32(buf[4:8]),
		SubnetMask:    binary.BigEndian.Uint32(buf[8:12]),
		NextHop:       binary.BigEndian.Uint32(buf[12:16]),
		Metric:        binary.BigEndian.Uint32(buf[16:20]),
	}
}

// EncodeEntries serializes entries as a contiguous array with no
// header, matching the core's outbound wire format (§4.4: "Outbound
// advertisements are emitted as a contiguous array of entries").
func EncodeEntries(entries []Entry) []byte {
	buf := make([]byte, 0, len(entries)*EntryLen)
	for _, e := range entries {
		eb, _ := e.MarshalBinary()
		buf = append(buf, eb...)
	}
	return buf
}

// DecodeEntries treats buf as a contiguous sequence of entry structures
// only, with no leading header. This is the core's payload-handling
// compatibility quirk (§4.4, §9-3): entry count is len(buf)/EntryLen,
// trailing bytes that don't complete an entry are discarded silently.
func DecodeEntries(buf []byte) []Entry {
	n := len(buf) / EntryLen
	if n == 0 {
		return nil
	}
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = UnmarshalEntry(buf[i*EntryLen : (i+1)*EntryLen])
	}
	return entries
}
