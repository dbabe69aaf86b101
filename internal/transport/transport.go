// Package transport implements the sender collaborator the protocol
// engine is injected with (spec §6) and the inbound multicast listener
// that feeds handle_packet, using golang.org/x/net/ipv4 multicast UDP
// to the RIP group 224.0.0.9.
package transport

import "context"

// Sender is the injected collaborator through which the engine emits
// advertisements (spec §6): "send(dst_ip, next_hop_ip,
// outgoing_interface, payload_bytes, length) — transmits an opaque
// payload; both IPs are in network byte order." The core never retains
// payload after Send returns (spec §5 Resource discipline), so
// implementations must not retain it either.
type Sender interface {
	Send(dstIP, nextHopIP uint32, outgoingInterface uint32, payload []byte) error
}

// PacketHandler is the shape of the protocol engine method that
// consumes inbound advertisements, matching handle_packet's signature
// (spec §4.5.3) minus the locking, which is the engine's concern.
type PacketHandler func(senderIP uint32, arrivalInterface uint32, payload []byte)

// Listener delivers inbound advertisements to a PacketHandler until ctx
// is cancelled.
type Listener interface {
	Serve(ctx context.Context, handle PacketHandler) error
}
