package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/net/ipv4"
)

// MulticastAddr is the RIP multicast destination (spec §3, §4.5.6).
const MulticastAddr uint32 = 0xE0000009 // 224.0.0.9

// MulticastPort is the well-known RIP UDP port.
const MulticastPort = 520

// InterfaceResolver maps an outgoing_interface index (spec §3: "index
// into the host interface array") to the real host network interface
// to send on or that a packet arrived on.
type InterfaceResolver interface {
	Count() int
	NameAt(index int) string
}

// UDPTransport is a Sender and Listener pair bound to one multicast UDP
// socket, joined to 224.0.0.9:520 on every interface the resolver
// knows about. Grounded on the teacher's listener-bootstrap idiom
// (internal/runtime/run.go), generalized from a unix socket to
// multicast UDP via golang.org/x/net/ipv4.PacketConn.
type UDPTransport struct {
	conn     *ipv4.PacketConn
	resolver InterfaceResolver
	log      *slog.Logger
}

// NewUDPTransport opens a UDP socket on MulticastPort and wraps it for
// multicast send/receive. The caller must call JoinAll after
// constructing an interface provider so inbound multicast traffic is
// accepted.
func NewUDPTransport(resolver InterfaceResolver, log *slog.Logger) (*UDPTransport, error) {
	if log == nil {
		log = slog.Default()
	}
	pc, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", MulticastPort))
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp4: %w", err)
	}
	conn := ipv4.NewPacketConn(pc)
	if err := conn.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		return nil, fmt.Errorf("transport: enable control messages: %w", err)
	}
	return &UDPTransport{conn: conn, resolver: resolver, log: log}, nil
}

// JoinAll joins the RIP multicast group on every interface named by the
// resolver between indices [0, count).
func (t *UDPTransport) JoinAll(count int) error {
	group := &net.UDPAddr{IP: uint32ToIP(MulticastAddr)}
	for i := 0; i < count; i++ {
		name := t.resolver.NameAt(i)
		if name == "" {
			continue
		}
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			t.log.Warn("transport: resolve interface for multicast join failed", "name", name, "err", err)
			continue
		}
		if err := t.conn.JoinGroup(ifi, group); err != nil {
			t.log.Warn("transport: join multicast group failed", "name", name, "err", err)
		}
	}
	return nil
}

// Send implements Sender. The datagram is sent to dstIP on
// MulticastPort; nextHopIP is accepted per the injected-sender contract
// (spec §6) but unused. outgoingInterface selects which host link the
// datagram egresses.
func (t *UDPTransport) Send(dstIP, nextHopIP uint32, outgoingInterface uint32, payload []byte) error {
	name := t.resolver.NameAt(int(outgoingInterface))
	if name == "" {
		metricSendErrors.WithLabelValues("unknown").Inc()
		return fmt.Errorf("transport: no interface at index %d", outgoingInterface)
	}
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		metricSendErrors.WithLabelValues(name).Inc()
		return fmt.Errorf("transport: resolve interface %q: %w", name, err)
	}
	if err := t.conn.SetMulticastInterface(ifi); err != nil {
		metricSendErrors.WithLabelValues(name).Inc()
		return fmt.Errorf("transport: set multicast interface %q: %w", name, err)
	}
	dst := &net.UDPAddr{IP: uint32ToIP(dstIP), Port: MulticastPort}
	_, err = t.conn.WriteTo(payload, nil, dst)
	if err != nil {
		metricSendErrors.WithLabelValues(name).Inc()
		return fmt.Errorf("transport: write to %s via %q: %w", dst, name, err)
	}
	return nil
}

// Serve implements Listener: reads inbound datagrams and dispatches
// them to handle, resolving the arrival interface index via the
// control message's interface index. Unresolvable arrival interfaces
// are dropped (the engine treats disabled/unknown interfaces as a
// silent drop too, spec §7).
func (t *UDPTransport) Serve(ctx context.Context, handle PacketHandler) error {
	go func() {
		<-ctx.Done()
		t.conn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, cm, src, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("transport: read: %w", err)
		}
		metricDatagramsReceived.Inc()
		udpSrc, ok := src.(*net.UDPAddr)
		if !ok || udpSrc.IP.To4() == nil {
			continue
		}
		if cm == nil {
			continue
		}
		name, err := netInterfaceNameByIndex(cm.IfIndex)
		if err != nil {
			t.log.Warn("transport: resolve arrival interface failed", "ifindex", cm.IfIndex, "err", err)
			continue
		}
		idx, ok := t.indexOf(name)
		if !ok {
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		handle(ipToUint32(udpSrc.IP.To4()), uint32(idx), payload)
	}
}

func (t *UDPTransport) indexOf(name string) (int, bool) {
	for i := 0; i < t.resolver.Count(); i++ {
		if t.resolver.NameAt(i) == name {
			return i, true
		}
	}
	return 0, false
}

func netInterfaceNameByIndex(ifIndex int) (string, error) {
	ifi, err := net.InterfaceByIndex(ifIndex)
	if err != nil {
		return "", err
	}
	return ifi.Name, nil
}

func uint32ToIP(v uint32) net.IP {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return net.IP(b)
}

func ipToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return binary.BigEndian.Uint32(ip4)
}
