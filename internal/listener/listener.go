// Package listener receives Speedwire datagrams from the meter's UDP
// multicast group.
package listener

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// maxDatagram comfortably covers the largest Energy Meter frame (~600
// bytes).
const maxDatagram = 1024

// Handler receives one raw datagram. The buffer belongs to the handler;
// the listener never reuses it.
type Handler func(datagram []byte)

// Listener joins a multicast group and delivers datagrams to a handler.
type Listener struct {
	group net.IP
	port  int
	ifi   *net.Interface
}

// New validates the group address and resolves the optional interface
// name. It does not open the socket; Run does.
func New(group string, port int, ifname string) (*Listener, error) {
	ip := net.ParseIP(group)
	if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("invalid multicast group %q", group)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	l := &Listener{group: ip.To4(), port: port}
	if ifname != "" {
		ifi, err := net.InterfaceByName(ifname)
		if err != nil {
			return nil, fmt.Errorf("multicast interface %q: %w", ifname, err)
		}
		l.ifi = ifi
	}
	return l, nil
}

// Run binds the socket, joins the group, and blocks delivering datagrams
// until ctx is cancelled. Cancellation closes the socket and returns nil;
// any other receive failure is returned.
func (l *Listener) Run(ctx context.Context, handle Handler) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: l.port})
	if err != nil {
		return fmt.Errorf("bind udp port %d: %w", l.port, err)
	}
	defer conn.Close()

	packet := ipv4.NewPacketConn(conn)
	groupAddr := &net.UDPAddr{IP: l.group}
	if err := packet.JoinGroup(l.ifi, groupAddr); err != nil {
		return fmt.Errorf("join multicast group %s: %w", l.group, err)
	}
	defer packet.LeaveGroup(l.ifi, groupAddr)

	// Unblock the read when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive datagram: %w", err)
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		handle(datagram)
	}
}
