// Package udptransport is the datagram collaborator the session
// package's Transport interface expects, grounded on the same
// buffered-UDP-socket shape as internal/quantum/transport.Conn but
// sized for fixed-size control datagrams (no read-timeout deadline
// loop, no packet struct wrapping a parsed header -- session.Receive
// does its own parsing).
package udptransport

import (
	"errors"
	"fmt"
	"net"
)

const (
	// DefaultReadBufferSize matches the OS socket buffer sizing the
	// teacher's transport.Conn uses for its UDP sockets.
	DefaultReadBufferSize  = 2 * 1024 * 1024
	DefaultWriteBufferSize = 2 * 1024 * 1024

	// maxDatagramSize is generous headroom over any RESET+AREQ or
	// ALLOC payload this protocol emits (§6).
	maxDatagramSize = 2048
)

// Socket is one UDP socket shared by every peer a daemon talks to --
// an arbiter listens on it for many endpoints, an endpoint dials it to
// one arbiter.
type Socket struct {
	conn *net.UDPConn
}

// Listen opens a UDP socket bound to address, for a daemon (typically
// the arbiter) that expects datagrams from many peers.
func Listen(address string) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("udptransport: resolve %q: %w", address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udptransport: listen %q: %w", address, err)
	}
	if err := tuneBuffers(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Socket{conn: conn}, nil
}

func tuneBuffers(conn *net.UDPConn) error {
	if err := conn.SetReadBuffer(DefaultReadBufferSize); err != nil {
		return fmt.Errorf("udptransport: set read buffer: %w", err)
	}
	if err := conn.SetWriteBuffer(DefaultWriteBufferSize); err != nil {
		return fmt.Errorf("udptransport: set write buffer: %w", err)
	}
	return nil
}

// Close releases the underlying socket.
func (s *Socket) Close() error { return s.conn.Close() }

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// ReadLoop blocks reading datagrams off the socket, invoking handle
// with each payload and its sender, until the socket is closed (at
// which point it returns nil).
func (s *Socket) ReadLoop(handle func(data []byte, from *net.UDPAddr)) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udptransport: read: %w", err)
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		handle(cp, from)
	}
}

// PeerTransport adapts one (Socket, peer address) pair to
// session.Transport -- each tracked endpoint session on an arbiter
// gets its own PeerTransport over the arbiter's single shared socket.
type PeerTransport struct {
	sock *Socket
	peer *net.UDPAddr
}

// NewPeerTransport builds a PeerTransport for sending to peer over
// sock.
func NewPeerTransport(sock *Socket, peer *net.UDPAddr) *PeerTransport {
	return &PeerTransport{sock: sock, peer: peer}
}

// Send implements session.Transport.
func (t *PeerTransport) Send(data []byte) error {
	_, err := t.sock.conn.WriteToUDP(data, t.peer)
	if err != nil {
		return fmt.Errorf("udptransport: write to %s: %w", t.peer, err)
	}
	return nil
}
