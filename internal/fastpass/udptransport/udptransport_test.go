package udptransport

import (
	"net"
	"testing"
	"time"
)

func TestPeerTransportRoundTrip(t *testing.T) {
	serverSock, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer serverSock.Close()

	received := make(chan []byte, 1)
	go serverSock.ReadLoop(func(data []byte, from *net.UDPAddr) {
		received <- data
	})

	clientSock, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen (client): %v", err)
	}
	defer clientSock.Close()

	peer := NewPeerTransport(clientSock, serverSock.LocalAddr().(*net.UDPAddr))
	if err := peer.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Fatalf("got %q, want %q", data, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}
