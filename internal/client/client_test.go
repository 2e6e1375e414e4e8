package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/polycall-go/polycall/internal/auth"
	"github.com/polycall-go/polycall/internal/protocol"
	"github.com/polycall-go/polycall/internal/protocol/session"
	"github.com/polycall-go/polycall/internal/testutil/testlog"
	"github.com/polycall-go/polycall/internal/transport"
)

// runFakeServer drives the server side of the connection lifecycle over
// conn: answers the client's HANDSHAKE, accepts any AUTH whose token is
// "good", then echoes every COMMAND payload back as a RESPONSE.
func runFakeServer(t *testing.T, conn net.Conn) {
	t.Helper()
	cfg := session.DefaultConfig()
	srv, err := protocol.NewContext(conn, cfg, protocol.Callbacks{
		OnAuthRequest: protocol.TokenAuth(auth.StaticToken{Token: "good"}),
		OnCommand: func(c *protocol.Context, payload []byte) ([]byte, error) {
			return payload, nil
		},
	})
	if err != nil {
		t.Errorf("server new context: %v", err)
		return
	}
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if err := srv.Feed(buf[:n]); err != nil {
			return
		}
	}
}

func TestClientConnectsAuthenticatesAndSendsCommand(t *testing.T) {
	testlog.Start(t)

	clientConn, serverConn := net.Pipe()
	go runFakeServer(t, serverConn)

	cfg := DefaultConfig("unused")
	cfg.Credentials = protocol.EncodeAuthToken("good")
	c := New(cfg)
	c.dial = func(addr string, timeout time.Duration) (transport.Stream, error) {
		return clientConn, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- c.Run(ctx) }()

	entry, _, err := c.SendCommand([]byte("ping"))
	if err != nil {
		t.Fatalf("send command: %v", err)
	}
	payload, err := entry.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(payload) != "ping" {
		t.Fatalf("got %q, want %q", payload, "ping")
	}

	c.Shutdown()
	select {
	case <-runErrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestClientQueuesCommandsBeforeConnected(t *testing.T) {
	testlog.Start(t)

	clientConn, serverConn := net.Pipe()

	cfg := DefaultConfig("unused")
	cfg.Credentials = protocol.EncodeAuthToken("good")
	c := New(cfg)

	dialed := make(chan struct{})
	c.dial = func(addr string, timeout time.Duration) (transport.Stream, error) {
		close(dialed)
		return clientConn, nil
	}

	done := make(chan struct{})
	sendResultCh := make(chan error, 1)
	go func() {
		_, _, err := c.SendCommand([]byte("queued"))
		sendResultCh <- err
		close(done)
	}()

	// SendCommand should be blocked in the queue until a connection exists.
	select {
	case <-done:
		t.Fatal("SendCommand returned before any connection was established")
	case <-time.After(50 * time.Millisecond):
	}
	if c.QueueLen() != 1 {
		t.Fatalf("expected 1 queued command, got %d", c.QueueLen())
	}

	go runFakeServer(t, serverConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- c.Run(ctx) }()

	<-dialed
	select {
	case err := <-sendResultCh:
		if err != nil {
			t.Fatalf("queued send: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued command never flushed")
	}

	c.Shutdown()
	select {
	case <-runErrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}
