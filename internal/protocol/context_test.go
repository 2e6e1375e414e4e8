package protocol

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/polycall-go/polycall/internal/protocol/frame"
	"github.com/polycall-go/polycall/internal/protocol/session"
	"github.com/polycall-go/polycall/internal/testutil/testlog"
)

func pairedContexts(t *testing.T, serverCB, clientCB Callbacks) (*Context, *Context) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	cfg := session.DefaultConfig()

	srv, err := NewContext(serverConn, cfg, serverCB)
	if err != nil {
		t.Fatalf("server NewContext: %v", err)
	}
	cli, err := NewContext(clientConn, cfg, clientCB)
	if err != nil {
		t.Fatalf("client NewContext: %v", err)
	}

	pump := func(c *Context) {
		buf := make([]byte, 4096)
		for {
			n, err := c.ReadTransport(buf)
			if err != nil {
				return
			}
			if err := c.Feed(buf[:n]); err != nil {
				return
			}
		}
	}
	go pump(srv)
	go pump(cli)
	return srv, cli
}

func waitForState(t *testing.T, c *Context, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state=%s, want=%s", c.State(), want)
}

func TestHandshakeAuthCommandRoundTrip(t *testing.T) {
	testlog.Start(t)

	srv, cli := pairedContexts(t, Callbacks{
		OnAuthRequest: TokenAuth(stubValidator{token: "good"}),
		OnCommand: func(c *Context, payload []byte) ([]byte, error) {
			return append([]byte("echo:"), payload...), nil
		},
	}, Callbacks{})
	defer srv.Close()
	defer cli.Close()

	if err := cli.BeginHandshake(); err != nil {
		t.Fatalf("begin handshake: %v", err)
	}
	waitForState(t, cli, StateAuth)
	waitForState(t, srv, StateAuth)

	if _, err := cli.SendAuth(EncodeAuthToken("good")); err != nil {
		t.Fatalf("send auth: %v", err)
	}
	waitForState(t, cli, StateReady)
	waitForState(t, srv, StateReady)

	entry, _, err := cli.SendCommand([]byte("hi"))
	if err != nil {
		t.Fatalf("send command: %v", err)
	}
	payload, err := entry.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(payload) != "echo:hi" {
		t.Fatalf("payload=%q want=echo:hi", payload)
	}
}

func TestAuthRejectionKeepsConnectionInAuthState(t *testing.T) {
	testlog.Start(t)

	srv, cli := pairedContexts(t, Callbacks{
		OnAuthRequest: TokenAuth(stubValidator{token: "good"}),
	}, Callbacks{})
	defer srv.Close()
	defer cli.Close()

	if err := cli.BeginHandshake(); err != nil {
		t.Fatalf("begin handshake: %v", err)
	}
	waitForState(t, cli, StateAuth)

	if _, err := cli.SendAuth(EncodeAuthToken("wrong")); err != nil {
		t.Fatalf("send auth: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if srv.State() != StateAuth {
		t.Fatalf("server state=%s, want=auth (rejected credentials should not advance)", srv.State())
	}
}

func TestCommandBeforeReadyIsProtocolViolation(t *testing.T) {
	testlog.Start(t)

	clientConn, serverConn := net.Pipe()
	cfg := session.DefaultConfig()
	srv, err := NewContext(serverConn, cfg, Callbacks{
		OnAuthRequest: TokenAuth(stubValidator{token: "good"}),
	})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer srv.Close()
	defer clientConn.Close()

	// A COMMAND frame arriving while the server is still in INIT is
	// illegal; the raw encode bypasses the client FSM entirely.
	wire := frame.Encode(frame.TypeCommand, 0, 1, []byte("ping"))
	go func() { _, _ = clientConn.Write(wire) }()

	buf := make([]byte, 64)
	n, err := srv.ReadTransport(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := srv.Feed(buf[:n]); err == nil {
		t.Fatalf("expected protocol violation feeding COMMAND before READY")
	}
	waitForState(t, srv, StateError)
}

func TestPendingCommandTimesOutWithoutResponse(t *testing.T) {
	testlog.Start(t)

	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()
	cfg := session.DefaultConfig()
	cfg.ResponseTimeout = 20 * time.Millisecond

	cli, err := NewContext(clientConn, cfg, Callbacks{})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer cli.Close()

	// Nothing ever reads on the server side, so the COMMAND is sent but
	// never answered; the timeout must fire on its own.
	go func() {
		buf := make([]byte, 64)
		serverConn.Read(buf)
	}()

	entry, _, err := cli.SendCommand([]byte("ping"))
	if err != nil {
		t.Fatalf("send command: %v", err)
	}
	_, err = entry.Wait()
	if !errors.Is(err, session.ErrTimeout) {
		t.Fatalf("expected session.ErrTimeout, got %v", err)
	}
}

func TestVerifyIntegrityCleanAfterTransitions(t *testing.T) {
	testlog.Start(t)

	srv, cli := pairedContexts(t, Callbacks{
		OnAuthRequest: TokenAuth(stubValidator{token: "good"}),
	}, Callbacks{})
	defer srv.Close()
	defer cli.Close()

	if err := cli.BeginHandshake(); err != nil {
		t.Fatalf("begin handshake: %v", err)
	}
	waitForState(t, cli, StateAuth)

	if err := cli.VerifyIntegrity(); err != nil {
		t.Fatalf("unexpected integrity failure: %v", err)
	}
}

type stubValidator struct {
	token string
}

func (v stubValidator) Validate(token string) error {
	if token != v.token {
		return errors.New("bad token")
	}
	return nil
}
