package comms

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/gridsense/fieldlink/internal/secrets"
	"github.com/gridsense/fieldlink/internal/security"
	"github.com/gridsense/fieldlink/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGateway(t *testing.T) *Gateway {
	t.Helper()
	mat, err := secrets.Generate()
	if err != nil {
		t.Fatalf("generating material: %v", err)
	}
	sec, err := security.NewContext(mat)
	if err != nil {
		t.Fatalf("security context: %v", err)
	}
	return NewGateway(sec, testLogger())
}

func TestForward_Local(t *testing.T) {
	g := testGateway(t)
	payload := []byte(`{"agent_id":"ace-pz-04","measured_value":247.3}`)

	env, err := g.Forward(payload, types.DestinationLocal)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if env.Protocol != ProtocolRelay {
		t.Errorf("protocol = %q, want %q", env.Protocol, ProtocolRelay)
	}
	want := RelayTag + string(payload)
	if string(env.Payload) != want {
		t.Errorf("payload = %q, want %q", env.Payload, want)
	}
}

func TestForward_Remote(t *testing.T) {
	g := testGateway(t)
	payload := []byte(`{"agent_id":"ace-pz-04"}`)

	env, err := g.Forward(payload, types.DestinationRemote)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if env.Protocol != ProtocolSecured {
		t.Errorf("protocol = %q, want %q", env.Protocol, ProtocolSecured)
	}
	if bytes.Contains(env.Payload, payload) {
		t.Error("secured envelope carries the payload in the clear")
	}
	if strings.Contains(string(env.Payload), RelayTag) {
		t.Error("secured envelope carries the relay tag in the clear")
	}
}

func TestForward_UnknownDestination(t *testing.T) {
	g := testGateway(t)

	env, err := g.Forward([]byte("x"), types.Destination("broadcast"))
	if env != nil {
		t.Error("envelope produced for unsupported destination")
	}
	if !errors.Is(err, ErrUnsupportedDestination) {
		t.Fatalf("error %v is not ErrUnsupportedDestination", err)
	}
}

func TestForwardReceive_RoundTrip(t *testing.T) {
	g := testGateway(t)

	payloads := [][]byte{
		[]byte(`{"report_id":"r1","measured_value":251.8}`),
		[]byte(""),
		[]byte("non-json free text"),
	}
	dests := []types.Destination{types.DestinationLocal, types.DestinationRemote}

	for _, payload := range payloads {
		for _, dest := range dests {
			env, err := g.Forward(payload, dest)
			if err != nil {
				t.Fatalf("Forward(%q, %s): %v", payload, dest, err)
			}
			got, err := g.Receive(env)
			if err != nil {
				t.Fatalf("Receive(%s): %v", dest, err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("round trip via %s gave %q, want %q", dest, got, payload)
			}
		}
	}
}

func TestReceive_BadToken(t *testing.T) {
	g := testGateway(t)

	env := &types.Envelope{Protocol: ProtocolSecured, Payload: []byte("%%% not a token %%%")}
	if _, err := g.Receive(env); !errors.Is(err, security.ErrBadToken) {
		t.Fatalf("expected ErrBadToken, got %v", err)
	}
}

func TestReceive_MissingRelayTag(t *testing.T) {
	g := testGateway(t)

	env := &types.Envelope{Protocol: ProtocolRelay, Payload: []byte("no tag here")}
	if _, err := g.Receive(env); !errors.Is(err, security.ErrBadToken) {
		t.Fatalf("expected ErrBadToken, got %v", err)
	}
}

func TestReceive_UnknownProtocol(t *testing.T) {
	g := testGateway(t)

	env := &types.Envelope{Protocol: "Zigbee", Payload: []byte("x")}
	if _, err := g.Receive(env); err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}

func TestReceive_ForeignKeyFails(t *testing.T) {
	sender := testGateway(t)
	receiver := testGateway(t)

	env, err := sender.Forward([]byte(`{"agent_id":"a"}`), types.DestinationRemote)
	if err != nil {
		t.Fatal(err)
	}

	// A receiver with different key material cannot recover the relay tag,
	// so the payload is rejected as a bad token.
	if _, err := receiver.Receive(env); !errors.Is(err, security.ErrBadToken) {
		t.Fatalf("expected ErrBadToken under a foreign key, got %v", err)
	}
}
