// Package comms turns raw report payloads into transport-ready envelopes
// and delivers them over one of several interchangeable links.
//
// # Forward Path
//
// Every payload is first prefixed with the relay tag, emulating hand-off
// from the short-range link to the long-range one. Remote deliveries are
// then obfuscated and encrypted by the security context; local deliveries
// go out relay-tagged in the clear. The inverse path (Receive) mirrors this
// exactly, so Forward→Receive is lossless for any payload.
package comms

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gridsense/fieldlink/internal/security"
	"github.com/gridsense/fieldlink/pkg/types"
)

// RelayTag is the fixed prefix marking payloads encapsulated for the
// long-range relay hop.
const RelayTag = "LORA:"

// Protocol names stamped on envelopes.
const (
	// ProtocolRelay marks a relay-tagged plaintext envelope.
	ProtocolRelay = "LoRaWAN"
	// ProtocolSecured marks an obfuscated-then-encrypted envelope.
	ProtocolSecured = "GibberLink+AES256"
)

// ErrUnsupportedDestination marks a Forward call with a destination outside
// the defined set. No envelope is produced.
var ErrUnsupportedDestination = errors.New("unsupported destination")

// Gateway encapsulates raw payloads for delivery. It holds the security
// context by injection; it never reaches for global state.
type Gateway struct {
	sec    *security.Context
	logger *slog.Logger
}

// NewGateway creates a gateway using the given security context.
func NewGateway(sec *security.Context, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		sec:    sec,
		logger: logger.With("component", "gateway"),
	}
}

// Forward produces a transport envelope for the payload.
//
// The payload is always relay-tagged. DestinationRemote additionally
// applies Obfuscate then Encrypt and stamps the combined protocol name;
// DestinationLocal sends the tagged payload in the clear. Any other
// destination fails with ErrUnsupportedDestination.
func (g *Gateway) Forward(payload []byte, dest types.Destination) (*types.Envelope, error) {
	relayed := make([]byte, 0, len(RelayTag)+len(payload))
	relayed = append(relayed, RelayTag...)
	relayed = append(relayed, payload...)

	switch dest {
	case types.DestinationRemote:
		token, err := g.sec.Encrypt(g.sec.Obfuscate(relayed))
		if err != nil {
			return nil, fmt.Errorf("securing payload: %w", err)
		}
		g.logger.Debug("payload secured",
			"bytes_in", len(payload),
			"token_len", len(token))
		return &types.Envelope{Protocol: ProtocolSecured, Payload: []byte(token)}, nil

	case types.DestinationLocal:
		return &types.Envelope{Protocol: ProtocolRelay, Payload: relayed}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDestination, dest)
	}
}

// Receive is the symmetric inverse of Forward: decrypt, deobfuscate, strip
// the relay tag, yielding the original payload.
func (g *Gateway) Receive(env *types.Envelope) ([]byte, error) {
	switch env.Protocol {
	case ProtocolSecured:
		plain, err := g.sec.Decrypt(string(env.Payload))
		if err != nil {
			return nil, err
		}
		return stripRelayTag(g.sec.Deobfuscate(plain))

	case ProtocolRelay:
		return stripRelayTag(env.Payload)

	default:
		return nil, fmt.Errorf("unknown envelope protocol %q", env.Protocol)
	}
}

// stripRelayTag removes the relay prefix. A payload without it did not come
// through Forward and is treated as a bad token.
func stripRelayTag(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte(RelayTag)) {
		return nil, fmt.Errorf("%w: missing relay tag", security.ErrBadToken)
	}
	return data[len(RelayTag):], nil
}
