package comms

import (
	"context"
	"log/slog"

	"github.com/gridsense/fieldlink/pkg/types"
)

// ProtocolBLE identifies the short-range link.
const ProtocolBLE = "BLE"

// EnvelopeHandler receives envelopes delivered over a short-range link.
type EnvelopeHandler func(env *types.Envelope)

// BLETransport is the short-range link. Range is a few meters, so delivery
// is in-process: envelopes go straight to a registered handler, typically
// the orchestrator's intake on the same gateway device.
type BLETransport struct {
	handler EnvelopeHandler
	logger  *slog.Logger
}

// NewBLETransport creates a short-range transport delivering to handler.
// A nil handler drops envelopes after logging, which is useful for field
// tests without a paired receiver.
func NewBLETransport(handler EnvelopeHandler, logger *slog.Logger) *BLETransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &BLETransport{
		handler: handler,
		logger:  logger.With("component", "ble_transport"),
	}
}

// Protocol returns "BLE".
func (t *BLETransport) Protocol() string { return ProtocolBLE }

// Send delivers the envelope to the paired handler.
func (t *BLETransport) Send(ctx context.Context, env *types.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.handler == nil {
		t.logger.Debug("no paired receiver, dropping envelope",
			"protocol", env.Protocol,
			"bytes", len(env.Payload))
		return nil
	}

	t.handler(env)
	t.logger.Debug("envelope delivered",
		"protocol", env.Protocol,
		"bytes", len(env.Payload))
	return nil
}
