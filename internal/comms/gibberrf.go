package comms

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gridsense/fieldlink/pkg/types"
)

// ProtocolGibberRF identifies the custom UHF/VHF RF link.
const ProtocolGibberRF = "GibberLink-RF"

// gibberFramePreamble opens every frame on the wire.
const gibberFramePreamble = "GBRF1"

// GibberRFTransport writes envelopes as fixed-size base64 frames to an RF
// modem attached as a byte stream (serial device or a simulation buffer).
type GibberRFTransport struct {
	frameSize int
	logger    *slog.Logger

	mu sync.Mutex // serializes frame writes; the modem is a single stream
	w  io.Writer
}

// NewGibberRFTransport creates the custom RF transport. frameSize is the
// base64 chunk length per frame; zero means 64.
func NewGibberRFTransport(w io.Writer, frameSize int, logger *slog.Logger) *GibberRFTransport {
	if frameSize <= 0 {
		frameSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GibberRFTransport{
		frameSize: frameSize,
		logger:    logger.With("component", "gibberrf_transport"),
		w:         w,
	}
}

// Protocol returns "GibberLink-RF".
func (t *GibberRFTransport) Protocol() string { return ProtocolGibberRF }

// Send frames the envelope and writes all frames to the modem. A partial
// write fails the whole send; the next monitoring cycle retries.
func (t *GibberRFTransport) Send(ctx context.Context, env *types.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(env.Payload)
	total := (len(encoded) + t.frameSize - 1) / t.frameSize
	if total == 0 {
		total = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < total; i++ {
		start := i * t.frameSize
		end := start + t.frameSize
		if end > len(encoded) {
			end = len(encoded)
		}
		frame := fmt.Sprintf("%s %s %d/%d %s\n",
			gibberFramePreamble, env.Protocol, i+1, total, encoded[start:end])
		if _, err := io.WriteString(t.w, frame); err != nil {
			return fmt.Errorf("writing frame %d/%d: %w", i+1, total, err)
		}
	}

	t.logger.Debug("envelope framed and sent",
		"protocol", env.Protocol,
		"frames", total,
		"bytes", len(env.Payload))
	return nil
}
