package comms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/gridsense/fieldlink/pkg/types"
)

// ProtocolLoRaWAN identifies the long-range uplink.
const ProtocolLoRaWAN = "LoRaWAN"

// loraMaxPayload is the largest uplink frame at the fastest data rate.
// Oversize envelopes still go out (the network server fragments) but are
// worth flagging, since slower data rates will refuse them.
const loraMaxPayload = 242

// LoRaWANConfig configures the long-range uplink.
type LoRaWANConfig struct {
	Endpoint string        // URL the network-server bridge listens on
	Target   string        // Destination identifier stamped on each uplink
	Timeout  time.Duration // HTTP timeout (default: 30s)

	// UplinksPerMinute bounds the duty cycle (default: 6, i.e. one uplink
	// every 10 seconds, in line with fair-use duty cycle budgets).
	UplinksPerMinute int

	Client *http.Client // HTTP client (optional)
	Logger *slog.Logger // Logger (optional)
}

// LoRaWANTransport ships envelopes to a network-server bridge over HTTP,
// duty-cycle limited.
type LoRaWANTransport struct {
	client   *http.Client
	endpoint string
	target   string
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewLoRaWANTransport creates the long-range uplink transport.
func NewLoRaWANTransport(cfg LoRaWANConfig) *LoRaWANTransport {
	if cfg.Client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		cfg.Client = &http.Client{Timeout: timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	uplinks := cfg.UplinksPerMinute
	if uplinks <= 0 {
		uplinks = 6
	}

	return &LoRaWANTransport{
		client:   cfg.Client,
		endpoint: cfg.Endpoint,
		target:   cfg.Target,
		limiter:  rate.NewLimiter(rate.Limit(float64(uplinks)/60.0), 1),
		logger:   cfg.Logger.With("component", "lorawan_transport"),
	}
}

// Protocol returns "LoRaWAN".
func (t *LoRaWANTransport) Protocol() string { return ProtocolLoRaWAN }

// uplink is the JSON body posted to the network-server bridge.
type uplink struct {
	Target    string    `json:"target"`
	Protocol  string    `json:"protocol"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Send posts one uplink, waiting out the duty cycle first. Context expiry
// while waiting counts as a transient send failure.
func (t *LoRaWANTransport) Send(ctx context.Context, env *types.Envelope) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("duty cycle wait: %w", err)
	}

	if len(env.Payload) > loraMaxPayload {
		t.logger.Warn("uplink exceeds single-frame payload",
			"bytes", len(env.Payload),
			"max", loraMaxPayload)
	}

	body, err := json.Marshal(uplink{
		Target:    t.target,
		Protocol:  env.Protocol,
		Payload:   env.Payload,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshaling uplink: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending uplink: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(msg))
	}

	t.logger.Debug("uplink sent",
		"target", t.target,
		"protocol", env.Protocol,
		"bytes", len(env.Payload))
	return nil
}
