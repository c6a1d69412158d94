// Package sensor provides the sensor-read capability consumed by mission
// agents: a numeric reading for a named quantity. Simulation and
// host-hardware-backed implementations are both provided; real field
// hardware plugs in behind the same interface.
package sensor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
)

// ErrUnavailable marks a failed read. The agent treats it as a skipped
// cycle, not a fatal error.
var ErrUnavailable = errors.New("sensor unavailable")

// Reader returns a numeric reading for a named quantity.
type Reader interface {
	Read(ctx context.Context, quantity string) (float64, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(ctx context.Context, quantity string) (float64, error)

// Read calls f.
func (f ReaderFunc) Read(ctx context.Context, quantity string) (float64, error) {
	return f(ctx, quantity)
}

// =============================================================================
// SIMULATION
// =============================================================================

// valueRange is a half-open simulated reading range.
type valueRange struct {
	min, max float64
}

// SimReader produces uniformly distributed readings per quantity. Known
// quantities get realistic ranges; everything else falls back to 0-100.
type SimReader struct {
	mu     sync.Mutex
	rng    *rand.Rand
	ranges map[string]valueRange
}

// NewSimReader creates a simulated sensor with the stock quantity ranges.
// seed fixes the sequence for reproducible runs; pass 0 for a varied one.
func NewSimReader(seed int64) *SimReader {
	src := rand.NewSource(seed)
	return &SimReader{
		rng: rand.New(src),
		ranges: map[string]valueRange{
			"voltage_rms":    {200, 250},
			"current_amps":   {0, 60},
			"frequency_hz":   {59.5, 60.5},
			"water_level_cm": {0, 400},
		},
	}
}

// SetRange overrides the simulated range for a quantity.
func (s *SimReader) SetRange(quantity string, min, max float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges[quantity] = valueRange{min, max}
}

// Read returns a uniform reading within the quantity's range.
func (s *SimReader) Read(ctx context.Context, quantity string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.ranges[quantity]
	if !ok {
		r = valueRange{0, 100}
	}
	return r.min + s.rng.Float64()*(r.max-r.min), nil
}
