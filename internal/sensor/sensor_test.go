package sensor

import (
	"context"
	"errors"
	"testing"
)

func TestSimReader_Ranges(t *testing.T) {
	s := NewSimReader(1)
	ctx := context.Background()

	tests := []struct {
		quantity string
		min, max float64
	}{
		{"voltage_rms", 200, 250},
		{"current_amps", 0, 60},
		{"frequency_hz", 59.5, 60.5},
		{"water_level_cm", 0, 400},
		{"unknown_quantity", 0, 100},
	}

	for _, tt := range tests {
		for i := 0; i < 100; i++ {
			v, err := s.Read(ctx, tt.quantity)
			if err != nil {
				t.Fatalf("Read(%q): %v", tt.quantity, err)
			}
			if v < tt.min || v >= tt.max {
				t.Fatalf("Read(%q) = %v, outside [%v, %v)", tt.quantity, v, tt.min, tt.max)
			}
		}
	}
}

func TestSimReader_SetRange(t *testing.T) {
	s := NewSimReader(1)
	s.SetRange("voltage_rms", 400, 401)

	v, err := s.Read(context.Background(), "voltage_rms")
	if err != nil {
		t.Fatal(err)
	}
	if v < 400 || v >= 401 {
		t.Fatalf("Read after SetRange = %v", v)
	}
}

func TestSimReader_SeedReproducibility(t *testing.T) {
	a := NewSimReader(42)
	b := NewSimReader(42)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		va, _ := a.Read(ctx, "voltage_rms")
		vb, _ := b.Read(ctx, "voltage_rms")
		if va != vb {
			t.Fatalf("seeded readers diverged at sample %d: %v vs %v", i, va, vb)
		}
	}
}

func TestSimReader_CancelledContext(t *testing.T) {
	s := NewSimReader(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Read(ctx, "voltage_rms"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestHostReader_UnknownQuantity(t *testing.T) {
	h := NewHostReader()
	_, err := h.Read(context.Background(), "disk_rpm")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestReaderFunc(t *testing.T) {
	r := ReaderFunc(func(ctx context.Context, quantity string) (float64, error) {
		if quantity != "voltage_rms" {
			t.Errorf("quantity = %q", quantity)
		}
		return 230.5, nil
	})

	v, err := r.Read(context.Background(), "voltage_rms")
	if err != nil || v != 230.5 {
		t.Fatalf("Read = %v, %v", v, err)
	}
}
