package sensor

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostReader reads real quantities from the device the agent runs on. It
// backs missions that monitor the gateway host itself rather than an
// attached probe.
//
// Supported quantities:
//   - cpu_percent: total CPU utilization since the previous read
//   - memory_percent: used physical memory
//   - load1: 1-minute load average
type HostReader struct{}

// NewHostReader creates a host-backed sensor reader.
func NewHostReader() *HostReader {
	return &HostReader{}
}

// Read returns the named host quantity. Unknown quantities and gopsutil
// failures are reported as ErrUnavailable so the agent skips the cycle.
func (h *HostReader) Read(ctx context.Context, quantity string) (float64, error) {
	switch quantity {
	case "cpu_percent":
		// Interval 0 measures against the previous call.
		pcts, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil || len(pcts) == 0 {
			return 0, fmt.Errorf("%w: cpu_percent: %v", ErrUnavailable, err)
		}
		return pcts[0], nil

	case "memory_percent":
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: memory_percent: %v", ErrUnavailable, err)
		}
		return vm.UsedPercent, nil

	case "load1":
		avg, err := load.AvgWithContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: load1: %v", ErrUnavailable, err)
		}
		return avg.Load1, nil

	default:
		return 0, fmt.Errorf("%w: unknown host quantity %q", ErrUnavailable, quantity)
	}
}
