// Package resources checks host CPU/memory/disk usage against
// configured ceilings. Checks are advisory: a threshold breach is
// reported as a message, never as an error that stops the kernel
// tick (the resource_monitor this is grounded on never raises).
package resources

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Thresholds are the configured percentage ceilings.
type Thresholds struct {
	MaxCPUPercent    float64
	MaxMemoryPercent float64
	MaxDiskPercent   float64
}

// Check samples current CPU, memory, and disk (on "/") usage and
// reports whether any exceeds its threshold. ok is false iff at least
// one ceiling was breached; msg describes every breach found.
func Check(t Thresholds) (ok bool, msg string) {
	var alerts []string

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		if pct[0] > t.MaxCPUPercent {
			alerts = append(alerts, fmt.Sprintf("cpu %.1f%% > %.1f%%", pct[0], t.MaxCPUPercent))
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		if vm.UsedPercent > t.MaxMemoryPercent {
			alerts = append(alerts, fmt.Sprintf("memory %.1f%% > %.1f%%", vm.UsedPercent, t.MaxMemoryPercent))
		}
	}

	if du, err := disk.Usage("/"); err == nil {
		if du.UsedPercent > t.MaxDiskPercent {
			alerts = append(alerts, fmt.Sprintf("disk %.1f%% > %.1f%%", du.UsedPercent, t.MaxDiskPercent))
		}
	}

	if len(alerts) == 0 {
		return true, ""
	}
	out := alerts[0]
	for _, a := range alerts[1:] {
		out += "; " + a
	}
	return false, out
}
