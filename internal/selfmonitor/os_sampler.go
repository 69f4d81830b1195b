package selfmonitor

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// OSResourceSampler reports the host's actual CPU and memory utilization,
// the production ResourceSampler.
type OSResourceSampler struct{}

// NewOSResourceSampler constructs an OSResourceSampler.
func NewOSResourceSampler() *OSResourceSampler { return &OSResourceSampler{} }

func (OSResourceSampler) Sample(ctx context.Context) (cpuPercent, memPercent float64, err error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, 0, err
	}
	if len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	memPercent = vm.UsedPercent

	return cpuPercent, memPercent, nil
}
