// Package hostinfo describes the machine a build ran on.
package hostinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is attached to every build report
type Snapshot struct {
	Hostname        string `json:"hostname,omitempty"`
	OS              string `json:"os"`
	Arch            string `json:"arch"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty"`
	CPUModel        string `json:"cpu_model,omitempty"`
	CPUThreads      int    `json:"cpu_threads,omitempty"`
	MemTotalBytes   uint64 `json:"mem_total_bytes,omitempty"`
	MemAvailBytes   uint64 `json:"mem_available_bytes,omitempty"`
}

// Collect gathers what gopsutil can read. Failures leave fields empty;
// a build never fails because of host probing.
func Collect(ctx context.Context) Snapshot {
	s := Snapshot{OS: runtime.GOOS, Arch: runtime.GOARCH}

	if info, err := host.InfoWithContext(ctx); err == nil {
		s.Hostname = info.Hostname
		s.Platform = info.Platform
		s.PlatformVersion = info.PlatformVersion
		s.KernelVersion = info.KernelVersion
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		s.CPUModel = infos[0].ModelName
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		s.CPUThreads = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemTotalBytes = vm.Total
		s.MemAvailBytes = vm.Available
	}
	return s
}
