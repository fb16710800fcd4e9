package sysmetrics

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// hostSampler reads the running host through gopsutil.
type hostSampler struct{}

func (hostSampler) CPUPercent(ctx context.Context) (float64, error) {
	// interval=0 compares against the previous call.
	total, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(total) == 0 {
		return 0, errors.New("no cpu data")
	}
	return total[0], nil
}

func (hostSampler) CPUCount(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}

func (hostSampler) Memory(ctx context.Context) (MemoryMetrics, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryMetrics{}, err
	}
	return MemoryMetrics{Total: vm.Total, Used: vm.Used, UsedPercent: vm.UsedPercent}, nil
}

func (hostSampler) Load(ctx context.Context) (LoadMetrics, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return LoadMetrics{}, err
	}
	return LoadMetrics{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}, nil
}

// Disk reports usage of mount, or of the fullest real partition when mount
// is empty.
func (hostSampler) Disk(ctx context.Context, mount string) (DiskMetrics, error) {
	if mount != "" {
		return diskUsage(ctx, mount)
	}

	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return DiskMetrics{}, err
	}
	var (
		best  DiskMetrics
		found bool
	)
	for _, p := range parts {
		if isVirtualFS(p.Fstype) {
			continue
		}
		d, err := diskUsage(ctx, p.Mountpoint)
		if err != nil || d.Total == 0 {
			continue // skip partitions that fail
		}
		if !found || d.UsedPercent > best.UsedPercent {
			best, found = d, true
		}
	}
	if !found {
		return DiskMetrics{}, errors.New("no real partitions")
	}
	return best, nil
}

func (hostSampler) Uptime(ctx context.Context) (time.Duration, error) {
	secs, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

func diskUsage(ctx context.Context, mount string) (DiskMetrics, error) {
	u, err := disk.UsageWithContext(ctx, mount)
	if err != nil {
		return DiskMetrics{}, err
	}
	return DiskMetrics{
		Path:        u.Path,
		FSType:      u.Fstype,
		Total:       u.Total,
		Free:        u.Free,
		UsedPercent: u.UsedPercent,
	}, nil
}

// isVirtualFS returns true for filesystem types that do not represent real
// storage and should be skipped during enumeration.
func isVirtualFS(fstype string) bool {
	switch fstype {
	case "devfs", "devtmpfs", "tmpfs", "sysfs", "proc", "cgroup", "cgroup2",
		"autofs", "mqueue", "hugetlbfs", "debugfs", "tracefs", "securityfs",
		"pstore", "bpf", "fusectl", "configfs", "ramfs", "rpc_pipefs",
		"nfsd", "map", "devpts", "squashfs", "overlay":
		return true
	}
	return false
}
