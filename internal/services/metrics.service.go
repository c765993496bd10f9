package services

import (
	"fmt"
	"log"
	"os"
	"time"

	"pulseboard/internal/models"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// ReadingFunc takes one host reading
type ReadingFunc func() (models.HostReading, error)

// HostReader samples local utilization with gopsutil
type HostReader struct {
	diskPath string
	hostname string
}

// NewHostReader creates a reader reporting usage of the filesystem at diskPath
func NewHostReader(diskPath string) *HostReader {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostReader{diskPath: diskPath, hostname: lookupHostname()}
}

func lookupHostname() string {
	if info, err := host.Info(); err == nil && info.Hostname != "" {
		return info.Hostname
	}
	name, err := os.Hostname()
	if err != nil {
		log.Printf("[AGENT] Warning: Could not determine hostname: %v", err)
		return "unknown"
	}
	return name
}

// Read returns CPU, memory and disk usage at this instant. CPU is measured
// since the previous call, so the first reading after start may be 0.
func (r *HostReader) Read() (models.HostReading, error) {
	now := time.Now()

	percentage, err := cpu.Percent(0, false)
	if err != nil {
		return models.HostReading{}, fmt.Errorf("failed to get CPU usage: %w", err)
	}
	cpuPercent := 0.0
	if len(percentage) > 0 {
		cpuPercent = percentage[0]
	}

	virtualMemory, err := mem.VirtualMemory()
	if err != nil {
		return models.HostReading{}, fmt.Errorf("failed to get memory usage: %w", err)
	}

	usage, err := disk.Usage(r.diskPath)
	if err != nil {
		return models.HostReading{}, fmt.Errorf("failed to get disk usage for %s: %w", r.diskPath, err)
	}

	return models.HostReading{
		Timestamp:     now,
		Hostname:      r.hostname,
		CPUPercent:    models.ClampPercent(cpuPercent),
		MemoryTotal:   virtualMemory.Total,
		MemoryUsed:    virtualMemory.Used,
		MemoryPercent: virtualMemory.UsedPercent,
		DiskPath:      r.diskPath,
		DiskTotal:     usage.Total,
		DiskUsed:      usage.Used,
		DiskPercent:   usage.UsedPercent,
	}, nil
}
