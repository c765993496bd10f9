package models

import "time"

// Sample is one normalized observation of host utilization
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
}

// NewSample builds a Sample, clamping cpu into [0,100].
// Upstream agents may report cpu above 100 transiently; memory and disk are
// taken as given.
func NewSample(ts time.Time, cpu, memory, disk float64) Sample {
	return Sample{
		Timestamp:     ts,
		CPUPercent:    ClampPercent(cpu),
		MemoryPercent: memory,
		DiskPercent:   disk,
	}
}

// ClampPercent limits v to [0,100]
func ClampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
