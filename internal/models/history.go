package models

import "time"

// RecordTimeLayout is the timestamp layout the agent writes into records
const RecordTimeLayout = time.RFC3339

// HostReading is a single local utilization reading taken by the agent
type HostReading struct {
	Timestamp     time.Time `json:"timestamp"`
	Hostname      string    `json:"hostname"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryTotal   uint64    `json:"memory_total"`
	MemoryUsed    uint64    `json:"memory_used"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPath      string    `json:"disk_path"`
	DiskTotal     uint64    `json:"disk_total"`
	DiskUsed      uint64    `json:"disk_used"`
	DiskPercent   float64   `json:"disk_percent"`
}

// ToRecord renders the reading in the wire format consumed by the dashboard
func (h HostReading) ToRecord() MetricRecord {
	return MetricRecord{
		Timestamp:     h.Timestamp.Format(RecordTimeLayout),
		Hostname:      h.Hostname,
		CPUUsage:      h.CPUPercent,
		MemoryTotal:   h.MemoryTotal,
		MemoryUsed:    h.MemoryUsed,
		MemoryPercent: h.MemoryPercent,
		DiskTotal:     h.DiskTotal,
		DiskUsed:      h.DiskUsed,
		DiskPercent:   h.DiskPercent,
	}
}

// MetricStats is the mean, maximum and minimum of one metric over a window
type MetricStats struct {
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
	Min float64 `json:"min"`
}

// OverallStats holds MetricStats for each reported metric
type OverallStats struct {
	CPUUsage      MetricStats `json:"cpu_usage"`
	MemoryPercent MetricStats `json:"memory_percent"`
	DiskPercent   MetricStats `json:"disk_percent"`
}

// HourlyAverage is the mean of every reading taken within one clock hour
type HourlyAverage struct {
	Timestamp     string  `json:"timestamp"`
	Samples       int     `json:"samples"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

// MetricSummary aggregates a window of readings. OverallStats is nil when
// the window is empty.
type MetricSummary struct {
	TimeSeries   []HourlyAverage `json:"time_series"`
	OverallStats *OverallStats   `json:"overall_stats"`
}
