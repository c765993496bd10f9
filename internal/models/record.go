package models

import (
	"fmt"
	"strings"
	"time"
)

// MetricRecord is the flat wire format served by a metrics endpoint.
// Only timestamp and the three percentages are read by the dashboard; the
// remaining fields are filled in by the agent for other consumers.
type MetricRecord struct {
	Timestamp     string  `json:"timestamp"`
	Hostname      string  `json:"hostname,omitempty"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryTotal   uint64  `json:"memory_total,omitempty"`
	MemoryUsed    uint64  `json:"memory_used,omitempty"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskTotal     uint64  `json:"disk_total,omitempty"`
	DiskUsed      uint64  `json:"disk_used,omitempty"`
	DiskPercent   float64 `json:"disk_percent"`
}

// AgentSnapshot is the nested single-object shape some agents return
// instead of a record array.
type AgentSnapshot struct {
	Timestamp string `json:"timestamp"`
	Hostname  string `json:"hostname"`
	CPU       struct {
		OverallUsage float64 `json:"overall_usage"`
	} `json:"cpu"`
	Memory struct {
		PercentUsed float64 `json:"percent_used"`
	} `json:"memory"`
	Disk struct {
		Partitions []struct {
			Mountpoint  string  `json:"mountpoint"`
			PercentUsed float64 `json:"percent_used"`
		} `json:"partitions"`
	} `json:"disk"`
}

// Zone-less layouts are interpreted in the caller's location.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC3339 as well as the zone-less formats agents
// commonly emit ("2006-01-02 15:04:05").
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: missing timestamp", ErrParse)
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", ErrParse, raw)
}

// ToSample converts the record into a normalized Sample
func (r MetricRecord) ToSample(loc *time.Location) (Sample, error) {
	ts, err := ParseTimestamp(r.Timestamp, loc)
	if err != nil {
		return Sample{}, err
	}
	return NewSample(ts, r.CPUUsage, r.MemoryPercent, r.DiskPercent), nil
}

// ToSample converts the nested snapshot. Disk is the mean partition usage.
// A missing or unreadable timestamp falls back to fallback.
func (a AgentSnapshot) ToSample(loc *time.Location, fallback time.Time) Sample {
	ts, err := ParseTimestamp(a.Timestamp, loc)
	if err != nil {
		ts = fallback
	}

	disk := 0.0
	if n := len(a.Disk.Partitions); n > 0 {
		for _, p := range a.Disk.Partitions {
			disk += p.PercentUsed
		}
		disk /= float64(n)
	}

	return NewSample(ts, a.CPU.OverallUsage, a.Memory.PercentUsed, disk)
}
