package models

import "time"

// SeriesSnapshot is the render payload: parallel series, oldest first,
// always of equal length.
type SeriesSnapshot struct {
	Labels []string  `json:"labels"`
	CPU    []float64 `json:"cpu"`
	Memory []float64 `json:"memory"`
	Disk   []float64 `json:"disk"`
}

// Len returns the number of points in the snapshot
func (s SeriesSnapshot) Len() int {
	return len(s.Labels)
}

// Proportion is a used/free split for a single percentage gauge
type Proportion struct {
	Used float64 `json:"used"`
	Free float64 `json:"free"`
}

// NewProportion derives the free complement of used
func NewProportion(used float64) Proportion {
	return Proportion{Used: used, Free: 100 - used}
}

// RefreshStatus describes the refresh loop as shown next to the charts
type RefreshStatus struct {
	Busy          bool      `json:"busy"`
	LastUpdated   string    `json:"last_updated"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	BufferLen     int       `json:"buffer_len"`
	Capacity      int       `json:"capacity"`
}
