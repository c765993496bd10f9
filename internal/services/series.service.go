package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"pulseboard/internal/models"
)

// DefaultCapacity is the number of points shown on each chart
const DefaultCapacity = 20

// Labeler turns timestamps into display labels. Samples whose timestamps
// fall into the same bucket get the same label and are treated as the same
// observation by SeriesBuffer.AppendIfNew.
type Labeler struct {
	Bucket   time.Duration
	Layout   string
	Location *time.Location
}

// DefaultLabeler formats wall-clock seconds in the local zone
func DefaultLabeler() Labeler {
	return Labeler{Bucket: time.Second, Layout: "15:04:05", Location: time.Local}
}

// Label returns the display label for t
func (l Labeler) Label(t time.Time) string {
	if l.Bucket > 0 {
		t = t.Truncate(l.Bucket)
	}
	loc := l.Location
	if loc == nil {
		loc = time.Local
	}
	layout := l.Layout
	if layout == "" {
		layout = "15:04:05"
	}
	return t.In(loc).Format(layout)
}

// SeriesBuffer is the chart window: a bounded, oldest-first sequence of
// samples with FIFO eviction and dedup against the newest entry.
// labels[i] is always the label of samples[i].
type SeriesBuffer struct {
	mu       sync.RWMutex
	samples  []models.Sample
	labels   []string
	capacity int
	labeler  Labeler
}

// NewSeriesBuffer creates an empty buffer. A non-positive capacity falls back to DefaultCapacity.
func NewSeriesBuffer(capacity int, labeler Labeler) *SeriesBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &SeriesBuffer{
		samples:  make([]models.Sample, 0, capacity),
		labels:   make([]string, 0, capacity),
		capacity: capacity,
		labeler:  labeler,
	}
}

// LoadHistorical replaces the buffer with samples sorted by timestamp and
// keeps only the newest Capacity of them. Equal timestamps keep input order.
// Samples sharing a label are kept; only AppendIfNew deduplicates.
func (b *SeriesBuffer) LoadHistorical(samples []models.Sample) {
	sorted := make([]models.Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if len(sorted) > b.capacity {
		sorted = sorted[len(sorted)-b.capacity:]
	}

	labels := make([]string, len(sorted))
	for i, s := range sorted {
		labels[i] = b.labeler.Label(s.Timestamp)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = sorted
	b.labels = labels
}

// AppendIfNew appends s unless its label equals the newest entry's label.
// It reports whether the buffer changed.
func (b *SeriesBuffer) AppendIfNew(s models.Sample) bool {
	label := b.labeler.Label(s.Timestamp)

	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.labels); n > 0 && b.labels[n-1] == label {
		return false
	}

	b.samples = append(b.samples, s)
	b.labels = append(b.labels, label)
	for len(b.samples) > b.capacity {
		b.samples = b.samples[1:]
		b.labels = b.labels[1:]
	}
	return true
}

// LatestDiskPercent returns the disk usage of the newest sample
func (b *SeriesBuffer) LatestDiskPercent() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.samples) == 0 {
		return 0, false
	}
	return b.samples[len(b.samples)-1].DiskPercent, true
}

// Snapshot copies the current contents into render-ready parallel series
func (b *SeriesBuffer) Snapshot() models.SeriesSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.samples)
	snap := models.SeriesSnapshot{
		Labels: make([]string, n),
		CPU:    make([]float64, n),
		Memory: make([]float64, n),
		Disk:   make([]float64, n),
	}
	copy(snap.Labels, b.labels)
	for i, s := range b.samples {
		snap.CPU[i] = s.CPUPercent
		snap.Memory[i] = s.MemoryPercent
		snap.Disk[i] = s.DiskPercent
	}
	return snap
}

// Samples returns a copy of the buffered samples, oldest first
func (b *SeriesBuffer) Samples() []models.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Len returns the number of buffered samples
func (b *SeriesBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Capacity returns the maximum number of buffered samples
func (b *SeriesBuffer) Capacity() int {
	return b.capacity
}

// Label exposes the buffer's labeler
func (b *SeriesBuffer) Label(t time.Time) string {
	return b.labeler.Label(t)
}

// MostRecent picks the sample with the greatest timestamp. The input need
// not be sorted; on ties the first one wins.
func MostRecent(samples []models.Sample) (models.Sample, error) {
	if len(samples) == 0 {
		return models.Sample{}, fmt.Errorf("%w: no samples in response", models.ErrEmptyResponse)
	}
	latest := samples[0]
	for _, s := range samples[1:] {
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	return latest, nil
}
