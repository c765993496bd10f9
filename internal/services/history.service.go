package services

import (
	"log"
	"sync"
	"time"

	"pulseboard/internal/models"
)

// DefaultHistorySize keeps one hour of readings at a 5 second interval
const DefaultHistorySize = 720

// Recorder samples the host on a fixed interval and keeps a bounded history
// that the agent serves to dashboards
type Recorder struct {
	mu        sync.RWMutex
	history   []models.HostReading
	maxPoints int
	read      ReadingFunc
	cache     *ReadingCache
	now       func() time.Time

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder. cache, when set, is refreshed with every
// reading the recorder takes.
func NewRecorder(read ReadingFunc, maxPoints int, cache *ReadingCache) *Recorder {
	if maxPoints <= 0 {
		maxPoints = DefaultHistorySize
	}
	return &Recorder{
		history:   make([]models.HostReading, 0, maxPoints),
		maxPoints: maxPoints,
		read:      read,
		cache:     cache,
		now:       time.Now,
	}
}

// Start takes one reading immediately and then one every interval
func (r *Recorder) Start(interval time.Duration) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	r.Collect()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				r.Collect()
			}
		}
	}()

	log.Printf("[AGENT] Recorder started (interval: %v, keeping %d points)", interval, r.maxPoints)
}

// Stop ends collection and waits for the ticker goroutine
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
	log.Println("[AGENT] Recorder stopped")
}

// Collect takes one reading and appends it. The system calls happen outside
// the lock so readers are never blocked on gopsutil.
func (r *Recorder) Collect() {
	reading, err := r.read()
	if err != nil {
		log.Printf("[AGENT] Reading failed: %v", err)
		return
	}

	if r.cache != nil {
		r.cache.Put(reading)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, reading)
	if len(r.history) > r.maxPoints {
		r.history = r.history[len(r.history)-r.maxPoints:]
	}
}

// Records returns the readings taken within the last duration as wire
// records, oldest first. A non-positive duration returns everything.
func (r *Recorder) Records(duration time.Duration) []models.MetricRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoffTime := r.now().Add(-duration)

	records := []models.MetricRecord{}
	for _, h := range r.history {
		if duration <= 0 || h.Timestamp.After(cutoffTime) {
			records = append(records, h.ToRecord())
		}
	}
	return records
}

// Summary averages the readings of the last duration per clock hour and
// computes overall avg/max/min. A non-positive duration covers everything.
func (r *Recorder) Summary(duration time.Duration) models.MetricSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoffTime := r.now().Add(-duration)

	summary := models.MetricSummary{TimeSeries: []models.HourlyAverage{}}
	var overall *models.OverallStats
	var cpuSum, memSum, diskSum float64
	count := 0

	for _, h := range r.history {
		if duration > 0 && !h.Timestamp.After(cutoffTime) {
			continue
		}

		// history is oldest first, so hours arrive in order
		hour := h.Timestamp.Truncate(time.Hour).Format(models.RecordTimeLayout)
		n := len(summary.TimeSeries)
		if n == 0 || summary.TimeSeries[n-1].Timestamp != hour {
			summary.TimeSeries = append(summary.TimeSeries, models.HourlyAverage{Timestamp: hour})
			n++
		}
		bucket := &summary.TimeSeries[n-1]
		bucket.Samples++
		bucket.CPUUsage += h.CPUPercent
		bucket.MemoryPercent += h.MemoryPercent
		bucket.DiskPercent += h.DiskPercent

		if overall == nil {
			overall = &models.OverallStats{
				CPUUsage:      models.MetricStats{Max: h.CPUPercent, Min: h.CPUPercent},
				MemoryPercent: models.MetricStats{Max: h.MemoryPercent, Min: h.MemoryPercent},
				DiskPercent:   models.MetricStats{Max: h.DiskPercent, Min: h.DiskPercent},
			}
		}
		widen(&overall.CPUUsage, h.CPUPercent)
		widen(&overall.MemoryPercent, h.MemoryPercent)
		widen(&overall.DiskPercent, h.DiskPercent)
		cpuSum += h.CPUPercent
		memSum += h.MemoryPercent
		diskSum += h.DiskPercent
		count++
	}

	for i := range summary.TimeSeries {
		b := &summary.TimeSeries[i]
		b.CPUUsage /= float64(b.Samples)
		b.MemoryPercent /= float64(b.Samples)
		b.DiskPercent /= float64(b.Samples)
	}
	if overall != nil {
		overall.CPUUsage.Avg = cpuSum / float64(count)
		overall.MemoryPercent.Avg = memSum / float64(count)
		overall.DiskPercent.Avg = diskSum / float64(count)
	}
	summary.OverallStats = overall
	return summary
}

func widen(s *models.MetricStats, v float64) {
	if v > s.Max {
		s.Max = v
	}
	if v < s.Min {
		s.Min = v
	}
}

// Latest returns the newest reading
func (r *Recorder) Latest() (models.HostReading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.history) == 0 {
		return models.HostReading{}, false
	}
	return r.history[len(r.history)-1], true
}

// Len returns the number of stored readings
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.history)
}
