package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pulseboard/internal/models"
)

// DefaultPollInterval is the time between periodic refresh cycles
const DefaultPollInterval = 10 * time.Second

// ChartSink receives buffer snapshots for drawing
type ChartSink interface {
	// RenderSeries redraws the line charts. All series have equal length.
	RenderSeries(snapshot models.SeriesSnapshot)
	// RenderProportion redraws a used/free view for a single percentage.
	RenderProportion(usedPercent float64)
}

// StatusSink is implemented by sinks that also show the busy indicator and
// the "last updated" stamp. RenderStatus is called with the scheduler lock
// held and must not call back into the Scheduler.
type StatusSink interface {
	RenderStatus(status models.RefreshStatus)
}

// SchedulerConfig holds the timing parameters of the refresh loop
type SchedulerConfig struct {
	Interval       time.Duration
	MinBusy        time.Duration
	EnforceMinBusy bool
	DiscardStale   bool
}

// Scheduler drives refresh cycles: an initial bulk load followed by one
// fetch per tick. Ticks never wait for earlier cycles, so several fetches
// may be outstanding; each cycle carries a sequence number and, with
// DiscardStale, a response is dropped once a newer cycle has been applied.
type Scheduler struct {
	fetcher   Fetcher
	buffer    *SeriesBuffer
	sink      ChartSink
	cfg       SchedulerConfig
	telemetry *Telemetry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	mu          sync.Mutex
	seq         uint64
	applied     uint64
	inflight    int
	lastUpdated time.Time
	running     bool
	cancel      context.CancelFunc

	wg sync.WaitGroup
}

// NewScheduler wires a scheduler. telemetry may be nil.
func NewScheduler(fetcher Fetcher, buffer *SeriesBuffer, sink ChartSink, cfg SchedulerConfig, telemetry *Telemetry) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &Scheduler{
		fetcher:   fetcher,
		buffer:    buffer,
		sink:      sink,
		cfg:       cfg,
		telemetry: telemetry,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Start runs the initial historical load synchronously, then ticks every
// Interval on a background goroutine until ctx is done or Stop is called.
// A failed initial load is logged; ticking starts regardless.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.LoadHistorical(ctx); err != nil {
		log.Printf("[SCHED] Initial load failed: %v", err)
	}

	s.wg.Add(1)
	go s.loop(ctx)

	log.Printf("[SCHED] Refresh scheduler started (interval: %v)", s.cfg.Interval)
}

// Stop cancels the ticker and waits for in-flight cycles to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("[SCHED] Refresh scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts a cycle without waiting for it
func (s *Scheduler) tick(ctx context.Context) {
	seq, started := s.begin()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.runCycle(ctx, seq, started)
	}()
}

// Refresh runs one cycle synchronously and returns its error, if any
func (s *Scheduler) Refresh(ctx context.Context) error {
	seq, started := s.begin()
	return s.runCycle(ctx, seq, started)
}

// LoadHistorical replaces the buffer with everything the endpoint returns
func (s *Scheduler) LoadHistorical(ctx context.Context) error {
	seq, started := s.begin()

	samples, err := s.fetch(ctx)
	if err == nil && len(samples) == 0 {
		err = fmt.Errorf("%w: historical load returned no samples", models.ErrEmptyResponse)
	}
	if err != nil {
		s.fail(ctx, seq, started, err)
		return err
	}

	s.mu.Lock()
	if s.isStaleLocked(seq) {
		s.mu.Unlock()
		s.discard(ctx, seq, started)
		return nil
	}
	s.buffer.LoadHistorical(samples)
	s.applied = seq
	s.renderLocked()
	s.mu.Unlock()

	log.Printf("[SCHED] Loaded %d historical samples (kept %d)", len(samples), s.buffer.Len())
	s.telemetry.ObserveCycle(OutcomeLoaded)
	s.finish(ctx, started, true)
	return nil
}

func (s *Scheduler) runCycle(ctx context.Context, seq uint64, started time.Time) error {
	samples, err := s.fetch(ctx)
	var latest models.Sample
	if err == nil {
		latest, err = MostRecent(samples)
	}
	if err != nil {
		s.fail(ctx, seq, started, err)
		return err
	}

	s.mu.Lock()
	if s.isStaleLocked(seq) {
		s.mu.Unlock()
		s.discard(ctx, seq, started)
		return nil
	}
	appended := s.buffer.AppendIfNew(latest)
	s.applied = seq
	if appended {
		s.renderLocked()
	}
	s.mu.Unlock()

	if appended {
		s.telemetry.ObserveCycle(OutcomeAppended)
	} else {
		s.telemetry.ObserveCycle(OutcomeDuplicate)
	}
	// the stamp moves even when the sample was a duplicate
	s.finish(ctx, started, true)
	return nil
}

// begin marks a cycle as in flight and returns its sequence number
func (s *Scheduler) begin() (uint64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.inflight++
	s.telemetry.SetInFlight(s.inflight)
	s.publishStatusLocked()
	return s.seq, s.now()
}

func (s *Scheduler) fetch(ctx context.Context) ([]models.Sample, error) {
	start := time.Now()
	samples, err := s.fetcher.Fetch(ctx)
	s.telemetry.ObserveFetch(time.Since(start))
	return samples, err
}

func (s *Scheduler) fail(ctx context.Context, seq uint64, started time.Time, err error) {
	log.Printf("[SCHED] Refresh #%d failed: %v", seq, err)
	s.telemetry.ObserveCycle(OutcomeFailed)
	s.finish(ctx, started, false)
}

func (s *Scheduler) discard(ctx context.Context, seq uint64, started time.Time) {
	log.Printf("[SCHED] Discarding response #%d: a newer refresh was already applied", seq)
	s.telemetry.ObserveCycle(OutcomeStale)
	s.finish(ctx, started, false)
}

// isStaleLocked reports whether a newer cycle has already been applied.
// Must be called with s.mu held.
func (s *Scheduler) isStaleLocked(seq uint64) bool {
	return s.cfg.DiscardStale && seq < s.applied
}

// renderLocked pushes the buffer to the sink. Must be called with s.mu held
// so that renders from concurrent cycles reach the sink in commit order.
func (s *Scheduler) renderLocked() {
	s.telemetry.SetBufferLen(s.buffer.Len())
	if s.sink == nil {
		return
	}
	s.sink.RenderSeries(s.buffer.Snapshot())
	if disk, ok := s.buffer.LatestDiskPercent(); ok {
		s.sink.RenderProportion(disk)
	}
}

// finish clears this cycle's busy mark, holding it for at least MinBusy
// when enforcement is on.
func (s *Scheduler) finish(ctx context.Context, started time.Time, success bool) {
	if s.cfg.EnforceMinBusy {
		if remaining := s.cfg.MinBusy - s.now().Sub(started); remaining > 0 {
			s.sleep(ctx, remaining)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	s.telemetry.SetInFlight(s.inflight)
	if success {
		s.lastUpdated = s.now()
		s.telemetry.MarkSuccess(s.lastUpdated)
	}
	// published under the lock so sinks see statuses in commit order
	s.publishStatusLocked()
}

// Status reports the busy flag and the last successful refresh
func (s *Scheduler) Status() models.RefreshStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Scheduler) statusLocked() models.RefreshStatus {
	status := models.RefreshStatus{
		Busy:          s.inflight > 0,
		LastUpdatedAt: s.lastUpdated,
		BufferLen:     s.buffer.Len(),
		Capacity:      s.buffer.Capacity(),
	}
	if !s.lastUpdated.IsZero() {
		status.LastUpdated = s.buffer.Label(s.lastUpdated)
	}
	return status
}

// Buffer returns the chart window driven by this scheduler
func (s *Scheduler) Buffer() *SeriesBuffer {
	return s.buffer
}

func (s *Scheduler) publishStatusLocked() {
	if ss, ok := s.sink.(StatusSink); ok {
		ss.RenderStatus(s.statusLocked())
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
