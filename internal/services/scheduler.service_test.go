package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulseboard/internal/models"
)

type fetchResult struct {
	samples []models.Sample
	err     error
	// gate, when set, blocks the fetch until closed
	gate chan struct{}
}

// scriptedFetcher replays results in order and repeats the last one
type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	entered chan int
}

func newScriptedFetcher(results ...fetchResult) *scriptedFetcher {
	return &scriptedFetcher{results: results, entered: make(chan int, 64)}
}

func (f *scriptedFetcher) Fetch(ctx context.Context) ([]models.Sample, error) {
	f.mu.Lock()
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	call := f.calls
	res := f.results[idx]
	f.mu.Unlock()

	f.entered <- call

	if res.gate != nil {
		select {
		case <-res.gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", models.ErrNetwork, ctx.Err())
		}
	}
	return res.samples, res.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSink struct {
	mu          sync.Mutex
	series      []models.SeriesSnapshot
	proportions []float64
	statuses    []models.RefreshStatus
}

func (s *recordingSink) RenderSeries(snap models.SeriesSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = append(s.series, snap)
}

func (s *recordingSink) RenderProportion(used float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proportions = append(s.proportions, used)
}

func (s *recordingSink) RenderStatus(status models.RefreshStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *recordingSink) seriesRenders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.series)
}

func (s *recordingSink) lastSeries() models.SeriesSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.series[len(s.series)-1]
}

func newTestScheduler(f Fetcher, sink ChartSink, cfg SchedulerConfig) *Scheduler {
	s := NewScheduler(f, NewSeriesBuffer(5, utcLabeler()), sink, cfg, nil)
	clock := epoch
	var mu sync.Mutex
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func okResult(samples ...models.Sample) fetchResult {
	return fetchResult{samples: samples}
}

func waitEntered(t *testing.T, f *scriptedFetcher) int {
	t.Helper()
	select {
	case n := <-f.entered:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not called")
		return 0
	}
}

func TestSchedulerLoadHistorical(t *testing.T) {
	f := newScriptedFetcher(okResult(sampleAt(3, 3, 0, 30), sampleAt(1, 1, 0, 10), sampleAt(2, 2, 0, 20)))
	sink := &recordingSink{}
	s := newTestScheduler(f, sink, SchedulerConfig{})

	require.NoError(t, s.LoadHistorical(context.Background()))

	assert.Equal(t, []string{"10:00:01", "10:00:02", "10:00:03"}, sink.lastSeries().Labels)
	assert.Equal(t, []float64{30}, sink.proportions)

	status := s.Status()
	assert.False(t, status.Busy)
	assert.NotEmpty(t, status.LastUpdated)
	assert.Equal(t, 3, status.BufferLen)
	assert.Equal(t, 5, status.Capacity)
}

func TestSchedulerLoadHistoricalEmpty(t *testing.T) {
	f := newScriptedFetcher(okResult())
	sink := &recordingSink{}
	s := newTestScheduler(f, sink, SchedulerConfig{})

	err := s.LoadHistorical(context.Background())
	assert.ErrorIs(t, err, models.ErrEmptyResponse)
	assert.Zero(t, sink.seriesRenders())
	assert.Empty(t, s.Status().LastUpdated)
}

func TestSchedulerRefreshAppends(t *testing.T) {
	f := newScriptedFetcher(
		okResult(sampleAt(1, 10, 0, 40)),
		okResult(sampleAt(1, 10, 0, 40), sampleAt(2, 20, 0, 45)),
	)
	sink := &recordingSink{}
	s := newTestScheduler(f, sink, SchedulerConfig{})

	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.Refresh(context.Background()))

	snap := sink.lastSeries()
	assert.Equal(t, []string{"10:00:01", "10:00:02"}, snap.Labels)
	assert.Equal(t, []float64{10, 20}, snap.CPU)
	assert.Equal(t, []float64{40, 45}, sink.proportions)
}

func TestSchedulerDuplicateStampsWithoutRendering(t *testing.T) {
	f := newScriptedFetcher(okResult(sampleAt(5, 10, 0, 0)))
	sink := &recordingSink{}
	s := newTestScheduler(f, sink, SchedulerConfig{})

	require.NoError(t, s.Refresh(context.Background()))
	first := s.Status()
	require.Equal(t, 1, sink.seriesRenders())

	require.NoError(t, s.Refresh(context.Background()))
	second := s.Status()

	assert.Equal(t, 1, sink.seriesRenders())
	assert.Equal(t, 1, second.BufferLen)
	assert.True(t, second.LastUpdatedAt.After(first.LastUpdatedAt))
}

func TestSchedulerFailureKeepsState(t *testing.T) {
	boom := fmt.Errorf("%w: connection refused", models.ErrNetwork)
	f := newScriptedFetcher(okResult(sampleAt(1, 10, 0, 0)), fetchResult{err: boom}, okResult())
	sink := &recordingSink{}
	s := newTestScheduler(f, sink, SchedulerConfig{})

	require.NoError(t, s.Refresh(context.Background()))
	before := s.Status()

	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, models.ErrNetwork)

	err = s.Refresh(context.Background())
	assert.ErrorIs(t, err, models.ErrEmptyResponse)

	after := s.Status()
	assert.False(t, after.Busy)
	assert.Equal(t, before.LastUpdatedAt, after.LastUpdatedAt)
	assert.Equal(t, 1, after.BufferLen)
	assert.Equal(t, 1, sink.seriesRenders())
}

func TestSchedulerBusyWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	f := newScriptedFetcher(fetchResult{samples: []models.Sample{sampleAt(1, 0, 0, 0)}, gate: gate})
	sink := &recordingSink{}
	s := newTestScheduler(f, sink, SchedulerConfig{})

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()

	waitEntered(t, f)
	assert.True(t, s.Status().Busy)

	close(gate)
	require.NoError(t, <-done)
	assert.False(t, s.Status().Busy)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.GreaterOrEqual(t, len(sink.statuses), 2)
	assert.True(t, sink.statuses[0].Busy)
	assert.False(t, sink.statuses[len(sink.statuses)-1].Busy)
}

func TestSchedulerStaleResponses(t *testing.T) {
	tests := []struct {
		name         string
		discardStale bool
		wantLabels   []string
	}{
		{"discarded", true, []string{"10:00:02"}},
		{"applied in arrival order", false, []string{"10:00:02", "10:00:01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slow := make(chan struct{})
			f := newScriptedFetcher(
				fetchResult{samples: []models.Sample{sampleAt(1, 1, 0, 0)}, gate: slow},
				okResult(sampleAt(2, 2, 0, 0)),
			)
			sink := &recordingSink{}
			s := newTestScheduler(f, sink, SchedulerConfig{DiscardStale: tt.discardStale})

			older := make(chan error, 1)
			go func() { older <- s.Refresh(context.Background()) }()
			waitEntered(t, f)

			require.NoError(t, s.Refresh(context.Background()))
			assert.True(t, s.Status().Busy, "older cycle still outstanding")

			close(slow)
			require.NoError(t, <-older)

			assert.Equal(t, tt.wantLabels, s.Buffer().Snapshot().Labels)
			assert.False(t, s.Status().Busy)
		})
	}
}

func TestSchedulerSlowResponseStillApplied(t *testing.T) {
	slow := make(chan struct{})
	newer := make(chan struct{})
	f := newScriptedFetcher(
		fetchResult{samples: []models.Sample{sampleAt(1, 1, 0, 0)}, gate: slow},
		fetchResult{samples: []models.Sample{sampleAt(2, 2, 0, 0)}, gate: newer},
	)
	s := newTestScheduler(f, &recordingSink{}, SchedulerConfig{DiscardStale: true})

	older := make(chan error, 1)
	go func() { older <- s.Refresh(context.Background()) }()
	waitEntered(t, f)

	second := make(chan error, 1)
	go func() { second <- s.Refresh(context.Background()) }()
	waitEntered(t, f)

	// a newer cycle has started but nothing newer has been applied yet
	close(slow)
	require.NoError(t, <-older)
	assert.Equal(t, []string{"10:00:01"}, s.Buffer().Snapshot().Labels)

	close(newer)
	require.NoError(t, <-second)
	assert.Equal(t, []string{"10:00:01", "10:00:02"}, s.Buffer().Snapshot().Labels)
}

// slowStatusSink delays busy statuses once slow is set
type slowStatusSink struct {
	recordingSink
	slow atomic.Bool
}

func (s *slowStatusSink) RenderStatus(status models.RefreshStatus) {
	if s.slow.Load() && status.Busy {
		time.Sleep(50 * time.Millisecond)
	}
	s.recordingSink.RenderStatus(status)
}

func TestSchedulerStatusOrderWithOverlappingRefreshes(t *testing.T) {
	gate := make(chan struct{})
	f := newScriptedFetcher(fetchResult{samples: []models.Sample{sampleAt(1, 0, 0, 0)}, gate: gate})
	sink := &slowStatusSink{}
	s := newTestScheduler(f, sink, SchedulerConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Refresh(context.Background()))
		}()
	}
	waitEntered(t, f)
	waitEntered(t, f)

	sink.slow.Store(true)
	close(gate)
	wg.Wait()

	assert.False(t, s.Status().Busy)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotEmpty(t, sink.statuses)
	assert.False(t, sink.statuses[len(sink.statuses)-1].Busy, "last pushed status must match the scheduler")
}

func TestSchedulerMinBusy(t *testing.T) {
	tests := []struct {
		name      string
		enforce   bool
		wantSleep []time.Duration
	}{
		{"enforced", true, []time.Duration{4 * time.Second}},
		{"not enforced", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newScriptedFetcher(okResult(sampleAt(1, 0, 0, 0)))
			s := newTestScheduler(f, nil, SchedulerConfig{MinBusy: 5 * time.Second, EnforceMinBusy: tt.enforce})

			var slept []time.Duration
			s.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }

			require.NoError(t, s.Refresh(context.Background()))
			// the test clock advances one second per reading
			assert.Equal(t, tt.wantSleep, slept)
		})
	}
}

func TestSchedulerStartAndStop(t *testing.T) {
	f := newScriptedFetcher(
		okResult(sampleAt(1, 0, 0, 0), sampleAt(2, 0, 0, 0)),
		okResult(sampleAt(3, 0, 0, 0)),
	)
	sink := &recordingSink{}
	s := newTestScheduler(f, sink, SchedulerConfig{Interval: 10 * time.Millisecond})

	s.Start(context.Background())
	// the initial load completes before Start returns
	assert.Equal(t, 2, s.Buffer().Len())

	assert.Eventually(t, func() bool { return f.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	calls := f.Calls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, f.Calls())
	assert.Equal(t, 3, s.Buffer().Len())

	// a second Stop is a no-op
	s.Stop()
}

func TestSchedulerStartSurvivesFailedLoad(t *testing.T) {
	f := newScriptedFetcher(
		fetchResult{err: errors.Join(models.ErrNetwork, errors.New("down"))},
		okResult(sampleAt(7, 0, 0, 0)),
	)
	s := newTestScheduler(f, nil, SchedulerConfig{Interval: 10 * time.Millisecond})

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return s.Buffer().Len() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerTelemetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := NewTelemetry(reg)

	f := newScriptedFetcher(
		okResult(sampleAt(1, 0, 0, 0)),
		okResult(sampleAt(2, 0, 0, 0)),
		okResult(sampleAt(2, 0, 0, 0)),
		fetchResult{err: models.ErrNetwork},
	)
	s := NewScheduler(f, NewSeriesBuffer(5, utcLabeler()), nil, SchedulerConfig{}, tel)

	require.NoError(t, s.LoadHistorical(context.Background()))
	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.Refresh(context.Background()))
	require.Error(t, s.Refresh(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(tel.cycles.WithLabelValues(OutcomeLoaded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.cycles.WithLabelValues(OutcomeAppended)))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.cycles.WithLabelValues(OutcomeDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.cycles.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(tel.bufferLen))
	assert.Equal(t, 0.0, testutil.ToFloat64(tel.busy))
}
