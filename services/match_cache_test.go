package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"skzb-service/models"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   int32
	matches []models.MatchRecord
	err     error
	delay   time.Duration
}

func (s *fakeSource) FetchMatches(ctx context.Context) ([]models.MatchRecord, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches, s.err
}

func (s *fakeSource) set(matches []models.MatchRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = matches
	s.err = err
}

func (s *fakeSource) callCount() int {
	return int(atomic.LoadInt32(&s.calls))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func records(ids ...string) []models.MatchRecord {
	out := make([]models.MatchRecord, len(ids))
	for i, id := range ids {
		out[i] = models.MatchRecord{ID: id}
		out[i].SetLinks(nil)
	}
	return out
}

func newTestCache(src *fakeSource) (*MatchCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 10, 17, 12, 0, 0, 0, time.Local)}
	c := NewMatchCache(src, CacheDuration)
	c.SetClock(clock.Now)
	return c, clock
}

func TestSnapshotFetchesOncePerWindow(t *testing.T) {
	src := &fakeSource{matches: records("a", "b")}
	cache, clock := newTestCache(src)
	ctx := context.Background()

	snap := cache.Snapshot(ctx)
	if snap.Total != 2 || len(snap.Matches) != 2 {
		t.Fatalf("Expected 2 matches, got %+v", snap)
	}
	if snap.UpdateTime != "2025-10-17 12:00:00" {
		t.Errorf("Unexpected update_time %q", snap.UpdateTime)
	}
	if snap.LastFetch != clock.Now().Unix() {
		t.Errorf("Unexpected last_fetch %d", snap.LastFetch)
	}

	clock.Advance(299 * time.Second)
	cache.Snapshot(ctx)
	if src.callCount() != 1 {
		t.Fatalf("Expected 1 fetch within window, got %d", src.callCount())
	}

	clock.Advance(2 * time.Second)
	cache.Snapshot(ctx)
	if src.callCount() != 2 {
		t.Errorf("Expected refetch after expiry, got %d fetches", src.callCount())
	}
}

func TestFailedRefreshKeepsSnapshotAndRetries(t *testing.T) {
	src := &fakeSource{matches: records("a", "b", "c")}
	cache, clock := newTestCache(src)
	ctx := context.Background()

	first := cache.Snapshot(ctx)

	clock.Advance(301 * time.Second)
	src.set(nil, errors.New("upstream down"))

	second := cache.Snapshot(ctx)
	if second.Total != 3 || len(second.Matches) != 3 {
		t.Fatalf("Expected stale snapshot to be kept, got %+v", second)
	}
	if second.UpdateTime != first.UpdateTime || second.LastFetch != first.LastFetch {
		t.Errorf("Expected snapshot metadata unchanged, got %+v", second)
	}
	if cache.LastError() == nil {
		t.Error("Expected LastError to be set")
	}

	cache.Snapshot(ctx)
	if src.callCount() != 3 {
		t.Errorf("Expected immediate retry after failure, got %d fetches", src.callCount())
	}

	src.set(records("x"), nil)
	third := cache.Snapshot(ctx)
	if third.Total != 1 {
		t.Errorf("Expected recovered snapshot, got %+v", third)
	}
	if cache.LastError() != nil {
		t.Errorf("Expected LastError cleared, got %v", cache.LastError())
	}
}

func TestFirstFailureReturnsEmptySnapshot(t *testing.T) {
	src := &fakeSource{err: errors.New("timeout")}
	cache, _ := newTestCache(src)

	snap := cache.Snapshot(context.Background())
	if snap.Total != 0 || snap.Matches == nil || snap.UpdateTime != "" || snap.LastFetch != 0 {
		t.Errorf("Expected empty snapshot, got %+v", snap)
	}
}

func TestEmptyExtractionReplacesSnapshot(t *testing.T) {
	src := &fakeSource{matches: records("a")}
	cache, clock := newTestCache(src)
	ctx := context.Background()

	cache.Snapshot(ctx)
	clock.Advance(301 * time.Second)
	src.set([]models.MatchRecord{}, nil)

	snap := cache.Snapshot(ctx)
	if snap.Total != 0 {
		t.Errorf("Expected empty result to replace snapshot, got %+v", snap)
	}
}

func TestConcurrentStaleReadsShareOneFetch(t *testing.T) {
	src := &fakeSource{matches: records("a"), delay: 50 * time.Millisecond}
	cache, _ := newTestCache(src)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Snapshot(context.Background())
		}()
	}
	wg.Wait()

	if src.callCount() != 1 {
		t.Errorf("Expected a single upstream fetch, got %d", src.callCount())
	}
}

func TestRefreshForcesFetch(t *testing.T) {
	src := &fakeSource{matches: records("a")}
	cache, _ := newTestCache(src)
	ctx := context.Background()

	cache.Snapshot(ctx)
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if src.callCount() != 2 {
		t.Errorf("Expected forced fetch, got %d fetches", src.callCount())
	}
	if cache.Peek().Total != 1 {
		t.Errorf("Unexpected snapshot %+v", cache.Peek())
	}
}

type recordingObserver struct {
	got chan models.Snapshot
}

func (o *recordingObserver) OnSnapshot(ctx context.Context, snap models.Snapshot) error {
	o.got <- snap
	return nil
}

type recordingAlerter struct {
	failed    chan error
	recovered chan int
}

func (a *recordingAlerter) NotifyRefreshFailed(err error) error {
	a.failed <- err
	return nil
}

func (a *recordingAlerter) NotifyRefreshRecovered(total int) error {
	a.recovered <- total
	return nil
}

func TestObserversAndAlerts(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	cache, clock := newTestCache(src)
	obs := &recordingObserver{got: make(chan models.Snapshot, 4)}
	alerter := &recordingAlerter{failed: make(chan error, 4), recovered: make(chan int, 4)}
	cache.AddObserver(obs)
	cache.SetAlerter(alerter)
	ctx := context.Background()

	cache.Snapshot(ctx)
	cache.Snapshot(ctx)

	select {
	case <-alerter.failed:
	case <-time.After(time.Second):
		t.Fatal("Expected failure alert")
	}
	select {
	case <-alerter.failed:
		t.Error("Expected a single alert per failure streak")
	case <-time.After(50 * time.Millisecond):
	}

	src.set(records("a", "b"), nil)
	clock.Advance(time.Second)
	cache.Snapshot(ctx)

	select {
	case total := <-alerter.recovered:
		if total != 2 {
			t.Errorf("Expected recovered total 2, got %d", total)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected recovery alert")
	}
	select {
	case snap := <-obs.got:
		if snap.Total != 2 {
			t.Errorf("Expected observer to see 2 matches, got %d", snap.Total)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected observer notification")
	}
}

func TestCacheMetrics(t *testing.T) {
	src := &fakeSource{matches: records("a", "b")}
	cache, _ := newTestCache(src)
	m := NewMetrics()
	cache.SetMetrics(m)
	ctx := context.Background()

	cache.Snapshot(ctx)
	cache.Snapshot(ctx)

	if got := testutil.ToFloat64(m.cacheReads.WithLabelValues("stale")); got != 1 {
		t.Errorf("Expected 1 stale read, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheReads.WithLabelValues("fresh")); got != 1 {
		t.Errorf("Expected 1 fresh read, got %v", got)
	}
	if got := testutil.ToFloat64(m.fetchTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful fetch, got %v", got)
	}
	if got := testutil.ToFloat64(m.snapshotMatches); got != 2 {
		t.Errorf("Expected gauge 2, got %v", got)
	}
}

func TestObserversNeverSeeOlderSnapshot(t *testing.T) {
	cache, _ := newTestCache(&fakeSource{})
	obs := &recordingObserver{got: make(chan models.Snapshot, 4)}
	cache.AddObserver(obs)
	ctx := context.Background()

	newer := models.NewSnapshot(records("a", "b"), "2025-10-17 12:05:00", 2)
	older := models.NewSnapshot(records("a"), "2025-10-17 12:00:00", 1)

	// the second refresh's goroutine wins the race
	cache.notify(ctx, newer, 2)
	cache.notify(ctx, older, 1)

	if snap := <-obs.got; snap.Total != 2 {
		t.Fatalf("Expected newer snapshot first, got %+v", snap)
	}
	select {
	case snap := <-obs.got:
		t.Errorf("Expected stale snapshot to be dropped, got %+v", snap)
	default:
	}
}

func TestObserversReceiveRefreshesInOrder(t *testing.T) {
	src := &fakeSource{matches: records("a")}
	cache, _ := newTestCache(src)
	obs := &recordingObserver{got: make(chan models.Snapshot, 4)}
	cache.AddObserver(obs)
	ctx := context.Background()

	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	first := <-obs.got

	src.set(records("a", "b", "c"), nil)
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	second := <-obs.got

	if first.Total != 1 || second.Total != 3 {
		t.Errorf("Expected totals 1 then 3, got %d then %d", first.Total, second.Total)
	}
}
