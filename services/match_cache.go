package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"skzb-service/logger"
	"skzb-service/models"
)

const (
	// CacheDuration 快照有效期
	CacheDuration = 300 * time.Second

	// UpdateTimeLayout update_time 的格式
	UpdateTimeLayout = "2006-01-02 15:04:05"

	refreshKey = "refresh"
)

// MatchSource 产生一批完整的比赛记录（生产环境为 scraper.Pipeline）
type MatchSource interface {
	FetchMatches(ctx context.Context) ([]models.MatchRecord, error)
}

// SnapshotObserver 在快照成功刷新后收到通知
type SnapshotObserver interface {
	OnSnapshot(ctx context.Context, snap models.Snapshot) error
}

// RefreshAlerter 刷新失败/恢复时的告警
type RefreshAlerter interface {
	NotifyRefreshFailed(err error) error
	NotifyRefreshRecovered(total int) error
}

// MatchCache 比赛快照缓存
//
// 过期后的第一次读取同步刷新；并发读取通过 singleflight 合并，每个过期窗口最多
// 一次上游请求。刷新失败时保留旧快照且不更新刷新时间，下一次读取立即重试。
type MatchCache struct {
	source MatchSource
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	snapshot  models.Snapshot
	fetchedAt time.Time
	lastErr   error
	failing   bool

	// generation 每次换入新快照加一；观察者只会收到比上次更新的快照
	generation  uint64
	notifyMu    sync.Mutex
	notifiedGen uint64

	group     singleflight.Group
	observers []SnapshotObserver
	alerter   RefreshAlerter
	metrics   *Metrics
	log       *logger.Logger
}

// NewMatchCache 创建缓存，ttl <= 0 时使用 CacheDuration
func NewMatchCache(source MatchSource, ttl time.Duration) *MatchCache {
	if ttl <= 0 {
		ttl = CacheDuration
	}
	return &MatchCache{
		source:   source,
		ttl:      ttl,
		now:      time.Now,
		snapshot: models.EmptySnapshot(),
		log:      logger.New("Cache"),
	}
}

// SetClock 替换时钟（测试用）
func (c *MatchCache) SetClock(now func() time.Time) {
	c.now = now
}

// SetMetrics 设置指标收集器
func (c *MatchCache) SetMetrics(m *Metrics) {
	c.metrics = m
}

// SetAlerter 设置告警器
func (c *MatchCache) SetAlerter(a RefreshAlerter) {
	c.alerter = a
}

// AddObserver 注册刷新观察者
func (c *MatchCache) AddObserver(o SnapshotObserver) {
	c.observers = append(c.observers, o)
}

// Snapshot 返回当前快照，过期时先同步刷新
func (c *MatchCache) Snapshot(ctx context.Context) models.Snapshot {
	snap, stale := c.current()
	if !stale {
		c.metrics.cacheRead("fresh")
		return snap
	}

	c.metrics.cacheRead("stale")
	c.group.Do(refreshKey, func() (interface{}, error) {
		// 排队等待期间可能已被其他请求刷新
		if _, stale := c.current(); !stale {
			return nil, nil
		}
		return nil, c.refresh(ctx)
	})

	snap, _ = c.current()
	return snap
}

// Refresh 强制刷新，不检查有效期
func (c *MatchCache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do(refreshKey, func() (interface{}, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

// Peek 返回当前快照，不触发刷新
func (c *MatchCache) Peek() models.Snapshot {
	snap, _ := c.current()
	return snap
}

// LastError 最近一次刷新的错误，成功后清空
func (c *MatchCache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *MatchCache) current() (models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stale := c.fetchedAt.IsZero() || c.now().Sub(c.fetchedAt) > c.ttl
	return c.snapshot, stale
}

func (c *MatchCache) refresh(ctx context.Context) error {
	// 合并后的请求共享这次抓取，不随第一个调用方取消
	ctx = context.WithoutCancel(ctx)

	started := time.Now()
	matches, err := c.source.FetchMatches(ctx)
	c.metrics.observeFetch(err, time.Since(started))

	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		firstFailure := !c.failing
		c.failing = true
		c.mu.Unlock()

		c.log.Errorf("Refresh failed, keeping previous snapshot: %v", err)
		if firstFailure && c.alerter != nil {
			go c.alert(func() error { return c.alerter.NotifyRefreshFailed(err) })
		}
		return err
	}

	now := c.now()
	snap := models.NewSnapshot(matches, now.Format(UpdateTimeLayout), now.Unix())

	c.mu.Lock()
	c.snapshot = snap
	c.fetchedAt = now
	c.generation++
	gen := c.generation
	c.lastErr = nil
	recovered := c.failing
	c.failing = false
	c.mu.Unlock()

	c.metrics.setSnapshotMatches(snap.Total)
	c.log.Printf("Snapshot refreshed: %d matches", snap.Total)

	if recovered && c.alerter != nil {
		go c.alert(func() error { return c.alerter.NotifyRefreshRecovered(snap.Total) })
	}
	if len(c.observers) > 0 {
		go c.notify(ctx, snap, gen)
	}
	return nil
}

// notify 串行投递；排队期间已被更新快照取代的旧快照直接丢弃
func (c *MatchCache) notify(ctx context.Context, snap models.Snapshot, gen uint64) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if gen <= c.notifiedGen {
		return
	}
	c.notifiedGen = gen

	for _, o := range c.observers {
		if err := o.OnSnapshot(ctx, snap); err != nil {
			c.log.Errorf("Observer %T failed: %v", o, err)
		}
	}
}

func (c *MatchCache) alert(send func() error) {
	if err := send(); err != nil {
		c.log.Errorf("Failed to send alert: %v", err)
	}
}
