// Package bridge runs the poll, diff and push loop that turns full-refresh
// aircraft reports into one telemetry event per changed aircraft.
package bridge

import (
	"context"
	"flag"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/PR-CYBR/adsb-ingest/pkg/diff"
	"github.com/PR-CYBR/adsb-ingest/pkg/feed"
	"github.com/PR-CYBR/adsb-ingest/pkg/health"
	"github.com/PR-CYBR/adsb-ingest/pkg/metrics"
	"github.com/PR-CYBR/adsb-ingest/pkg/model"
)

// ErrStopped is returned by Start once the bridge has been stopped.
var ErrStopped = errors.New("bridge stopped")

type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	HealthTTL    time.Duration `yaml:"health_ttl"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.DurationVar(&c.PollInterval, "poll.interval", 2*time.Second, "How often to poll the feed")
	f.DurationVar(&c.HealthTTL, "health.ttl", 30*time.Second, "Report stale once the last fresh report is older than this")
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.HealthTTL <= 0 {
		return errors.New("health ttl must be positive")
	}
	return nil
}

// Pusher delivers changed aircraft downstream. A nil error means every
// aircraft was delivered.
type Pusher interface {
	Push(ctx context.Context, aircraft []model.Aircraft) (int, error)
}

// Mirror receives a copy of every changed aircraft. It has no say in the
// outcome of a cycle.
type Mirror interface {
	Mirror(aircraft []model.Aircraft, now time.Time)
}

type Options struct {
	// Source may be nil, in which case only Ingest feeds the bridge.
	Source  feed.Source
	Pusher  Pusher
	Mirror  Mirror
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type errOrigin int

const (
	originNone errOrigin = iota
	originFetch
	originPush
)

type Bridge struct {
	logger  log.Logger
	config  Config
	source  feed.Source
	pusher  Pusher
	mirror  Mirror
	metrics *metrics.Metrics
	now     func() time.Time

	// cycleMtx serializes the ingest path, it owns cache.
	cycleMtx sync.Mutex
	cache    *diff.Cache

	snapshotMtx sync.RWMutex
	snapshot    *model.Report

	lastUpdate atomic.Time
	lastPush   atomic.Time

	errMtx    sync.Mutex
	lastErr   string
	errOrigin errOrigin

	runMtx  sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(logger log.Logger, config Config, opts Options) (*Bridge, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bridge{
		logger:   log.With(logger, "component", "bridge"),
		config:   config,
		source:   opts.Source,
		pusher:   opts.Pusher,
		mirror:   opts.Mirror,
		metrics:  opts.Metrics,
		now:      opts.Now,
		cache:    diff.NewCache(),
		snapshot: model.Empty(),
	}, nil
}

// Start launches the poll loop. Starting a running bridge does nothing.
func (b *Bridge) Start() error {
	b.runMtx.Lock()
	defer b.runMtx.Unlock()
	if b.stopped {
		return ErrStopped
	}
	if b.running {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true
	go b.run(ctx, b.done)
	return nil
}

func (b *Bridge) run(ctx context.Context, done chan struct{}) {
	t := time.NewTicker(b.config.PollInterval)
	defer func() {
		t.Stop()
		level.Info(b.logger).Log("msg", "run loop shut down")
		close(done)
	}()
	level.Info(b.logger).Log("msg", "run loop started", "interval", b.config.PollInterval)
	for {
		b.cycle(ctx)
		select {
		case <-ctx.Done():
			level.Info(b.logger).Log("msg", "run loop shutting down")
			return
		case <-t.C:
		}
	}
}

// Stop cancels the poll loop, waits for it to exit and then releases the
// network resources held by the source, the pusher and the mirror.
func (b *Bridge) Stop() {
	b.runMtx.Lock()
	defer b.runMtx.Unlock()
	if b.stopped {
		return
	}
	level.Info(b.logger).Log("msg", "stop called")
	b.stopped = true
	if b.running {
		b.cancel()
		<-b.done
		b.running = false
	}

	for _, r := range []interface{}{b.source, b.pusher} {
		if c, ok := r.(interface{ Close() }); ok {
			c.Close()
		}
	}
	if s, ok := b.mirror.(interface{ Stop() }); ok {
		s.Stop()
	}
	level.Info(b.logger).Log("msg", "shutdown complete")
}

// cycle runs one fetch, diff and push round. It never panics.
func (b *Bridge) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Errorf("panic in poll cycle: %v", r)
			level.Error(b.logger).Log("msg", "unexpected error in poll loop", "err", err)
			b.metrics.Polls.WithLabelValues(metrics.PollPanic).Inc()
			b.recordError(originFetch, err)
		}
	}()

	if b.source == nil {
		return
	}
	rpt, err := b.source.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		b.recordError(originFetch, err)
		if rpt == nil {
			level.Warn(b.logger).Log("msg", "failed to fetch aircraft report", "err", err)
			b.metrics.Polls.WithLabelValues(metrics.PollFailed).Inc()
			return
		}
		level.Warn(b.logger).Log("msg", "using degraded aircraft report", "err", err)
		b.metrics.Polls.WithLabelValues(metrics.PollDegraded).Inc()
		b.handle(ctx, rpt, false)
		return
	}
	b.metrics.Polls.WithLabelValues(metrics.PollFresh).Inc()
	b.handle(ctx, rpt, true)
}

// Ingest feeds a report through the same path as a fetched one. The report
// is copied, the caller keeps ownership.
func (b *Bridge) Ingest(ctx context.Context, rpt *model.Report) {
	b.handle(ctx, rpt.Clone(), true)
}

// handle replaces the snapshot, diffs it and pushes what changed. Only fresh
// reports count as a successful snapshot for health.
func (b *Bridge) handle(ctx context.Context, rpt *model.Report, fresh bool) {
	b.cycleMtx.Lock()
	defer b.cycleMtx.Unlock()

	rpt = model.Normalize(rpt)
	b.snapshotMtx.Lock()
	b.snapshot = rpt
	b.snapshotMtx.Unlock()

	if fresh {
		now := b.now()
		b.lastUpdate.Store(now)
		b.metrics.LastSnapshotTs.Set(float64(now.UnixNano()) / 1e9)
		b.clearError(originFetch)
	}

	res := b.cache.Update(rpt.Aircraft)
	b.metrics.ChangedTotal.Add(float64(len(res.Changed)))
	b.metrics.EvictedTotal.Add(float64(res.Evicted))
	b.metrics.Tracked.Set(float64(res.Tracked))
	if len(res.Changed) == 0 {
		return
	}
	level.Debug(b.logger).Log("msg", "aircraft changed", "changed", len(res.Changed), "evicted", res.Evicted, "tracked", res.Tracked)

	if b.mirror != nil {
		b.mirror.Mirror(res.Changed, b.now())
	}
	if b.pusher == nil {
		return
	}
	if _, err := b.pusher.Push(ctx, res.Changed); err != nil {
		if ctx.Err() != nil {
			level.Debug(b.logger).Log("msg", "push interrupted by shutdown", "err", err)
			return
		}
		b.recordError(originPush, err)
		return
	}
	b.lastPush.Store(b.now())
	b.clearError(originNone)
}

// Snapshot returns a deep copy of the last report.
func (b *Bridge) Snapshot() *model.Report {
	b.snapshotMtx.RLock()
	defer b.snapshotMtx.RUnlock()
	return b.snapshot.Clone()
}

func (b *Bridge) Health() health.Report {
	return health.NewReport(b.lastUpdate.Load(), b.lastPush.Load(), b.lastError(), b.config.HealthTTL, b.now())
}

func (b *Bridge) recordError(origin errOrigin, err error) {
	b.errMtx.Lock()
	defer b.errMtx.Unlock()
	b.lastErr = err.Error()
	b.errOrigin = origin
}

// clearError clears the recorded error when it came from origin. originNone
// clears any error.
func (b *Bridge) clearError(origin errOrigin) {
	b.errMtx.Lock()
	defer b.errMtx.Unlock()
	if origin != originNone && origin != b.errOrigin {
		return
	}
	b.lastErr = ""
	b.errOrigin = originNone
}

func (b *Bridge) lastError() string {
	b.errMtx.Lock()
	defer b.errMtx.Unlock()
	return b.lastErr
}
