package workload

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/openfga/reactive/internal/concurrency"
	"github.com/openfga/reactive/internal/config"
	"github.com/openfga/reactive/pkg/logger"
	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/scheduler"
	"github.com/openfga/reactive/pkg/tick"
)

// Stats summarizes one tick as seen by the consumer.
type Stats struct {
	Tick           uint64
	Nodes          int
	VisibleNodes   int
	VisibleChanges int
	UsedGroups     int
	Duration       time.Duration
}

// durationWindow is the number of most recent tick durations kept for the latency summary.
const durationWindow = 4096

// Workload runs a Scene under concurrent producers and a single tick driver.
type Workload struct {
	cfg    config.WorkloadConfig
	runID  string
	logger logger.Logger
	scene  *Scene
	qctx   *scheduler.ReactiveQueryCtx
	tokens Tokens
	buffer *GPUBuffer
	stats  chan Stats

	durations []float64
	next      int
}

type WorkloadOption func(*Workload)

// WithStats publishes the stats of every tick on ch, dropping the oldest value when ch is full.
func WithStats(ch chan Stats) WorkloadOption {
	return func(w *Workload) {
		w.stats = ch
	}
}

// WithScheduler replaces the scheduler the scene is registered with.
func WithScheduler(qctx *scheduler.ReactiveQueryCtx) WorkloadOption {
	return func(w *Workload) {
		w.qctx = qctx
	}
}

// New is a function that builds the scene described by cfg and registers its derived queries.
func New(cfg config.WorkloadConfig, l logger.Logger, opts ...WorkloadOption) *Workload {
	runID := ulid.Make().String()
	w := &Workload{
		cfg:    cfg,
		runID:  runID,
		logger: l.With(zap.String("run_id", runID)),
		scene:  NewScene(cfg.Nodes, cfg.GroupSize),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.qctx == nil {
		w.qctx = scheduler.New(scheduler.WithLogger(l))
	}
	w.tokens = w.scene.Register(w.qctx, RegisterOptions{
		DenseRelation: cfg.DenseRelation,
		Validate:      cfg.Validate,
		Logger:        w.logger,
	})
	return w
}

// RunID identifies this workload in its log lines.
func (w *Workload) RunID() string {
	return w.runID
}

// Scene returns the writable sources.
func (w *Workload) Scene() *Scene {
	return w.scene
}

// Buffer returns the consumer mirror as of the last tick.
func (w *Workload) Buffer() *GPUBuffer {
	return w.buffer
}

// Run populates the scene and drives it until ctx is done or the configured duration elapses.
// The sources are then closed and one last tick drains the remaining writes, whose stats are
// returned.
func (w *Workload) Run(ctx context.Context) (Stats, error) {
	if w.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Duration)
		defer cancel()
	}

	w.scene.Populate()
	notifier := tick.NewNotifier()
	w.tick(ctx, notifier)

	g, gctx := errgroup.WithContext(ctx)

	producers := concurrency.NewPool(gctx, w.cfg.Producers)
	for i := range w.cfg.Producers {
		rng := rand.New(rand.NewPCG(uint64(i), uint64(time.Now().UnixNano())))
		producers.Go(func(ctx context.Context) error {
			return w.produce(ctx, rng)
		})
	}
	g.Go(producers.Wait)
	g.Go(func() error {
		return w.drive(gctx, notifier)
	})

	err := g.Wait()
	if closeErr := w.scene.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	last := w.tick(context.Background(), notifier)
	p50, p99 := w.tickQuantiles()
	w.logger.Info("workload stopped",
		zap.Uint64("ticks", last.Tick),
		zap.Int("nodes", last.Nodes),
		zap.Int("visible_nodes", last.VisibleNodes),
		zap.Int("used_groups", last.UsedGroups),
		zap.Duration("tick_p50", p50),
		zap.Duration("tick_p99", p99),
	)
	return last, err
}

// tickQuantiles returns the median and 99th percentile of the recent tick durations.
func (w *Workload) tickQuantiles() (time.Duration, time.Duration) {
	if len(w.durations) == 0 {
		return 0, 0
	}
	sorted := slices.Clone(w.durations)
	slices.Sort(sorted)
	p50 := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	p99 := stat.Quantile(0.99, stat.Empirical, sorted, nil)
	return time.Duration(p50), time.Duration(p99)
}

func (w *Workload) recordDuration(d time.Duration) {
	if len(w.durations) < durationWindow {
		w.durations = append(w.durations, float64(d))
		return
	}
	w.durations[w.next] = float64(d)
	w.next = (w.next + 1) % durationWindow
}

func (w *Workload) produce(ctx context.Context, rng *rand.Rand) error {
	ticker := time.NewTicker(w.cfg.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for range w.cfg.WritesPerInterval {
				w.scene.Mutate(rng)
			}
		}
	}
}

func (w *Workload) drive(ctx context.Context, notifier *tick.Notifier) error {
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// nothing was written since the last tick
			if !notifier.Woken() {
				continue
			}
			w.tick(ctx, notifier)
		}
	}
}

func (w *Workload) tick(ctx context.Context, notifier *tick.Notifier) Stats {
	start := time.Now()
	result := w.qctx.PollUpdateAll(ctx, notifier)

	w.buffer = scheduler.TakeMultiUpdated(result, w.tokens.Buffer)
	visible := scheduler.TakeReactiveQueryUpdated(result, w.tokens.VisibleWorld)

	stats := Stats{
		Tick:           result.Tick(),
		Nodes:          w.buffer.World.Len(),
		VisibleNodes:   query.Len(visible.View),
		VisibleChanges: len(visible.Changes),
		UsedGroups:     w.buffer.Groups.Len(),
		Duration:       time.Since(start),
	}
	w.recordDuration(stats.Duration)

	if stats.Tick%uint64(w.cfg.StatsInterval) == 0 {
		w.logger.InfoWithContext(ctx, "workload progress",
			zap.Uint64("tick", stats.Tick),
			zap.Int("visible_nodes", stats.VisibleNodes),
			zap.Int("visible_changes", stats.VisibleChanges),
			zap.Int("used_groups", stats.UsedGroups),
			zap.Duration("tick_duration", stats.Duration),
		)
		w.qctx.ShrinkToFitAll()
	}

	if w.stats != nil {
		concurrency.TrySendLatest(stats, w.stats)
	}
	return stats
}
