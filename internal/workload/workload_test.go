package workload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/openfga/reactive/internal/config"
	"github.com/openfga/reactive/pkg/logger"
	"github.com/openfga/reactive/pkg/scheduler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func smallConfig() config.WorkloadConfig {
	return config.WorkloadConfig{
		Nodes:             96,
		GroupSize:         8,
		Producers:         3,
		WritesPerInterval: 16,
		WriteInterval:     time.Millisecond,
		TickInterval:      time.Millisecond,
		Duration:          100 * time.Millisecond,
		Validate:          true,
		StatsInterval:     10,
	}
}

// requireConsistent checks the mirrored buffer against the authoritative sources.
func requireConsistent(t *testing.T, w *Workload) {
	t.Helper()
	s := w.Scene()
	buf := w.Buffer()

	used := map[uint32]struct{}{}
	for n := range s.nodes {
		parent, ok := s.Parents.Get(n)
		require.True(t, ok)
		offset, ok := s.Offsets.Get(parent)
		require.True(t, ok)
		local, ok := s.Locals.Get(n)
		require.True(t, ok)

		world, ok := buf.World.Access(n)
		require.True(t, ok, "node %d missing from the buffer", n)
		require.InDelta(t, local+offset, world, 1e-9, "node %d", n)

		if _, visible := s.Visible.Get(n); visible {
			used[parent] = struct{}{}
		}
	}
	require.Equal(t, len(used), buf.Groups.Len())
	for g := range used {
		_, ok := buf.Groups.Access(g)
		require.True(t, ok, "group %d should be in use", g)
	}
}

func TestWorkloadKeepsMirrorConsistent(t *testing.T) {
	for name, dense := range map[string]bool{"hash": false, "dense": true} {
		t.Run(name, func(t *testing.T) {
			cfg := smallConfig()
			cfg.DenseRelation = dense

			l, logs := logger.NewObserverLogger("info")
			stats := make(chan Stats, 1)
			w := New(cfg, l, WithStats(stats))

			last, err := w.Run(context.Background())
			require.NoError(t, err)
			require.Greater(t, last.Tick, uint64(1))
			require.Equal(t, int(cfg.Nodes), last.Nodes)

			requireConsistent(t, w)
			require.Equal(t, 1, logs.FilterMessage("workload stopped").Len())
			require.NotEmpty(t, w.RunID())

			published := <-stats
			require.Equal(t, last.Tick, published.Tick)
		})
	}
}

func TestWorkloadStopsOnCancel(t *testing.T) {
	cfg := smallConfig()
	cfg.Duration = 0

	qctx := scheduler.New()
	w := New(cfg, logger.NewNoopLogger(), WithScheduler(qctx))
	require.Equal(t, 2, qctx.Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := w.Run(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("workload did not stop after cancellation")
	}
	requireConsistent(t, w)
}

func TestSceneRegisterWithoutWrites(t *testing.T) {
	s := NewScene(10, 4)
	t.Cleanup(func() { _ = s.Close() })

	qctx := scheduler.New()
	tokens := s.Register(qctx, RegisterOptions{})
	s.Populate()

	result := qctx.PollUpdateAll(context.Background(), nil)
	buf := scheduler.TakeMultiUpdated(result, tokens.Buffer)
	visible := scheduler.TakeReactiveQueryUpdated(result, tokens.VisibleWorld)

	require.Equal(t, 10, buf.World.Len())
	require.Equal(t, 3, buf.Groups.Len())
	require.Len(t, visible.Changes, 10)

	world, ok := buf.World.Access(9)
	require.True(t, ok)
	require.InDelta(t, 9.0, world, 0)
}

func TestTickQuantiles(t *testing.T) {
	w := &Workload{}
	p50, p99 := w.tickQuantiles()
	require.Zero(t, p50)
	require.Zero(t, p99)

	for i := range 100 {
		w.recordDuration(time.Duration(100-i) * time.Millisecond)
	}
	p50, p99 = w.tickQuantiles()
	require.Equal(t, 50*time.Millisecond, p50)
	require.GreaterOrEqual(t, p99, 99*time.Millisecond)
	require.LessOrEqual(t, p99, 100*time.Millisecond)

	// the window keeps only the most recent samples
	for range durationWindow {
		w.recordDuration(time.Second)
	}
	p50, p99 = w.tickQuantiles()
	require.Equal(t, time.Second, p50)
	require.Equal(t, time.Second, p99)
}
