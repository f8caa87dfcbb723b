package run

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/openfga/reactive/cmd"
	"github.com/openfga/reactive/cmd/util"
	"github.com/openfga/reactive/internal/config"
	"github.com/openfga/reactive/pkg/logger"
)

func TestDefaultConfig(t *testing.T) {
	util.PrepareTempConfigDir(t)
	cfg, err := ReadConfig()
	require.NoError(t, err)

	_, basepath, _, _ := runtime.Caller(0)
	jsonSchema, err := os.ReadFile(filepath.Join(filepath.Dir(basepath), "..", "..", ".config-schema.json"))
	require.NoError(t, err)

	res := gjson.ParseBytes(jsonSchema)

	requireDuration := func(path string, want time.Duration) {
		t.Helper()
		val := res.Get(path)
		require.True(t, val.Exists(), path)
		d, err := time.ParseDuration(val.String())
		require.NoError(t, err)
		require.Equal(t, want, d, path)
	}

	val := res.Get("properties.log.properties.format.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Log.Format)

	val = res.Get("properties.log.properties.level.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Log.Level)

	val = res.Get("properties.workload.properties.nodes.default")
	require.True(t, val.Exists())
	require.EqualValues(t, val.Int(), cfg.Workload.Nodes)

	val = res.Get("properties.workload.properties.groupSize.default")
	require.True(t, val.Exists())
	require.EqualValues(t, val.Int(), cfg.Workload.GroupSize)

	val = res.Get("properties.workload.properties.producers.default")
	require.True(t, val.Exists())
	require.EqualValues(t, val.Int(), cfg.Workload.Producers)

	val = res.Get("properties.workload.properties.writesPerInterval.default")
	require.True(t, val.Exists())
	require.EqualValues(t, val.Int(), cfg.Workload.WritesPerInterval)

	requireDuration("properties.workload.properties.writeInterval.default", cfg.Workload.WriteInterval)
	requireDuration("properties.workload.properties.tickInterval.default", cfg.Workload.TickInterval)
	requireDuration("properties.workload.properties.duration.default", cfg.Workload.Duration)

	val = res.Get("properties.workload.properties.denseRelation.default")
	require.True(t, val.Exists())
	require.Equal(t, val.Bool(), cfg.Workload.DenseRelation)

	val = res.Get("properties.workload.properties.validate.default")
	require.True(t, val.Exists())
	require.Equal(t, val.Bool(), cfg.Workload.Validate)

	val = res.Get("properties.workload.properties.statsInterval.default")
	require.True(t, val.Exists())
	require.EqualValues(t, val.Int(), cfg.Workload.StatsInterval)

	val = res.Get("properties.metrics.properties.enabled.default")
	require.True(t, val.Exists())
	require.Equal(t, val.Bool(), cfg.Metrics.Enabled)

	val = res.Get("properties.metrics.properties.addr.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Metrics.Addr)

	val = res.Get("properties.trace.properties.enabled.default")
	require.True(t, val.Exists())
	require.Equal(t, val.Bool(), cfg.Trace.Enabled)

	val = res.Get("properties.trace.properties.otlp.properties.endpoint.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Trace.OTLP.Endpoint)

	val = res.Get("properties.trace.properties.otlp.properties.tls.properties.enabled.default")
	require.True(t, val.Exists())
	require.Equal(t, val.Bool(), cfg.Trace.OTLP.TLS.Enabled)

	val = res.Get("properties.trace.properties.sampleRatio.default")
	require.True(t, val.Exists())
	require.InDelta(t, val.Float(), cfg.Trace.SampleRatio, 0)

	val = res.Get("properties.trace.properties.serviceName.default")
	require.True(t, val.Exists())
	require.Equal(t, val.String(), cfg.Trace.ServiceName)

	requireDuration("properties.trace.properties.slowTickThreshold.default", cfg.Trace.SlowTickThreshold)
}

func TestRunCommandNoConfigDefaultValues(t *testing.T) {
	util.PrepareTempConfigDir(t)
	runCmd := NewRunCommand()
	runCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		require.Equal(t, config.DefaultNodes, viper.GetInt("workload.nodes"))
		require.Equal(t, config.DefaultTickInterval, viper.GetDuration("workload.tickInterval"))
		require.False(t, viper.GetBool("workload.denseRelation"))
		require.True(t, viper.GetBool("metrics.enabled"))
		require.False(t, viper.GetBool("trace.enabled"))
		return nil
	}

	rootCmd := cmd.NewRootCommand()
	rootCmd.AddCommand(runCmd)
	rootCmd.SetArgs([]string{"run"})
	require.NoError(t, rootCmd.Execute())
}

func TestRunCommandConfigFileValuesAreParsed(t *testing.T) {
	config := `workload:
    nodes: 512
    groupSize: 32
    tickInterval: 8ms
log:
    format: json
`
	util.PrepareTempConfigFile(t, config)

	runCmd := NewRunCommand()
	runCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return nil
	}
	rootCmd := cmd.NewRootCommand()
	rootCmd.AddCommand(runCmd)
	rootCmd.SetArgs([]string{"run"})
	require.NoError(t, rootCmd.Execute())

	cfg, err := ReadConfig()
	require.NoError(t, err)
	require.Equal(t, 512, cfg.Workload.Nodes)
	require.Equal(t, 32, cfg.Workload.GroupSize)
	require.Equal(t, 8*time.Millisecond, cfg.Workload.TickInterval)
	require.Equal(t, "json", cfg.Log.Format)
	require.NoError(t, cfg.Verify())
}

func TestRunCommandConfigIsMerged(t *testing.T) {
	config := `workload:
    nodes: 1024
`
	util.PrepareTempConfigFile(t, config)

	t.Setenv("REACTIVE_WORKLOAD_PRODUCERS", "9")
	t.Setenv("REACTIVE_WORKLOAD_DENSE_RELATION", "true")
	t.Setenv("REACTIVE_TRACE_SLOW_TICK_THRESHOLD", "50ms")
	t.Setenv("REACTIVE_METRICS_ADDR", "127.0.0.1:9999")

	runCmd := NewRunCommand()
	runCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		require.Equal(t, 1024, viper.GetInt("workload.nodes"))
		require.Equal(t, 9, viper.GetInt("workload.producers"))
		require.True(t, viper.GetBool("workload.denseRelation"))
		require.Equal(t, 50*time.Millisecond, viper.GetDuration("trace.slowTickThreshold"))
		require.Equal(t, "127.0.0.1:9999", viper.GetString("metrics.addr"))

		cfg, err := ReadConfig()
		require.NoError(t, err)
		require.Equal(t, 1024, cfg.Workload.Nodes)
		require.Equal(t, 9, cfg.Workload.Producers)
		require.True(t, cfg.Workload.DenseRelation)
		require.Equal(t, 50*time.Millisecond, cfg.Trace.SlowTickThreshold)
		require.Equal(t, "127.0.0.1:9999", cfg.Metrics.Addr)
		return nil
	}

	rootCmd := cmd.NewRootCommand()
	rootCmd.AddCommand(runCmd)
	rootCmd.SetArgs([]string{"run"})
	require.NoError(t, rootCmd.Execute())
}

func TestRunContextRun(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workload.Nodes = 128
	cfg.Workload.Producers = 2
	cfg.Workload.WriteInterval = time.Millisecond
	cfg.Workload.TickInterval = time.Millisecond
	cfg.Workload.Duration = 50 * time.Millisecond
	cfg.Workload.Validate = true
	cfg.Metrics.Addr = "127.0.0.1:0"
	require.NoError(t, cfg.Verify())

	runCtx := &RunContext{Logger: logger.NewNoopLogger()}

	done := make(chan error, 1)
	go func() {
		done <- runCtx.Run(context.Background(), cfg)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after the configured duration")
	}
}

func TestRunContextRunRejectsInvalidMetricsAddr(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Addr = "127.0.0.1:-1"

	runCtx := &RunContext{Logger: logger.NewNoopLogger()}
	require.ErrorContains(t, runCtx.Run(context.Background(), cfg), "failed to listen")
}
