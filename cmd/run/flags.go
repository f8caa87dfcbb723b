package run

import (
	"github.com/spf13/cobra"

	"github.com/openfga/reactive/cmd/util"
	"github.com/openfga/reactive/internal/config"
)

// bindRunFlags binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindRunFlags(command *cobra.Command) {
	defaultConfig := config.DefaultConfig()
	flags := command.Flags()

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in. For production we recommend 'json' format.")
	util.MustBindPFlag("log.format", flags.Lookup("log-format"))
	util.MustBindEnv("log.format", "REACTIVE_LOG_FORMAT")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use. One of 'none', 'debug', 'info', 'warn', 'error' or 'panic'")
	util.MustBindPFlag("log.level", flags.Lookup("log-level"))
	util.MustBindEnv("log.level", "REACTIVE_LOG_LEVEL")

	flags.Int("workload-nodes", defaultConfig.Workload.Nodes, "the number of scene nodes")
	util.MustBindPFlag("workload.nodes", flags.Lookup("workload-nodes"))
	util.MustBindEnv("workload.nodes", "REACTIVE_WORKLOAD_NODES")

	flags.Int("workload-group-size", defaultConfig.Workload.GroupSize, "the number of nodes parented to one group")
	util.MustBindPFlag("workload.groupSize", flags.Lookup("workload-group-size"))
	util.MustBindEnv("workload.groupSize", "REACTIVE_WORKLOAD_GROUP_SIZE", "REACTIVE_WORKLOAD_GROUPSIZE")

	flags.Int("workload-producers", defaultConfig.Workload.Producers, "the number of goroutines writing to the sources")
	util.MustBindPFlag("workload.producers", flags.Lookup("workload-producers"))
	util.MustBindEnv("workload.producers", "REACTIVE_WORKLOAD_PRODUCERS")

	flags.Int("workload-writes-per-interval", defaultConfig.Workload.WritesPerInterval, "the number of writes each producer performs per write interval")
	util.MustBindPFlag("workload.writesPerInterval", flags.Lookup("workload-writes-per-interval"))
	util.MustBindEnv("workload.writesPerInterval", "REACTIVE_WORKLOAD_WRITES_PER_INTERVAL", "REACTIVE_WORKLOAD_WRITESPERINTERVAL")

	flags.Duration("workload-write-interval", defaultConfig.Workload.WriteInterval, "the time between two bursts of writes of one producer")
	util.MustBindPFlag("workload.writeInterval", flags.Lookup("workload-write-interval"))
	util.MustBindEnv("workload.writeInterval", "REACTIVE_WORKLOAD_WRITE_INTERVAL", "REACTIVE_WORKLOAD_WRITEINTERVAL")

	flags.Duration("workload-tick-interval", defaultConfig.Workload.TickInterval, "the minimum time between two ticks")
	util.MustBindPFlag("workload.tickInterval", flags.Lookup("workload-tick-interval"))
	util.MustBindEnv("workload.tickInterval", "REACTIVE_WORKLOAD_TICK_INTERVAL", "REACTIVE_WORKLOAD_TICKINTERVAL")

	flags.Duration("workload-duration", defaultConfig.Workload.Duration, "stop the workload after the given time. Zero runs until interrupted")
	util.MustBindPFlag("workload.duration", flags.Lookup("workload-duration"))
	util.MustBindEnv("workload.duration", "REACTIVE_WORKLOAD_DURATION")

	flags.Bool("workload-dense-relation", defaultConfig.Workload.DenseRelation, "use dense-index bookkeeping for the parent relation")
	util.MustBindPFlag("workload.denseRelation", flags.Lookup("workload-dense-relation"))
	util.MustBindEnv("workload.denseRelation", "REACTIVE_WORKLOAD_DENSE_RELATION", "REACTIVE_WORKLOAD_DENSERELATION")

	flags.Bool("workload-validate", defaultConfig.Workload.Validate, "check every derived change against a shadow copy of the query state")
	util.MustBindPFlag("workload.validate", flags.Lookup("workload-validate"))
	util.MustBindEnv("workload.validate", "REACTIVE_WORKLOAD_VALIDATE")

	flags.Int("workload-stats-interval", defaultConfig.Workload.StatsInterval, "the number of ticks between two progress log lines")
	util.MustBindPFlag("workload.statsInterval", flags.Lookup("workload-stats-interval"))
	util.MustBindEnv("workload.statsInterval", "REACTIVE_WORKLOAD_STATS_INTERVAL", "REACTIVE_WORKLOAD_STATSINTERVAL")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on the '/metrics' endpoint")
	util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	util.MustBindEnv("metrics.enabled", "REACTIVE_METRICS_ENABLED")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")
	util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	util.MustBindEnv("metrics.addr", "REACTIVE_METRICS_ADDR")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
	util.MustBindEnv("trace.enabled", "REACTIVE_TRACE_ENABLED")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")
	util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
	util.MustBindEnv("trace.otlp.endpoint", "REACTIVE_TRACE_OTLP_ENDPOINT")

	flags.Bool("trace-otlp-tls-enabled", defaultConfig.Trace.OTLP.TLS.Enabled, "use TLS connection for trace collector")
	util.MustBindPFlag("trace.otlp.tls.enabled", flags.Lookup("trace-otlp-tls-enabled"))
	util.MustBindEnv("trace.otlp.tls.enabled", "REACTIVE_TRACE_OTLP_TLS_ENABLED")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of ticks to sample. 1 means all, 0 means none")
	util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
	util.MustBindEnv("trace.sampleRatio", "REACTIVE_TRACE_SAMPLE_RATIO", "REACTIVE_TRACE_SAMPLERATIO")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")
	util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
	util.MustBindEnv("trace.serviceName", "REACTIVE_TRACE_SERVICE_NAME", "REACTIVE_TRACE_SERVICENAME")

	flags.Duration("trace-slow-tick-threshold", defaultConfig.Trace.SlowTickThreshold, "only export ticks lasting at least this long. Zero exports every sampled tick")
	util.MustBindPFlag("trace.slowTickThreshold", flags.Lookup("trace-slow-tick-threshold"))
	util.MustBindEnv("trace.slowTickThreshold", "REACTIVE_TRACE_SLOW_TICK_THRESHOLD", "REACTIVE_TRACE_SLOWTICKTHRESHOLD")
}
