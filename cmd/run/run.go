// Package run contains the command to run the reactive workload driver.
package run

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openfga/reactive/internal/config"
	"github.com/openfga/reactive/internal/workload"
	"github.com/openfga/reactive/pkg/logger"
	"github.com/openfga/reactive/pkg/scheduler"
	"github.com/openfga/reactive/pkg/telemetry"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reactive workload driver",
		Long:  "Run a synthetic scene graph through the reactive engine: concurrent producers write to collective channels while a single driver ticks the derived queries.",
		Run:   run,
		Args:  cobra.NoArgs,
	}

	bindRunFlags(cmd)

	return cmd
}

// ReadConfig returns the driver configuration based on the values provided in the 'config.yaml' file.
// The 'config.yaml' file is loaded from '/etc/reactive', '$HOME/.reactive', or the current working directory. If no configuration
// file is present, the default values are returned.
func ReadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func run(_ *cobra.Command, _ []string) {
	cfg, err := ReadConfig()
	if err != nil {
		panic(err)
	}

	if err := cfg.Verify(); err != nil {
		panic(err)
	}

	logger := logger.MustNewLogger(cfg.Log.Format, cfg.Log.Level)
	runCtx := &RunContext{Logger: logger}
	if err := runCtx.Run(context.Background(), cfg); err != nil {
		panic(err)
	}
}

type RunContext struct {
	Logger logger.Logger
}

// telemetryConfig returns the tracer provider ticks are recorded with and the function that must
// be called to shut down tracing.
func (s *RunContext) telemetryConfig(cfg *config.Config) (trace.TracerProvider, func() error) {
	if cfg.Trace.Enabled {
		s.Logger.Info(fmt.Sprintf("🕵 tracing enabled: sampling ratio is %v and sending traces to '%s', tls: %t", cfg.Trace.SampleRatio, cfg.Trace.OTLP.Endpoint, cfg.Trace.OTLP.TLS.Enabled))

		options := []telemetry.TracerOption{
			telemetry.WithOTLPEndpoint(cfg.Trace.OTLP.Endpoint),
			telemetry.WithServiceName(cfg.Trace.ServiceName),
			telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
			telemetry.WithSlowTickThreshold(cfg.Trace.SlowTickThreshold),
		}

		if !cfg.Trace.OTLP.TLS.Enabled {
			options = append(options, telemetry.WithOTLPInsecure())
		}

		tp := telemetry.MustNewTracerProvider(options...)
		return tp, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
			defer cancel()
			return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
		}
	}
	tp := noop.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp, func() error {
		return nil
	}
}

// Run drives the workload until ctx is canceled, a termination signal arrives or the configured
// duration elapses. The metrics server, when enabled, lives exactly as long as the workload.
func (s *RunContext) Run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, tracerProviderCloser := s.telemetryConfig(cfg)
	defer func() {
		if err := tracerProviderCloser(); err != nil {
			s.Logger.Error("failed to shutdown tracing", zap.Error(err))
		}
	}()

	qctx := scheduler.New(
		scheduler.WithLogger(s.Logger),
		scheduler.WithTracerProvider(tp),
	)
	wl := workload.New(cfg.Workload, s.Logger, workload.WithScheduler(qctx))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		lis, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on '%s': %w", cfg.Metrics.Addr, err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", otelhttp.NewHandler(promhttp.Handler(), "metrics"))
		metricsServer := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			s.Logger.Info(fmt.Sprintf("📈 starting prometheus metrics server on '%s'", lis.Addr()))
			if err := metricsServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("prometheus metrics server: %w", err)
			}
			s.Logger.Info("metrics server shut down.")
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				s.Logger.Info("failed to shutdown the prometheus metrics server", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		s.Logger.Info("🚀 starting workload",
			zap.Int("nodes", cfg.Workload.Nodes),
			zap.Int("producers", cfg.Workload.Producers),
			zap.Bool("dense_relation", cfg.Workload.DenseRelation),
			zap.Bool("validate", cfg.Workload.Validate),
		)
		_, err := wl.Run(gctx)
		return err
	})

	return g.Wait()
}
