package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pathlight-ai/pathlight/internal/observability/logger"
	"github.com/pathlight-ai/pathlight/internal/observability/metrics"
	"github.com/pathlight-ai/pathlight/internal/observability/tracing"
)

var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	fx.Provide(newLogger),
	fx.Provide(newTracerProvider),
	fx.Provide(newMeterProvider),
	fx.Provide(newMetrics),
	fx.Provide(newHTTPMetrics),
)

func newLogger(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	return logger.New(lc, logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: true,
	})
}

func newTracerProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (trace.TracerProvider, error) {
	return tracing.NewProvider(lc, tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
		Version:          cfg.Version,
		SampleRatio:      cfg.OtelSamplingRatio,
	}, log)
}

func newMeterProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	return metrics.NewProvider(lc, metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}, log)
}

func newMetrics(cfg Config, provider metric.MeterProvider) (*metrics.Metrics, error) {
	return metrics.New(metrics.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}, provider)
}

func newHTTPMetrics() *metrics.HTTPMetrics {
	return metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)
}
