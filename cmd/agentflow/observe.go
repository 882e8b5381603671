package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/agentflow/config"
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/trace"
)

// observability bundles the trace sinks and the optional metrics server of a
// CLI invocation.
type observability struct {
	tracer  core.Tracer
	server  *http.Server
	logger  logging.Logger
	closers []func(context.Context) error
}

func setupObservability(ctx context.Context, cfg *config.Config, logger logging.Logger) (*observability, error) {
	obs := &observability{logger: logger}
	sinks := []core.Tracer{trace.NewLogSink(logger)}

	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		sinks = append(sinks, trace.NewPrometheusSink(func(o *trace.PrometheusOptions) {
			o.Registerer = reg
		}))

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		obs.server = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := obs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics.server.error", "error", err)
			}
		}()

		obs.closers = append(obs.closers, obs.server.Shutdown)
		logger.Info("metrics.server.start", "addr", cfg.Metrics.Listen, "path", cfg.Metrics.Path)
	}

	if rc := cfg.Trace.Redis; rc != nil {
		sink, err := trace.DialRedisStream(ctx, rc.Addr, rc.Password, rc.DB, func(o *trace.RedisStreamOptions) {
			if rc.Stream != "" {
				o.Stream = rc.Stream
			}
			o.MaxLen = rc.MaxLen
			o.Logger = logger
		})
		if err != nil {
			_ = obs.Close(ctx)
			return nil, err
		}

		sinks = append(sinks, sink)
		obs.closers = append(obs.closers, func(context.Context) error { return sink.Close() })
	}

	obs.tracer = trace.Multi(sinks...)

	return obs, nil
}

// Close stops the metrics server and releases trace sinks.
func (o *observability) Close(ctx context.Context) error {
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		errs = append(errs, o.closers[i](ctx))
	}
	return errors.Join(errs...)
}
