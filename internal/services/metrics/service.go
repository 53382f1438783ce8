// Package metrics exports control cycle results to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fgeck/ilo-fanctl/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "ilofan"

// Recorder receives every finished cycle.
type Recorder interface {
	ObserveCycle(result models.CycleResult)
}

// Noop discards observations. It is used when no exporter is configured.
type Noop struct{}

// ObserveCycle implements Recorder.
func (Noop) ObserveCycle(models.CycleResult) {}

// Impl records cycle results into a private Prometheus registry.
type Impl struct {
	registry *prometheus.Registry
	logger   zerolog.Logger

	cpuTemperature  *prometheus.GaugeVec
	maxTemperature  *prometheus.GaugeVec
	fanReading      *prometheus.GaugeVec
	fanSpeed        *prometheus.GaugeVec
	criticalReached *prometheus.GaugeVec
	hostOutcomes    *prometheus.CounterVec
	commandsApplied *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
}

// New creates a metrics recorder with all collectors registered.
func New(logger zerolog.Logger) *Impl {
	m := &Impl{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		cpuTemperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_temperature_celsius",
			Help:      "Last CPU temperature reported by the iLO.",
		}, []string{"host", "cpu"}),
		maxTemperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_cpu_temperature_celsius",
			Help:      "Hottest CPU temperature used for the last fan decision.",
		}, []string{"host"}),
		fanReading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_reading_percent",
			Help:      "Fan speed reported by the iLO, in percent.",
		}, []string{"host", "fan"}),
		fanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_speed_value",
			Help:      "Last maximum fan value (0-255) applied to the host.",
		}, []string{"host"}),
		criticalReached: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "critical_temperature_reached",
			Help:      "1 if any sensor was at or above its critical threshold in the last cycle.",
		}, []string{"host"}),
		hostOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_outcomes_total",
			Help:      "Control unit outcomes per host.",
		}, []string{"host", "result"}),
		commandsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_applied_total",
			Help:      "Fan commands that completed on the host.",
		}, []string{"host"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full control cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.cpuTemperature,
		m.maxTemperature,
		m.fanReading,
		m.fanSpeed,
		m.criticalReached,
		m.hostOutcomes,
		m.commandsApplied,
		m.cycleDuration,
	)

	return m
}

// ObserveCycle implements Recorder.
func (m *Impl) ObserveCycle(result models.CycleResult) {
	m.cycleDuration.Observe(result.Duration.Seconds())

	for _, o := range result.Outcomes {
		m.hostOutcomes.WithLabelValues(o.Host, o.Label()).Inc()

		if o.Executed > 0 {
			m.commandsApplied.WithLabelValues(o.Host).Add(float64(o.Executed))
		}
		if o.Succeeded() && o.Matched && o.Executed > 0 {
			m.fanSpeed.WithLabelValues(o.Host).Set(float64(o.Speed))
		}

		if o.Reading == nil {
			continue
		}
		for _, cpu := range o.Reading.CPUs {
			m.cpuTemperature.WithLabelValues(o.Host, strconv.Itoa(cpu.ID)).Set(float64(cpu.Celsius))
		}
		for _, fan := range o.Reading.Fans {
			m.fanReading.WithLabelValues(o.Host, fan.Name).Set(float64(fan.Percent))
		}
		if maxTemp, ok := o.Reading.MaxCPU(); ok {
			m.maxTemperature.WithLabelValues(o.Host).Set(float64(maxTemp))
		}
		critical := 0.0
		if o.Reading.CriticalReached {
			critical = 1
		}
		m.criticalReached.WithLabelValues(o.Host).Set(critical)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Impl) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on listener until ctx is done.
func (m *Impl) Serve(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	m.logger.Info().Str("listen", listener.Addr().String()).Msg("metrics exporter listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop metrics server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
