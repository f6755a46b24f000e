package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ScheduleBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_build_seconds",
		Help:    "Время материализации расписания",
		Buckets: prometheus.DefBuckets,
	})
	SchedulesBuiltTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedules_built_total",
		Help: "Количество созданных состояний ротации",
	})
	RefreshAdvancesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refresh_advances_total",
		Help: "Суммарное число продвинутых дней ротации",
	})
	FeedRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_requests_total",
		Help: "Количество запросов к ленте по эндпоинтам",
	}, []string{"endpoint"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ScheduleBuildSeconds,
		SchedulesBuiltTotal,
		RefreshAdvancesTotal,
		FeedRequestsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveScheduleBuild записывает длительность материализации расписания.
func ObserveScheduleBuild(start time.Time) {
	ScheduleBuildSeconds.Observe(time.Since(start).Seconds())
}

// IncScheduleBuilt увеличивает счётчик созданных расписаний.
func IncScheduleBuilt() {
	SchedulesBuiltTotal.Inc()
}

// AddRefreshAdvance учитывает продвижение указателя дня.
func AddRefreshAdvance(days int) {
	RefreshAdvancesTotal.Add(float64(days))
}

// IncFeedRequest увеличивает счётчик запросов ленты.
func IncFeedRequest(endpoint string) {
	FeedRequestsTotal.WithLabelValues(endpoint).Inc()
}
