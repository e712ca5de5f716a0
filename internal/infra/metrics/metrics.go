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
	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	ScheduleEntriesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_entries_created_total",
		Help: "Созданные записи расписания доставки",
	})

	NewsSummariesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "news_summaries_created_total",
		Help: "Новые уникальные новости",
	})

	NewsFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "news_fetch_errors_total",
		Help: "Ошибки получения новостей по категориям",
	}, []string{"category"})

	ScheduleRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_run_seconds",
		Help:    "Время одного прогона планировщика",
		Buckets: prometheus.DefBuckets,
	})

	InstantNewsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "instant_news_sent_total",
		Help: "Новости, отправленные мгновенно",
	})

	ConversationEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_events_total",
		Help: "Входящие события диалога",
	}, []string{"kind"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NetworkRequestDuration,
		NetworkRequestTotal,
		ScheduleEntriesCreated,
		NewsSummariesCreated,
		NewsFetchErrors,
		ScheduleRunSeconds,
		InstantNewsSent,
		ConversationEvents,
	)
}

// StartServer запускает HTTP сервер с эндпоинтами /metrics и /healthz для фоновых процессов.
// Сервер останавливается при отмене ctx.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(stopCtx); err != nil {
			logger.Error().Err(err).Msg("metrics: ошибка остановки сервера")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: сервер остановлен")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус внешнего вызова.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	labels := []string{orUnknown(component), orUnknown(operation), orUnknown(target), status}
	NetworkRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	NetworkRequestTotal.WithLabelValues(labels...).Inc()
}

// IncFetchError увеличивает счётчик ошибок получения новостей категории.
func IncFetchError(category string) {
	NewsFetchErrors.WithLabelValues(orUnknown(category)).Inc()
}

// IncConversationEvent учитывает входящее событие диалога.
func IncConversationEvent(kind string) {
	ConversationEvents.WithLabelValues(orUnknown(kind)).Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
