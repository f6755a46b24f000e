package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"rotation-feed/internal/adapters/repo"
	"rotation-feed/internal/domain"
	"rotation-feed/internal/infra/cache"
	"rotation-feed/internal/infra/config"
	"rotation-feed/internal/infra/db"
	httpinfra "rotation-feed/internal/infra/http"
	loginfra "rotation-feed/internal/infra/log"
	"rotation-feed/internal/infra/metrics"
	"rotation-feed/internal/infra/queue"
	"rotation-feed/internal/usecase/feed"
	"rotation-feed/internal/usecase/rotation"
)

func main() {
	cfg := config.Load()
	logger := loginfra.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	cadence, err := rotation.CadenceByName(cfg.Schedule.Cadence)
	if err != nil {
		log.Fatal().Err(err).Msg("api: некорректный режим ротации")
	}

	repoAdapter := repo.NewPostgres(pool)

	var rotationCache domain.Cache
	var buildQueue domain.BuildQueue
	if cfg.Queues.AMQPURL != "" {
		rabbit, err := queue.NewRabbitBuildQueue(cfg.Queues.AMQPURL, cfg.Queues.ManagementURL, cfg.Queues.Build)
		if err != nil {
			log.Fatal().Err(err).Msg("api: не удалось создать очередь RabbitMQ")
		}
		buildQueue = rabbit
	}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		rotationCache = cache.NewRedis(redisClient)
		if buildQueue == nil {
			buildQueue = queue.NewRedisBuildQueue(redisClient, cfg.Queues.Build)
		}
	}

	rotationService := rotation.NewService(repoAdapter, repoAdapter, rotationCache, domain.SystemClock{}, rotation.Config{
		Cadence:       cadence,
		ScheduleDays:  cfg.Schedule.Days,
		InsertBatch:   cfg.Schedule.InsertBatch,
		ReferenceLang: cfg.Schedule.ReferenceLang,
	}, log.With().Str("component", "rotation").Logger())
	feedService := feed.NewService(rotationService, repoAdapter, repoAdapter)

	langs := make(map[string]struct{}, len(cfg.Schedule.Languages))
	for _, lang := range cfg.Schedule.Languages {
		langs[lang] = struct{}{}
	}

	server := httpinfra.NewServer(logger)
	r := server.Router

	r.Group(func(protected chi.Router) {
		protected.Use(httpinfra.AuthMiddleware(cfg.AuthSecret))

		protected.Get("/api/v1/schedule/current-day", func(w http.ResponseWriter, r *http.Request) {
			metrics.IncFeedRequest("current_day")
			userID, ok := httpinfra.UserID(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "нет идентификатора пользователя")
				return
			}
			if _, ok := requireLang(w, r, langs); !ok {
				return
			}
			day, err := feedService.CurrentDay(r.Context(), userID)
			if errors.Is(err, domain.ErrNoSchedule) {
				writeError(w, http.StatusNotFound, "расписание ещё не создано")
				return
			}
			if err != nil {
				log.Error().Err(err).Msg("api: current-day")
				writeError(w, http.StatusInternalServerError, "failed to load")
				return
			}
			writeJSON(w, map[string]any{"currentDay": day})
		})

		protected.Get("/api/v1/schedule/initial", func(w http.ResponseWriter, r *http.Request) {
			metrics.IncFeedRequest("initial")
			userID, ok := httpinfra.UserID(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "нет идентификатора пользователя")
				return
			}
			lang, ok := requireLang(w, r, langs)
			if !ok {
				return
			}
			limit := queryInt(r, "archiveLimit", feed.DefaultArchiveLimit)
			page, err := feedService.Initial(r.Context(), userID, lang, limit)
			if errors.Is(err, domain.ErrNoSchedule) {
				writeError(w, http.StatusNotFound, "контент ещё не загружен")
				return
			}
			if err != nil {
				log.Error().Err(err).Msg("api: initial")
				writeError(w, http.StatusInternalServerError, "failed to load")
				return
			}
			prewarmLanguages(r.Context(), buildQueue, userID, lang, cfg.Schedule.Languages)
			writeJSON(w, map[string]any{
				"news":          newsJSON(page.News),
				"currentDay":    page.CurrentDay,
				"totalArchive":  page.TotalArchive,
				"loadedArchive": page.LoadedArchive,
			})
		})

		protected.Get("/api/v1/schedule/update", func(w http.ResponseWriter, r *http.Request) {
			metrics.IncFeedRequest("update")
			userID, ok := httpinfra.UserID(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "нет идентификатора пользователя")
				return
			}
			lang, ok := requireLang(w, r, langs)
			if !ok {
				return
			}
			page, err := feedService.Update(r.Context(), userID, lang)
			if errors.Is(err, domain.ErrNoSchedule) {
				writeError(w, http.StatusNotFound, "контент ещё не загружен")
				return
			}
			if err != nil {
				log.Error().Err(err).Msg("api: update")
				writeError(w, http.StatusInternalServerError, "failed to load")
				return
			}
			var news any
			if len(page.News) > 0 {
				news = newsJSON(page.News)
			}
			writeJSON(w, map[string]any{
				"news":       news,
				"currentDay": page.CurrentDay,
			})
		})

		protected.Get("/api/v1/schedule/archive", func(w http.ResponseWriter, r *http.Request) {
			metrics.IncFeedRequest("archive")
			userID, ok := httpinfra.UserID(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "нет идентификатора пользователя")
				return
			}
			lang, ok := requireLang(w, r, langs)
			if !ok {
				return
			}
			offset := queryInt(r, "offset", 0)
			limit := queryInt(r, "limit", feed.DefaultArchiveLimit)
			page, err := feedService.ArchivePage(r.Context(), userID, lang, offset, limit)
			if errors.Is(err, domain.ErrNoSchedule) {
				writeError(w, http.StatusNotFound, "расписание ещё не создано")
				return
			}
			if err != nil {
				log.Error().Err(err).Msg("api: archive")
				writeError(w, http.StatusInternalServerError, "failed to load")
				return
			}
			writeJSON(w, map[string]any{
				"news":          newsJSON(page.News),
				"totalArchive":  page.TotalArchive,
				"loadedArchive": page.LoadedArchive,
			})
		})

		protected.Delete("/api/v1/schedule", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := httpinfra.UserID(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "нет идентификатора пользователя")
				return
			}
			if err := repoAdapter.DeleteUserSchedule(r.Context(), userID); err != nil {
				log.Error().Err(err).Msg("api: удаление расписания")
				writeError(w, http.StatusInternalServerError, "failed to delete")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":"+strconv.Itoa(cfg.MetricsPort))
	log.Info().Int("port", cfg.Port).Msg("api: старт")
	if err := server.Start(ctx, ":"+strconv.Itoa(cfg.Port)); err != nil {
		log.Error().Err(err).Msg("api: сервер остановлен")
	}
	log.Info().Msg("api: остановка")
}

// prewarmLanguages ставит фоновые задачи построения расписаний для
// остальных языков пользователя, чтобы переключение языка было мгновенным.
// Строго best-effort: без очереди или при ошибке просто идём дальше.
func prewarmLanguages(ctx context.Context, buildQueue domain.BuildQueue, userID uuid.UUID, current string, languages []string) {
	if buildQueue == nil {
		return
	}
	for _, lang := range languages {
		if lang == current {
			continue
		}
		job := domain.BuildJob{
			ID:          uuid.NewString(),
			UserID:      userID,
			Language:    lang,
			RequestedAt: time.Now().UTC(),
			Cause:       domain.BuildCauseBackfill,
		}
		if err := buildQueue.Enqueue(ctx, job); err != nil {
			log.Warn().Err(err).Str("lang", lang).Msg("api: не удалось поставить задачу прогрева")
		}
	}
}

func requireLang(w http.ResponseWriter, r *http.Request, allowed map[string]struct{}) (string, bool) {
	lang := r.URL.Query().Get("lang")
	if _, ok := allowed[lang]; !ok {
		writeError(w, http.StatusBadRequest, "неподдерживаемый язык")
		return "", false
	}
	return lang, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

type newsItemJSON struct {
	ID          int64     `json:"id"`
	Language    string    `json:"language"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Tags        []string  `json:"tags"`
	Category    string    `json:"category"`
	Image       string    `json:"image,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	ReadingTime *int      `json:"readingTime,omitempty"`
	Author      string    `json:"author,omitempty"`
}

func newsJSON(items []domain.ContentItem) []newsItemJSON {
	out := make([]newsItemJSON, 0, len(items))
	for _, item := range items {
		out = append(out, newsItemJSON{
			ID:          item.ID,
			Language:    item.Language,
			Title:       item.Title,
			Body:        item.Body,
			Tags:        item.Tags,
			Category:    item.Category,
			Image:       item.ImageRef,
			PublishedAt: item.PublishedAt,
			ReadingTime: item.ReadingTime,
			Author:      item.Author,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(httpinfra.ErrorResponse{Error: msg})
}
