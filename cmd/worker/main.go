package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"rotation-feed/internal/adapters/repo"
	"rotation-feed/internal/domain"
	"rotation-feed/internal/infra/cache"
	"rotation-feed/internal/infra/config"
	"rotation-feed/internal/infra/db"
	loginfra "rotation-feed/internal/infra/log"
	"rotation-feed/internal/infra/metrics"
	"rotation-feed/internal/infra/queue"
	"rotation-feed/internal/usecase/rotation"
)

// Воркер разбирает очередь задач построения расписаний: прогрев новых
// языков и ремонт частично созданных расписаний вне пути запроса.
func main() {
	cfg := config.Load()
	logger := loginfra.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()

	cadence, err := rotation.CadenceByName(cfg.Schedule.Cadence)
	if err != nil {
		log.Fatal().Err(err).Msg("worker: некорректный режим ротации")
	}

	repoAdapter := repo.NewPostgres(pool)

	var rotationCache domain.Cache
	var buildQueue domain.BuildQueue
	if cfg.Queues.AMQPURL != "" {
		rabbit, err := queue.NewRabbitBuildQueue(cfg.Queues.AMQPURL, cfg.Queues.ManagementURL, cfg.Queues.Build)
		if err != nil {
			log.Fatal().Err(err).Msg("worker: не удалось создать очередь RabbitMQ")
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
	if buildQueue == nil {
		log.Fatal().Msg("worker: не настроена ни одна очередь (REDIS_ADDR или AMQP_URL)")
	}

	rotationService := rotation.NewService(repoAdapter, repoAdapter, rotationCache, domain.SystemClock{}, rotation.Config{
		Cadence:       cadence,
		ScheduleDays:  cfg.Schedule.Days,
		InsertBatch:   cfg.Schedule.InsertBatch,
		ReferenceLang: cfg.Schedule.ReferenceLang,
	}, logger.With().Str("component", "rotation").Logger())

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":"+strconv.Itoa(cfg.MetricsPort))

	log.Info().Msg("worker: старт")
	for {
		job, err := buildQueue.Pop(ctx)
		if errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			continue
		}
		if err := rotationService.EnsureSchedule(ctx, job.UserID, job.Language); err != nil {
			log.Error().Err(err).Str("user", job.UserID.String()).Str("lang", job.Language).Str("cause", string(job.Cause)).Msg("worker: не удалось построить расписание")
		}
	}
	log.Info().Msg("worker: остановка")
}
