package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Asia/Almaty"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsPort int    `envconfig:"METRICS_PORT" default:"9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AuthSecret string `envconfig:"AUTH_SECRET"`

	Schedule struct {
		// Cadence: test (день = 30 секунд) или production (день = сутки).
		Cadence       string   `envconfig:"SCHEDULE_CADENCE" default:"production"`
		Days          int      `envconfig:"SCHEDULE_DAYS" default:"180"`
		InsertBatch   int      `envconfig:"SCHEDULE_INSERT_BATCH" default:"50"`
		ReferenceLang string   `envconfig:"REFERENCE_LANG" default:"ru"`
		Languages     []string `envconfig:"LANGS" default:"ru,kz,en"`
	} `envconfig:""`

	Queues struct {
		Build         string `envconfig:"BUILD_QUEUE_KEY" default:"schedule_build_jobs"`
		AMQPURL       string `envconfig:"AMQP_URL"`
		ManagementURL string `envconfig:"AMQP_MANAGEMENT_URL"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
