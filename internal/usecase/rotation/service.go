// Package rotation реализует личное расписание ротации контента:
// билдер материализует 180 слотов по перестановке пользователя,
// рефрешер продвигает указатель текущего дня по прошедшему времени.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rotation-feed/internal/domain"
	"rotation-feed/internal/infra/metrics"
	"rotation-feed/internal/usecase/permute"
)

// graceWindow защищает только что созданное расписание от продвижения
// рефрешем, пришедшим следом за созданием.
const graceWindow = 5 * time.Second

// Config собирает параметры ротации.
type Config struct {
	Cadence       Cadence
	ScheduleDays  int
	InsertBatch   int
	ReferenceLang string
}

// Service отвечает за построение и продвижение расписаний.
type Service struct {
	content   domain.ContentRepo
	schedules domain.ScheduleRepo
	cache     domain.Cache
	clock     domain.Clock
	cfg       Config
	log       zerolog.Logger
}

// NewService создаёт сервис ротации. cache необязателен: он лишь подавляет
// дублирующиеся рефреши, корректность держится на идемпотентных записях.
func NewService(content domain.ContentRepo, schedules domain.ScheduleRepo, cache domain.Cache, clock domain.Clock, cfg Config, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if cfg.ScheduleDays <= 0 {
		cfg.ScheduleDays = 180
	}
	if cfg.InsertBatch <= 0 {
		cfg.InsertBatch = 50
	}
	if cfg.Cadence.Period <= 0 {
		cfg.Cadence = CadenceProduction
	}
	return &Service{content: content, schedules: schedules, cache: cache, clock: clock, cfg: cfg, log: logger}
}

// EnsureSchedule материализует расписание пользователя для языка.
// Операция идемпотентна: полное расписание не трогается, частичное
// достраивается (вставки пропускают существующие слоты), отсутствие
// контента откладывает создание до следующего вызова.
func (s *Service) EnsureSchedule(ctx context.Context, userID uuid.UUID, language string) error {
	start := time.Now()

	count, err := s.schedules.CountEntries(ctx, userID, language)
	if err != nil {
		return fmt.Errorf("подсчёт слотов: %w", err)
	}

	state, stateErr := s.schedules.GetState(ctx, userID)
	haveState := stateErr == nil
	if stateErr != nil && !errors.Is(stateErr, domain.ErrNoSchedule) {
		return fmt.Errorf("чтение состояния: %w", stateErr)
	}

	// Быстрый путь: слоты в полном составе и состояние на месте.
	if haveState && count >= s.cfg.ScheduleDays {
		return nil
	}

	// Идентификаторы материалов всегда берутся из эталонного языка,
	// чтобы все языки пользователя ссылались на один и тот же набор.
	ids, err := s.content.ListIDsByLanguage(ctx, s.cfg.ReferenceLang)
	if err != nil {
		return fmt.Errorf("чтение пула контента: %w", err)
	}
	if len(ids) == 0 {
		// Пул пуст: ничего не создаём, следующий вызов попробует снова.
		s.log.Warn().Str("user", userID.String()).Str("lang", language).Msg("rotation: пул контента пуст, расписание отложено")
		return nil
	}

	want := s.cfg.ScheduleDays
	if len(ids) < want {
		want = len(ids)
	}
	if haveState && count >= want {
		return nil
	}

	permuted := permute.Shuffle(ids, permute.Seed(userID.String()))

	currentDay := 1
	if haveState {
		currentDay = state.CurrentDay
	}
	now := s.clock.Now().UTC()
	entries := make([]domain.ScheduleEntry, 0, want)
	for i, id := range permuted[:want] {
		day := i + 1
		status := domain.StatusScheduled
		switch {
		case day < currentDay:
			status = domain.StatusArchive
		case day == currentDay:
			status = domain.StatusHot
		}
		entries = append(entries, domain.ScheduleEntry{
			UserID:        userID,
			ContentItemID: id,
			Language:      language,
			DayNumber:     day,
			Status:        status,
			UpdatedAt:     now,
		})
	}

	// Пакетные вставки: сбой одного пакета не останавливает остальные,
	// недостающие слоты доберёт следующий вызов.
	for from := 0; from < len(entries); from += s.cfg.InsertBatch {
		to := from + s.cfg.InsertBatch
		if to > len(entries) {
			to = len(entries)
		}
		if err := s.schedules.InsertEntries(ctx, entries[from:to]); err != nil {
			s.log.Error().Err(err).Str("user", userID.String()).Str("lang", language).Int("from", from).Msg("rotation: не удалось вставить пакет слотов")
		}
	}

	if !haveState {
		created, err := s.schedules.CreateState(ctx, domain.ScheduleState{
			UserID:      userID,
			StartDate:   now.Truncate(24 * time.Hour),
			CurrentDay:  1,
			LastRefresh: now,
		})
		if err != nil {
			return fmt.Errorf("создание состояния: %w", err)
		}
		if created {
			metrics.IncScheduleBuilt()
		}
	}
	metrics.ObserveScheduleBuild(start)
	return nil
}

// Refresh продвигает указатель текущего дня по прошедшему времени и
// переписывает статусы слотов во всех языках пользователя. Переходы идут
// только вперёд: scheduled -> hot -> archive. Повторный вызов в пределах
// окна периода — no-op.
func (s *Service) Refresh(ctx context.Context, userID uuid.UUID) error {
	state, err := s.schedules.GetState(ctx, userID)
	if errors.Is(err, domain.ErrNoSchedule) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("чтение состояния: %w", err)
	}

	prevDay := state.CurrentDay
	if prevDay < 1 {
		prevDay = 1
	}
	if state.LastRefresh.IsZero() {
		// Состояние без метки рефреша оставляет билдер; не трогаем.
		return nil
	}

	now := s.clock.Now()
	elapsed := now.Sub(state.LastRefresh)
	if elapsed < graceWindow {
		return nil
	}
	if elapsed < s.cfg.Cadence.Period {
		return nil
	}

	advance := int(elapsed / s.cfg.Cadence.Period)
	if advance < 1 {
		advance = 1
	}
	if s.cfg.Cadence.SingleStep {
		advance = 1
	}
	newDay := prevDay + advance
	if newDay > s.cfg.ScheduleDays {
		newDay = s.cfg.ScheduleDays
	}

	apply := func() error {
		return s.applyTransition(ctx, userID, prevDay, newDay, now)
	}
	if s.cache != nil {
		// Подавление гонки параллельных рефрешей. Строго best-effort:
		// проскочившие мимо замка запишут те же идемпотентные предикаты.
		return s.cache.Once(refreshGateKey(userID), graceWindow, apply)
	}
	return apply()
}

// applyTransition переписывает статусы в порядке, сохраняющем инвариант
// «не более одного hot на язык» в каждой промежуточной точке: сначала
// разжаловать старые hot, затем добрать отставшие scheduled, затем
// назначить новый hot, и только после этого сдвинуть указатель.
func (s *Service) applyTransition(ctx context.Context, userID uuid.UUID, prevDay, newDay int, now time.Time) error {
	if err := s.schedules.DemoteHot(ctx, userID); err != nil {
		return fmt.Errorf("архивация hot-слотов: %w", err)
	}
	if err := s.schedules.ArchiveBefore(ctx, userID, newDay); err != nil {
		return fmt.Errorf("архивация прошедших слотов: %w", err)
	}
	if err := s.schedules.PromoteDay(ctx, userID, newDay); err != nil {
		return fmt.Errorf("назначение hot-слота: %w", err)
	}
	applied, err := s.schedules.AdvanceState(ctx, userID, prevDay, newDay, now)
	if err != nil {
		return fmt.Errorf("сдвиг указателя дня: %w", err)
	}
	if applied && newDay > prevDay {
		metrics.AddRefreshAdvance(newDay - prevDay)
	}
	return nil
}

func refreshGateKey(userID uuid.UUID) string {
	return "rotation:refresh:" + userID.String()
}
