package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoSchedule возвращается, когда у пользователя ещё нет состояния ротации.
// Это не сбой, а предусловие: сначала должен отработать билдер.
var ErrNoSchedule = errors.New("расписание не найдено")

// ContentRepo читает пул контента.
type ContentRepo interface {
	// ListIDsByLanguage возвращает канонический упорядоченный набор
	// идентификаторов материалов для указанного языка
	// (по возрастанию даты публикации, затем по id).
	ListIDsByLanguage(ctx context.Context, language string) ([]int64, error)
}

// ScheduleRepo управляет слотами и состоянием ротации пользователя.
type ScheduleRepo interface {
	// GetState возвращает состояние ротации или ErrNoSchedule.
	GetState(ctx context.Context, userID uuid.UUID) (ScheduleState, error)
	// CreateState создаёт состояние, если его ещё нет.
	// Возвращает true, если запись была создана.
	CreateState(ctx context.Context, state ScheduleState) (bool, error)
	// AdvanceState переводит указатель дня compare-and-set записью:
	// обновление применяется только если current_day всё ещё равен prevDay.
	// Проигранная гонка — это сошедшийся no-op, не ошибка.
	AdvanceState(ctx context.Context, userID uuid.UUID, prevDay, newDay int, lastRefresh time.Time) (bool, error)

	// InsertEntries вставляет пакет слотов; уже существующие пары
	// (user, item, language) пропускаются.
	InsertEntries(ctx context.Context, entries []ScheduleEntry) error
	// CountEntries возвращает число слотов пользователя для языка.
	CountEntries(ctx context.Context, userID uuid.UUID, language string) (int, error)

	// DemoteHot переводит все «hot» слоты пользователя (во всех языках) в архив.
	DemoteHot(ctx context.Context, userID uuid.UUID) error
	// ArchiveBefore переводит в архив все слоты с day_number < day.
	ArchiveBefore(ctx context.Context, userID uuid.UUID, day int) error
	// PromoteDay помечает слоты с day_number = day как «hot».
	PromoteDay(ctx context.Context, userID uuid.UUID, day int) error
}

// FeedRepo собирает витрину ленты из слотов и контента.
type FeedRepo interface {
	// HotItem возвращает материал текущего дня для языка или nil,
	// если локализованного варианта нет.
	HotItem(ctx context.Context, userID uuid.UUID, language string) (*ContentItem, error)
	// ArchivePage возвращает страницу архива, отсортированную
	// по дате публикации по убыванию.
	ArchivePage(ctx context.Context, userID uuid.UUID, language string, offset, limit int) ([]ContentItem, error)
	// CountArchive возвращает полный размер архива для языка.
	CountArchive(ctx context.Context, userID uuid.UUID, language string) (int, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}

// Clock отдаёт текущее время; в тестах подменяется фальшивыми часами.
type Clock interface {
	Now() time.Time
}

// SystemClock — часы по настоящему времени.
type SystemClock struct{}

// Now возвращает текущее время.
func (SystemClock) Now() time.Time { return time.Now() }
