package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryStatus описывает статус слота расписания.
type EntryStatus string

const (
	// StatusScheduled — слот ещё не наступил.
	StatusScheduled EntryStatus = "scheduled"
	// StatusHot — слот текущего дня, материал показывается первым.
	StatusHot EntryStatus = "hot"
	// StatusArchive — слот уже прошёл, материал доступен в архиве.
	StatusArchive EntryStatus = "archive"
)

// ContentItem описывает единицу контента. Записи создаются внешним
// процессом загрузки и движком ротации никогда не изменяются и не удаляются.
// ID общий для всех языковых вариантов одного материала.
type ContentItem struct {
	ID          int64
	Language    string
	Title       string
	Body        string
	Tags        []string
	Category    string
	ImageRef    string
	PublishedAt time.Time
	ReadingTime *int
	Author      string
}

// ScheduleEntry — один слот личного расписания пользователя:
// пара (день, материал) для конкретного языка. Единственное изменяемое
// поле — Status, его переписывает только рефрешер.
type ScheduleEntry struct {
	UserID        uuid.UUID
	ContentItemID int64
	Language      string
	DayNumber     int
	Status        EntryStatus
	UpdatedAt     time.Time
}

// ScheduleState — авторитетное состояние ротации пользователя.
// Хранится одна запись на пользователя: указатель текущего дня общий
// для всех его языков, поэтому синхронизировать между языками нечего.
type ScheduleState struct {
	UserID      uuid.UUID
	StartDate   time.Time
	CurrentDay  int
	LastRefresh time.Time
}
