// Package feed собирает витрину ленты: hot-материал текущего дня и
// постраничный архив прошедших слотов.
package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rotation-feed/internal/domain"
	"rotation-feed/internal/usecase/rotation"
)

// DefaultArchiveLimit используется, когда клиент не передал лимит архива.
const DefaultArchiveLimit = 10

// Page — результат выборки ленты для пользователя и языка.
type Page struct {
	News          []domain.ContentItem
	CurrentDay    int
	TotalArchive  int
	LoadedArchive int
}

// Service отвечает за read-сторону ротации. Initial и Update по контракту
// старого дашборда сначала гарантируют расписание и прогоняют рефреш,
// CurrentDay и ArchivePage — чисто читающие операции.
type Service struct {
	rotation  *rotation.Service
	schedules domain.ScheduleRepo
	feed      domain.FeedRepo
}

// NewService создаёт сервис ленты.
func NewService(rotationSvc *rotation.Service, schedules domain.ScheduleRepo, feedRepo domain.FeedRepo) *Service {
	return &Service{rotation: rotationSvc, schedules: schedules, feed: feedRepo}
}

// Initial возвращает hot-материал и первую страницу архива.
// Слот hot определяется слотом day_number = current_day; архив — слотами
// прошедших дней, отсортированными для показа по дате публикации по убыванию.
func (s *Service) Initial(ctx context.Context, userID uuid.UUID, language string, archiveLimit int) (Page, error) {
	if archiveLimit <= 0 {
		archiveLimit = DefaultArchiveLimit
	}
	state, err := s.prepare(ctx, userID, language)
	if err != nil {
		return Page{}, err
	}

	hot, err := s.feed.HotItem(ctx, userID, language)
	if err != nil {
		return Page{}, fmt.Errorf("чтение hot-материала: %w", err)
	}
	total, err := s.feed.CountArchive(ctx, userID, language)
	if err != nil {
		return Page{}, fmt.Errorf("подсчёт архива: %w", err)
	}
	archive, err := s.feed.ArchivePage(ctx, userID, language, 0, archiveLimit)
	if err != nil {
		return Page{}, fmt.Errorf("чтение архива: %w", err)
	}

	news := make([]domain.ContentItem, 0, len(archive)+1)
	if hot != nil {
		news = append(news, *hot)
	}
	news = append(news, archive...)
	return Page{
		News:          news,
		CurrentDay:    state.CurrentDay,
		TotalArchive:  total,
		LoadedArchive: len(archive),
	}, nil
}

// Update возвращает только hot-материал — дешёвый инкрементальный опрос.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, language string) (Page, error) {
	state, err := s.prepare(ctx, userID, language)
	if err != nil {
		return Page{}, err
	}
	hot, err := s.feed.HotItem(ctx, userID, language)
	if err != nil {
		return Page{}, fmt.Errorf("чтение hot-материала: %w", err)
	}
	page := Page{CurrentDay: state.CurrentDay}
	if hot != nil {
		page.News = []domain.ContentItem{*hot}
	}
	return page, nil
}

// ArchivePage возвращает страницу архива. Чистое чтение: расписание
// не создаётся и не продвигается.
func (s *Service) ArchivePage(ctx context.Context, userID uuid.UUID, language string, offset, limit int) (Page, error) {
	if limit <= 0 {
		limit = DefaultArchiveLimit
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.schedules.GetState(ctx, userID); err != nil {
		return Page{}, err
	}
	total, err := s.feed.CountArchive(ctx, userID, language)
	if err != nil {
		return Page{}, fmt.Errorf("подсчёт архива: %w", err)
	}
	items, err := s.feed.ArchivePage(ctx, userID, language, offset, limit)
	if err != nil {
		return Page{}, fmt.Errorf("чтение архива: %w", err)
	}
	return Page{News: items, TotalArchive: total, LoadedArchive: len(items)}, nil
}

// CurrentDay возвращает указатель текущего дня. Чистое чтение.
func (s *Service) CurrentDay(ctx context.Context, userID uuid.UUID) (int, error) {
	state, err := s.schedules.GetState(ctx, userID)
	if err != nil {
		return 0, err
	}
	return state.CurrentDay, nil
}

func (s *Service) prepare(ctx context.Context, userID uuid.UUID, language string) (domain.ScheduleState, error) {
	if err := s.rotation.EnsureSchedule(ctx, userID, language); err != nil {
		return domain.ScheduleState{}, fmt.Errorf("создание расписания: %w", err)
	}
	if err := s.rotation.Refresh(ctx, userID); err != nil {
		return domain.ScheduleState{}, fmt.Errorf("продвижение расписания: %w", err)
	}
	state, err := s.schedules.GetState(ctx, userID)
	if errors.Is(err, domain.ErrNoSchedule) {
		// Пул контента пуст, билдер отложил создание.
		return domain.ScheduleState{}, domain.ErrNoSchedule
	}
	if err != nil {
		return domain.ScheduleState{}, fmt.Errorf("чтение состояния: %w", err)
	}
	return state, nil
}
