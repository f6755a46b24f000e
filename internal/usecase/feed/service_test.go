package feed

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rotation-feed/internal/domain"
	"rotation-feed/internal/usecase/rotation"
)

var testUserID = uuid.MustParse("abcdef12-3456-7890-abcd-ef1234567890")

type itemKey struct {
	id   int64
	lang string
}

type entryKey struct {
	item int64
	lang string
}

// stubStore — репозитории контента, расписания и ленты в памяти,
// с той же семантикой статусных предикатов, что и у Postgres-адаптера.
type stubStore struct {
	items   map[itemKey]domain.ContentItem
	state   *domain.ScheduleState
	entries map[entryKey]*domain.ScheduleEntry
}

func newStubStore() *stubStore {
	return &stubStore{
		items:   map[itemKey]domain.ContentItem{},
		entries: map[entryKey]*domain.ScheduleEntry{},
	}
}

func (s *stubStore) addItem(id int64, lang string, publishedAt time.Time) {
	s.items[itemKey{id: id, lang: lang}] = domain.ContentItem{
		ID:          id,
		Language:    lang,
		Title:       "материал",
		Body:        "текст",
		PublishedAt: publishedAt,
	}
}

func (s *stubStore) ListIDsByLanguage(_ context.Context, lang string) ([]int64, error) {
	var ids []int64
	for key := range s.items {
		if key.lang == lang {
			ids = append(ids, key.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a := s.items[itemKey{id: ids[i], lang: lang}]
		b := s.items[itemKey{id: ids[j], lang: lang}]
		if a.PublishedAt.Equal(b.PublishedAt) {
			return a.ID < b.ID
		}
		return a.PublishedAt.Before(b.PublishedAt)
	})
	return ids, nil
}

func (s *stubStore) GetState(context.Context, uuid.UUID) (domain.ScheduleState, error) {
	if s.state == nil {
		return domain.ScheduleState{}, domain.ErrNoSchedule
	}
	return *s.state, nil
}

func (s *stubStore) CreateState(_ context.Context, state domain.ScheduleState) (bool, error) {
	if s.state != nil {
		return false, nil
	}
	copied := state
	s.state = &copied
	return true, nil
}

func (s *stubStore) AdvanceState(_ context.Context, _ uuid.UUID, prevDay, newDay int, lastRefresh time.Time) (bool, error) {
	if s.state == nil || s.state.CurrentDay != prevDay {
		return false, nil
	}
	s.state.CurrentDay = newDay
	s.state.LastRefresh = lastRefresh
	return true, nil
}

func (s *stubStore) InsertEntries(_ context.Context, entries []domain.ScheduleEntry) error {
	for _, e := range entries {
		key := entryKey{item: e.ContentItemID, lang: e.Language}
		if _, ok := s.entries[key]; ok {
			continue
		}
		copied := e
		s.entries[key] = &copied
	}
	return nil
}

func (s *stubStore) CountEntries(_ context.Context, _ uuid.UUID, language string) (int, error) {
	count := 0
	for key := range s.entries {
		if key.lang == language {
			count++
		}
	}
	return count, nil
}

func (s *stubStore) DemoteHot(context.Context, uuid.UUID) error {
	for _, e := range s.entries {
		if e.Status == domain.StatusHot {
			e.Status = domain.StatusArchive
		}
	}
	return nil
}

func (s *stubStore) ArchiveBefore(_ context.Context, _ uuid.UUID, day int) error {
	for _, e := range s.entries {
		if e.DayNumber < day {
			e.Status = domain.StatusArchive
		}
	}
	return nil
}

func (s *stubStore) PromoteDay(_ context.Context, _ uuid.UUID, day int) error {
	for _, e := range s.entries {
		if e.DayNumber == day {
			e.Status = domain.StatusHot
		}
	}
	return nil
}

func (s *stubStore) HotItem(_ context.Context, _ uuid.UUID, language string) (*domain.ContentItem, error) {
	for _, e := range s.entries {
		if e.Language == language && e.Status == domain.StatusHot {
			if item, ok := s.items[itemKey{id: e.ContentItemID, lang: language}]; ok {
				return &item, nil
			}
			return nil, nil
		}
	}
	return nil, nil
}

func (s *stubStore) archiveItems(language string) []domain.ContentItem {
	var items []domain.ContentItem
	for _, e := range s.entries {
		if e.Language != language || e.Status != domain.StatusArchive {
			continue
		}
		if item, ok := s.items[itemKey{id: e.ContentItemID, lang: language}]; ok {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
	return items
}

func (s *stubStore) ArchivePage(_ context.Context, _ uuid.UUID, language string, offset, limit int) ([]domain.ContentItem, error) {
	items := s.archiveItems(language)
	if offset >= len(items) {
		return nil, nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *stubStore) CountArchive(_ context.Context, _ uuid.UUID, language string) (int, error) {
	return len(s.archiveItems(language)), nil
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestFeed собирает стенд: пул из n материалов на языках ru и kz,
// даты публикации идут с шагом в сутки.
func newTestFeed(n int, days int) (*stubStore, *Service, *fakeClock) {
	store := newStubStore()
	for i := 1; i <= n; i++ {
		published := baseTime.AddDate(0, 0, -n+i)
		store.addItem(int64(i), "ru", published)
		store.addItem(int64(i), "kz", published)
	}
	clock := &fakeClock{now: baseTime}
	rotationSvc := rotation.NewService(store, store, nil, clock, rotation.Config{
		Cadence:       rotation.CadenceProduction,
		ScheduleDays:  days,
		InsertBatch:   50,
		ReferenceLang: "ru",
	}, zerolog.Nop())
	return store, NewService(rotationSvc, store, store), clock
}

func TestInitialBuildsSchedule(t *testing.T) {
	store, svc, _ := newTestFeed(200, 180)

	page, err := svc.Initial(context.Background(), testUserID, "ru", 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if page.CurrentDay != 1 {
		t.Fatalf("ожидали первый день, получили %d", page.CurrentDay)
	}
	if len(page.News) != 1 {
		t.Fatalf("ожидали только hot-материал, получили %d позиций", len(page.News))
	}
	if page.TotalArchive != 0 || page.LoadedArchive != 0 {
		t.Fatalf("свежая лента не должна иметь архива")
	}
	if store.state == nil {
		t.Fatalf("ожидали созданное состояние ротации")
	}
	hot, _ := store.HotItem(context.Background(), testUserID, "ru")
	if hot == nil || hot.ID != page.News[0].ID {
		t.Fatalf("первая позиция ленты должна быть hot-материалом")
	}
}

func TestInitialAdvancesAndPaginatesArchive(t *testing.T) {
	_, svc, clock := newTestFeed(200, 180)

	if _, err := svc.Initial(context.Background(), testUserID, "ru", 10); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// Пять суток спустя: день 6, в архиве пять материалов.
	clock.now = baseTime.Add(5 * 24 * time.Hour)
	page, err := svc.Initial(context.Background(), testUserID, "ru", 3)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if page.CurrentDay != 6 {
		t.Fatalf("ожидали день 6, получили %d", page.CurrentDay)
	}
	if page.TotalArchive != 5 {
		t.Fatalf("ожидали 5 материалов в архиве, получили %d", page.TotalArchive)
	}
	if page.LoadedArchive != 3 {
		t.Fatalf("ожидали страницу из 3 материалов, получили %d", page.LoadedArchive)
	}
	if len(page.News) != 4 {
		t.Fatalf("ожидали hot + 3 архивных, получили %d", len(page.News))
	}
	// Архив показывается по дате публикации по убыванию.
	archive := page.News[1:]
	for i := 1; i < len(archive); i++ {
		if archive[i].PublishedAt.After(archive[i-1].PublishedAt) {
			t.Fatalf("архив не отсортирован по дате публикации")
		}
	}
}

func TestInitialEmptyPool(t *testing.T) {
	_, svc, _ := newTestFeed(0, 180)
	_, err := svc.Initial(context.Background(), testUserID, "ru", 10)
	if !errors.Is(err, domain.ErrNoSchedule) {
		t.Fatalf("ожидали ErrNoSchedule, получили %v", err)
	}
}

func TestUpdateReturnsOnlyHot(t *testing.T) {
	_, svc, _ := newTestFeed(200, 180)

	page, err := svc.Update(context.Background(), testUserID, "ru")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(page.News) != 1 {
		t.Fatalf("ожидали один hot-материал, получили %d", len(page.News))
	}
	if page.CurrentDay != 1 {
		t.Fatalf("ожидали первый день, получили %d", page.CurrentDay)
	}
}

func TestUpdateMissingLocalization(t *testing.T) {
	store, svc, _ := newTestFeed(200, 180)

	if _, err := svc.Update(context.Background(), testUserID, "ru"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// У hot-материала нет kz-локализации: news должен быть пуст.
	hot, _ := store.HotItem(context.Background(), testUserID, "ru")
	delete(store.items, itemKey{id: hot.ID, lang: "kz"})

	page, err := svc.Update(context.Background(), testUserID, "kz")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(page.News) != 0 {
		t.Fatalf("ожидали пустой news при отсутствии локализации")
	}
}

func TestArchivePagePureRead(t *testing.T) {
	store, svc, clock := newTestFeed(200, 180)

	if _, err := svc.Initial(context.Background(), testUserID, "ru", 10); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	clock.now = baseTime.Add(10 * 24 * time.Hour)
	if _, err := svc.Initial(context.Background(), testUserID, "ru", 10); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	day := store.state.CurrentDay

	// Архивная страница не продвигает расписание даже спустя время.
	clock.now = clock.now.Add(5 * 24 * time.Hour)
	page, err := svc.ArchivePage(context.Background(), testUserID, "ru", 2, 4)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if store.state.CurrentDay != day {
		t.Fatalf("чтение архива продвинуло указатель дня")
	}
	if page.TotalArchive != day-1 {
		t.Fatalf("ожидали %d материалов в архиве, получили %d", day-1, page.TotalArchive)
	}
	if page.LoadedArchive != 4 {
		t.Fatalf("ожидали страницу из 4 материалов, получили %d", page.LoadedArchive)
	}

	full, err := svc.ArchivePage(context.Background(), testUserID, "ru", 0, 100)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for i, item := range full.News[2:6] {
		if item.ID != page.News[i].ID {
			t.Fatalf("смещение страницы нарушило порядок архива")
		}
	}
}

func TestArchivePageWithoutSchedule(t *testing.T) {
	_, svc, _ := newTestFeed(200, 180)
	_, err := svc.ArchivePage(context.Background(), testUserID, "ru", 0, 10)
	if !errors.Is(err, domain.ErrNoSchedule) {
		t.Fatalf("ожидали ErrNoSchedule, получили %v", err)
	}
}

func TestCurrentDayWithoutSchedule(t *testing.T) {
	_, svc, _ := newTestFeed(200, 180)
	_, err := svc.CurrentDay(context.Background(), testUserID)
	if !errors.Is(err, domain.ErrNoSchedule) {
		t.Fatalf("ожидали ErrNoSchedule, получили %v", err)
	}
}
