package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rotation-feed/internal/domain"
	"rotation-feed/internal/infra/metrics"
)

// Postgres реализует репозитории контента и расписаний на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ContentRepo  = (*Postgres)(nil)
	_ domain.ScheduleRepo = (*Postgres)(nil)
	_ domain.FeedRepo     = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// ListIDsByLanguage возвращает идентификаторы материалов эталонного языка
// по возрастанию даты публикации. Этот порядок — вход перестановки,
// менять его нельзя.
func (p *Postgres) ListIDsByLanguage(ctx context.Context, language string) ([]int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id FROM content_item WHERE language=$1 ORDER BY published_at, id
`, language)
	metrics.ObserveNetworkRequest("postgres", "content_list_ids", "content_item", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetState возвращает состояние ротации пользователя.
func (p *Postgres) GetState(ctx context.Context, userID uuid.UUID) (domain.ScheduleState, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var state domain.ScheduleState
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT user_id, start_date, current_day, last_refresh FROM schedule_state WHERE user_id=$1
`, userID).Scan(&state.UserID, &state.StartDate, &state.CurrentDay, &state.LastRefresh)
	metrics.ObserveNetworkRequest("postgres", "state_get", "schedule_state", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScheduleState{}, domain.ErrNoSchedule
	}
	if err != nil {
		return domain.ScheduleState{}, err
	}
	return state, nil
}

// CreateState создаёт состояние ротации; конфликт по user_id означает,
// что параллельный вызов успел первым, и это не ошибка.
func (p *Postgres) CreateState(ctx context.Context, state domain.ScheduleState) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
INSERT INTO schedule_state (user_id, start_date, current_day, last_refresh)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO NOTHING
`, state.UserID, state.StartDate, state.CurrentDay, state.LastRefresh)
	metrics.ObserveNetworkRequest("postgres", "state_create", "schedule_state", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// AdvanceState сдвигает указатель дня compare-and-set записью.
func (p *Postgres) AdvanceState(ctx context.Context, userID uuid.UUID, prevDay, newDay int, lastRefresh time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE schedule_state SET current_day=$2, last_refresh=$3 WHERE user_id=$1 AND current_day=$4
`, userID, newDay, lastRefresh, prevDay)
	metrics.ObserveNetworkRequest("postgres", "state_advance", "schedule_state", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// InsertEntries вставляет пакет слотов одним batch-запросом.
// Существующие пары (user, item, language) пропускаются, поэтому
// достройка частичного расписания безопасна.
func (p *Postgres) InsertEntries(ctx context.Context, entries []domain.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
INSERT INTO schedule_entry (user_id, content_item_id, language, day_number, status, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, content_item_id, language) DO NOTHING
`, e.UserID, e.ContentItemID, e.Language, e.DayNumber, string(e.Status), e.UpdatedAt)
	}
	start := time.Now()
	results := p.pool.SendBatch(ctx, batch)
	var firstErr error
	for range entries {
		if _, err := results.Exec(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := results.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	metrics.ObserveNetworkRequest("postgres", "entries_insert_batch", "schedule_entry", start, firstErr)
	return firstErr
}

// CountEntries возвращает число слотов пользователя для языка.
func (p *Postgres) CountEntries(ctx context.Context, userID uuid.UUID, language string) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FROM schedule_entry WHERE user_id=$1 AND language=$2
`, userID, language).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "entries_count", "schedule_entry", start, err)
	return count, err
}

// DemoteHot переводит все hot-слоты пользователя в архив во всех языках.
func (p *Postgres) DemoteHot(ctx context.Context, userID uuid.UUID) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE schedule_entry SET status='archive', updated_at=now() WHERE user_id=$1 AND status='hot'
`, userID)
	metrics.ObserveNetworkRequest("postgres", "entries_demote_hot", "schedule_entry", start, err)
	return err
}

// ArchiveBefore переводит в архив все слоты с day_number < day.
func (p *Postgres) ArchiveBefore(ctx context.Context, userID uuid.UUID, day int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE schedule_entry SET status='archive', updated_at=now()
WHERE user_id=$1 AND day_number<$2 AND status<>'archive'
`, userID, day)
	metrics.ObserveNetworkRequest("postgres", "entries_archive_before", "schedule_entry", start, err)
	return err
}

// PromoteDay помечает слоты указанного дня как hot во всех языках.
func (p *Postgres) PromoteDay(ctx context.Context, userID uuid.UUID, day int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE schedule_entry SET status='hot', updated_at=now() WHERE user_id=$1 AND day_number=$2
`, userID, day)
	metrics.ObserveNetworkRequest("postgres", "entries_promote_day", "schedule_entry", start, err)
	return err
}

const contentColumns = `c.id, c.language, c.title, c.body, c.tags, c.category, c.image_ref, c.published_at, c.reading_time, c.author`

func scanContentItem(row pgx.Row) (domain.ContentItem, error) {
	var item domain.ContentItem
	var imageRef, author sql.NullString
	var readingTime sql.NullInt32
	err := row.Scan(&item.ID, &item.Language, &item.Title, &item.Body, &item.Tags, &item.Category, &imageRef, &item.PublishedAt, &readingTime, &author)
	if err != nil {
		return domain.ContentItem{}, err
	}
	if imageRef.Valid {
		item.ImageRef = imageRef.String
	}
	if author.Valid {
		item.Author = author.String
	}
	if readingTime.Valid {
		rt := int(readingTime.Int32)
		item.ReadingTime = &rt
	}
	return item, nil
}

// HotItem возвращает материал текущего дня для языка. Отсутствие строки —
// не ошибка: у языка может не быть локализации hot-материала.
func (p *Postgres) HotItem(ctx context.Context, userID uuid.UUID, language string) (*domain.ContentItem, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+contentColumns+`
FROM schedule_entry e
JOIN content_item c ON c.id = e.content_item_id AND c.language = e.language
WHERE e.user_id=$1 AND e.language=$2 AND e.status='hot'
LIMIT 1
`, userID, language)
	item, err := scanContentItem(row)
	metrics.ObserveNetworkRequest("postgres", "feed_hot_item", "schedule_entry", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ArchivePage возвращает страницу архива, отсортированную по дате
// публикации по убыванию (порядок показа; порядок слотов хранит day_number).
func (p *Postgres) ArchivePage(ctx context.Context, userID uuid.UUID, language string, offset, limit int) ([]domain.ContentItem, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+contentColumns+`
FROM schedule_entry e
JOIN content_item c ON c.id = e.content_item_id AND c.language = e.language
WHERE e.user_id=$1 AND e.language=$2 AND e.status='archive'
ORDER BY c.published_at DESC, c.id DESC
OFFSET $3 LIMIT $4
`, userID, language, offset, limit)
	metrics.ObserveNetworkRequest("postgres", "feed_archive_page", "schedule_entry", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountArchive возвращает полный размер архива для языка.
func (p *Postgres) CountArchive(ctx context.Context, userID uuid.UUID, language string) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT count(*)
FROM schedule_entry e
JOIN content_item c ON c.id = e.content_item_id AND c.language = e.language
WHERE e.user_id=$1 AND e.language=$2 AND e.status='archive'
`, userID, language).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "feed_archive_count", "schedule_entry", start, err)
	return count, err
}

// DeleteUserSchedule удаляет расписание и состояние пользователя.
// Используется только обслуживанием (запрос на удаление данных);
// сам движок ротации никогда ничего не удаляет.
func (p *Postgres) DeleteUserSchedule(ctx context.Context, userID uuid.UUID) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM schedule_entry WHERE user_id=$1`, userID)
	metrics.ObserveNetworkRequest("postgres", "entries_delete_user", "schedule_entry", start, err)
	if err != nil {
		return fmt.Errorf("удаление слотов: %w", err)
	}
	start = time.Now()
	_, err = p.pool.Exec(ctx, `DELETE FROM schedule_state WHERE user_id=$1`, userID)
	metrics.ObserveNetworkRequest("postgres", "state_delete_user", "schedule_state", start, err)
	if err != nil {
		return fmt.Errorf("удаление состояния: %w", err)
	}
	return nil
}
