package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BuildJobCause описывает источник задачи на построение расписания.
type BuildJobCause string

const (
	// BuildCauseRequest — API обнаружил неполное расписание при запросе.
	BuildCauseRequest BuildJobCause = "request"
	// BuildCauseBackfill — плановое построение (новый язык, прогрев).
	BuildCauseBackfill BuildJobCause = "backfill"
)

// BuildJob содержит информацию о задаче построения или ремонта расписания.
type BuildJob struct {
	ID          string        `json:"job_id,omitempty"`
	UserID      uuid.UUID     `json:"user_id"`
	Language    string        `json:"language"`
	RequestedAt time.Time     `json:"requested_at"`
	Cause       BuildJobCause `json:"cause"`
}

// BuildQueue описывает очередь задач построения расписаний.
type BuildQueue interface {
	Enqueue(ctx context.Context, job BuildJob) error
	Pop(ctx context.Context) (BuildJob, error)
}
