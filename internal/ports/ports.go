package ports

import (
	"context"
	"time"

	"github.com/Hori98/Audion-sub008/internal/domain"
)

// FeedFetcher pulls current entries from one RSS source.
type FeedFetcher interface {
	Fetch(ctx context.Context, src domain.Source) ([]domain.Article, error)
}

// SourceRepository persists user-managed sources. Curated sources live in
// config and never hit storage.
type SourceRepository interface {
	SourcesByOwner(ctx context.Context, ownerID string) ([]domain.Source, error)
	SourceByID(ctx context.Context, id string) (domain.Source, error)
	SaveSource(ctx context.Context, ownerID string, src domain.Source) error
	UpdateSource(ctx context.Context, src domain.Source) error
	DeleteSource(ctx context.Context, id string) error
}

// ScheduleRepository persists per-user delivery schedules.
type ScheduleRepository interface {
	ActiveSchedules(ctx context.Context) ([]domain.Schedule, error)
	ScheduleByID(ctx context.Context, id string) (domain.Schedule, error)
	SaveSchedule(ctx context.Context, sched domain.Schedule) error
	UpdateNextRun(ctx context.Context, id string, nextRunAt time.Time) error
	DeleteSchedule(ctx context.Context, id string) error
}

// AttemptRecorder appends immutable delivery audit records.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error
}

// AudioCreator calls the downstream audio-generation service.
type AudioCreator interface {
	Create(ctx context.Context, req domain.AudioRequest) (domain.AudioProgram, error)
}

// Notifier dispatches fire-and-forget completion and error events.
type Notifier interface {
	Notify(ctx context.Context, evt domain.Notification) error
}

// Analytics records best-effort delivery metrics.
type Analytics interface {
	Track(ctx context.Context, stats domain.DeliveryStats) error
}

// PreferenceProvider returns learned per-user preferences when
// personalization is enabled; implementations may return zero values.
type PreferenceProvider interface {
	LearnedPreferences(ctx context.Context, ownerID string) (domain.Preferences, error)
}

// CacheInvalidator marks a scope's cached article set stale after source
// mutations; the next read forces a refresh.
type CacheInvalidator interface {
	Invalidate(scope domain.Scope)
}
