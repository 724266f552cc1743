// Package storage persists user sources, schedules, and delivery attempts in
// Postgres. The article cache never touches storage; it is rebuilt from the
// source lists and live fetches on every process start.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/genre"
	"github.com/Hori98/Audion-sub008/internal/ports"
)

// PostgresRepository implements the source, schedule, and attempt ports.
type PostgresRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var (
	_ ports.SourceRepository   = (*PostgresRepository)(nil)
	_ ports.ScheduleRepository = (*PostgresRepository)(nil)
	_ ports.AttemptRecorder    = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// SourcesByOwner lists the user's sources ordered by creation.
func (r *PostgresRepository) SourcesByOwner(ctx context.Context, ownerID string) ([]domain.Source, error) {
	query, args, err := r.sb.
		Select("id", "name", "url", "is_active").
		From("user_sources").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		src := domain.Source{Origin: domain.OriginUser}
		if err := rows.Scan(&src.ID, &src.Name, &src.URL, &src.Active); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return sources, nil
}

// SourceByID resolves one user source.
func (r *PostgresRepository) SourceByID(ctx context.Context, id string) (domain.Source, error) {
	query, args, err := r.sb.
		Select("id", "name", "url", "is_active").
		From("user_sources").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Source{}, fmt.Errorf("build query: %w", err)
	}

	src := domain.Source{Origin: domain.OriginUser}
	row := r.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&src.ID, &src.Name, &src.URL, &src.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Source{}, fmt.Errorf("%w: source %s", domain.ErrNotFound, id)
		}
		return domain.Source{}, fmt.Errorf("scan source: %w", err)
	}

	return src, nil
}

// SaveSource inserts a new user source.
func (r *PostgresRepository) SaveSource(ctx context.Context, ownerID string, src domain.Source) error {
	query, args, err := r.sb.
		Insert("user_sources").
		Columns("id", "owner_id", "name", "url", "is_active", "created_at").
		Values(src.ID, ownerID, src.Name, src.URL, src.Active, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

// UpdateSource persists name, URL, and active-flag changes.
func (r *PostgresRepository) UpdateSource(ctx context.Context, src domain.Source) error {
	query, args, err := r.sb.
		Update("user_sources").
		Set("name", src.Name).
		Set("url", src.URL).
		Set("is_active", src.Active).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": src.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, src.ID)
	}
	return nil
}

// DeleteSource removes a user source permanently.
func (r *PostgresRepository) DeleteSource(ctx context.Context, id string) error {
	query, args, err := r.sb.
		Delete("user_sources").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, id)
	}
	return nil
}

// ActiveSchedules lists every schedule eligible for the driver tick.
func (r *PostgresRepository) ActiveSchedules(ctx context.Context) ([]domain.Schedule, error) {
	query, args, err := r.sb.
		Select("id", "owner_id", "name", "is_active", "trigger_type", "trigger_spec",
			"max_articles", "preferred_genres", "active_source_ids", "next_run_at").
		From("schedules").
		Where(sq.Eq{"is_active": true}).
		OrderBy("next_run_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return schedules, nil
}

// ScheduleByID resolves one schedule.
func (r *PostgresRepository) ScheduleByID(ctx context.Context, id string) (domain.Schedule, error) {
	query, args, err := r.sb.
		Select("id", "owner_id", "name", "is_active", "trigger_type", "trigger_spec",
			"max_articles", "preferred_genres", "active_source_ids", "next_run_at").
		From("schedules").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("build query: %w", err)
	}

	sched, err := scanSchedule(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Schedule{}, fmt.Errorf("%w: schedule %s", domain.ErrNotFound, id)
		}
		return domain.Schedule{}, err
	}
	return sched, nil
}

// SaveSchedule upserts the schedule snapshot.
func (r *PostgresRepository) SaveSchedule(ctx context.Context, sched domain.Schedule) error {
	genres := make([]string, 0, len(sched.Preferences.PreferredGenres))
	for _, g := range sched.Preferences.PreferredGenres {
		genres = append(genres, string(g))
	}

	query := `INSERT INTO schedules
              (id, owner_id, name, is_active, trigger_type, trigger_spec,
               max_articles, preferred_genres, active_source_ids, next_run_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
              ON CONFLICT (id) DO UPDATE
              SET name = EXCLUDED.name,
                  is_active = EXCLUDED.is_active,
                  trigger_type = EXCLUDED.trigger_type,
                  trigger_spec = EXCLUDED.trigger_spec,
                  max_articles = EXCLUDED.max_articles,
                  preferred_genres = EXCLUDED.preferred_genres,
                  active_source_ids = EXCLUDED.active_source_ids,
                  next_run_at = EXCLUDED.next_run_at,
                  updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		sched.ID,
		sched.OwnerID,
		sched.Name,
		sched.Active,
		string(sched.TriggerType),
		sched.TriggerSpec,
		sched.Preferences.MaxArticles,
		pq.StringArray(genres),
		pq.StringArray(sched.Preferences.ActiveSourceIDs),
		sched.NextRunAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

// UpdateNextRun advances only the next fire time so a finishing delivery
// never clobbers concurrent schedule edits.
func (r *PostgresRepository) UpdateNextRun(ctx context.Context, id string, nextRunAt time.Time) error {
	query, args, err := r.sb.
		Update("schedules").
		Set("next_run_at", nextRunAt.UTC()).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update next run: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: schedule %s", domain.ErrNotFound, id)
	}
	return nil
}

// DeleteSchedule removes a schedule permanently.
func (r *PostgresRepository) DeleteSchedule(ctx context.Context, id string) error {
	query, args, err := r.sb.
		Delete("schedules").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: schedule %s", domain.ErrNotFound, id)
	}
	return nil
}

// RecordAttempt appends one immutable delivery audit record.
func (r *PostgresRepository) RecordAttempt(ctx context.Context, attempt domain.DeliveryAttempt) error {
	query, args, err := r.sb.
		Insert("delivery_attempts").
		Columns("schedule_id", "started_at", "outcome", "article_count", "audio_id").
		Values(attempt.ScheduleID, attempt.StartedAt.UTC(), string(attempt.Outcome), attempt.ArticleCount, attempt.AudioID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (domain.Schedule, error) {
	var (
		sched       domain.Schedule
		triggerType string
		genres      pq.StringArray
		sourceIDs   pq.StringArray
		nextRunAt   sql.NullTime
	)

	err := row.Scan(
		&sched.ID,
		&sched.OwnerID,
		&sched.Name,
		&sched.Active,
		&triggerType,
		&sched.TriggerSpec,
		&sched.Preferences.MaxArticles,
		&genres,
		&sourceIDs,
		&nextRunAt,
	)
	if err != nil {
		return domain.Schedule{}, err
	}

	sched.TriggerType = domain.TriggerType(triggerType)
	for _, g := range genres {
		sched.Preferences.PreferredGenres = append(sched.Preferences.PreferredGenres, genre.Genre(g))
	}
	sched.Preferences.ActiveSourceIDs = []string(sourceIDs)
	if nextRunAt.Valid {
		sched.NextRunAt = nextRunAt.Time
	}

	return sched, nil
}
