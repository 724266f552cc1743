// Package delivery fires configured schedules and turns the personalized
// article set into downstream audio-creation requests.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/filter"
	"github.com/Hori98/Audion-sub008/internal/ports"
)

const (
	defaultTick            = time.Minute
	defaultDeliveryTimeout = 2 * time.Minute
	defaultMaxArticles     = 5
)

// ArticleProvider reads the merged article set for a scope; implemented by
// the feedcache engine.
type ArticleProvider interface {
	Articles(ctx context.Context, scope domain.Scope) ([]domain.Article, map[string]error, error)
}

// Deps wires all driven adapters into the orchestrator.
type Deps struct {
	Schedules ports.ScheduleRepository
	Attempts  ports.AttemptRecorder
	Articles  ArticleProvider
	Audio     ports.AudioCreator
	Notifier  ports.Notifier
	Analytics ports.Analytics
	Prefs     ports.PreferenceProvider
	Logger    *slog.Logger

	Tick            time.Duration
	DeliveryTimeout time.Duration
}

// Orchestrator owns the schedule state machine:
// Idle -> Due -> Running -> (Completed | Failed) -> Idle.
// The per-schedule running flag is the only shared mutable state and
// guarantees a schedule never overlaps itself.
type Orchestrator struct {
	schedules ports.ScheduleRepository
	attempts  ports.AttemptRecorder
	articles  ArticleProvider
	audio     ports.AudioCreator
	notifier  ports.Notifier
	analytics ports.Analytics
	prefs     ports.PreferenceProvider
	logger    *slog.Logger

	tick            time.Duration
	deliveryTimeout time.Duration

	mu      sync.Mutex
	running map[string]bool

	now func() time.Time
}

// New constructs the orchestrator from its dependencies.
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tick := deps.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	timeout := deps.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Orchestrator{
		schedules:       deps.Schedules,
		attempts:        deps.Attempts,
		articles:        deps.Articles,
		audio:           deps.Audio,
		notifier:        deps.Notifier,
		analytics:       deps.Analytics,
		prefs:           deps.Prefs,
		logger:          logger,
		tick:            tick,
		deliveryTimeout: timeout,
		running:         make(map[string]bool),
		now:             time.Now,
	}
}

// Start runs the periodic driver loop until the context is cancelled. Each
// tick scans for due schedules; each due schedule is dispatched on its own
// goroutine so one delivery's latency never blocks another's timer check.
func (o *Orchestrator) Start(ctx context.Context) error {
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	o.CheckDue(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.CheckDue(ctx)
		}
	}
}

// CheckDue performs one driver tick: every due, not-yet-running schedule
// transitions to Running. Scan failures are logged, never escalated, so one
// bad tick cannot stop the loop.
func (o *Orchestrator) CheckDue(ctx context.Context) {
	schedules, err := o.schedules.ActiveSchedules(ctx)
	if err != nil {
		o.logger.Error("scan schedules failed", "error", err)
		return
	}

	now := o.now()
	for _, sched := range schedules {
		if !sched.Due(now) {
			continue
		}
		if !o.tryAcquire(sched.ID) {
			continue
		}
		go o.deliver(ctx, sched)
	}
}

// tryAcquire claims the per-schedule running flag; false means the schedule
// is already Running and must not be re-triggered.
func (o *Orchestrator) tryAcquire(scheduleID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[scheduleID] {
		return false
	}
	o.running[scheduleID] = true
	return true
}

func (o *Orchestrator) release(scheduleID string) {
	o.mu.Lock()
	delete(o.running, scheduleID)
	o.mu.Unlock()
}

// deliver executes one Running transition under the delivery deadline and
// always returns the schedule to Idle with a recomputed next run.
func (o *Orchestrator) deliver(ctx context.Context, sched domain.Schedule) {
	defer o.release(sched.ID)

	startedAt := o.now()
	log := o.logger.With("schedule", sched.ID, "owner", sched.OwnerID)

	// A panic in one delivery must not take down the driver loop or the
	// other schedules' goroutines.
	defer func() {
		if r := recover(); r != nil {
			log.Error("delivery panicked", "panic", r)
		}
	}()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.deliveryTimeout)
	defer cancel()

	attempt := o.run(runCtx, sched, startedAt, log)

	// Post-processing gets its own budget: a delivery that timed out must
	// still record its attempt, notify, and return to Idle.
	postCtx, postCancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer postCancel()

	o.record(postCtx, attempt, log)
	o.notify(postCtx, sched, attempt, log)
	o.track(postCtx, attempt, log)
	o.reschedule(postCtx, sched, startedAt, log)
}

// run builds the personalized request and performs the downstream call,
// classifying the outcome.
func (o *Orchestrator) run(ctx context.Context, sched domain.Schedule, startedAt time.Time, log *slog.Logger) domain.DeliveryAttempt {
	attempt := domain.DeliveryAttempt{ScheduleID: sched.ID, StartedAt: startedAt}

	prefs := o.effectivePreferences(ctx, sched)

	candidates, srcErrs, err := o.articles.Articles(ctx, domain.UserScope(sched.OwnerID))
	if err != nil {
		log.Warn("article read failed", "error", err)
	}
	if len(srcErrs) > 0 {
		log.Warn("sources reported errors during delivery", "failed", len(srcErrs))
	}

	candidates = filter.Apply(candidates, filter.Criteria{
		SourceIDs: prefs.ActiveSourceIDs,
		Genres:    prefs.PreferredGenres,
	})
	if prefs.MaxArticles > 0 && len(candidates) > prefs.MaxArticles {
		candidates = candidates[:prefs.MaxArticles]
	}

	attempt.ArticleCount = len(candidates)

	// No wasted downstream request when there is nothing to read aloud.
	if len(candidates) == 0 {
		attempt.Outcome = domain.OutcomeNoContent
		return attempt
	}

	program, err := o.audio.Create(ctx, domain.AudioRequest{
		OwnerID:       sched.OwnerID,
		ArticleIDs:    lo.Map(candidates, func(a domain.Article, _ int) string { return a.ID }),
		ArticleTitles: lo.Map(candidates, func(a domain.Article, _ int) string { return a.Title }),
		ArticleURLs:   lo.Map(candidates, func(a domain.Article, _ int) string { return a.Link }),
		Preferences:   prefs,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDownstreamTimeout) || errors.Is(err, context.DeadlineExceeded) {
			attempt.Outcome = domain.OutcomeTimeout
		} else {
			attempt.Outcome = domain.OutcomeUpstreamError
		}
		log.Warn("audio creation failed", "outcome", attempt.Outcome, "error", err)
		return attempt
	}

	attempt.Outcome = domain.OutcomeSuccess
	attempt.AudioID = program.ID
	return attempt
}

// effectivePreferences merges explicit schedule preferences over learned
// preferences over defaults.
func (o *Orchestrator) effectivePreferences(ctx context.Context, sched domain.Schedule) domain.Preferences {
	defaults := domain.Preferences{MaxArticles: defaultMaxArticles}

	learned := domain.Preferences{}
	if o.prefs != nil {
		var err error
		learned, err = o.prefs.LearnedPreferences(ctx, sched.OwnerID)
		if err != nil {
			o.logger.Debug("learned preferences unavailable", "owner", sched.OwnerID, "error", err)
			learned = domain.Preferences{}
		}
	}

	return sched.Preferences.Merge(learned.Merge(defaults))
}

func (o *Orchestrator) record(ctx context.Context, attempt domain.DeliveryAttempt, log *slog.Logger) {
	if o.attempts == nil {
		return
	}
	if err := o.attempts.RecordAttempt(ctx, attempt); err != nil {
		log.Error("record attempt failed", "error", err)
	}
}

// notify dispatches the completion or error event. Dispatch failure never
// fails the delivery attempt.
func (o *Orchestrator) notify(ctx context.Context, sched domain.Schedule, attempt domain.DeliveryAttempt, log *slog.Logger) {
	if o.notifier == nil {
		return
	}

	var evt domain.Notification
	switch attempt.Outcome {
	case domain.OutcomeSuccess:
		evt = domain.Notification{
			OwnerID: sched.OwnerID,
			Title:   sched.Name,
			Body:    fmt.Sprintf("Your audio program is ready (%d articles).", attempt.ArticleCount),
		}
	case domain.OutcomeNoContent:
		evt = domain.Notification{
			OwnerID: sched.OwnerID,
			Title:   sched.Name,
			Body:    "No new articles matched this delivery.",
		}
	default:
		evt = domain.Notification{
			OwnerID: sched.OwnerID,
			Title:   sched.Name,
			Body:    "The scheduled delivery failed. It will run again at the next scheduled time.",
		}
	}

	if err := o.notifier.Notify(ctx, evt); err != nil {
		log.Warn("notification dispatch failed", "error", err)
	}
}

// track posts best-effort analytics; failures are swallowed.
func (o *Orchestrator) track(ctx context.Context, attempt domain.DeliveryAttempt, log *slog.Logger) {
	if o.analytics == nil {
		return
	}
	err := o.analytics.Track(ctx, domain.DeliveryStats{
		Success:      attempt.Outcome == domain.OutcomeSuccess,
		ArticleCount: attempt.ArticleCount,
		AudioID:      attempt.AudioID,
		Timestamp:    attempt.StartedAt,
	})
	if err != nil {
		log.Debug("analytics dispatch failed", "error", err)
	}
}

// reschedule recomputes NextRunAt from the fire time and returns to Idle.
func (o *Orchestrator) reschedule(ctx context.Context, sched domain.Schedule, firedAt time.Time, log *slog.Logger) {
	next, err := NextRun(sched, firedAt)
	if err != nil {
		log.Error("next run computation failed", "error", err)
		return
	}
	if err := o.schedules.UpdateNextRun(ctx, sched.ID, next); err != nil {
		log.Error("next run update failed", "error", err)
	}
}
