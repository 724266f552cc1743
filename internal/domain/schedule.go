package domain

import (
	"time"

	"github.com/Hori98/Audion-sub008/internal/genre"
)

// TriggerType selects how a schedule computes its next fire time.
type TriggerType string

const (
	TriggerCron     TriggerType = "cron"
	TriggerInterval TriggerType = "interval"
)

// Preferences shapes the personalized content request built for a delivery.
// Zero values mean "not set" and defer to lower-precedence preferences.
type Preferences struct {
	MaxArticles     int
	PreferredGenres []genre.Genre
	ActiveSourceIDs []string
}

// Merge overlays p on top of fallback: any field explicitly set in p wins.
// A non-positive MaxArticles counts as unset; stored rows are not trusted to
// carry a sane value.
func (p Preferences) Merge(fallback Preferences) Preferences {
	out := p
	if out.MaxArticles <= 0 {
		out.MaxArticles = fallback.MaxArticles
	}
	if len(out.PreferredGenres) == 0 {
		out.PreferredGenres = fallback.PreferredGenres
	}
	if len(out.ActiveSourceIDs) == 0 {
		out.ActiveSourceIDs = fallback.ActiveSourceIDs
	}
	return out
}

// Schedule is one configured audio delivery. NextRunAt is recomputed whenever
// the schedule is saved or after it fires; an inactive schedule is retained
// but never fires.
type Schedule struct {
	ID          string
	OwnerID     string
	Name        string
	Active      bool
	TriggerType TriggerType
	TriggerSpec string
	Preferences Preferences
	NextRunAt   time.Time
}

// Due reports whether the schedule should fire at now.
func (s Schedule) Due(now time.Time) bool {
	return s.Active && !s.NextRunAt.IsZero() && !now.Before(s.NextRunAt)
}
