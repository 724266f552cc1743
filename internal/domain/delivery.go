package domain

import "time"

// DeliveryOutcome classifies how one delivery attempt ended.
type DeliveryOutcome string

const (
	OutcomeSuccess       DeliveryOutcome = "success"
	OutcomeNoContent     DeliveryOutcome = "no_content"
	OutcomeUpstreamError DeliveryOutcome = "upstream_error"
	OutcomeTimeout       DeliveryOutcome = "timeout"
)

// DeliveryAttempt is the immutable audit record created each time a schedule
// fires, consumed by analytics and the error-notification path.
type DeliveryAttempt struct {
	ScheduleID   string
	StartedAt    time.Time
	Outcome      DeliveryOutcome
	ArticleCount int
	AudioID      string
}

// AudioRequest carries the personalized content request sent downstream.
type AudioRequest struct {
	OwnerID       string
	ArticleIDs    []string
	ArticleTitles []string
	ArticleURLs   []string
	Preferences   Preferences
}

// AudioProgram is the downstream audio-creation response on success.
type AudioProgram struct {
	ID    string
	Title string
}

// Notification is a fire-and-forget completion or error event.
type Notification struct {
	OwnerID string
	Title   string
	Body    string
}

// DeliveryStats is the best-effort analytics payload for one attempt.
type DeliveryStats struct {
	Success      bool
	ArticleCount int
	AudioID      string
	Timestamp    time.Time
}
