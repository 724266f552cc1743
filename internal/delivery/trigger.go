package delivery

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Hori98/Audion-sub008/internal/domain"
)

// ValidateTrigger checks a schedule's trigger configuration at save time so
// malformed specs surface to the caller instead of the driver loop.
func ValidateTrigger(triggerType domain.TriggerType, spec string) error {
	switch triggerType {
	case domain.TriggerCron:
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%w: cron spec %q: %v", domain.ErrValidation, spec, err)
		}
	case domain.TriggerInterval:
		d, err := time.ParseDuration(spec)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: interval spec %q", domain.ErrValidation, spec)
		}
	default:
		return fmt.Errorf("%w: unknown trigger type %q", domain.ErrValidation, triggerType)
	}
	return nil
}

// NextRun computes the next fire time after from. Intervals count from the
// actual fire time, so a trigger missed while the process was offline fires
// once and is never backfilled.
func NextRun(sched domain.Schedule, from time.Time) (time.Time, error) {
	switch sched.TriggerType {
	case domain.TriggerCron:
		parsed, err := cron.ParseStandard(sched.TriggerSpec)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: cron spec %q: %v", domain.ErrValidation, sched.TriggerSpec, err)
		}
		return parsed.Next(from), nil
	case domain.TriggerInterval:
		d, err := time.ParseDuration(sched.TriggerSpec)
		if err != nil || d <= 0 {
			return time.Time{}, fmt.Errorf("%w: interval spec %q", domain.ErrValidation, sched.TriggerSpec)
		}
		return from.Add(d), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown trigger type %q", domain.ErrValidation, sched.TriggerType)
	}
}
