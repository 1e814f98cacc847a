package scheduler

import (
	"fmt"
	"time"

	"voicepipe/internal/config"
)

const secondsPerDay = 24 * 60 * 60

// Clock is a fixed time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Next returns the first occurrence of the clock instant strictly after now,
// in now's location.
func (c Clock) Next(now time.Time) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// TriggerSpec describes when pipeline runs fire.
type TriggerSpec struct {
	// Interval between evenly spaced runs. Zero disables the interval trigger.
	Interval time.Duration
	// DailyAt lists fixed times of day that also fire a run.
	DailyAt []Clock
}

// TriggersFromConfig derives the trigger spec from the scheduler section.
// runs_per_day spreads runs evenly across the day.
func TriggersFromConfig(cfg *config.Config) (TriggerSpec, error) {
	var spec TriggerSpec
	if n := cfg.Scheduler.RunsPerDay; n > 0 {
		spec.Interval = time.Duration(secondsPerDay/n) * time.Second
	}
	for _, instant := range cfg.Scheduler.DailyAt {
		hour, minute, err := config.ParseClock(instant)
		if err != nil {
			return TriggerSpec{}, fmt.Errorf("scheduler.daily_at: %w", err)
		}
		spec.DailyAt = append(spec.DailyAt, Clock{Hour: hour, Minute: minute})
	}
	return spec, nil
}

// Empty reports whether no trigger is configured. The daemon then runs the
// pipeline once and exits instead of looping.
func (s TriggerSpec) Empty() bool {
	return s.Interval <= 0 && len(s.DailyAt) == 0
}
