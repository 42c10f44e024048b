package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule computes occurrences of a recurrence pattern.
type CronSchedule interface {
	// Next returns the first occurrence strictly after after. ok is false when the pattern is
	// invalid or has no future occurrence.
	Next(pattern string, after time.Time) (next time.Time, ok bool)
	Validate(pattern string) error
}

// RobfigSchedule evaluates standard 5-field cron patterns (and @hourly style descriptors) in
// a fixed timezone.
type RobfigSchedule struct {
	parser cron.Parser
	loc    *time.Location
}

func NewCronSchedule(loc *time.Location) *RobfigSchedule {
	if loc == nil {
		loc = time.UTC
	}
	return &RobfigSchedule{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:    loc,
	}
}

func (s *RobfigSchedule) Validate(pattern string) error {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return fmt.Errorf("scheduler: recurrence pattern required")
	}
	if _, err := s.parser.Parse(p); err != nil {
		return fmt.Errorf("scheduler: invalid recurrence pattern %q: %w", pattern, err)
	}
	return nil
}

func (s *RobfigSchedule) Next(pattern string, after time.Time) (time.Time, bool) {
	sched, err := s.parser.Parse(strings.TrimSpace(pattern))
	if err != nil {
		return time.Time{}, false
	}
	next := sched.Next(after.In(s.loc))
	if next.IsZero() {
		return time.Time{}, false
	}
	return next.UTC(), true
}

// PreviewNext lists the next n occurrences after from, for display.
func PreviewNext(s CronSchedule, pattern string, from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		next, ok := s.Next(pattern, t)
		if !ok {
			break
		}
		out = append(out, next)
		t = next
	}
	return out
}
