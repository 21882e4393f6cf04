package queue

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next occurrence of a periodic task after t. A
// Scheduler consults it once per check-interval tick for every registered
// task (see Scheduler.calculateNextRun).
type Schedule interface {
	// Next returns the next time after t that the task is due.
	Next(t time.Time) time.Time

	// String returns the schedule's human-readable form, logged alongside
	// the task name when it is registered.
	String() string
}

// cronSchedule adapts a standard five-field cron expression ("minute hour
// dom month dow") to Schedule, the same convention this author's later
// pkg/job package documents for its own periodic tasks (Schedule() string).
type cronSchedule struct {
	expr  string
	inner cron.Schedule
}

// NewCronSchedule parses expr as a standard five-field cron expression and
// returns a Schedule driven by it. It panics if expr cannot be parsed,
// following the same "fail fast on a construction-time typo" convention as
// regexp.MustCompile — cron expressions are written once, at startup, by
// the caller registering the task, not computed from user input.
func NewCronSchedule(expr string) Schedule {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		panic(fmt.Sprintf("queue: invalid cron expression %q: %v", expr, err))
	}
	return &cronSchedule{expr: expr, inner: sched}
}

func (c *cronSchedule) Next(t time.Time) time.Time {
	return c.inner.Next(t)
}

func (c *cronSchedule) String() string {
	return c.expr
}

// fixedIntervalSchedule runs a task every interval, with no calendar
// alignment. Useful for tasks like "every 90 seconds" that a cron
// expression cannot express directly.
type fixedIntervalSchedule struct {
	interval time.Duration
}

// NewIntervalSchedule returns a Schedule that is always due interval after
// its last run. The first instance a Scheduler creates for it is due
// interval after the check that creates it.
func NewIntervalSchedule(interval time.Duration) Schedule {
	return &fixedIntervalSchedule{interval: interval}
}

func (f *fixedIntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(f.interval)
}

func (f *fixedIntervalSchedule) String() string {
	return "every " + f.interval.String()
}
