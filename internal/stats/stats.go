// Package stats computes the KPI counters and last week's performance
// figures from the task collection.
package stats

import (
	"math"
	"time"

	"github.com/elpatron68/sheetdash/internal/task"
)

// KPI holds the date-bucketed pending counts.
type KPI struct {
	Overdue   int `json:"overdue"`
	DueToday  int `json:"dueToday"`
	MyPending int `json:"myPending"`
}

// Counts classifies pending tasks against today. An empty user counts
// across all tasks. Tasks with an unparsable planned date are skipped.
func Counts(pending []task.Task, user string, today time.Time) KPI {
	var k KPI
	for _, t := range pending {
		if user != "" && t.EmailID != user {
			continue
		}
		planned, ok := task.ParseDate(t.PlannedDate, today.Location())
		if !ok {
			continue
		}
		switch {
		case planned.Before(today):
			k.Overdue++
		case planned.Equal(today):
			k.DueToday++
		}
	}
	k.MyPending = k.Overdue + k.DueToday
	return k
}

// Metric is one row of the weekly scoring table.
type Metric struct {
	Planned     int     `json:"planned"`
	Completed   int     `json:"completed"`
	Performance float64 `json:"performance"`
}

// Weekly is the plan-vs-actual and on-time score for the reporting window.
type Weekly struct {
	PlanVsActual Metric    `json:"planVsActual"`
	OnTime       Metric    `json:"onTime"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
}

// Window returns Monday and Saturday of the calendar week before today's week.
func Window(today time.Time) (start, end time.Time) {
	wd := int(today.Weekday())
	offset := wd - 1
	if wd == 0 {
		offset = 6
	}
	y, m, d := today.Date()
	start = time.Date(y, m, d-offset-7, 0, 0, 0, 0, today.Location())
	end = time.Date(y, m, d-offset-7+5, 0, 0, 0, 0, today.Location())
	return start, end
}

// ComputeWeekly scores the user's tasks over last week's Monday..Saturday.
// It returns false when there is no user.
//
// OnTime.Planned carries the completed count: the on-time score is measured
// against work actually completed in the window, not against the plan.
func ComputeWeekly(tasks []task.Task, user string, today time.Time) (Weekly, bool) {
	if user == "" {
		return Weekly{}, false
	}
	start, end := Window(today)
	loc := today.Location()
	inWindow := func(d time.Time) bool { return !d.Before(start) && !d.After(end) }

	var planned, completed, onTime int
	for _, t := range tasks {
		if t.EmailID != user {
			continue
		}
		p, pOK := task.ParseDate(t.PlannedDate, loc)
		a, aOK := task.ParseDate(t.ActualDate, loc)
		if pOK && inWindow(p) {
			planned++
		}
		if aOK && inWindow(a) {
			completed++
			if pOK && !a.After(p) {
				onTime++
			}
		}
	}

	return Weekly{
		PlanVsActual: Metric{Planned: planned, Completed: completed, Performance: deviation(completed, planned)},
		OnTime:       Metric{Planned: completed, Completed: onTime, Performance: deviation(onTime, completed)},
		StartDate:    start,
		EndDate:      end,
	}, true
}

// deviation is (actual-base)/base in percent, 0 for an empty base.
func deviation(actual, base int) float64 {
	if base == 0 {
		return 0
	}
	return Round1(float64(actual-base) / float64(base) * 100)
}

// Round1 rounds to one decimal, halves toward positive infinity.
func Round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
