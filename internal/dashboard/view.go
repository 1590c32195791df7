// Package dashboard assembles everything one dashboard render needs from a
// snapshot, the signed-in user and the current filter and sort.
package dashboard

import (
	"time"

	"github.com/elpatron68/sheetdash/internal/query"
	"github.com/elpatron68/sheetdash/internal/refresh"
	"github.com/elpatron68/sheetdash/internal/sheet"
	"github.com/elpatron68/sheetdash/internal/stats"
	"github.com/elpatron68/sheetdash/internal/task"
)

type View struct {
	User          string        `json:"user"`
	Tasks         []task.Task   `json:"tasks"`
	KPI           stats.KPI     `json:"kpi"`
	Weekly        *stats.Weekly `json:"weekly"`
	TaskTypes     []string      `json:"taskTypes"`
	SystemTypes   []string      `json:"systemTypes"`
	Filter        query.Filter  `json:"filter"`
	Sort          query.Sort    `json:"sort"`
	Today         time.Time     `json:"today"`
	LastRefreshed *time.Time    `json:"lastRefreshed"`
	Error         string        `json:"error,omitempty"`
	RateLimited   bool          `json:"rateLimited"`
	Loaded        bool          `json:"loaded"`
}

// Build is pure: the same inputs always give the same view. now's location
// defines the calendar day.
func Build(snap refresh.Snapshot, user string, f query.Filter, s query.Sort, now time.Time) View {
	today := task.Today(now)
	pending := task.PendingOf(snap.Tasks)

	v := View{
		User:        user,
		Tasks:       query.Apply(pending, user, f, s, today),
		KPI:         stats.Counts(pending, user, today),
		TaskTypes:   query.Distinct(pending, task.FieldTask),
		SystemTypes: query.Distinct(pending, task.FieldSystemType),
		Filter:      f,
		Sort:        s,
		Today:       today,
		Error:       snap.Err,
		RateLimited: snap.Err != "" && sheet.IsRateLimited(snap.Err),
		Loaded:      snap.Loaded,
	}
	if w, ok := stats.ComputeWeekly(snap.Tasks, user, today); ok {
		v.Weekly = &w
	}
	if !snap.LastRefreshed.IsZero() {
		lr := snap.LastRefreshed
		v.LastRefreshed = &lr
	}
	return v
}

// WindowLabel renders the weekly window as "DD/MM - DD/MM".
func WindowLabel(w stats.Weekly) string {
	return task.FormatDayMonth(w.StartDate) + " - " + task.FormatDayMonth(w.EndDate)
}
