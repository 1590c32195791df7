// Package query filters and sorts the pending task list for display.
package query

import (
	"sort"
	"strings"
	"time"

	"github.com/elpatron68/sheetdash/internal/task"
)

// Bucket is the date-relative KPI filter.
type Bucket string

const (
	BucketAll      Bucket = "all"
	BucketOverdue  Bucket = "overdue"
	BucketDueToday Bucket = "dueToday"
)

// ParseBucket maps a query value to a Bucket; anything unknown is BucketAll.
func ParseBucket(s string) Bucket {
	switch Bucket(s) {
	case BucketOverdue:
		return BucketOverdue
	case BucketDueToday:
		return BucketDueToday
	default:
		return BucketAll
	}
}

// Filter is the user-selected filter state.
type Filter struct {
	TaskType   string `json:"taskType"`
	SystemType string `json:"systemType"`
	Search     string `json:"search"`
	KPI        Bucket `json:"kpi"`
}

// Predicate selects tasks.
type Predicate func(task.Task) bool

// Owner keeps tasks assigned to user; an empty user keeps all.
func Owner(user string) Predicate {
	return func(t task.Task) bool { return user == "" || t.EmailID == user }
}

// TaskType matches the task column exactly when want is non-empty.
func TaskType(want string) Predicate {
	return func(t task.Task) bool { return want == "" || t.Task == want }
}

// SystemType matches the system type column exactly when want is non-empty.
func SystemType(want string) Predicate {
	return func(t task.Task) bool { return want == "" || t.SystemType == want }
}

// Search does a case-insensitive substring match on id, task, system type
// and doer name.
func Search(term string) Predicate {
	needle := strings.ToLower(term)
	return func(t task.Task) bool {
		if term == "" {
			return true
		}
		for _, v := range []string{t.TaskID, t.Task, t.SystemType, t.DoerName} {
			if strings.Contains(strings.ToLower(v), needle) {
				return true
			}
		}
		return false
	}
}

// DateBucket requires a parsable planned date in the bucket. BucketAll
// still drops future-dated tasks.
func DateBucket(b Bucket, today time.Time) Predicate {
	return func(t task.Task) bool {
		planned, ok := task.ParseDate(t.PlannedDate, today.Location())
		if !ok {
			return false
		}
		switch b {
		case BucketOverdue:
			return planned.Before(today)
		case BucketDueToday:
			return planned.Equal(today)
		default:
			return !planned.After(today)
		}
	}
}

// Predicates returns the filter's predicates for the given user and day.
func (f Filter) Predicates(user string, today time.Time) []Predicate {
	return []Predicate{
		Owner(user),
		TaskType(f.TaskType),
		SystemType(f.SystemType),
		Search(f.Search),
		DateBucket(f.KPI, today),
	}
}

// Select returns the tasks matching all predicates, preserving order.
func Select(tasks []task.Task, preds ...Predicate) []task.Task {
	out := make([]task.Task, 0, len(tasks))
next:
	for _, t := range tasks {
		for _, p := range preds {
			if !p(t) {
				continue next
			}
		}
		out = append(out, t)
	}
	return out
}

// Apply filters pending tasks and sorts the result.
func Apply(pending []task.Task, user string, f Filter, s Sort, today time.Time) []task.Task {
	out := Select(pending, f.Predicates(user, today)...)
	s.Apply(out, today.Location())
	return out
}

// Distinct returns the non-empty values of a column, each once, in order of
// first appearance.
func Distinct(tasks []task.Task, field task.Field) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, t := range tasks {
		v := t.Get(field)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Direction of a sort.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// Sort is a single-key sort; an empty Key leaves the order unchanged.
type Sort struct {
	Key       task.Field `json:"key"`
	Direction Direction  `json:"direction"`
}

// DefaultSort orders by planned date, earliest first.
func DefaultSort() Sort { return Sort{Key: task.FieldPlannedDate, Direction: Ascending} }

// ToggleSort is a header click: the same key flips the direction, a new key
// starts ascending.
func ToggleSort(cur Sort, key task.Field) Sort {
	if cur.Key == key && cur.Direction == Ascending {
		return Sort{Key: key, Direction: Descending}
	}
	return Sort{Key: key, Direction: Ascending}
}

// Compare is the three-way comparison used for key. Planned dates compare
// chronologically; a pair with an unparsable side compares equal.
func Compare(a, b task.Task, key task.Field, loc *time.Location) int {
	va, vb := a.Get(key), b.Get(key)
	if key == task.FieldPlannedDate {
		da, okA := task.ParseDate(va, loc)
		db, okB := task.ParseDate(vb, loc)
		if !okA || !okB {
			return 0
		}
		return da.Compare(db)
	}
	return strings.Compare(va, vb)
}

// Apply sorts tasks in place.
func (s Sort) Apply(tasks []task.Task, loc *time.Location) {
	if s.Key == "" {
		return
	}
	desc := s.Direction == Descending
	sort.SliceStable(tasks, func(i, j int) bool {
		c := Compare(tasks[i], tasks[j], s.Key, loc)
		if desc {
			return c > 0
		}
		return c < 0
	})
}
