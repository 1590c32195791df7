// Package refresh keeps the current task snapshot up to date by fetching the
// sheet on a timer and on demand.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	applog "github.com/elpatron68/sheetdash/internal/log"
	"github.com/elpatron68/sheetdash/internal/metrics"
	"github.com/elpatron68/sheetdash/internal/sheet"
	"github.com/elpatron68/sheetdash/internal/task"
	"github.com/elpatron68/sheetdash/internal/ui"
)

const DefaultInterval = 60 * time.Second

// Triggers recorded with each attempt.
const (
	TriggerInitial = "initial"
	TriggerTimer   = "timer"
	TriggerManual  = "manual"
)

// ErrSuperseded is returned by Refresh when a newer attempt was issued while
// this one was in flight; its result was discarded.
var ErrSuperseded = errors.New("refresh superseded by a newer attempt")

// Snapshot is the state the dashboard renders from. Tasks is shared and must
// not be modified by readers.
type Snapshot struct {
	Tasks         []task.Task
	LastRefreshed time.Time
	Err           string
	Loaded        bool
	Generation    uint64
}

type Options struct {
	Interval time.Duration
	Log      *ui.RefreshLog
	Now      func() time.Time
}

type Refresher struct {
	src      sheet.Source
	interval time.Duration
	log      *ui.RefreshLog
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.RWMutex
	issued uint64
	snap   Snapshot
}

func New(src sheet.Source, opts Options) *Refresher {
	r := &Refresher{
		src:      src,
		interval: opts.Interval,
		log:      opts.Log,
		now:      opts.Now,
		logger:   applog.Named("refresh"),
	}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Refresher) Interval() time.Duration { return r.interval }

func (r *Refresher) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Run fetches once immediately, then on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	_ = r.Refresh(ctx, TriggerInitial)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = r.Refresh(ctx, TriggerTimer)
		}
	}
}

func (r *Refresher) next() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued++
	return r.issued
}

// Refresh performs one fetch-normalize-replace attempt. The result is applied
// only if no newer attempt was issued before this one completed.
func (r *Refresher) Refresh(ctx context.Context, trigger string) error {
	gen := r.next()
	id := ui.NewID()
	start := r.now()

	rows, err := r.src.FetchRows(ctx)
	var tasks []task.Task
	if err == nil {
		tasks = sheet.Normalize(rows)
	}
	done := r.now()
	elapsed := done.Sub(start)

	r.mu.Lock()
	stale := gen != r.issued
	if !stale {
		r.snap.Loaded = true
		r.snap.Generation = gen
		if err != nil {
			r.snap.Err = err.Error()
		} else {
			r.snap.Tasks = tasks
			r.snap.LastRefreshed = done
			r.snap.Err = ""
		}
	}
	r.mu.Unlock()

	outcome := metrics.OutcomeOK
	switch {
	case stale:
		outcome = metrics.OutcomeStale
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.RecordRefresh(trigger, outcome, elapsed)
	if outcome == metrics.OutcomeOK {
		metrics.RecordSnapshot(len(tasks), done)
	}

	fields := []zap.Field{
		zap.String("trigger", trigger),
		zap.String("attempt", id),
		zap.Uint64("generation", gen),
		zap.Duration("duration", elapsed),
		zap.String("outcome", outcome),
	}
	entry := ui.RefreshEntry{ID: id, When: done, Trigger: trigger, Generation: gen, Outcome: outcome, Tasks: len(tasks), Duration: elapsed}
	if err != nil {
		entry.Error = err.Error()
		r.logger.Warn("refresh failed", append(fields, zap.Error(err))...)
	} else {
		r.logger.Info("refresh", append(fields, zap.Int("tasks", len(tasks)))...)
	}
	if r.log != nil {
		r.log.Append(entry)
	}

	if stale {
		return ErrSuperseded
	}
	return err
}
