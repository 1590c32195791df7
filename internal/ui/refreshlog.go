package ui

import (
    "sync"
    "time"

    "github.com/google/uuid"
)

type RefreshEntry struct {
    ID         string        `json:"id"`
    When       time.Time     `json:"when"`
    Trigger    string        `json:"trigger"`
    Generation uint64        `json:"generation"`
    Outcome    string        `json:"outcome"`
    Tasks      int           `json:"tasks"`
    Duration   time.Duration `json:"duration"`
    Error      string        `json:"error,omitempty"`
}

// RefreshLog is a bounded ring of recent refresh attempts shown in the footer.
type RefreshLog struct {
    mu  sync.Mutex
    buf []RefreshEntry
    max int
}

func NewRefreshLog(max int) *RefreshLog {
    if max <= 0 { max = 200 }
    return &RefreshLog{max: max}
}

func (s *RefreshLog) SetMax(max int) {
    s.mu.Lock(); defer s.mu.Unlock()
    if max <= 0 { return }
    s.max = max
    if len(s.buf) > max { s.buf = s.buf[len(s.buf)-max:] }
}

// NewID returns a fresh attempt id.
func NewID() string { return uuid.NewString() }

func (s *RefreshLog) Append(e RefreshEntry) {
    s.mu.Lock(); defer s.mu.Unlock()
    if e.ID == "" { e.ID = NewID() }
    if e.When.IsZero() { e.When = time.Now() }
    s.buf = append(s.buf, e)
    if len(s.buf) > s.max {
        // drop oldest
        s.buf = s.buf[len(s.buf)-s.max:]
    }
}

// List returns up to n most recent entries, newest last.
func (s *RefreshLog) List(n int) []RefreshEntry {
    s.mu.Lock(); defer s.mu.Unlock()
    if n <= 0 || n > len(s.buf) { n = len(s.buf) }
    out := make([]RefreshEntry, n)
    copy(out, s.buf[len(s.buf)-n:])
    return out
}

// ShortID is the first block of a uuid, enough to tell attempts apart in the footer.
func ShortID(id string) string {
    if len(id) > 8 { return id[:8] }
    return id
}
