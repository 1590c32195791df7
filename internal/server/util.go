package server

import (
    "crypto/subtle"
    "errors"
    "fmt"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/google/uuid"

    applog "github.com/elpatron68/sheetdash/internal/log"
    "github.com/elpatron68/sheetdash/internal/metrics"
    "github.com/elpatron68/sheetdash/internal/query"
    "github.com/elpatron68/sheetdash/internal/refresh"
    "github.com/elpatron68/sheetdash/internal/task"
)

// filterFromQuery reads type, system, q and kpi.
func filterFromQuery(q url.Values) query.Filter {
    return query.Filter{
        TaskType:   q.Get("type"),
        SystemType: q.Get("system"),
        Search:     strings.TrimSpace(q.Get("q")),
        KPI:        query.ParseBucket(q.Get("kpi")),
    }
}

// sortFromQuery reads sort and dir; unknown keys fall back to the default sort.
func sortFromQuery(q url.Values) query.Sort {
    s := query.DefaultSort()
    if k := q.Get("sort"); k != "" {
        if f, ok := task.ParseField(k); ok {
            s.Key = f
        }
    }
    if q.Get("dir") == string(query.Descending) {
        s.Direction = query.Descending
    } else {
        s.Direction = query.Ascending
    }
    return s
}

// withParams copies q and applies the given key/value pairs; an empty value removes the key.
func withParams(q url.Values, kv ...string) string {
    vals := url.Values{}
    for k, v := range q {
        vals[k] = append([]string(nil), v...)
    }
    for i := 0; i+1 < len(kv); i += 2 {
        if kv[i+1] == "" {
            vals.Del(kv[i])
        } else {
            vals.Set(kv[i], kv[i+1])
        }
    }
    if len(vals) == 0 {
        return "/"
    }
    return "/?" + vals.Encode()
}

type column struct {
    Label    string
    Key      task.Field
    Sortable bool
}

var taskColumns = []column{
    {Label: "Task ID", Key: task.FieldTaskID, Sortable: true},
    {Label: "System Type", Key: task.FieldSystemType, Sortable: true},
    {Label: "Task", Key: task.FieldTask},
    {Label: "Planned", Key: task.FieldPlannedDate, Sortable: true},
    {Label: "Doer Name", Key: task.FieldDoerName},
}

type sortHeader struct {
    Label     string
    URL       string
    Active    bool
    Indicator string
}

// sortHeaders builds the table header links; each link toggles the sort for its column.
func sortHeaders(q url.Values, cur query.Sort) []sortHeader {
    out := make([]sortHeader, 0, len(taskColumns))
    for _, c := range taskColumns {
        h := sortHeader{Label: c.Label}
        if c.Sortable {
            next := query.ToggleSort(cur, c.Key)
            h.URL = withParams(q, "sort", string(next.Key), "dir", string(next.Direction))
            h.Active = cur.Key == c.Key
            if cur.Direction == query.Descending {
                h.Indicator = "▼"
            } else {
                h.Indicator = "▲"
            }
        }
        out = append(out, h)
    }
    return out
}

// safeReturn only allows local absolute paths.
func safeReturn(ret string) string {
    if ret == "" || !strings.HasPrefix(ret, "/") || strings.HasPrefix(ret, "//") || strings.Contains(ret, "\\") {
        return "/"
    }
    return ret
}

// flash support
type flash struct{ Type, Text string }

func (s *Server) setFlash(w http.ResponseWriter, typ, text string) {
    if typ == "" {
        typ = "info"
    }
    // simple cookie, short-lived
    http.SetCookie(w, &http.Cookie{Name: "flash", Value: url.QueryEscape(typ + "|" + text), Path: "/", MaxAge: 5})
}

// refreshFlash maps the outcome of a manual refresh to a flash message.
// ErrSuperseded means a later attempt was started, not that it has finished.
func refreshFlash(err error, loaded int) (typ, text string) {
    switch {
    case err == nil:
        return "success", fmt.Sprintf("Refreshed: %d tasks loaded", loaded)
    case errors.Is(err, refresh.ErrSuperseded):
        return "info", "A newer refresh is in progress; its result will be shown when it completes"
    default:
        return "error", err.Error()
    }
}

// takeFlash reads the flash cookie and expires it.
func (s *Server) takeFlash(w http.ResponseWriter, r *http.Request) *flash {
    c, err := r.Cookie("flash")
    if err != nil || c.Value == "" {
        return nil
    }
    http.SetCookie(w, &http.Cookie{Name: "flash", Value: "", Path: "/", MaxAge: -1})
    val, err := url.QueryUnescape(c.Value)
    if err != nil {
        val = c.Value
    }
    f := &flash{Type: "info", Text: val}
    if typ, text, ok := strings.Cut(val, "|"); ok {
        f.Type, f.Text = typ, text
    }
    return f
}

const csrfCookie = "csrf_token"

// ensureCSRFToken ensures a CSRF token cookie exists for the request and returns the token.
func (s *Server) ensureCSRFToken(w http.ResponseWriter, r *http.Request) string {
    if c, err := r.Cookie(csrfCookie); err == nil && c.Value != "" {
        return c.Value
    }
    token := uuid.NewString()
    http.SetCookie(w, &http.Cookie{
        Name:     csrfCookie,
        Value:    token,
        Path:     "/",
        MaxAge:   86400 * 7,
        HttpOnly: true,
        SameSite: http.SameSiteStrictMode,
    })
    return token
}

// validCSRF compares the form token with the cookie. The form must already be parsed.
func validCSRF(r *http.Request) bool {
    c, err := r.Cookie(csrfCookie)
    if err != nil || c.Value == "" {
        return false
    }
    got := r.PostFormValue(csrfCookie)
    return subtle.ConstantTimeCompare([]byte(got), []byte(c.Value)) == 1
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

var knownPaths = map[string]bool{
    "/": true, "/login": true, "/logout": true, "/refresh": true,
    "/api/dashboard": true, "/__refreshlog": true, "/healthz": true, "/metrics": true,
}

// instrument records request durations. Unknown paths share one label.
func instrument(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        path := r.URL.Path
        if !knownPaths[path] {
            path = "other"
        }
        d := time.Since(start)
        metrics.RecordHTTPRequestDuration(r.Method, path, strconv.Itoa(rec.status), d)
        applog.Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, d)
    })
}
