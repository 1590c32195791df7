package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elpatron68/sheetdash/internal/auth"
	"github.com/elpatron68/sheetdash/internal/config"
	"github.com/elpatron68/sheetdash/internal/refresh"
	"github.com/elpatron68/sheetdash/internal/session"
	"github.com/elpatron68/sheetdash/internal/sheet"
	"github.com/elpatron68/sheetdash/internal/ui"
)

// 20/03/2024 is a Wednesday; last week's window is 11/03..16/03.
var fixedNow = time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)

func cellsRow(vals map[int]string) sheet.Row {
	cells := make([]sheet.Cell, 16)
	for i, v := range vals {
		cells[i] = sheet.Formatted(v)
	}
	return sheet.Row{Cells: cells}
}

func sampleRows() []sheet.Row {
	return []sheet.Row{
		cellsRow(map[int]string{1: "Task ID"}),
		cellsRow(map[int]string{1: "T1", 2: "Review", 4: "15/03/2024", 7: "https://forms.example/t1", 9: "FMS", 14: "Alice", 15: "alice@x.com"}),
		cellsRow(map[int]string{1: "T2", 2: "Call", 4: "20/03/2024", 9: "CRM", 14: "Alice", 15: "alice@x.com"}),
		cellsRow(map[int]string{1: "T3", 2: "Review", 4: "25/03/2024", 9: "FMS", 14: "Alice", 15: "alice@x.com"}),
		cellsRow(map[int]string{1: "T4", 2: "Audit", 4: "12/03/2024", 5: "12/03/2024", 9: "ERP", 14: "Alice", 15: "alice@x.com"}),
		cellsRow(map[int]string{1: "T9", 2: "Ship", 4: "18/03/2024", 9: "ERP", 14: "Bob", 15: "bob@x.com"}),
	}
}

type testEnv struct {
	srv  *Server
	sess *session.Manager
	ref  *refresh.Refresher
	rlog *ui.RefreshLog
	fail error
	// fetch, when set, runs before the source returns; n counts calls from 1.
	fetch func(n int)
	mu    sync.Mutex
	calls int
}

func newTestEnv(t *testing.T, mutate func(*config.Config), users auth.UserStore) *testEnv {
	t.Helper()
	env := &testEnv{}
	cfg := config.Default()
	cfg.Timezone = "UTC"
	if mutate != nil {
		mutate(cfg)
	}
	env.rlog = ui.NewRefreshLog(cfg.UI.RefreshLogMax)
	src := sheet.SourceFunc(func(ctx context.Context) ([]sheet.Row, error) {
		env.mu.Lock()
		env.calls++
		n := env.calls
		env.mu.Unlock()
		if env.fetch != nil {
			env.fetch(n)
		}
		if env.fail != nil {
			return nil, env.fail
		}
		return sampleRows(), nil
	})
	env.ref = refresh.New(src, refresh.Options{Log: env.rlog, Now: func() time.Time { return fixedNow }})
	env.sess = session.NewManager(&session.MemoryStore{})
	if users == nil {
		users = auth.NewInMemoryUserStore()
	}
	srv, err := NewServer(Options{
		Config:     cfg,
		Users:      users,
		Session:    env.sess,
		Refresher:  env.ref,
		RefreshLog: env.rlog,
		Now:        func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	env.srv = srv
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) post(path string, form url.Values) *httptest.ResponseRecorder {
	form.Set(csrfCookie, "tok")
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookie, Value: "tok"})
	return e.do(req)
}

func flashOf(rr *httptest.ResponseRecorder) string {
	for _, c := range rr.Result().Cookies() {
		if c.Name == "flash" {
			v, _ := url.QueryUnescape(c.Value)
			return v
		}
	}
	return ""
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rr := env.get("/healthz")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("status %d body %q", rr.Code, rr.Body.String())
	}
}

func TestLoginScreenWithoutIdentity(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rr := env.get("/")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `action="/login"`) || !strings.Contains(body, "Sign in") {
		t.Fatalf("login form not rendered: %s", body)
	}
	if strings.Contains(body, "Recent refreshes") {
		t.Fatalf("footer should not show on the login screen")
	}
	found := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == csrfCookie && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected csrf cookie to be issued")
	}
}

func TestLoginValidatesEmail(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rr := env.post("/login", url.Values{"email": {"nope"}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if f := flashOf(rr); !strings.HasPrefix(f, "error|Please enter a valid email address") {
		t.Fatalf("unexpected flash %q", f)
	}
	if env.sess.Current() != "" {
		t.Fatalf("invalid email must not sign in")
	}

	rr = env.post("/login", url.Values{"email": {"alice@x.com"}})
	if rr.Code != http.StatusSeeOther || env.sess.Current() != "alice@x.com" {
		t.Fatalf("login failed: %d %q", rr.Code, env.sess.Current())
	}
}

func TestLoginRejectsMissingCSRF(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("email=alice%40x.com"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := env.do(req)
	if rr.Code != http.StatusSeeOther || env.sess.Current() != "" {
		t.Fatalf("login without csrf token must be rejected")
	}
	if f := flashOf(rr); !strings.Contains(f, "Invalid security token") {
		t.Fatalf("unexpected flash %q", f)
	}
}

func TestDashboardRendersKPIsWeeklyAndTasks(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.UI.Notice = "**Maintenance** tonight" }, nil)
	if err := env.ref.Refresh(context.Background(), refresh.TriggerInitial); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := env.sess.Login(context.Background(), "alice@x.com"); err != nil {
		t.Fatalf("login: %v", err)
	}
	rr := env.get("/")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"alice@x.com",
		"Updated: 10:00:00",
		"Last Week's Performance",
		"(11/03 - 16/03)",
		"<strong>Maintenance</strong>",
		"My Pending Tasks", "Overdue Tasks", "Tasks Due Today",
		"T1", "T2",
		"https://forms.example/t1",
		"Recent refreshes",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in body", want)
		}
	}
	if strings.Contains(body, ">T3<") || strings.Contains(body, ">T9<") {
		t.Fatalf("future and other users' tasks must not be listed")
	}
	// T1 and T4 planned in the window, only T4 completed and on its planned day
	if !strings.Contains(body, `class="perf-neg">-50%`) || !strings.Contains(body, `class="perf-pos">0%`) {
		t.Fatalf("expected plan score -50%% and on-time score 0%%")
	}
}

func TestDashboardKPIFilter(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_ = env.ref.Refresh(context.Background(), refresh.TriggerInitial)
	_ = env.sess.Login(context.Background(), "alice@x.com")
	body := env.get("/?kpi=dueToday").Body.String()
	if !strings.Contains(body, ">T2<") || strings.Contains(body, ">T1<") {
		t.Fatalf("dueToday should list only T2")
	}
	body = env.get("/?q=zzz").Body.String()
	if !strings.Contains(body, "No matching tasks found.") {
		t.Fatalf("expected empty state")
	}
}

func TestDashboardLoadingState(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_ = env.sess.Login(context.Background(), "alice@x.com")
	body := env.get("/").Body.String()
	if !strings.Contains(body, "Loading tasks...") || !strings.Contains(body, "Updating...") {
		t.Fatalf("expected loading state before the first fetch")
	}
}

func TestErrorPanelShowsRateLimitHint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_ = env.ref.Refresh(context.Background(), refresh.TriggerInitial)
	_ = env.sess.Login(context.Background(), "alice@x.com")
	env.fail = &sheet.FetchError{Kind: sheet.ErrTransport, StatusCode: 429, Err: errors.New("Too Many Requests")}
	_ = env.ref.Refresh(context.Background(), refresh.TriggerTimer)

	body := env.get("/").Body.String()
	if !strings.Contains(body, "Failed to load data") || !strings.Contains(body, "429") {
		t.Fatalf("error panel missing")
	}
	if !strings.Contains(body, "too many requests. The data will attempt to refresh again automatically.") {
		t.Fatalf("rate limit hint missing")
	}
	if !strings.Contains(body, ">T1<") {
		t.Fatalf("previous snapshot must stay visible")
	}
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_ = env.sess.Login(context.Background(), "alice@x.com")
	rr := env.post("/refresh", url.Values{"return": {"/?kpi=overdue"}})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/?kpi=overdue" {
		t.Fatalf("unexpected response %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if f := flashOf(rr); f != "success|Refreshed: 5 tasks loaded" {
		t.Fatalf("unexpected flash %q", f)
	}
	entries := env.rlog.List(0)
	if len(entries) != 1 || entries[0].Trigger != refresh.TriggerManual {
		t.Fatalf("expected a manual refresh log entry, got %+v", entries)
	}

	env.fail = &sheet.FetchError{Kind: sheet.ErrParse, Err: errors.New("bad json")}
	rr = env.post("/refresh", url.Values{"return": {"https://evil.example"}})
	if rr.Header().Get("Location") != "/" {
		t.Fatalf("external return must be ignored, got %q", rr.Header().Get("Location"))
	}
	if f := flashOf(rr); !strings.HasPrefix(f, "error|") {
		t.Fatalf("expected error flash, got %q", f)
	}
}

func TestRefreshEndpointSuperseded(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_ = env.sess.Login(context.Background(), "alice@x.com")
	started := make(chan struct{})
	release := make(chan struct{})
	env.fetch = func(n int) {
		if n == 1 {
			close(started)
			<-release
		}
	}

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- env.post("/refresh", url.Values{}) }()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("manual refresh never reached the source")
	}
	if err := env.ref.Refresh(context.Background(), refresh.TriggerTimer); err != nil {
		t.Fatalf("newer refresh: %v", err)
	}
	close(release)

	rr := <-done
	if f := flashOf(rr); !strings.HasPrefix(f, "info|A newer refresh is in progress") {
		t.Fatalf("unexpected flash %q", f)
	}
	if strings.Contains(flashOf(rr), "finished") {
		t.Fatalf("flash must not claim the newer refresh finished: %q", flashOf(rr))
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_ = env.sess.Login(context.Background(), "alice@x.com")
	rr := env.post("/logout", url.Values{})
	if rr.Code != http.StatusSeeOther || env.sess.Current() != "" {
		t.Fatalf("logout failed")
	}
	if rr := env.get("/logout"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /logout should be rejected, got %d", rr.Code)
	}
}

func TestAPIDashboard(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_ = env.ref.Refresh(context.Background(), refresh.TriggerInitial)
	_ = env.sess.Login(context.Background(), "alice@x.com")
	rr := env.get("/api/dashboard?sort=taskId&dir=descending")
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("status %d ct %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	var v struct {
		User  string `json:"user"`
		Tasks []struct {
			TaskID string `json:"taskId"`
		} `json:"tasks"`
		KPI struct {
			Overdue, DueToday, MyPending int
		} `json:"kpi"`
		Weekly *struct {
			PlanVsActual struct{ Planned, Completed int } `json:"planVsActual"`
		} `json:"weekly"`
		Loaded bool `json:"loaded"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.User != "alice@x.com" || !v.Loaded {
		t.Fatalf("unexpected header fields %+v", v)
	}
	if len(v.Tasks) != 2 || v.Tasks[0].TaskID != "T2" || v.Tasks[1].TaskID != "T1" {
		t.Fatalf("unexpected tasks %+v", v.Tasks)
	}
	if v.KPI.Overdue != 1 || v.KPI.DueToday != 1 || v.KPI.MyPending != 2 {
		t.Fatalf("unexpected kpi %+v", v.KPI)
	}
	if v.Weekly == nil || v.Weekly.PlanVsActual.Planned != 2 || v.Weekly.PlanVsActual.Completed != 1 {
		t.Fatalf("unexpected weekly %+v", v.Weekly)
	}
}

func TestRefreshLogToggle(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rr := env.get("/__refreshlog?show=0&return=/%3Fkpi%3Doverdue")
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/?kpi=overdue" {
		t.Fatalf("unexpected redirect %d %q", rr.Code, rr.Header().Get("Location"))
	}
	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "refreshlog" {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != "off" {
		t.Fatalf("expected refreshlog=off cookie")
	}

	_ = env.sess.Login(context.Background(), "alice@x.com")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	body := env.do(req).Body.String()
	if !strings.Contains(body, "Show recent refreshes") || strings.Contains(body, "<strong>Recent refreshes</strong>") {
		t.Fatalf("footer should be collapsed when the cookie is off")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_ = env.ref.Refresh(context.Background(), refresh.TriggerInitial)
	rr := env.get("/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "sheetdash_refresh_attempts_total") {
		t.Fatalf("refresh counter missing from metrics")
	}
}

func TestBasicAuthWhenUsersConfigured(t *testing.T) {
	us := auth.NewInMemoryUserStore()
	if err := us.AddUserPlain("admin", "admin"); err != nil {
		t.Fatalf("user: %v", err)
	}
	env := newTestEnv(t, nil, us)
	if rr := env.get("/"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	for _, p := range []string{"/healthz", "/metrics"} {
		if rr := env.get(p); rr.Code != http.StatusOK {
			t.Fatalf("%s should bypass auth, got %d", p, rr.Code)
		}
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "admin")
	if rr := env.do(req); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", rr.Code)
	}
}

func TestIdentityIsPerOperator(t *testing.T) {
	us := auth.NewInMemoryUserStore()
	for _, u := range []string{"alice", "bob"} {
		if err := us.AddUserPlain(u, u+"-pw"); err != nil {
			t.Fatalf("user: %v", err)
		}
	}
	env := newTestEnv(t, nil, us)
	as := func(req *http.Request, user string) *http.Request {
		req.SetBasicAuth(user, user+"-pw")
		return req
	}
	form := url.Values{"email": {"alice@x.com"}, csrfCookie: {"tok"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookie, Value: "tok"})
	if rr := env.do(as(req, "alice")); rr.Code != http.StatusSeeOther {
		t.Fatalf("login status %d", rr.Code)
	}

	aliceBody := env.do(as(httptest.NewRequest(http.MethodGet, "/", nil), "alice")).Body.String()
	if !strings.Contains(aliceBody, "alice@x.com") || strings.Contains(aliceBody, `action="/login"`) {
		t.Fatalf("alice should see her dashboard")
	}
	bobBody := env.do(as(httptest.NewRequest(http.MethodGet, "/", nil), "bob")).Body.String()
	if !strings.Contains(bobBody, `action="/login"`) {
		t.Fatalf("bob should still see the login screen")
	}
	if env.sess.Current() != "" {
		t.Fatalf("instance-wide identity must stay empty, got %q", env.sess.Current())
	}
}

func TestUnknownPathIs404(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if rr := env.get("/nope"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestNewServerRejectsBadTimezone(t *testing.T) {
	cfg := config.Default()
	cfg.Timezone = "Mars/Olympus"
	_, err := NewServer(Options{Config: cfg, Session: session.NewManager(nil), Refresher: refresh.New(sheet.SourceFunc(func(context.Context) ([]sheet.Row, error) { return nil, nil }), refresh.Options{})})
	if err == nil {
		t.Fatalf("expected timezone error")
	}
}
