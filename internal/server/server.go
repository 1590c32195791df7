package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elpatron68/sheetdash/internal/auth"
	"github.com/elpatron68/sheetdash/internal/config"
	"github.com/elpatron68/sheetdash/internal/dashboard"
	applog "github.com/elpatron68/sheetdash/internal/log"
	"github.com/elpatron68/sheetdash/internal/query"
	"github.com/elpatron68/sheetdash/internal/refresh"
	"github.com/elpatron68/sheetdash/internal/session"
	"github.com/elpatron68/sheetdash/internal/ui"
)

type Options struct {
	Config     *config.Config
	Users      auth.UserStore
	Session    *session.Manager
	Refresher  *refresh.Refresher
	RefreshLog *ui.RefreshLog
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	cfg    *config.Config
	uiCfg  config.UIConfig
	users  auth.UserStore
	sess   *session.Manager
	ref    *refresh.Refresher
	rlog   *ui.RefreshLog
	loc    *time.Location
	now    func() time.Time
	mux    *http.ServeMux
	pages  map[string]*template.Template
	notice template.HTML
}

const faviconSVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64">
  <rect rx="12" width="64" height="64" fill="#0366d6"/>
  <path d="M16 20h32v6H16zM16 30h32v6H16zM16 40h20v6H16z" fill="#fff"/>
 </svg>`

func NewServer(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	if opts.Session == nil || opts.Refresher == nil {
		return nil, errors.New("server: session and refresher are required")
	}
	s := &Server{
		cfg:    cfg,
		uiCfg:  cfg.UI,
		users:  opts.Users,
		sess:   opts.Session,
		ref:    opts.Refresher,
		rlog:   opts.RefreshLog,
		loc:    loc,
		now:    opts.Now,
		mux:    http.NewServeMux(),
		pages:  parsePages(),
		notice: renderMarkdown(cfg.UI.Notice),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rlog == nil {
		s.rlog = ui.NewRefreshLog(cfg.UI.RefreshLogMax)
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/favicon.svg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write([]byte(faviconSVG))
	})
	s.mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/favicon.svg", http.StatusMovedPermanently)
	})
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.Handle("/metrics", promhttp.Handler())
	// Toggle refresh log visibility via cookie
	s.mux.HandleFunc("/__refreshlog", func(w http.ResponseWriter, r *http.Request) {
		show := r.URL.Query().Get("show")
		ret := safeReturn(r.URL.Query().Get("return"))
		if show == "0" {
			http.SetCookie(w, &http.Cookie{Name: "refreshlog", Value: "off", Path: "/", MaxAge: 86400 * 365})
		} else if show == "1" {
			http.SetCookie(w, &http.Cookie{Name: "refreshlog", Value: "on", Path: "/", MaxAge: 86400 * 365})
		}
		http.Redirect(w, r, ret, http.StatusSeeOther)
	})
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/logout", s.handleLogout)
	s.mux.HandleFunc("/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/dashboard", s.handleAPI)
	s.mux.HandleFunc("/", s.handleHome)
}

func (s *Server) buildView(r *http.Request, user string) dashboard.View {
	q := r.URL.Query()
	v := dashboard.Build(s.ref.Snapshot(), user, filterFromQuery(q), sortFromQuery(q), s.now().In(s.loc))
	if v.LastRefreshed != nil {
		lr := v.LastRefreshed.In(s.loc)
		v.LastRefreshed = &lr
	}
	return v
}

// operator is the Basic Auth user, or "" when the gate is off.
func operator(r *http.Request) string {
	name, _ := auth.UsernameFromRequest(r)
	return name
}

// identity is the dashboard email for the requesting operator.
func (s *Server) identity(r *http.Request) string {
	return s.sess.CurrentFor(r.Context(), operator(r))
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data := pageData{
		CSRF:  s.ensureCSRFToken(w, r),
		Flash: s.takeFlash(w, r),
		User:  s.identity(r),
	}
	if data.User == "" {
		s.render(w, "login", data)
		return
	}

	q := r.URL.Query()
	v := s.buildView(r, data.User)
	data.View = &v
	data.Notice = s.notice
	data.Headers = sortHeaders(q, v.Sort)
	data.KPICards = []kpiCard{
		{Title: "My Pending Tasks", Value: v.KPI.MyPending, URL: withParams(q, "kpi", ""), Active: v.Filter.KPI == query.BucketAll},
		{Title: "Overdue Tasks", Value: v.KPI.Overdue, URL: withParams(q, "kpi", string(query.BucketOverdue)), Active: v.Filter.KPI == query.BucketOverdue},
		{Title: "Tasks Due Today", Value: v.KPI.DueToday, URL: withParams(q, "kpi", string(query.BucketDueToday)), Active: v.Filter.KPI == query.BucketDueToday},
	}
	data.ShowRefreshLog, data.RefreshEntries, data.MoreURL, data.CanShowMore, data.ReturnURL = s.footerData(r)
	s.render(w, "dashboard", data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil || !validCSRF(r) {
		s.setFlash(w, "error", "Invalid security token. Please refresh the page and try again.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	err := s.sess.LoginAs(r.Context(), operator(r), r.PostFormValue("email"))
	switch {
	case errors.Is(err, session.ErrInvalidEmail):
		s.setFlash(w, "error", "Please enter a valid email address.")
	case err != nil:
		applog.Errorf("login: %v", err)
		s.setFlash(w, "error", "Could not save the session: "+err.Error())
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil || !validCSRF(r) {
		s.setFlash(w, "error", "Invalid security token. Please refresh the page and try again.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := s.sess.LogoutAs(r.Context(), operator(r)); err != nil {
		applog.Errorf("logout: %v", err)
		s.setFlash(w, "error", "Could not clear the session: "+err.Error())
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil || !validCSRF(r) {
		s.setFlash(w, "error", "Invalid security token. Please refresh the page and try again.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	ret := safeReturn(r.PostFormValue("return"))
	err := s.ref.Refresh(r.Context(), refresh.TriggerManual)
	typ, text := refreshFlash(err, len(s.ref.Snapshot().Tasks))
	s.setFlash(w, typ, text)
	http.Redirect(w, r, ret, http.StatusSeeOther)
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	v := s.buildView(r, s.identity(r))
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		applog.Warnf("api encode: %v", err)
	}
}

// footerData prepares the refresh log footer: cookie overrides the config default.
func (s *Server) footerData(r *http.Request) (show bool, entries []footerEntry, moreURL string, canShowMore bool, returnURL string) {
	show = s.uiCfg.ShowRefreshLog
	if c, err := r.Cookie("refreshlog"); err == nil {
		if c.Value == "off" {
			show = false
		} else if c.Value == "on" {
			show = true
		}
	}
	returnURL = r.URL.RequestURI()
	n := 5
	q := r.URL.Query()
	if q.Get("all") == "1" {
		n = 0
	} else if q.Get("more") == "1" {
		n = 20
	} else {
		canShowMore = true
		moreURL = withParams(q, "more", "1", "all", "")
	}
	if !show {
		return
	}
	raw := s.rlog.List(n)
	entries = make([]footerEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		e := raw[i]
		entries = append(entries, footerEntry{
			When:       e.When.In(s.loc).Format("15:04:05"),
			ID:         ui.ShortID(e.ID),
			Trigger:    e.Trigger,
			Generation: e.Generation,
			Outcome:    e.Outcome,
			Tasks:      e.Tasks,
			Duration:   e.Duration.Round(time.Millisecond).String(),
			Error:      e.Error,
		})
	}
	return
}

// Handler wraps the routes in request metrics and the optional Basic Auth gate.
func (s *Server) Handler() http.Handler {
	return auth.BasicAuthMiddleware(s.users, "sheetdash", []string{"/healthz", "/metrics"}, instrument(s.mux))
}
