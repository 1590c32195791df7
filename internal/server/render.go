package server

import (
    "html/template"
    "net/http"
    "strconv"
    "time"

    "github.com/gomarkdown/markdown"
    "github.com/gomarkdown/markdown/html"
    "github.com/gomarkdown/markdown/parser"

    "github.com/elpatron68/sheetdash/internal/dashboard"
    applog "github.com/elpatron68/sheetdash/internal/log"
    "github.com/elpatron68/sheetdash/internal/stats"
)

// renderMarkdown renders operator-supplied markdown. Raw HTML in the input is dropped.
func renderMarkdown(md string) template.HTML {
    if md == "" {
        return ""
    }
    p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
    doc := p.Parse([]byte(md))
    r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank | html.SkipHTML})
    return template.HTML(markdown.Render(doc, r))
}

// pct formats a performance value the way the scoring table shows it: "-50%", "33.3%".
func pct(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) + "%" }

func perfClass(v float64) string {
    if v >= 0 {
        return "perf-pos"
    }
    return "perf-neg"
}

func orDash(s string) string {
    if s == "" {
        return "-"
    }
    return s
}

var funcs = template.FuncMap{
    "renderMarkdown": renderMarkdown,
    "pct":            pct,
    "perfClass":      perfClass,
    "orDash":         orDash,
    "windowLabel":    func(w *stats.Weekly) string { return dashboard.WindowLabel(*w) },
    "clock":          func(t *time.Time) string { return t.Format("15:04:05") },
}

const layoutHTML = `<!doctype html><html><head><meta charset="utf-8"><title>{{.Title}}</title><link rel="icon" href="/favicon.svg" type="image/svg+xml">
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>
body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Helvetica,Arial,sans-serif;margin:0;background:#f1f5f9;color:#0f172a}
header.top{position:sticky;top:0;background:#fff;border-bottom:1px solid #d0d7de;padding:10px 16px;display:flex;justify-content:space-between;align-items:center}
header.top h1{font-size:20px;margin:0}
header.top .who{text-align:right;font-size:13px}
header.top .who small{color:#6a737d}
main{max-width:1200px;margin:0 auto;padding:16px}
button{cursor:pointer}
.btn{background:#0366d6;color:#fff;border:none;padding:6px 12px;border-radius:4px}
.btn.light{background:#e5e7eb;color:#374151}
.card{background:#fff;border:1px solid #d0d7de;border-radius:8px;padding:12px;margin-bottom:16px}
.kpis{display:grid;grid-template-columns:repeat(3,1fr);gap:12px;margin-bottom:16px}
.kpi{display:block;background:#fff;border:1px solid #d0d7de;border-radius:8px;padding:12px;text-decoration:none;color:inherit}
.kpi.active{border-color:#0366d6;box-shadow:0 0 0 2px #bfdbfe}
.kpi .v{font-size:28px;font-weight:700}
.perf-pos{color:#166534;font-weight:700}
.perf-neg{color:#991b1b;font-weight:700}
table{border-collapse:collapse;width:100%}
thead th{position:sticky;top:0;background:#f6f8fa;border-bottom:1px solid #d0d7de;text-align:left;padding:6px}
thead th a{color:inherit;text-decoration:none}
thead th .ind{opacity:.3}
thead th.sorted .ind{opacity:1}
td{padding:6px;border-bottom:1px solid #eee;font-size:13px}
tbody tr:nth-child(even){background:#f9fbfd}
.pill{display:inline-block;padding:2px 8px;border-radius:999px;background:#dbeafe;color:#1e3a8a;text-decoration:none}
.error{background:#fef2f2;border:1px solid #fecaca;color:#991b1b}
.notice{padding:12px;background:#f9fafb;border-left:3px solid #0366d6}
.refreshlog{margin-top:16px;border-top:1px solid #eee;padding-top:8px;font-size:12px}
.refreshlog .hdr{display:flex;justify-content:space-between;align-items:center}
.refreshlog pre{background:#fff;border:1px solid #d0d7de;padding:8px;max-height:160px;overflow:auto}
.refreshlog .ts{color:#6a737d}
.refreshlog .ok{color:#166534}
.refreshlog .error{color:#991b1b;background:none;border:none}
.refreshlog .stale{color:#92400e}
.flash{margin:10px 0;padding:8px;border:1px solid #d0d7de;border-left-width:4px;background:#fff}
.flash.error{border-left-color:#991b1b}
.flash.success{border-left-color:#166534}
</style>
</head><body>
{{ template "content" . }}
<main>
{{ if .User }}
{{ if .ShowRefreshLog }}
<div class="refreshlog">
  <div class="hdr">
    <strong>Recent refreshes</strong>
    <div>
      <a href="/__refreshlog?show=0&return={{.ReturnURL}}">Hide</a>
      {{if .CanShowMore}} | <a href="{{.MoreURL}}">Show more</a>{{end}}
    </div>
  </div>
  <pre>{{range .RefreshEntries}}<span class="ts">{{.When}}</span> [{{.ID}}] {{.Trigger}} #{{.Generation}} <span class="{{.Outcome}}">{{.Outcome}}</span> {{.Tasks}} tasks in {{.Duration}}{{if .Error}}: {{.Error}}{{end}}
{{else}}no refresh yet
{{end}}</pre>
</div>
{{ else }}
<div class="refreshlog">
  <a href="/__refreshlog?show=1&return={{.ReturnURL}}">Show recent refreshes</a>
</div>
{{ end }}
{{ end }}
{{ if .Flash }}
<div class="flash {{.Flash.Type}}">{{.Flash.Text}}</div>
{{ end }}
</main>
</body></html>`

const loginHTML = `<main>
<div class="card" style="max-width:420px;margin:80px auto;">
  <h2>Task Dashboard</h2>
  <p>Enter your email address to see your tasks.</p>
  <form method="post" action="/login">
    <input type="hidden" name="csrf_token" value="{{.CSRF}}"/>
    <input type="email" name="email" placeholder="you@company.com" required style="width:100%;padding:8px;margin-bottom:8px"/>
    <button class="btn" type="submit">Sign in</button>
  </form>
</div>
</main>`

const dashboardHTML = `<header class="top">
  <h1>Task Dashboard</h1>
  <div style="display:flex;gap:12px;align-items:center">
    <div class="who">
      <div><strong>{{.User}}</strong></div>
      <small>{{if .View.LastRefreshed}}Updated: {{clock .View.LastRefreshed}}{{else}}Updating...{{end}}</small>
    </div>
    <form method="post" action="/logout" style="display:inline">
      <input type="hidden" name="csrf_token" value="{{.CSRF}}"/>
      <button class="btn light" type="submit">Change User</button>
    </form>
    <form method="post" action="/refresh" style="display:inline">
      <input type="hidden" name="csrf_token" value="{{.CSRF}}"/>
      <input type="hidden" name="return" value="{{.ReturnURL}}"/>
      <button class="btn" type="submit">Refresh</button>
    </form>
  </div>
</header>
<main>
{{ if .Notice }}<div class="card notice">{{.Notice}}</div>{{ end }}

{{ with .View.Weekly }}
<section class="card">
  <div style="display:flex;justify-content:space-between;align-items:baseline">
    <h3 style="margin:0">Last Week's Performance</h3>
    <small>({{windowLabel .}})</small>
  </div>
  <table>
    <thead><tr><th>KRA</th><th>KPI</th><th>Planned</th><th>Actual</th><th>Actual %</th></tr></thead>
    <tbody>
      <tr><td>All work should be done as per plan</td><td>% work not done</td>
        <td>{{.PlanVsActual.Planned}}</td><td>{{.PlanVsActual.Completed}}</td>
        <td class="{{perfClass .PlanVsActual.Performance}}">{{pct .PlanVsActual.Performance}}</td></tr>
      <tr><td>All work should be done on time</td><td>% work not done on time</td>
        <td>{{.OnTime.Planned}}</td><td>{{.OnTime.Completed}}</td>
        <td class="{{perfClass .OnTime.Performance}}">{{pct .OnTime.Performance}}</td></tr>
    </tbody>
  </table>
</section>
{{ end }}

<div class="kpis">
{{ range .KPICards }}
  <a class="kpi{{if .Active}} active{{end}}" href="{{.URL}}"><div>{{.Title}}</div><div class="v">{{.Value}}</div></a>
{{ end }}
</div>

<form class="card" method="get" action="/">
  <h3 style="margin-top:0">Filter &amp; Search Tasks</h3>
  <input name="q" value="{{.View.Filter.Search}}" placeholder="Search by Task ID, Task, System or Doer..." style="width:100%;padding:8px;margin-bottom:8px"/>
  <div style="display:flex;gap:12px">
    <label>Task Type
      <select name="type">
        <option value="">All Tasks</option>
        {{ range .View.TaskTypes }}<option value="{{.}}"{{if eq . $.View.Filter.TaskType}} selected{{end}}>{{.}}</option>{{ end }}
      </select>
    </label>
    <label>System Type
      <select name="system">
        <option value="">All System Types</option>
        {{ range .View.SystemTypes }}<option value="{{.}}"{{if eq . $.View.Filter.SystemType}} selected{{end}}>{{.}}</option>{{ end }}
      </select>
    </label>
    <input type="hidden" name="kpi" value="{{.View.Filter.KPI}}"/>
    <input type="hidden" name="sort" value="{{.View.Sort.Key}}"/>
    <input type="hidden" name="dir" value="{{.View.Sort.Direction}}"/>
    <button class="btn" type="submit">Apply</button>
    <a href="/" style="align-self:center">Clear</a>
  </div>
</form>

{{ if .View.Error }}
<div class="card error">
  <h3 style="margin-top:0">Failed to load data</h3>
  <p>{{.View.Error}}</p>
  {{ if .View.RateLimited }}<p><small>This is due to too many requests. The data will attempt to refresh again automatically.</small></p>{{ end }}
</div>
{{ end }}

{{ if not .View.Loaded }}
<div class="card">Loading tasks...</div>
{{ else if .View.Tasks }}
<div class="card">
  <h3 style="margin-top:0">Active Tasks (Overdue &amp; Due Today)</h3>
  <table>
    <thead><tr>
      {{ range .Headers }}<th{{if .Active}} class="sorted"{{end}}>{{if .URL}}<a href="{{.URL}}">{{.Label}} <span class="ind">{{.Indicator}}</span></a>{{else}}{{.Label}}{{end}}</th>{{ end }}
      <th></th>
    </tr></thead>
    <tbody>
    {{ range .View.Tasks }}
      <tr>
        <td>{{orDash .TaskID}}</td>
        <td>{{orDash .SystemType}}</td>
        <td>{{orDash .Task}}</td>
        <td>{{orDash .PlannedDate}}</td>
        <td>{{orDash .DoerName}}</td>
        <td style="text-align:right">{{if .FormLink}}<a class="pill" href="{{.FormLink}}" target="_blank" rel="noopener noreferrer">Mark Done</a>{{else}}<small>No Link</small>{{end}}</td>
      </tr>
    {{ end }}
    </tbody>
  </table>
</div>
{{ else }}
<div class="card" style="text-align:center">
  <h3>No matching tasks found.</h3>
  <p>You have no pending tasks that match the current filters.</p>
</div>
{{ end }}
</main>`

type kpiCard struct {
    Title  string
    Value  int
    URL    string
    Active bool
}

type footerEntry struct {
    When, ID, Trigger, Outcome, Duration, Error string
    Generation                                   uint64
    Tasks                                        int
}

type pageData struct {
    Title          string
    User           string
    CSRF           string
    Flash          *flash
    Notice         template.HTML
    View           *dashboard.View
    Headers        []sortHeader
    KPICards       []kpiCard
    ShowRefreshLog bool
    RefreshEntries []footerEntry
    MoreURL        string
    CanShowMore    bool
    ReturnURL      string
}

func parsePages() map[string]*template.Template {
    layout := template.Must(template.New("layout").Funcs(funcs).Parse(layoutHTML))
    pages := map[string]*template.Template{}
    for name, body := range map[string]string{"login": loginHTML, "dashboard": dashboardHTML} {
        t := template.Must(layout.Clone())
        template.Must(t.New("content").Parse(body))
        pages[name] = t
    }
    return pages
}

func (s *Server) render(w http.ResponseWriter, page string, data pageData) {
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    if data.Title == "" {
        data.Title = "Task Dashboard"
    }
    if err := s.pages[page].Execute(w, data); err != nil {
        applog.Errorf("render %s: %v", page, err)
    }
}
