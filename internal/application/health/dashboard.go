package health

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta http-equiv="refresh" content="10">
<title>Corkboard API | System Status</title>
<style>
body{background:#0d1117;color:#c9d1d9;font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;margin:0;padding:2rem}
h1{font-size:1.4rem;margin:0 0 1.5rem}
.grid{display:grid;grid-template-columns:repeat(auto-fit,minmax(220px,1fr));gap:1rem}
.card{background:#161b22;border:1px solid #30363d;border-radius:8px;padding:1rem}
.card h2{font-size:.8rem;text-transform:uppercase;color:#8b949e;margin:0 0 .75rem}
.big{font-size:1.8rem;font-weight:600}
.ok{color:#3fb950}.issue{color:#f85149}
table{width:100%;border-collapse:collapse;font-size:.9rem}
td{padding:.25rem 0}td:last-child{text-align:right}
</style>
</head>
<body>
<h1>Corkboard API <span class="{{.Status}}">{{.Status}}</span></h1>
<div class="grid">
<div class="card"><h2>Traffic</h2>
<div class="big">{{.Requests}}</div>
<table>
<tr><td>Success rate</td><td>{{.Traffic.SuccessRate}}%</td></tr>
<tr><td>Failed</td><td>{{.Traffic.FailedCount}}</td></tr>
<tr><td>Avg response</td><td>{{.AvgTime}} ms</td></tr>
<tr><td>Last request</td><td>{{.LastMethod}} {{.LastPath}}</td></tr>
</table></div>
<div class="card"><h2>Sessions</h2>
<div class="big">{{.Sessions.Live}}</div>
<table><tr><td>Open client boards</td><td>{{.Sessions.Live}}</td></tr></table></div>
<div class="card"><h2>Runtime</h2>
<table>
<tr><td>Up since</td><td>{{.Uptime}}</td></tr>
<tr><td>Heap</td><td>{{.Runtime.Memory.HeapUsed}} MB</td></tr>
<tr><td>Goroutines</td><td>{{.Runtime.Goroutines}}</td></tr>
<tr><td>Platform</td><td>{{.Runtime.Platform}}</td></tr>
<tr><td>Go</td><td>{{.Runtime.GoVersion}}</td></tr>
</table></div>
<div class="card"><h2>Dependencies</h2>
<table>
{{range .Deps}}<tr><td>{{.Name}}</td><td class="{{if eq .Status "connected"}}ok{{else}}issue{{end}}">{{.Status}}{{if .Ping}} ({{.Ping}} ms){{end}}</td></tr>
{{end}}</table></div>
</div>
</body>
</html>`))

type depRow struct {
	Name   string
	Status string
	Ping   string
}

type dashboardView struct {
	CollectResult
	Requests   string
	Uptime     string
	AvgTime    string
	LastMethod string
	LastPath   string
	Deps       []depRow
}

// RenderDashboardHTML returns the status page served at GET /.
func RenderDashboardHTML(health CollectResult) string {
	v := dashboardView{
		CollectResult: health,
		Requests:      humanize.Comma(int64(health.Traffic.TotalRequests)),
		Uptime:        humanize.Time(time.Now().Add(-time.Duration(health.Runtime.UptimeSeconds) * time.Second)),
		AvgTime:       fmt.Sprint(health.Traffic.AvgResponseTime),
		LastMethod:    "-",
		LastPath:      "-",
	}
	if m, ok := health.Traffic.LastRequest.(map[string]interface{}); ok {
		if s, ok := m["method"].(string); ok {
			v.LastMethod = s
		}
		if s, ok := m["path"].(string); ok {
			v.LastPath = s
		}
	}
	names := make([]string, 0, len(health.Dependencies))
	for name := range health.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := health.Dependencies[name]
		row := depRow{Name: name, Status: d.Status}
		if p, ok := d.PingMs.(*int64); ok && p != nil {
			row.Ping = fmt.Sprint(*p)
		}
		v.Deps = append(v.Deps, row)
	}

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, v); err != nil {
		return "<!DOCTYPE html><title>Corkboard API</title><p>status unavailable</p>"
	}
	return buf.String()
}
