package server

import (
	"fmt"
	"html/template"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/vpnsentinel/vpnsentinel/pkg/classify"
)

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="30">
<title>VPN Sentinel</title>
<style>
body { font-family: sans-serif; margin: 2em; background: #fafafa; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 6px 12px; border-bottom: 1px solid #ddd; }
.chip { padding: 2px 8px; border-radius: 8px; color: #fff; font-size: 0.85em; }
.chip.green { background: #2e7d32; }
.chip.yellow { background: #f9a825; }
.chip.red { background: #c62828; }
</style>
</head>
<body>
<h1>VPN Sentinel</h1>
<p>{{ .Total }} client(s), {{ .Secure }} secure &mdash; rendered {{ .Now }}</p>
<table>
<tr><th>Status</th><th>Client</th><th>IP</th><th>Location</th><th>Provider</th><th>DNS</th><th>Last seen</th></tr>
{{- range .Rows }}
<tr>
<td><span class="chip {{ .Color }}">{{ .Status | upper }}</span></td>
<td>{{ .ID }}</td>
<td>{{ .IP }}</td>
<td>{{ .Location }}</td>
<td>{{ .Provider | default "Unknown" }}</td>
<td>{{ .DNS }}</td>
<td>{{ .LastSeen }}</td>
</tr>
{{- else }}
<tr><td colspan="7">No clients connected.</td></tr>
{{- end }}
</table>
</body>
</html>
`

const logsHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>VPN Sentinel logs</title></head>
<body>
<h1>Log tail</h1>
<pre>{{ range .Lines }}{{ . }}
{{ end }}</pre>
</body>
</html>
`

var (
	dashboardTmpl = template.Must(template.New("dashboard").Funcs(sprig.HtmlFuncMap()).Parse(dashboardHTML))
	logsTmpl      = template.Must(template.New("logs").Parse(logsHTML))
)

type dashboardRow struct {
	ID       string
	IP       string
	Location string
	Provider string
	DNS      string
	LastSeen string
	Status   string
	Color    string
}

type dashboardData struct {
	Now    string
	Total  int
	Secure int
	Rows   []dashboardRow
}

func (s *service) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = dashboardTmpl.Execute(w, s.dashboardData(time.Now()))
}

// dashboardData projects the store into display rows, sorted by client id.
// Timestamps are shown in the operator's TZ; the store itself stays UTC.
func (s *service) dashboardData(now time.Time) dashboardData {
	snap := s.state.Snapshot()
	serverIP := s.state.CachedServerIP()
	loc, err := time.LoadLocation(s.env.Timezone)
	if err != nil {
		loc = time.UTC
	}

	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data := dashboardData{
		Now:   now.In(loc).Format("2006-01-02 15:04:05 MST"),
		Total: len(ids),
	}
	for _, id := range ids {
		e := snap[id]
		st := classify.Classify(e.IP, e.Country, e.DNSLoc, serverIP)
		if st == classify.Secure {
			data.Secure++
		}
		data.Rows = append(data.Rows, dashboardRow{
			ID:       id,
			IP:       e.IP,
			Location: e.Location,
			Provider: e.Provider,
			DNS:      e.DNSLoc + " / " + e.DNSColo,
			LastSeen: lastSeenPhrase(e, now),
			Status:   string(st),
			Color:    st.Color(),
		})
	}
	return data
}

const logTailLines = 200

func (s *service) handleLogs(w http.ResponseWriter, _ *http.Request) {
	if s.env.LogFile == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "no log file configured; set VPN_SENTINEL_LOG_FILE")
		return
	}
	lines, err := tailFile(s.env.LogFile, logTailLines)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "cannot read log file: %v\n", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = logsTmpl.Execute(w, struct{ Lines []string }{lines})
}

// tailFile returns the last n lines of the file. The log rotates at a bounded
// size, so reading it whole is fine.
func tailFile(path string, n int) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
