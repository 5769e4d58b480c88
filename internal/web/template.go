package web

import (
	"fmt"
	"html/template"
	"time"

	"github.com/sweeney/repeater/internal/recordings"
	"github.com/sweeney/repeater/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"seconds": func(d time.Duration) string {
		return fmt.Sprintf("%.1fs", d.Seconds())
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Repeater</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.IDLE { color: #888; }
.RECORDING { color: green; font-weight: bold; }
.AWAITING_KEY_RELEASE { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Repeater ({{.Config.Mode}}{{if not .Config.Enabled}}, listen only{{end}})</h1>

<h2>State</h2>
<table>
<tr><th>State</th><td id="state" class="{{.State}}">{{.State}}</td></tr>
<tr><th>Since</th><td>{{stamp .StateSince}}</td></tr>
<tr><th>Last transmission</th><td>{{stamp .LastTransmission}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Recordings</th><td>{{.Counts.Recordings}}</td></tr>
<tr><th>Transmissions</th><td>{{.Counts.Transmissions}}</td></tr>
<tr><th>Timeouts</th><td>{{.Counts.Timeouts}}</td></tr>
<tr><th>Audio failures</th><td>{{.Counts.AudioFailures}}</td></tr>
</table>

{{if .Recent}}<h2>Recent recordings</h2>
<table>
{{range .Recent}}<tr><th>{{.Name}}</th><td>{{seconds .Duration}}{{if .UploadedAt}} (archived){{end}}</td></tr>
{{end}}</table>
{{end}}

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Config.Broker}}{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{else}}disabled{{end}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>Timeout</th><td>{{.Config.TimeoutSeconds}}s</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Courtesy tone</th><td>{{if .Config.CourtesyTone}}{{.Config.CourtesyTone}}{{else}}none{{end}}</td></tr>
<tr><th>GPIO</th><td>{{.Config.GPIOBackend}}</td></tr>
</table>

<p><a href="/status.json">JSON</a> · <a href="/recordings.json">recordings</a></p>
</body>
</html>
`

type indexData struct {
	status.Snapshot
	Uptime time.Duration
	Recent []recordings.Recording
}

func pageData(snap status.Snapshot, recent []recordings.Recording) indexData {
	// Snapshot has an Uptime method but the template needs a value.
	return indexData{Snapshot: snap, Uptime: snap.Uptime(), Recent: recent}
}
