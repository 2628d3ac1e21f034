package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pulse-relay/internal/logic"
	"github.com/sweeney/pulse-relay/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime":  formatUptime,
	"elapsed": logic.Elapsed,
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
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
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Pulse Relay</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.active { color: green; font-weight: bold; }
.idle { color: #888; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Pulse Relay</h1>

<h2>Run</h2>
<table>
<tr><th>State</th><td class="{{if .Relay.RunID}}active{{else}}idle{{end}}">{{if .Relay.RunID}}active{{else}}no run{{end}}</td></tr>
{{if .Relay.RunID}}<tr><th>Run ID</th><td>{{.Relay.RunID}}</td></tr>{{end}}
<tr><th>Idle</th><td>{{uptime (elapsed .Relay.Now .Relay.LastEvent)}}</td></tr>
<tr><th>Last post</th><td>{{uptime (elapsed .Relay.Now .Relay.LastPost)}} ago</td></tr>
</table>

<h2>Buffer</h2>
<table>
<tr><th>Buffered</th><td>{{.Relay.Buffered}} / {{.Relay.Capacity}}</td></tr>
<tr><th>Held for run</th><td>{{.Relay.Pending}}</td></tr>
<tr><th>Dropped</th><td class="{{if .Relay.Dropped}}warn{{end}}">{{.Relay.Dropped}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Triggers</th><td>{{.Relay.Triggers}}</td></tr>
<tr><th>Bounces</th><td>{{.Relay.Bounces}}</td></tr>
<tr><th>Pulses</th><td>{{.Relay.Accepted}}</td></tr>
<tr><th>Batches sent</th><td>{{.Relay.Sent}}</td></tr>
<tr><th>Batches failed</th><td>{{.Relay.Failed}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Collector</th><td class="{{if .CollectorConnected}}connected{{else}}disconnected{{end}}">{{if .CollectorConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Server</th><td>{{.Config.Server}}</td></tr>
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Device</th><td>{{.Config.Device}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>GPIO pin</th><td>{{.Config.Pin}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Post interval</th><td>{{.Config.MinPostIntervalMs}}ms</td></tr>
<tr><th>Run timeout</th><td>{{.Config.RunTimeoutMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
