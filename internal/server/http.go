package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/morezero/hybrid-bridge/pkg/lifecycle"
	"github.com/morezero/hybrid-bridge/pkg/registry"
	"github.com/morezero/hybrid-bridge/pkg/session"
	"github.com/morezero/hybrid-bridge/pkg/thread"
)

// healthOutput is the /health body.
type healthOutput struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Checks    healthChecks `json:"checks"`
}

type healthChecks struct {
	Comms           bool  `json:"comms"`
	CommsReconnects int64 `json:"commsReconnects"`
	Threads         bool  `json:"threads"`
	// Database is omitted when storage is in memory.
	Database *bool `json:"database,omitempty"`
}

// threadStats is the execution-context part of /stats.
type threadStats struct {
	UI     thread.Stats `json:"ui"`
	Worker thread.Stats `json:"worker"`
}

// statsOutput is the /stats body.
type statsOutput struct {
	Calls      []nameStats        `json:"calls"`
	Rejections []lifecycle.Report `json:"recentRejections"`
	Threads    threadStats        `json:"threads"`
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	mux.HandleFunc("/sessions", s.handleSessions())
	mux.HandleFunc("/stats", s.handleStats())
	return mux
}

func (s *Server) health(ctx context.Context) *healthOutput {
	out := &healthOutput{Timestamp: time.Now().UTC().Format(time.RFC3339)}
	out.Checks.Comms = s.commsConnected != nil && s.commsConnected()
	out.Checks.CommsReconnects = s.commsReconnects.Load()
	out.Checks.Threads = s.threads != nil && s.threads.Loop().IsRunning() && s.threads.Pool().IsRunning()
	healthy := out.Checks.Comms && out.Checks.Threads
	if s.dbPing != nil {
		ok := s.dbPing(ctx) == nil
		out.Checks.Database = &ok
		healthy = healthy && ok
	}
	out.Status = "unhealthy"
	if healthy {
		out.Status = "healthy"
	}
	return out
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.health(ctx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}

func (s *Server) handleSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessionInfos(s.manager.Active()))
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.statsSnapshot())
	}
}

func (s *Server) statsSnapshot() *statsOutput {
	out := &statsOutput{
		Calls:      s.stats.Snapshot(),
		Rejections: s.stats.RecentRejections(),
	}
	if s.threads != nil {
		out.Threads = threadStats{UI: s.threads.Loop().Stats(), Worker: s.threads.Pool().Stats()}
	}
	return out
}

func sessionInfos(sessions []*session.Session) []session.Info {
	out := make([]session.Info, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}
	return out
}

// homeData is the data passed to the home page template.
type homeData struct {
	Health     *healthOutput
	Handlers   []registry.Entry
	Collisions []registry.Collision
	Sessions   []session.Info
	Stats      *statsOutput
}

// handleHome returns an HTTP handler for the bridge overview page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{
			Health:     s.health(ctx),
			Handlers:   s.registry.Handlers(),
			Collisions: s.registry.Collisions(),
			Sessions:   sessionInfos(s.manager.Active()),
			Stats:      s.statsSnapshot(),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// homePageTemplate is the HTML for the bridge home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Hybrid Bridge</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Hybrid Bridge</h1>
  <p class="meta">Bridge health, registered handlers and open sessions.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Comms: {{if .Health.Checks.Comms}}<span class="stat">OK</span>{{else}}<span class="error">Disconnected</span>{{end}} (reconnects: {{.Health.Checks.CommsReconnects}})</p>
    <p>Threads: {{if .Health.Checks.Threads}}<span class="stat">OK</span>{{else}}<span class="error">Stopped</span>{{end}}</p>
    {{with .Health.Checks.Database}}<p>Database: {{if .}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>{{end}}
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Handlers</h2>
    {{if not .Handlers}}
    <p>No handlers registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Name</th><th>Layer</th><th>Namespace</th><th>Platform</th><th>Thread</th><th>Version</th></tr>
      </thead>
      <tbody>
        {{range .Handlers}}
        <tr><td>{{.Name}}</td><td>{{.Layer}}</td><td>{{.Namespace}}</td><td>{{.Platform}}</td><td>{{.Thread}}</td><td>{{.Version}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  {{if .Collisions}}
  <section>
    <h2>Rejected registrations</h2>
    <table>
      <thead><tr><th>Name</th><th>Layer</th><th>Namespace</th><th>At</th></tr></thead>
      <tbody>
        {{range .Collisions}}
        <tr><td class="error">{{.Name}}</td><td>{{.Layer}}</td><td>{{.Namespace}}</td><td>{{.At.Format "2006-01-02T15:04:05Z07:00"}}</td></tr>
        {{end}}
      </tbody>
    </table>
  </section>
  {{end}}

  <section>
    <h2>Sessions</h2>
    <p>Open sessions: <span class="stat">{{len .Sessions}}</span></p>
    {{if .Sessions}}
    <table>
      <thead><tr><th>ID</th><th>Platform</th><th>Namespace</th><th>Local handlers</th><th>Mocked</th><th>Opened</th></tr></thead>
      <tbody>
        {{range .Sessions}}
        <tr><td>{{.ID}}</td><td>{{.Platform}}</td><td>{{.Namespace}}</td><td>{{.LocalHandlers}}</td><td>{{.Mocked}}</td><td>{{.CreatedAt.Format "2006-01-02T15:04:05Z07:00"}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Calls</h2>
    <p>UI executed: <span class="stat">{{.Stats.Threads.UI.Executed}}</span>, worker executed: <span class="stat">{{.Stats.Threads.Worker.Executed}}</span>, worker queue: {{.Stats.Threads.Worker.QueueDepth}}</p>
    {{if .Stats.Calls}}
    <table>
      <thead><tr><th>Name</th><th>Resolved</th><th>Rejected</th><th>Last code</th></tr></thead>
      <tbody>
        {{range .Stats.Calls}}
        <tr><td>{{.Name}}</td><td>{{.Resolved}}</td><td>{{.Rejected}}</td><td>{{.LastCode}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`
