package handlers

import (
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// CleanupJobName is the scheduler job that prunes old result buckets
const CleanupJobName = "results_cleanup"

// StatusHandler serves version, health, housekeeping and the status page
type StatusHandler struct {
	subscribers SubscriberCounter
	scheduler   interfaces.SchedulerService
	started     time.Time
	logger      arbor.ILogger
}

// NewStatusHandler creates the handler. scheduler may be nil when cleanup is not scheduled.
func NewStatusHandler(subscribers SubscriberCounter, scheduler interfaces.SchedulerService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		subscribers: subscribers,
		scheduler:   scheduler,
		started:     time.Now(),
		logger:      logger,
	}
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"name":       common.AppName,
		"version":    common.Version,
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

type jobView struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	IsRunning bool       `json:"is_running"`
	LastError string     `json:"last_error,omitempty"`
}

type healthResponse struct {
	Status      string    `json:"status"`
	Uptime      string    `json:"uptime"`
	Subscribers int       `json:"subscribers"`
	Goroutines  int64     `json:"goroutines_spawned"` // background tasks started via common.SafeGo
	Jobs        []jobView `json:"jobs"`
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.health())
}

// CleanupHandler handles POST /api/results/cleanup by triggering the cleanup job now
func (h *StatusHandler) CleanupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if h.scheduler == nil {
		WriteError(w, http.StatusServiceUnavailable, "cleanup is not scheduled")
		return
	}
	if err := h.scheduler.TriggerJob(CleanupJobName); err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "results cleanup triggered",
	})
}

// PageHandler serves the status page at "/"
func (h *StatusHandler) PageHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	data := struct {
		Name    string
		Version string
		Health  healthResponse
	}{
		Name:    common.AppName,
		Version: common.GetFullVersion(),
		Health:  h.health(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage.Execute(w, data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to render status page")
	}
}

func (h *StatusHandler) health() healthResponse {
	response := healthResponse{
		Status:     "ok",
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Goroutines: common.GetGoroutineCount(),
		Jobs:       []jobView{},
	}
	if h.subscribers != nil {
		response.Subscribers = h.subscribers.Count()
	}
	if h.scheduler != nil {
		for _, status := range h.scheduler.GetAllJobStatuses() {
			response.Jobs = append(response.Jobs, jobView{
				Name:      status.Name,
				Schedule:  status.Schedule,
				LastRun:   status.LastRun,
				NextRun:   status.NextRun,
				IsRunning: status.IsRunning,
				LastError: status.LastError,
			})
		}
		sort.Slice(response.Jobs, func(i, j int) bool { return response.Jobs[i].Name < response.Jobs[j].Name })
	}
	return response
}

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<style>
body { font-family: sans-serif; margin: 40px; }
td, th { padding: 4px 12px; text-align: left; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>
<p>Version {{.Version}}, up {{.Health.Uptime}}, {{.Health.Subscribers}} live subscriber(s) on <code>/ws</code>.</p>
<h2>Endpoints</h2>
<ul>
<li><code>POST /api/analyze</code> upload a workflow (multipart field <code>file</code>)</li>
<li><code>POST /api/pipeline/analyze</code> <code>{"path": "..."}</code></li>
<li><code>POST /api/pipeline/batch</code> <code>{"directory": "...", "pattern": "*.json"}</code></li>
<li><code>GET /api/results/latest?workflow=...</code></li>
<li><code>GET /api/irregular-names</code>, <code>GET /api/model-config</code></li>
</ul>
{{if .Health.Jobs}}
<h2>Scheduled jobs</h2>
<table>
<tr><th>Job</th><th>Schedule</th><th>Last run</th><th>Last error</th></tr>
{{range .Health.Jobs}}<tr><td>{{.Name}}</td><td>{{.Schedule}}</td><td>{{if .LastRun}}{{.LastRun.Format "2006-01-02 15:04:05"}}{{else}}never{{end}}</td><td>{{.LastError}}</td></tr>
{{end}}</table>
{{end}}
</body>
</html>
`))
