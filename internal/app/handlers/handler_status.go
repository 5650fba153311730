package handlers

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/version"
	"github.com/thushan/flowgate/pkg/format"
)

var responseJSON = []byte(`{"status":"healthy"}`)

// healthHandler reports gateway liveness only. Backend state lives under
// /internal/status.
func (a *Application) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(responseJSON)
}

// connectivityHandler answers HEAD / so one flowgate can health check
// another with a connectivity recipe.
func (a *Application) connectivityHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *Application) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ollamaError{Error: "no route for " + r.Method + " " + r.URL.Path})
}

func (a *Application) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ollamaError{Error: r.Method + " is not allowed on " + r.URL.Path})
}

type BackendSummary struct {
	Models              map[domain.ModelSyncStatus]int `json:"models,omitempty"`
	ID                  string                         `json:"id"`
	Name                string                         `json:"name"`
	URL                 string                         `json:"url"`
	Dialect             string                         `json:"dialect"`
	State               string                         `json:"state"`
	LastProbe           string                         `json:"last_probe"`
	Latency             string                         `json:"latency,omitempty"`
	LastError           string                         `json:"last_error,omitempty"`
	ConsecutiveFailures int                            `json:"consecutive_failures"`
	Ready               bool                           `json:"ready"`
}

type FrontendSummary struct {
	ID             string   `json:"id"`
	Hostname       string   `json:"hostname"`
	Backends       []string `json:"backends"`
	BackendsUp     string   `json:"backends_up"`
	Sticky         bool     `json:"sticky_sessions"`
	AllowRetries   bool     `json:"allow_retries"`
	AffinityTotals int      `json:"affinity_entries"`
}

type StatusResponse struct {
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Backends  []BackendSummary  `json:"backends"`
	Frontends []FrontendSummary `json:"frontends"`
	Healthy   int               `json:"healthy_backends"`
	Total     int               `json:"total_backends"`
}

func (a *Application) statusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	backends, err := a.backends.GetAll(ctx)
	if err != nil {
		a.logger.Error("Failed to read backend directory", "error", err)
		writeJSON(w, http.StatusInternalServerError, ollamaError{Error: "failed to read backend directory"})
		return
	}
	frontends, err := a.frontends.GetAll(ctx)
	if err != nil {
		a.logger.Error("Failed to read frontend directory", "error", err)
		writeJSON(w, http.StatusInternalServerError, ollamaError{Error: "failed to read frontend directory"})
		return
	}

	resp := StatusResponse{
		Timestamp: time.Now(),
		Version:   version.Version,
		Uptime:    format.Duration(time.Since(a.StartTime)),
		Backends:  make([]BackendSummary, 0, len(backends)),
		Frontends: make([]FrontendSummary, 0, len(frontends)),
		Total:     len(backends),
	}

	healthy := make(map[string]bool, len(backends))
	for _, b := range backends {
		summary := a.summariseBackend(b)
		if summary.State == domain.HealthHealthy.String() {
			healthy[b.ID] = true
			resp.Healthy++
		}
		resp.Backends = append(resp.Backends, summary)
	}

	affinityByFrontend := make(map[string]int)
	if a.affinity != nil {
		for _, e := range a.affinity.Entries(ctx) {
			affinityByFrontend[e.FrontendID]++
		}
	}

	for _, f := range frontends {
		up := 0
		for _, id := range f.Backends {
			if healthy[id] {
				up++
			}
		}
		resp.Frontends = append(resp.Frontends, FrontendSummary{
			ID:             f.ID,
			Hostname:       f.Hostname,
			Backends:       f.Backends,
			BackendsUp:     format.BackendsUp(up, len(f.Backends)),
			Sticky:         f.StickySessions,
			AllowRetries:   f.AllowRetries,
			AffinityTotals: affinityByFrontend[f.ID],
		})
	}

	slices.SortFunc(resp.Backends, func(x, y BackendSummary) int { return strings.Compare(x.ID, y.ID) })
	slices.SortFunc(resp.Frontends, func(x, y FrontendSummary) int { return strings.Compare(x.ID, y.ID) })

	writeJSON(w, http.StatusOK, resp)
}

func (a *Application) summariseBackend(b *domain.Backend) BackendSummary {
	summary := BackendSummary{
		ID:        b.ID,
		Name:      b.Name,
		URL:       b.BaseURL().String(),
		Dialect:   b.Dialect.String(),
		State:     domain.HealthUnknown.String(),
		LastProbe: format.TimeAgo(time.Time{}),
		Ready:     true,
	}
	if a.health != nil {
		if rec, ok := a.health.Record(b.ID); ok {
			summary.State = rec.State.String()
			summary.LastProbe = format.TimeAgo(rec.LastProbe)
			summary.ConsecutiveFailures = rec.ConsecutiveFailures
			summary.LastError = rec.LastError
			if !rec.LastProbe.IsZero() {
				summary.Latency = format.Latency(rec.LastLatency)
			}
		}
	}
	if a.modelSync != nil {
		summary.Ready = a.modelSync.Ready(b.ID)
		if records := a.modelSync.Records(b.ID); len(records) > 0 {
			summary.Models = make(map[domain.ModelSyncStatus]int, 4)
			for _, rec := range records {
				summary.Models[rec.Status]++
			}
		}
	}
	return summary
}
