package dispatch

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/buildsync/bridge/internal/observability"
	"github.com/buildsync/bridge/protocol"
	"github.com/buildsync/bridge/runner"
)

// NewHTTPHandler exposes the endpoints the external watcher calls, plus
// health and metrics.
func NewHTTPHandler(engine *Engine, runnerClient runner.Client, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = observability.NewLogger("bridge.http")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/v1/events/build", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var event protocol.BuildEvent
		if err := decodeJSON(r, &event); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		triggered, err := engine.addBuild(r.Context(), event.Build)
		if err != nil {
			logger.Error("build event failed", "event", "build_event_failed",
				"namespace", event.Build.Metadata.Namespace, "name", event.Build.Metadata.Name, "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, protocol.TriggerResult{Triggered: triggered})
	})

	mux.HandleFunc("/api/v1/events/build/cancel", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var event protocol.BuildEvent
		if err := decodeJSON(r, &event); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		job, err := engine.JobForBuild(r.Context(), event.Build)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, errors.New("no job linked to build"))
			return
		}
		if err := engine.CancelBuild(r.Context(), job, event.Build); err != nil {
			logger.Error("cancel failed", "event", "cancel_failed",
				"namespace", event.Build.Metadata.Namespace, "name", event.Build.Metadata.Name, "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/v1/events/buildlist", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var event protocol.BuildListEvent
		if err := decodeJSON(r, &event); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		job, link, err := resolveLinkedJob(r, runnerClient, event.JobName)
		if err != nil {
			writeResolveError(w, err)
			return
		}
		if err := engine.HandleBuildList(r.Context(), job, event.Builds, link); err != nil {
			logger.Error("build list failed", "event", "build_list_failed", "job", event.JobName, "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/v1/resync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req protocol.ResyncRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		job, _, err := resolveLinkedJob(r, runnerClient, req.JobName)
		if err != nil {
			writeResolveError(w, err)
			return
		}
		if err := engine.MaybeScheduleNext(r.Context(), job); err != nil {
			logger.Error("resync failed", "event", "resync_failed", "job", req.JobName, "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

var (
	errUnlinkedJob = errors.New("job has no build config link")
	errNoJobName   = errors.New("job_name is required")
)

func resolveLinkedJob(r *http.Request, runnerClient runner.Client, name string) (runner.Job, runner.BuildConfigLink, error) {
	if name == "" {
		return nil, runner.BuildConfigLink{}, errNoJobName
	}
	job, err := runnerClient.LookupJob(r.Context(), name)
	if err != nil {
		return nil, runner.BuildConfigLink{}, err
	}
	link, ok := job.BuildConfigLink()
	if !ok {
		return nil, runner.BuildConfigLink{}, errUnlinkedJob
	}
	return job, link, nil
}

func writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNoJobName):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, runner.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, errUnlinkedJob):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
