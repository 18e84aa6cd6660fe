package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaEntities"
)

const maxCommandBody = 1 << 10

type entityStore interface {
	Entities() []casaEntities.Entity
	Get(key string) (casaEntities.Entity, bool)
	Command(ctx context.Context, key string, payload string) error
}

type entityView struct {
	Key        string         `json:"key"`
	Name       string         `json:"name"`
	State      string         `json:"state"`
	Writable   bool           `json:"writable"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type apiError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func viewOf(e casaEntities.Entity) entityView {
	_, writable := e.(casaEntities.Commander)
	view := entityView{Key: e.Key(), Name: e.Name(), State: e.State(), Writable: writable}
	if a, ok := e.(casaEntities.Attributer); ok {
		view.Attributes = a.Attributes()
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Status: status, Message: message})
}

type apiHandler struct {
	entities entityStore
	logger   *zap.SugaredLogger
}

func (h *apiHandler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Errorf("Panic in %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *apiHandler) listEntities(w http.ResponseWriter, r *http.Request) {
	entities := h.entities.Entities()
	views := make([]entityView, 0, len(entities))
	for _, e := range entities {
		views = append(views, viewOf(e))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *apiHandler) getEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entities.Get(chi.URLParam(r, "key"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown entity")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e))
}

// setEntity takes the raw request body as command payload, the same text
// accepted on the MQTT set topics.
func (h *apiHandler) setEntity(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	err = h.entities.Command(r.Context(), key, string(body))
	switch {
	case err == nil:
	case errors.Is(err, casaEntities.ErrUnknownEntity):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, casaEntities.ErrNotWritable):
		writeError(w, http.StatusMethodNotAllowed, err.Error())
		return
	case errors.Is(err, casaEntities.ErrUnknownOption),
		errors.Is(err, casaEntities.ErrOutOfRange),
		errors.Is(err, casaEntities.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	e, _ := h.entities.Get(key)
	writeJSON(w, http.StatusOK, viewOf(e))
}

func newRouter(reg *prometheus.Registry, entities entityStore, logger *zap.SugaredLogger) http.Handler {
	h := &apiHandler{entities: entities, logger: logger}
	r := chi.NewRouter()
	r.Use(h.recoverer)

	// Expose metrics and custom registry via an HTTP server
	// using the HandleFor function. "/metrics" is the usual endpoint for that.
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/entities", func(r chi.Router) {
		r.Get("/", h.listEntities)
		r.Get("/{key}", h.getEntity)
		r.Put("/{key}", h.setEntity)
	})
	return r
}

func newHttpServer(handler http.Handler, port string) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
