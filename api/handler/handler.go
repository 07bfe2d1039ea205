package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"edgeroute/api/assign"
	"edgeroute/api/config"
	"edgeroute/api/cron"
	"edgeroute/api/distribute"
	"edgeroute/api/health"
	"edgeroute/api/hub"
	"edgeroute/api/model"
	"edgeroute/api/saga"
	"edgeroute/api/store"
)

var validIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Locator resolves an address to a location. *geoip.Locator satisfies it.
type Locator interface {
	Lookup(ip string) *model.GeoInfo
}

// Broadcaster is the event sink handlers publish to. *hub.Hub satisfies it.
type Broadcaster interface {
	Broadcast(evt hub.Event)
}

type Handler struct {
	db        store.Store
	sagaStore saga.Store
	geo       Locator
	ws        Broadcaster
	cfg       *config.Config
	assigner  *assign.Service
	monitor   *health.Monitor
	dist      *distribute.Distributor
	scheduler *cron.Scheduler
}

func New(db store.Store, ss saga.Store, geo Locator, ws Broadcaster, cfg *config.Config, mon *health.Monitor, dist *distribute.Distributor, scheduler *cron.Scheduler) *Handler {
	return &Handler{
		db:        db,
		sagaStore: ss,
		geo:       geo,
		ws:        ws,
		cfg:       cfg,
		monitor:   mon,
		dist:      dist,
		scheduler: scheduler,
		assigner: &assign.Service{
			Domains:         db,
			DefaultLocation: cfg.DefaultLocation,
			MaxAttempts:     cfg.AssignAttempts,
			Timeout:         cfg.StoreTimeout,
		},
	}
}

// ValidateID is middleware that rejects requests with malformed node or
// domain ids before they reach the store.
func ValidateID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id != "" && !validIDRe.MatchString(id) {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeErr maps the model sentinels onto status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("handler: request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// maxBodyBytes bounds request bodies, including the unauthenticated poll.
const maxBodyBytes = 64 << 10

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryLimit(r *http.Request, fallback int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
