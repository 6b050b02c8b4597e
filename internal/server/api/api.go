// Package api exposes the sync protocol over HTTP: one combined push/pull
// exchange per entity, the conflict audit trail, and presigned blob uploads.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pensieve-app/pensieve/internal/logging"
	"github.com/pensieve-app/pensieve/internal/server/auth"
	"github.com/pensieve-app/pensieve/internal/server/metrics"
	"github.com/pensieve-app/pensieve/internal/server/store"
)

// Entity tables provisioned for every account. Requests naming anything else
// are rejected before touching storage.
var knownEntities = map[string]bool{
	"captures": true,
	"thoughts": true,
	"ideas":    true,
	"todos":    true,
}

// Storage is the persistence surface the handlers need.
type Storage interface {
	ApplySync(ctx context.Context, accountID, entity string, changes []store.Record, since, serverTime int64) ([]store.Record, error)
	SaveConflicts(ctx context.Context, accountID string, conflicts []store.Conflict) error
	ListConflicts(ctx context.Context, accountID string, limit int) ([]store.Conflict, error)
}

// Blobs issues presigned upload URLs.
type Blobs interface {
	PresignedPutURL(ctx context.Context) (key, url string, err error)
}

// SyncRequest and SyncResponse are the wire shapes of one entity exchange.
type SyncRequest struct {
	LastPulledAt int64          `json:"lastPulledAt"`
	Changes      []store.Record `json:"changes"`
}

type SyncResponse struct {
	Changes   []store.Record `json:"changes"`
	Timestamp int64          `json:"timestamp"`
}

type presignResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Handler carries the handler dependencies.
type Handler struct {
	store  Storage
	blobs  Blobs
	secret []byte
	log    logging.Logger
	now    func() int64
}

func NewHandler(st Storage, blobs Blobs, secret []byte, log logging.Logger) *Handler {
	return &Handler{
		store:  st,
		blobs:  blobs,
		secret: secret,
		log:    logging.OrNoop(log),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Router builds the full route tree. /metrics is unauthenticated; everything
// under /api requires a bearer token.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post("/sync/{entity}", h.handleSync)
		r.Post("/conflicts/{entity}", h.handleReportConflicts)
		r.Get("/conflicts", h.handleListConflicts)
		r.Post("/uploads/presign", h.handlePresign)
	})

	return r
}

type ctxKey int

const accountIDKey ctxKey = 0

// authenticate resolves the bearer token to an account and stores it on the
// request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		accountID, err := auth.GetAccountIDFromToken(tokenString, h.secret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountID(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}

// handleSync runs one entity's combined push/pull exchange. The response
// timestamp is the server clock value the applied changes were stamped with;
// the client stores it as both cursors.
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	if !knownEntities[entity] {
		metrics.SyncRequests.WithLabelValues(entity, "client_error").Inc()
		http.Error(w, "unknown entity", http.StatusNotFound)
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.SyncRequests.WithLabelValues(entity, "client_error").Inc()
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	start := time.Now()
	serverTime := h.now()

	updated, err := h.store.ApplySync(r.Context(), accountID(r.Context()), entity, req.Changes, req.LastPulledAt, serverTime)
	if err != nil {
		metrics.SyncRequests.WithLabelValues(entity, "server_error").Inc()
		h.log.Error(r.Context(), "sync exchange failed", "entity", entity, "error", err)
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	metrics.SyncRequests.WithLabelValues(entity, "ok").Inc()
	metrics.SyncDuration.WithLabelValues(entity).Observe(time.Since(start).Seconds())
	metrics.ChangesApplied.WithLabelValues(entity).Add(float64(len(req.Changes)))
	metrics.ChangesReturned.WithLabelValues(entity).Add(float64(len(updated)))

	if updated == nil {
		updated = []store.Record{}
	}
	writeJSON(w, SyncResponse{Changes: updated, Timestamp: serverTime})
}

func (h *Handler) handleReportConflicts(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	if !knownEntities[entity] {
		http.Error(w, "unknown entity", http.StatusNotFound)
		return
	}

	var conflicts []store.Conflict
	if err := json.NewDecoder(r.Body).Decode(&conflicts); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for i := range conflicts {
		conflicts[i].Entity = entity
	}

	if err := h.store.SaveConflicts(r.Context(), accountID(r.Context()), conflicts); err != nil {
		h.log.Error(r.Context(), "failed to save conflict audits", "entity", entity, "error", err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}

	for _, c := range conflicts {
		metrics.ConflictsReported.WithLabelValues(entity, c.ConflictType).Inc()
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	conflicts, err := h.store.ListConflicts(r.Context(), accountID(r.Context()), limit)
	if err != nil {
		h.log.Error(r.Context(), "failed to list conflicts", "error", err)
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	if conflicts == nil {
		conflicts = []store.Conflict{}
	}
	writeJSON(w, conflicts)
}

func (h *Handler) handlePresign(w http.ResponseWriter, r *http.Request) {
	key, url, err := h.blobs.PresignedPutURL(r.Context())
	if err != nil {
		h.log.Error(r.Context(), "failed to presign upload", "error", err)
		http.Error(w, "presign failed", http.StatusInternalServerError)
		return
	}
	metrics.PresignRequests.Inc()
	writeJSON(w, presignResponse{Key: key, URL: url})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
