// Copyright 2025 James Ross

// Package uwshttp is the HTTP surface of the engine: availability,
// capabilities, sync, and the full jobs CRUD/sub-resource route table of
// spec.md §6, delegating to jobservice.Service and uwsxml.
package uwshttp

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/lsst-uws/go-uws-engine/internal/jobservice"
	"github.com/lsst-uws/go-uws-engine/internal/obs"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// Handler wires the job service and result signer to the mux route table.
type Handler struct {
	service     *jobservice.Service
	sign        resultSigner
	log         *zap.Logger
	pathPrefix  string
	syncTimeout time.Duration
}

// resultSigner matches resultsigner.Signer's Sign method structurally, so
// uwshttp depends only on uwsmodel, not on the signer's AWS SDK import.
type resultSigner interface {
	Sign(result uwsmodel.Result) (string, error)
}

// New builds a Handler. sign may be nil, in which case result URLs are
// emitted unsigned (useful for backends with no object-store signing
// configured).
func New(cfg *config.Config, service *jobservice.Service, sign resultSigner, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	prefix := cfg.UWS.PathPrefix
	if prefix == "" {
		prefix = "/api"
	}
	syncTimeout := cfg.UWS.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = 60 * time.Second
	}
	return &Handler{service: service, sign: sign, log: log, pathPrefix: prefix, syncTimeout: syncTimeout}
}

// RegisterRoutes mounts the full route table under h.pathPrefix.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	root := router.PathPrefix(h.pathPrefix).Subrouter()

	root.HandleFunc("/availability", h.getAvailability).Methods("GET")
	root.HandleFunc("/capabilities", h.getCapabilities).Methods("GET")
	root.HandleFunc("/sync", h.syncRequest).Methods("GET", "POST")

	jobs := root.PathPrefix("/jobs").Subrouter()
	jobs.HandleFunc("", h.createJob).Methods("POST")
	jobs.HandleFunc("", h.listJobs).Methods("GET")
	jobs.HandleFunc("/{id}", h.getJob).Methods("GET")
	jobs.HandleFunc("/{id}", h.deleteJob).Methods("DELETE")
	jobs.HandleFunc("/{id}", h.deleteJobViaPost).Methods("POST")
	jobs.HandleFunc("/{id}/destruction", h.getDestruction).Methods("GET")
	jobs.HandleFunc("/{id}/destruction", h.postDestruction).Methods("POST")
	jobs.HandleFunc("/{id}/executionduration", h.getExecutionDuration).Methods("GET")
	jobs.HandleFunc("/{id}/executionduration", h.postExecutionDuration).Methods("POST")
	jobs.HandleFunc("/{id}/owner", h.getOwner).Methods("GET")
	jobs.HandleFunc("/{id}/parameters", h.getParameters).Methods("GET")
	jobs.HandleFunc("/{id}/phase", h.getPhase).Methods("GET")
	jobs.HandleFunc("/{id}/phase", h.postPhase).Methods("POST")
	jobs.HandleFunc("/{id}/quote", h.getQuote).Methods("GET")
	jobs.HandleFunc("/{id}/results", h.getResults).Methods("GET")
	jobs.HandleFunc("/{id}/error", h.getError).Methods("GET")

	root.Use(h.loggingMiddleware)
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug("http request",
			obs.String("method", r.Method),
			obs.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// requireUser extracts and validates the caller identity header, spec.md
// §6's "presence required on every job-scoped route".
func requireUser(r *http.Request) (string, error) {
	user := r.Header.Get("X-Auth-Request-User")
	if user == "" {
		return "", &usageError{message: "X-Auth-Request-User header is required"}
	}
	return user, nil
}

func baseURL(r *http.Request, pathPrefix string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + pathPrefix
}
