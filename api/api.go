// Package api exposes the auditing service over HTTP: event ingestion,
// retained-event queries, actor risk lookups, metrics, and a WebSocket
// alert stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"argus/audit"
	"argus/core"
	"argus/util/goroutine"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// defaultQueryLimit caps query results when the caller does not specify a
// limit.
const defaultQueryLimit = 100

// API is the HTTP surface over the audit pipeline.
type API struct {
	router   *mux.Router
	server   *http.Server
	pipeline *audit.Pipeline
	hub      *Hub
	limiter  *APIRateLimiter
	logger   *zap.SugaredLogger
}

// NewAPI creates the API, wires the routes, and registers the alert
// stream hub as a pipeline alert hook. redis may be nil.
func NewAPI(pipeline *audit.Pipeline, rlConfig APIRateLimiterConfig, redis *core.RedisCache, logger *zap.SugaredLogger) *API {
	a := &API{
		router:   mux.NewRouter(),
		pipeline: pipeline,
		hub:      NewHub(context.Background(), logger),
		limiter:  NewAPIRateLimiter(rlConfig, redis, logger),
		logger:   logger,
	}
	a.setupRoutes()
	pipeline.AddAlertHook(a.hub.BroadcastAlert)
	return a
}

func (a *API) setupRoutes() {
	a.router.HandleFunc("/health", a.health).Methods(http.MethodGet)
	a.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := a.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(a.limiter.Middleware)
	v1.HandleFunc("/events", a.ingestEvent).Methods(http.MethodPost)
	v1.HandleFunc("/events/actor/{id}", a.eventsForActor).Methods(http.MethodGet)
	v1.HandleFunc("/events/type/{type}", a.eventsByType).Methods(http.MethodGet)
	v1.HandleFunc("/events/high-severity", a.highSeverityEvents).Methods(http.MethodGet)
	v1.HandleFunc("/actors/{id}/risk", a.actorRisk).Methods(http.MethodGet)
	v1.HandleFunc("/status", a.status).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/stream", a.hub.ServeWS)
}

// Router returns the request handler for tests and embedding.
func (a *API) Router() http.Handler {
	return a.router
}

// Start runs the hub and serves HTTP on the given port, blocking until
// the server stops.
func (a *API) Start(port int) error {
	go func() {
		defer goroutine.Recover("websocket-hub", a.logger)
		a.hub.Start()
	}()

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	a.logger.Infow("API server listening", "addr", a.server.Addr)
	return a.server.ListenAndServe()
}

// Stop gracefully shuts down the server, hub and rate limiter.
func (a *API) Stop(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	a.hub.Stop()
	a.limiter.Close()
	return err
}

func (a *API) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (a *API) respondError(w http.ResponseWriter, message string, status int) {
	a.respondJSON(w, map[string]string{"error": message}, status)
}
