package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/delivery-coordinator/internal/dispatch"
	"github.com/example/delivery-coordinator/internal/hub"
	"github.com/example/delivery-coordinator/internal/lifecycle"
	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/session"
)

// SampleSink receives courier location samples from the API. Kafka-backed
// deployments publish to the ingest topic; brokerless runs apply directly.
type SampleSink interface {
	Submit(ctx context.Context, sample models.LocationSample) error
}

// SampleSinkFunc adapts a function to SampleSink.
type SampleSinkFunc func(ctx context.Context, sample models.LocationSample) error

func (f SampleSinkFunc) Submit(ctx context.Context, sample models.LocationSample) error {
	return f(ctx, sample)
}

// Deps wires the coordinator services into the API.
type Deps struct {
	Lifecycle *lifecycle.Service
	Sessions  *session.Manager
	Hub       *hub.Hub
	Samples   SampleSink
	WSReg     *dispatch.WSRegistry
	Notify    dispatch.Transport
	Logger    *slog.Logger
}

type Server struct {
	lifecycle *lifecycle.Service
	sessions  *session.Manager
	hub       *hub.Hub
	samples   SampleSink
	wsreg     *dispatch.WSRegistry
	notify    dispatch.Transport
	logger    *slog.Logger
	mux       *mux.Router
}

func NewServer(d Deps) *Server {
	s := &Server{
		lifecycle: d.Lifecycle,
		sessions:  d.Sessions,
		hub:       d.Hub,
		samples:   d.Samples,
		wsreg:     d.WSReg,
		notify:    d.Notify,
		logger:    d.Logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/jobs", s.handleCreateJob).Methods("POST")
	s.mux.HandleFunc("/api/v1/jobs", s.handleListJobs).Methods("GET")
	s.mux.HandleFunc("/api/v1/jobs/{job_id}", s.handleGetJob).Methods("GET")
	s.mux.HandleFunc("/api/v1/jobs/{job_id}/accept", s.transitionHandler(s.lifecycle.Accept)).Methods("POST")
	s.mux.HandleFunc("/api/v1/jobs/{job_id}/collect", s.transitionHandler(s.lifecycle.Collect)).Methods("POST")
	s.mux.HandleFunc("/api/v1/jobs/{job_id}/progress", s.transitionHandler(s.lifecycle.Start)).Methods("POST")
	s.mux.HandleFunc("/api/v1/jobs/{job_id}/complete", s.transitionHandler(s.lifecycle.Complete)).Methods("POST")
	s.mux.HandleFunc("/api/v1/jobs/{job_id}/cancel", s.transitionHandler(s.lifecycle.Cancel)).Methods("POST")
	s.mux.HandleFunc("/api/v1/jobs/{job_id}/messages", s.handlePostMessage).Methods("POST")
	s.mux.HandleFunc("/api/v1/quotes", s.handleQuote).Methods("POST")

	s.mux.HandleFunc("/api/v1/couriers/{courier_id}/session", s.handleInitSession).Methods("POST")
	s.mux.HandleFunc("/api/v1/couriers/{courier_id}/session", s.handleDestroySession).Methods("DELETE")
	s.mux.HandleFunc("/api/v1/couriers/{courier_id}/availability", s.handleAvailability).Methods("POST")

	s.mux.HandleFunc("/internal/courier/locations", s.handleCourierLocation).Methods("POST")

	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
