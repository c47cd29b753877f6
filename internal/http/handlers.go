package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/delivery-coordinator/internal/apperr"
	"github.com/example/delivery-coordinator/internal/geo"
	"github.com/example/delivery-coordinator/internal/hub"
	"github.com/example/delivery-coordinator/internal/lifecycle"
	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/permission"
	"github.com/example/delivery-coordinator/internal/session"
)

type createJobRequest struct {
	Category models.Category `json:"category"`
	Pickup   models.Coord    `json:"pickup"`
	Dropoff  models.Coord    `json:"dropoff"`
	Price    float64         `json:"price"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok || actor.Role != lifecycle.RoleRequester {
		http.Error(w, "requester identity required", http.StatusUnauthorized)
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	price := req.Price
	if price <= 0 {
		d, err := geo.DistanceKm(req.Pickup, req.Dropoff)
		if err != nil {
			s.writeError(w, err)
			return
		}
		price = geo.EstimatePrice(d, req.Category)
	}
	job, err := s.lifecycle.Create(r.Context(), lifecycle.CreateParams{
		RequesterID: actor.ID,
		Category:    req.Category,
		Pickup:      req.Pickup,
		Dropoff:     req.Dropoff,
		Price:       price,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != string(models.StatusAvailable) {
		http.Error(w, "only status=available is browsable", http.StatusBadRequest)
		return
	}
	jobs, err := s.lifecycle.ListAvailable(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.lifecycle.Get(r.Context(), mux.Vars(r)["job_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type transitionFunc func(ctx context.Context, jobID string, actor lifecycle.Actor) (models.Job, error)

func (s *Server) transitionHandler(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(r)
		if !ok {
			http.Error(w, "actor identity required", http.StatusUnauthorized)
			return
		}
		job, err := fn(r.Context(), mux.Vars(r)["job_id"], actor)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

type quoteRequest struct {
	Category models.Category `json:"category"`
	Pickup   models.Coord    `json:"pickup"`
	Dropoff  models.Coord    `json:"dropoff"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d, err := geo.DistanceKm(req.Pickup, req.Dropoff)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"distance_km": d,
		"eta_minutes": geo.EstimateEtaMinutes(d),
		"price":       geo.EstimatePrice(d, req.Category),
	})
}

type postMessageRequest struct {
	Body string `json:"body"`
}

// handlePostMessage publishes a chat event tied to the job. Message
// persistence and content format are the messaging store's concern.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "actor identity required", http.StatusUnauthorized)
		return
	}
	jobID := mux.Vars(r)["job_id"]
	job, err := s.lifecycle.Get(r.Context(), jobID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if actor.ID != job.RequesterID && actor.ID != job.CourierID {
		s.writeError(w, apperr.ErrForbidden)
		return
	}
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	event := map[string]any{"job_id": jobID, "sender_id": actor.ID, "body": req.Body}
	s.hub.Publish(hub.ChatTopic(jobID), hub.KindChatMessage, event)

	recipient := job.RequesterID
	if actor.ID == job.RequesterID {
		recipient = job.CourierID
	}
	if recipient != "" && s.notify != nil {
		_ = s.notify.Notify(r.Context(), recipient, "Nova mensagem", req.Body, event)
	}
	w.WriteHeader(http.StatusAccepted)
}

type initSessionRequest struct {
	Profile         models.Profile `json:"profile"`
	PermissionState string         `json:"permission_state"`
	MaxAttempts     int            `json:"max_attempts"`
	BaseDelayMs     int            `json:"base_delay_ms"`
}

func (s *Server) handleInitSession(w http.ResponseWriter, r *http.Request) {
	courierID := mux.Vars(r)["courier_id"]
	var req initSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Profile.ID == "" {
		req.Profile.ID = courierID
	}
	sess := s.sessions.Acquire(courierID)
	if req.PermissionState != "" {
		sess.ReportPermission(permission.State(req.PermissionState))
	}
	baseDelay := time.Duration(req.BaseDelayMs) * time.Millisecond
	res := sess.Initialize(r.Context(), req.Profile, req.MaxAttempts, baseDelay)

	status := http.StatusOK
	switch {
	case errors.Is(res.Err, apperr.ErrProfileInvalid):
		status = http.StatusUnprocessableEntity
	case res.State == session.StateFailed:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Destroy(r.Context(), mux.Vars(r)["courier_id"])
	w.WriteHeader(http.StatusNoContent)
}

type availabilityRequest struct {
	Available bool `json:"available"`
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	courierID := mux.Vars(r)["courier_id"]
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess := s.sessions.Acquire(courierID)
	if err := sess.SetAvailable(r.Context(), req.Available); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCourierLocation(w http.ResponseWriter, r *http.Request) {
	var sample models.LocationSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if sample.CourierID == "" {
		http.Error(w, "courier_id required", http.StatusBadRequest)
		return
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now().UTC()
	}
	if err := s.samples.Submit(r.Context(), sample); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actorFrom(r *http.Request) (lifecycle.Actor, bool) {
	id := r.Header.Get("X-User-ID")
	role := lifecycle.Role(r.Header.Get("X-User-Role"))
	if id == "" || (role != lifecycle.RoleRequester && role != lifecycle.RoleCourier) {
		return lifecycle.Actor{}, false
	}
	return lifecycle.Actor{ID: id, Role: role}, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, apperr.ErrAlreadyTaken):
		http.Error(w, "job already taken", http.StatusConflict)
	case errors.Is(err, apperr.ErrInvalidTransition):
		http.Error(w, "invalid transition", http.StatusConflict)
	case errors.Is(err, apperr.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, apperr.ErrInvalidCoordinate):
		http.Error(w, "invalid coordinate", http.StatusBadRequest)
	case errors.Is(err, apperr.ErrProfileInvalid):
		http.Error(w, "profile invalid", http.StatusUnprocessableEntity)
	default:
		s.logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
