// Package server exposes the booking launcher and the device registry over
// HTTP, so runs can be started and watched from a phone while the desktop
// machine does the browsing.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"courtbook/internal/auth"
	"courtbook/internal/launcher"
)

type Server struct {
	runs     *launcher.Manager
	registry *auth.Registry
	log      zerolog.Logger
}

func New(runs *launcher.Manager, registry *auth.Registry, log zerolog.Logger) *Server {
	return &Server{runs: runs, registry: registry, log: log}
}

// Router builds the API surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/bookings", s.startBooking)
		r.Get("/bookings", s.listBookings)
		r.Get("/bookings/{id}", s.getBooking)
		r.Post("/devices/register", s.registerDevice)
		r.Post("/devices/verify", s.verifyDevice)
	})
	return r
}

type bookingRequest struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	Date             string `json:"date"`
	CourtNumber      string `json:"courtNumber"`
	TimeSlot         string `json:"timeSlot"`
	UseChromeProfile bool   `json:"useChromeProfile"`
}

func (b bookingRequest) missing() []string {
	var out []string
	for _, f := range []struct{ name, val string }{
		{"username", b.Username},
		{"password", b.Password},
		{"date", b.Date},
		{"courtNumber", b.CourtNumber},
		{"timeSlot", b.TimeSlot},
	} {
		if f.val == "" {
			out = append(out, f.name)
		}
	}
	return out
}

type bookingStatus struct {
	AutomationID string           `json:"automationId"`
	Status       launcher.Status  `json:"status"`
	StartTime    time.Time        `json:"startTime"`
	Result       *launcher.Result `json:"result"`
	DurationMS   int64            `json:"duration"`
}

func toStatus(s launcher.Snapshot) bookingStatus {
	return bookingStatus{
		AutomationID: s.ID,
		Status:       s.Status,
		StartTime:    s.StartTime,
		Result:       s.Result,
		DurationMS:   time.Since(s.StartTime).Milliseconds(),
	}
}

func (s *Server) startBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if missing := req.missing(); len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "Missing required fields",
			"required": missing,
		})
		return
	}

	id, err := s.runs.Start(launcher.Request{
		Username:         req.Username,
		Password:         req.Password,
		Date:             req.Date,
		Court:            req.CourtNumber,
		TimeSlot:         req.TimeSlot,
		UseChromeProfile: req.UseChromeProfile,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("starting automation failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to start automation"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":      true,
		"automationId": id,
		"status":       launcher.StatusRunning,
	})
}

func (s *Server) getBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.runs.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":        "Automation not found",
			"automationId": id,
		})
		return
	}
	writeJSON(w, http.StatusOK, toStatus(snap))
}

func (s *Server) listBookings(w http.ResponseWriter, r *http.Request) {
	snaps := s.runs.List()
	out := make([]bookingStatus, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toStatus(snap))
	}
	writeJSON(w, http.StatusOK, map[string]any{"automations": out})
}

type deviceRequest struct {
	DeviceName  string `json:"deviceName"`
	DeviceToken string `json:"deviceToken"`
}

func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceName == "" || req.DeviceToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "deviceName and deviceToken are required"})
		return
	}
	token, err := s.registry.Register(r.Context(), req.DeviceName, req.DeviceToken)
	if err != nil {
		s.log.Error().Err(err).Msg("device registration failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "registration failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deviceToken": token})
}

func (s *Server) verifyDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "deviceToken is required"})
		return
	}
	switch err := s.registry.Verify(r.Context(), req.DeviceToken); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case errors.Is(err, auth.ErrUnknownDevice), errors.Is(err, auth.ErrAccessRevoked):
		s.log.Warn().Str("device_token", req.DeviceToken).Err(err).Msg("device rejected")
		writeJSON(w, http.StatusForbidden, map[string]any{"error": err.Error()})
	default:
		s.log.Error().Err(err).Msg("device verification failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "verification failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
