// Package httphandler is the HTTP driving adapter that serves the session
// control API.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/otpgate/otpgate/internal/application"
	"github.com/otpgate/otpgate/internal/domain/port/driven"
)

// Handler serves the REST control surface for the session.
type Handler struct {
	pub    *application.StatusPublisher
	ctrl   *application.SessionController
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(pub *application.StatusPublisher, ctrl *application.SessionController, logger *slog.Logger) *Handler {
	return &Handler{
		pub:    pub,
		ctrl:   ctrl,
		logger: logger,
	}
}

// RegisterAPIRoutes registers the control API on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/status", h.Status)
	mux.HandleFunc("POST /api/send-otp", h.SendOTP)
	mux.HandleFunc("POST /api/control", h.Control)
	mux.HandleFunc("GET /api/health", h.Health)
}

// Status returns the current connection status snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rec, err := h.pub.Snapshot(r.Context())
	if errors.Is(err, driven.ErrStatusNotFound) {
		writeMessage(w, http.StatusNotFound, "no status recorded yet")
		return
	}
	if err != nil {
		h.logger.Error("failed to read status", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(rec))
}

// SendOTP delivers a one-time message to a phone number over the session.
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber == "" || req.Message == "" {
		writeMessage(w, http.StatusBadRequest, "phoneNumber and message are required")
		return
	}

	if err := h.ctrl.SendMessage(r.Context(), req.PhoneNumber, req.Message); err != nil {
		if errors.Is(err, driven.ErrNotConnected) {
			writeMessage(w, http.StatusConflict, "not connected")
			return
		}
		h.logger.Error("send failed", "error", err)
		writeMessage(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Control executes a session lifecycle command: restart, logout, or
// clear_session.
func (h *Handler) Control(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ctrl.Control(r.Context(), req.Action); err != nil {
		if errors.Is(err, application.ErrUnknownAction) {
			writeMessage(w, http.StatusBadRequest, "unknown action: expected restart, logout, or clear_session")
			return
		}
		h.logger.Error("control action failed", "action", req.Action, "error", err)
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Health writes a heartbeat and reports liveness. A failing status store
// fails the probe: the heartbeat is the externally observable alive signal.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.pub.Heartbeat(r.Context()); err != nil {
		h.logger.Error("health heartbeat failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "status store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
