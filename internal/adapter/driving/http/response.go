package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/otpgate/otpgate/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeMessage writes a JSON failure response with the given status code.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// messageResponse is the standard failure response body.
type messageResponse struct {
	Message string `json:"message"`
}

// SuccessResponse acknowledges a completed command.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// StatusResponse is the JSON representation of the connection status snapshot.
type StatusResponse struct {
	Status          string  `json:"status"`
	QRCode          *string `json:"qr_code"`
	ConnectedNumber *string `json:"connected_number"`
	LastConnectedAt *string `json:"last_connected_at"`
	LastError       *string `json:"last_error"`
	HeartbeatAt     string  `json:"heartbeat_at"`
}

// SendOTPRequest is the JSON body for the send-otp endpoint.
type SendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

// ControlRequest is the JSON body for the control endpoint.
type ControlRequest struct {
	Action string `json:"action"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toStatusResponse converts a status record to its JSON representation.
// Empty string fields render as JSON null.
func toStatusResponse(rec *model.StatusRecord) StatusResponse {
	resp := StatusResponse{
		Status:      string(rec.Status),
		HeartbeatAt: rec.HeartbeatAt.UTC().Format(time.RFC3339),
	}

	if rec.QRCode != "" {
		resp.QRCode = &rec.QRCode
	}
	if rec.ConnectedNumber != "" {
		resp.ConnectedNumber = &rec.ConnectedNumber
	}
	if rec.LastError != "" {
		resp.LastError = &rec.LastError
	}
	if rec.LastConnectedAt != nil {
		ts := rec.LastConnectedAt.UTC().Format(time.RFC3339)
		resp.LastConnectedAt = &ts
	}

	return resp
}
