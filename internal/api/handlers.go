package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/lorawan-server/lorawan-enddevice/internal/controller"
)

// ========== Auth handlers ==========

// handleLogin exchanges the operator secret for a bearer token. There is no
// email/password pair or user table: one device, one operator.
func (s *RESTServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Authenticate(req.Secret)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid operator secret")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken": token,
	})
}

// ========== Health ==========

func (s *RESTServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ========== Status ==========

// handleStatus reports the last TX/RX/backoff metadata the façade has
// available, the closest equivalent to the teacher's device-detail view
// for a single device with no persisted history.
func (s *RESTServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{}

	if tx, status := s.ctrl.GetTXMetadata(); status.OK() {
		resp["tx"] = tx
	}
	if rx, status := s.ctrl.GetRXMetadata(); status.OK() {
		resp["rx"] = rx
	}
	if backoff, status := s.ctrl.GetBackoffMetadata(); status.OK() {
		resp["backoff"] = backoff
	}
	if beacon, status := s.ctrl.GetLastRXBeacon(); status.OK() {
		resp["beacon"] = beacon
	}
	resp["gpsTime"] = s.ctrl.GetCurrentGPSTime()

	s.respondJSON(w, http.StatusOK, resp)
}

// ========== Send ==========

type sendRequest struct {
	Port        uint8  `json:"port"`
	DataHex     string `json:"dataHex"`
	Confirmed   bool   `json:"confirmed"`
	RetryBudget int    `json:"retryBudget"`
}

// handleSend proxies to Controller.Send, the operator's way of queuing an
// uplink without a per-application downlink table to go through.
func (s *RESTServer) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	data, err := hex.DecodeString(req.DataHex)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "dataHex is not valid hex")
		return
	}

	flags := controller.FlagUnconfirmed
	if req.Confirmed {
		flags = controller.FlagConfirmed
	}
	retryBudget := req.RetryBudget
	if retryBudget <= 0 {
		retryBudget = 1
	}

	n, status := s.ctrl.Send(req.Port, data, flags, retryBudget)
	if !status.OK() {
		s.respondError(w, http.StatusConflict, status.String())
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"bytesQueued": n,
	})
}

// ========== Events ==========

// handleEvents serves the in-memory ring buffer of settled controller
// events; there is no event-log table to page through.
func (s *RESTServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": s.events.recent(),
	})
}

// ========== Response helpers ==========

func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}

func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
