package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/venuekit/tapledger/internal/core/domain"
	"github.com/venuekit/tapledger/internal/core/service"
)

type HTTPHandler struct {
	taps *service.TapService
}

func NewHTTPHandler(taps *service.TapService) *HTTPHandler {
	return &HTTPHandler{taps: taps}
}

// Register wires every route onto the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/taps", h.ProcessTap)
	mux.HandleFunc("/api/exit-stack", h.ExitStack)
	mux.HandleFunc("/api/exit-stack/stats", h.ExitStackStats)
	mux.HandleFunc("/api/exit-stack/release", h.ReleaseTeam)
	mux.HandleFunc("/api/exit-stack/clear", h.ClearStack)
	mux.HandleFunc("/api/teams/score", h.TeamScore)
	mux.HandleFunc("/api/redeem", h.Redeem)
	mux.HandleFunc("/api/occupancy", h.Occupancy)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) ProcessTap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var raw domain.RawTap
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.taps.ProcessTap(r.Context(), raw)
	if err != nil {
		if errors.Is(err, domain.ErrMissingTag) || errors.Is(err, domain.ErrMissingPortal) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) ExitStack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.taps.StackSnapshot())
}

func (h *HTTPHandler) ExitStackStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.taps.StackStats())
}

type releaseRequest struct {
	TeamID string `json:"team_id"`
}

func (h *HTTPHandler) ReleaseTeam(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TeamID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "team_id required"})
		return
	}

	writeJSON(w, http.StatusOK, h.taps.ReleaseTeam(r.Context(), req.TeamID))
}

func (h *HTTPHandler) ClearStack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.taps.ClearStack())
}

func (h *HTTPHandler) TeamScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	teamID := r.URL.Query().Get("team_id")
	if teamID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "team_id required"})
		return
	}

	score, err := h.taps.TeamScore(r.Context(), teamID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team_id": teamID, "score": score})
}

func (h *HTTPHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in domain.RedeemInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	rec, err := h.taps.Redeem(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientPoints):
			writeJSON(w, http.StatusConflict, errorResponse{Error: "insufficient points"})
		case errors.Is(err, domain.ErrZoneNotRedeemable), errors.Is(err, domain.ErrTeamRequired):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *HTTPHandler) Occupancy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"occupancy": h.taps.Occupancy()})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
