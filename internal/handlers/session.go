package handlers

import (
	"encoding/json"
	"net/http"

	"naszgpt-backend/internal/models"
)

func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.chat.Session(r.Context(), sessionID(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ChatHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.EndSession(r.Context(), sessionID(r)); err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session ended"})
}

func (h *ChatHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": h.chat.Models(),
	})
}

func (h *ChatHandler) SetExchangeRate(w http.ResponseWriter, r *http.Request) {
	var req models.ExchangeRateOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Invalid request body",
			map[string]string{"rate": "Must be a positive number"}, r))
		return
	}

	rate, err := h.chat.SetRateOverride(r.Context(), sessionID(r), req.Rate)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"exchange_rate": rate})
}

func (h *ChatHandler) ClearExchangeRate(w http.ResponseWriter, r *http.Request) {
	rate := h.chat.ClearRateOverride(r.Context(), sessionID(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{"exchange_rate": rate})
}
