package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/service"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// rejectionBody is returned with 409 when a submission is refused.
type rejectionBody struct {
	Error  string                `json:"error"`
	Code   service.RejectCode    `json:"code"`
	Game   *model.GameSnapshot   `json:"game,omitempty"`
	Result *service.AnswerResult `json:"result,omitempty"`
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var rej *service.RejectionError
	if errors.As(err, &rej) {
		writeJSON(w, http.StatusConflict, rejectionBody{Error: rej.Error(), Code: rej.Code, Game: rej.Game})
		return
	}
	status, msg := publicError(err)
	writeError(w, status, msg)
}

// publicError returns the status and client-safe message for a service
// error. Anything unexpected is reported as a bare internal error.
func publicError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrGameNotFound), errors.Is(err, service.ErrMonsterNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidMode), errors.Is(err, service.ErrInvalidSource),
		errors.Is(err, service.ErrMonsterRequired):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNotInGame):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrGameNotWaiting), errors.Is(err, service.ErrGameFull),
		errors.Is(err, service.ErrCannotJoinOwn), errors.Is(err, service.ErrCannotAbandon):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
