package handler

import (
	"errors"
	"net/http"

	"github.com/freeeve/quizbattle/internal/auth"
	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/service"
)

// BattleHandler handles the multiplayer game endpoints.
type BattleHandler struct {
	lobby   *service.LobbyService
	answers *service.AnswerService
}

// NewBattleHandler creates a BattleHandler.
func NewBattleHandler(lobby *service.LobbyService, answers *service.AnswerService) *BattleHandler {
	return &BattleHandler{lobby: lobby, answers: answers}
}

// Register mounts the handler's routes on mux.
func (h *BattleHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /multiplayer-games", h.CreateGame)
	mux.HandleFunc("GET /multiplayer-games", h.ListGames)
	mux.HandleFunc("GET /multiplayer-games/{id}", h.GetGame)
	mux.HandleFunc("GET /multiplayer-games/{id}/timer", h.TimerState)
	mux.HandleFunc("POST /multiplayer-games/{id}/join", h.JoinGame)
	mux.HandleFunc("POST /multiplayer-games/{id}/abandon", h.AbandonGame)
	mux.HandleFunc("POST /multiplayer-games/{id}/answer", h.SubmitAnswer)
}

// CreateGame handles POST /api/v1/multiplayer-games
func (h *BattleHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req service.CreateGameInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	game, err := h.lobby.CreateGame(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, game.Snapshot())
}

// ListGames handles GET /api/v1/multiplayer-games
func (h *BattleHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.lobby.ListOpenGames(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]model.GameSnapshot, len(games))
	for i := range games {
		out[i] = games[i].Snapshot()
	}
	writeJSON(w, http.StatusOK, out)
}

// GetGame handles GET /api/v1/multiplayer-games/{id}
func (h *BattleHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.lobby.GetGame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game.Snapshot())
}

// TimerState handles GET /api/v1/multiplayer-games/{id}/timer
func (h *BattleHandler) TimerState(w http.ResponseWriter, r *http.Request) {
	view, err := h.lobby.TimerState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// JoinGame handles POST /api/v1/multiplayer-games/{id}/join
func (h *BattleHandler) JoinGame(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	game, err := h.lobby.JoinGame(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game.Snapshot())
}

// AbandonGame handles POST /api/v1/multiplayer-games/{id}/abandon
func (h *BattleHandler) AbandonGame(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	game, err := h.lobby.AbandonGame(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game.Snapshot())
}

// answerRequest is the body of an answer submission. Correctness is graded
// by the quiz client.
type answerRequest struct {
	QuizID    string `json:"quiz_id"`
	Answer    string `json:"answer"`
	IsCorrect bool   `json:"is_correct"`
}

// SubmitAnswer handles POST /api/v1/multiplayer-games/{id}/answer
func (h *BattleHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuizID == "" {
		writeError(w, http.StatusBadRequest, "quiz_id is required")
		return
	}

	res, err := h.answers.SubmitAnswer(r.Context(), service.Submission{
		GameID:    r.PathValue("id"),
		PlayerID:  userID,
		QuizID:    req.QuizID,
		Answer:    req.Answer,
		IsCorrect: req.IsCorrect,
	})
	var rej *service.RejectionError
	if errors.As(err, &rej) && res != nil {
		writeJSON(w, http.StatusConflict, rejectionBody{Error: rej.Error(), Code: rej.Code, Game: rej.Game, Result: res})
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
