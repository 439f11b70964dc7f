package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freeeve/quizbattle/internal/auth"
	"github.com/freeeve/quizbattle/internal/model"
	"github.com/freeeve/quizbattle/internal/repository/memory"
	"github.com/freeeve/quizbattle/internal/service"
	"github.com/freeeve/quizbattle/pkg/battle"
)

type testEnv struct {
	mux     *http.ServeMux
	hub     *Hub
	lobby   *service.LobbyService
	answers *service.AnswerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	questions := make([]model.Question, 5)
	for i := range questions {
		questions[i] = model.Question{ID: fmt.Sprintf("q%d", i+1), FileID: "f1", Type: battle.QuestionMultipleChoice}
	}
	games := memory.NewGameRepo()
	questionRepo := memory.NewQuestionRepo(questions)
	monsters := memory.NewMonsterRepo(model.Monster{ID: "slime", Name: "Slime", HP: 100, Attack: 10})
	hub := NewHub()
	clock := service.NewGameClock(memory.NewTimerStore(), battle.DefaultTiming())
	rules := battle.DefaultRules()

	answers := service.NewAnswerService(games, questionRepo, memory.NewExperienceLedger(), clock, rules, hub)
	lobby := service.NewLobbyService(games, questionRepo, monsters, clock, answers, rules, hub)

	mux := http.NewServeMux()
	NewBattleHandler(lobby, answers).Register(mux)
	return &testEnv{mux: mux, hub: hub, lobby: lobby, answers: answers}
}

func (e *testEnv) do(method, path, body, userID string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, reqWithUserID(method, path, body, userID))
	return rec
}

// startGame creates a pvp game for alice and has bob join it.
func (e *testEnv) startGame(t *testing.T, body string) model.GameSnapshot {
	t.Helper()
	rec := e.do(http.MethodPost, "/multiplayer-games", body, "alice")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var g model.GameSnapshot
	json.Unmarshal(rec.Body.Bytes(), &g)

	rec = e.do(http.MethodPost, "/multiplayer-games/"+g.ID+"/join", "", "bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &g)
	return g
}

func reqWithUserID(method, path string, body string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	ctx := auth.SetUserIDForTest(req.Context(), userID)
	return req.WithContext(ctx)
}

func TestCreateGame(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"pvp", `{"game_mode":"pvp","pvp_mode":"hp","file_id":"f1"}`, http.StatusCreated},
		{"pve", `{"game_mode":"pve","collection_id":"c1","monster_id":"slime"}`, http.StatusCreated},
		{"invalid json", `not json`, http.StatusBadRequest},
		{"unknown mode", `{"game_mode":"coop","file_id":"f1"}`, http.StatusBadRequest},
		{"two sources", `{"game_mode":"pvp","file_id":"f1","collection_id":"c1"}`, http.StatusBadRequest},
		{"unknown monster", `{"game_mode":"pve","file_id":"f1","monster_id":"dragon"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/multiplayer-games", tt.body, "alice")
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListGames(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/multiplayer-games", "", "alice")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %s", rec.Code, rec.Body.String())
	}

	env.do(http.MethodPost, "/multiplayer-games", `{"game_mode":"pvp","file_id":"f1"}`, "alice")
	rec = env.do(http.MethodGet, "/multiplayer-games", "", "bob")
	var games []model.GameSnapshot
	json.Unmarshal(rec.Body.Bytes(), &games)
	if len(games) != 1 || games[0].PlayerOneID != "alice" {
		t.Errorf("expected alice's open game, got %+v", games)
	}
}

func TestGameResponsesHideQuestionPool(t *testing.T) {
	env := newTestEnv(t)
	g := env.startGame(t, `{"game_mode":"pvp","file_id":"f1"}`)

	rec := env.do(http.MethodGet, "/multiplayer-games/"+g.ID, "", "bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if _, ok := body["question_ids"]; ok {
		t.Errorf("expected no question pool in the response, got %s", rec.Body.String())
	}
	if body["current_question_id"] == "" || body["total_questions"] != float64(5) {
		t.Errorf("expected the current question and pool size, got %s", rec.Body.String())
	}
}

func TestGetGameNotFound(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/multiplayer-games/nope", "/multiplayer-games/nope/timer"} {
		if rec := env.do(http.MethodGet, path, "", "alice"); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
	if rec := env.do(http.MethodPost, "/multiplayer-games/nope/join", "", "bob"); rec.Code != http.StatusNotFound {
		t.Errorf("join: expected 404, got %d", rec.Code)
	}
}

func TestJoinOwnGameConflict(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/multiplayer-games", `{"game_mode":"pvp","file_id":"f1"}`, "alice")
	var g model.GameSnapshot
	json.Unmarshal(rec.Body.Bytes(), &g)

	rec = env.do(http.MethodPost, "/multiplayer-games/"+g.ID+"/join", "", "alice")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestSubmitAnswerFlow(t *testing.T) {
	env := newTestEnv(t)
	g := env.startGame(t, `{"game_mode":"pvp","pvp_mode":"hp","file_id":"f1"}`)
	if g.Status != model.StatusActive || g.CurrentTurn != 1 {
		t.Fatalf("expected active game on turn 1, got %+v", g)
	}
	path := "/multiplayer-games/" + g.ID + "/answer"
	body := fmt.Sprintf(`{"quiz_id":"%s","answer":"b","is_correct":true}`, g.CurrentQuestionID)

	// Out of turn.
	rec := env.do(http.MethodPost, path, body, "bob")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var rej rejectionBody
	json.Unmarshal(rec.Body.Bytes(), &rej)
	if rej.Code != service.RejectNotYourTurn || rej.Game == nil || rej.Game.CurrentTurn != 1 {
		t.Errorf("expected not_your_turn with snapshot, got %+v", rej)
	}

	rec = env.do(http.MethodPost, path, body, "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res service.AnswerResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if !res.Correct || res.DamageDealt != 15 || res.Game.PlayerTwoHP != 85 || res.Game.CurrentTurn != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	// The same question again is stale now.
	rec = env.do(http.MethodPost, path, body, "bob")
	json.Unmarshal(rec.Body.Bytes(), &rej)
	if rec.Code != http.StatusConflict || rej.Code != service.RejectWrongQuestion {
		t.Errorf("expected wrong_question, got %d %+v", rec.Code, rej)
	}

	rec = env.do(http.MethodGet, "/multiplayer-games/"+g.ID+"/timer", "", "alice")
	var view service.TimerView
	json.Unmarshal(rec.Body.Bytes(), &view)
	if !view.Running || view.Turn != 2 || view.QuestionIndex != 1 {
		t.Errorf("expected timer for bob's turn, got %+v", view)
	}
}

func TestSubmitAnswerBadRequest(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{"not json", `{"answer":"a"}`} {
		if rec := env.do(http.MethodPost, "/multiplayer-games/g1/answer", body, "alice"); rec.Code != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestAbandonGame(t *testing.T) {
	env := newTestEnv(t)
	g := env.startGame(t, `{"game_mode":"pvp","file_id":"f1"}`)
	path := "/multiplayer-games/" + g.ID + "/abandon"

	if rec := env.do(http.MethodPost, path, "", "carol"); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for outsider, got %d", rec.Code)
	}

	rec := env.do(http.MethodPost, path, "", "bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var ended model.GameSnapshot
	json.Unmarshal(rec.Body.Bytes(), &ended)
	if ended.Status != model.StatusForfeited || ended.WinnerID != "alice" {
		t.Errorf("expected alice to win by forfeit, got %+v", ended)
	}

	if rec := env.do(http.MethodPost, path, "", "bob"); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 abandoning a finished game, got %d", rec.Code)
	}
}
