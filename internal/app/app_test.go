package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/freeeve/quizbattle/internal/config"
	"github.com/freeeve/quizbattle/internal/model"
)

const testCatalog = `
questions:
  - id: q1
    file_id: f1
  - id: q2
    file_id: f1
  - id: q3
    file_id: f1
monsters:
  - id: slime
    name: Slime
    hp: 30
    attack: 10
`

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	return &config.Config{
		Port:           "0",
		JWTSecret:      "test-secret",
		TokenExpiry:    time.Minute,
		CORSOrigins:    "*",
		Store:          config.StoreMemory,
		SweeperEnabled: true,
		SweepInterval:  50 * time.Millisecond,
		BroadcastQueue: 16,
		CatalogFile:    path,
	}
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path, body string) (*http.Response, map[string]any) {
	c.t.Helper()
	req, _ := http.NewRequest(method, c.base+path, strings.NewReader(body))
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Store = "sqlite"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected unknown store to fail")
	}

	cfg = memoryConfig(t)
	cfg.BalanceFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected missing balance file to fail")
	}

	cfg = memoryConfig(t)
	os.WriteFile(cfg.CatalogFile, []byte("monsters:\n  - id: ghost\n"), 0o644)
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected invalid catalog to fail")
	}
}

func TestMemoryAppServesBattle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, memoryConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	stopEvents, _ := a.StartEvents(ctx)
	defer stopEvents()

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	anon := &client{t: t, base: srv.URL}
	if resp, _ := anon.do(http.MethodGet, "/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.StatusCode)
	}
	if resp, _ := anon.do(http.MethodGet, "/api/v1/multiplayer-games", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	aliceToken, _ := a.JWT.GenerateAccessToken("alice")
	bobToken, _ := a.JWT.GenerateAccessToken("bob")
	alice := &client{t: t, base: srv.URL, token: aliceToken}
	bob := &client{t: t, base: srv.URL, token: bobToken}

	resp, created := alice.do(http.MethodPost, "/api/v1/multiplayer-games", `{"game_mode":"pvp","pvp_mode":"hp","file_id":"f1"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %v", resp.StatusCode, created)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header on API responses")
	}
	gameID, _ := created["id"].(string)

	resp, _ = bob.do(http.MethodPost, "/api/v1/multiplayer-games/"+gameID+"/join", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", resp.StatusCode)
	}

	g, err := a.Lobby.GetGame(ctx, gameID)
	if err != nil || g.Status != model.StatusActive {
		t.Fatalf("expected active game, got %+v %v", g, err)
	}
	body := fmt.Sprintf(`{"quiz_id":"%s","is_correct":true}`, g.CurrentQuestionID())
	resp, result := alice.do(http.MethodPost, "/api/v1/multiplayer-games/"+gameID+"/answer", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer: expected 200, got %d %v", resp.StatusCode, result)
	}

	resp, timer := alice.do(http.MethodGet, "/api/v1/multiplayer-games/"+gameID+"/timer", "")
	if resp.StatusCode != http.StatusOK || timer["turn"] != float64(2) {
		t.Errorf("expected timer on turn 2, got %d %v", resp.StatusCode, timer)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
