package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/freeeve/quizbattle/internal/auth"
	"github.com/freeeve/quizbattle/internal/service"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := run(t, "token", "alice")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.NewJWTManager("cli-secret", 0).ValidateToken(strings.TrimSpace(out))
	if err != nil || claims.UserID != "alice" {
		t.Errorf("expected a valid token for alice, got %v %v", claims, err)
	}

	if _, err := run(t, "token"); err == nil {
		t.Error("expected an error without a user id")
	}
}

func TestTimersProcessOnce(t *testing.T) {
	out, err := run(t, "--store", "memory", "timers", "process")
	if err != nil {
		t.Fatalf("timers process: %v", err)
	}
	var stats service.SweepStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("expected JSON stats, got %q: %v", out, err)
	}
	if stats != (service.SweepStats{}) {
		t.Errorf("expected an empty sweep, got %+v", stats)
	}
}

func TestMigrateRequiresPostgres(t *testing.T) {
	if _, err := run(t, "--store", "memory", "migrate"); err == nil {
		t.Error("expected migrate to refuse the memory store")
	}
}

func TestSeedRequiresCatalog(t *testing.T) {
	t.Setenv("CATALOG_FILE", "")
	if _, err := run(t, "seed"); err == nil {
		t.Error("expected seed to fail without a catalog")
	}
}
