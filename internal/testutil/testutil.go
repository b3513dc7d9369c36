// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema empties every application table and restarts ID sequences.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "TRUNCATE predictions, users RESTART IDENTITY CASCADE"); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// DiscardLogger returns a logger that drops all output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================================
// Model artifact fixtures
// ============================================================================

// FixtureScaler is an identity standard scaler.
const FixtureScaler = `kind: standard
feature_names: [HighBP, GenHlth, BMI, Age, HighChol, CholCheck, Income, PhysHlth]
mean:  [0, 0, 0, 0, 0, 0, 0, 0]
scale: [1, 1, 1, 1, 1, 1, 1, 1]
`

// FixtureModel predicts high risk exactly when HighBP is 1:
// z = HighBP - 0.5, so HighBP=1 gives p≈0.622 and HighBP=0 gives p≈0.378.
const FixtureModel = `kind: logistic
feature_names: [HighBP, GenHlth, BMI, Age, HighChol, CholCheck, Income, PhysHlth]
coefficients: [1, 0, 0, 0, 0, 0, 0, 0]
intercept: -0.5
`

// WriteFile writes content to name inside dir and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteArtifacts writes the fixture classifier and scaler into a temp dir.
func WriteArtifacts(t testing.TB) (modelPath, scalerPath string) {
	t.Helper()
	dir := t.TempDir()
	return WriteFile(t, dir, "model.yaml", FixtureModel), WriteFile(t, dir, "scaler.yaml", FixtureScaler)
}
