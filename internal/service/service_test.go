package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glycoguard/glycoguard/internal/metrics"
	"github.com/glycoguard/glycoguard/internal/repository"
	"github.com/glycoguard/glycoguard/internal/testutil"
)

func newTestStore(t *testing.T) repository.Store {
	t.Helper()

	store, err := repository.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestCredentials(t *testing.T, users repository.UserRepository, recorder metrics.Recorder) *CredentialService {
	t.Helper()

	svc, err := NewCredentialService(users, 16, recorder, testutil.DiscardLogger())
	require.NoError(t, err)
	return svc
}
