package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glycoguard/glycoguard/internal/metrics"
	"github.com/glycoguard/glycoguard/internal/model"
	"github.com/glycoguard/glycoguard/internal/repository"
)

func TestRegisterInput_Validate(t *testing.T) {
	t.Parallel()

	valid := RegisterInput{Username: "alice", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1"}

	tests := []struct {
		name    string
		mutate  func(in *RegisterInput)
		wantMsg string
	}{
		{"valid", func(*RegisterInput) {}, ""},
		{"missing username", func(in *RegisterInput) { in.Username = "" }, MsgAllFieldsRequired},
		{"missing email", func(in *RegisterInput) { in.Email = "" }, MsgAllFieldsRequired},
		{"missing password", func(in *RegisterInput) { in.Password = "" }, MsgAllFieldsRequired},
		{"missing confirm", func(in *RegisterInput) { in.ConfirmPassword = "" }, MsgAllFieldsRequired},
		{"mismatch", func(in *RegisterInput) { in.ConfirmPassword = "secret2" }, MsgPasswordMismatch},
		{"too short", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "abc12", "abc12" }, MsgPasswordTooShort},
		{"exactly six", func(in *RegisterInput) { in.Password, in.ConfirmPassword = "abc123", "abc123" }, ""},
		// Required-field check runs before the mismatch check.
		{"missing and mismatched", func(in *RegisterInput) { in.Email, in.ConfirmPassword = "", "x" }, MsgAllFieldsRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := valid
			tt.mutate(&in)
			err := in.Validate()
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantMsg, vErr.Message)
		})
	}
}

func TestRegisterInput_NormalizeTrimsIdentity(t *testing.T) {
	t.Parallel()

	in := RegisterInput{Username: "  alice ", Email: " a@x.com\t", Password: " pass ", ConfirmPassword: " pass "}.Normalize()
	assert.Equal(t, "alice", in.Username)
	assert.Equal(t, "a@x.com", in.Email)
	assert.Equal(t, " pass ", in.Password)
}

func TestCredentialService_CreateUserTwice(t *testing.T) {
	store := newTestStore(t)
	recorder := metrics.NewInMemory()
	svc := newTestCredentials(t, store, recorder)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, "alice", "a@x.com", "secret1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.CreateUser(ctx, "alice", "other@x.com", "secret2")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = svc.CreateUser(ctx, "bob", "a@x.com", "secret2")
	require.NoError(t, err)
	assert.False(t, created)

	// Only the first row exists.
	_, err = store.GetUserByLogin(ctx, "other@x.com")
	require.ErrorIs(t, err, repository.ErrUserNotFound)
	_, err = store.GetUserByLogin(ctx, "bob")
	require.ErrorIs(t, err, repository.ErrUserNotFound)

	snap := recorder.Snapshot()
	assert.Equal(t, uint64(1), snap.Registrations[metrics.OutcomeSuccess])
	assert.Equal(t, uint64(2), snap.Registrations[metrics.OutcomeDuplicate])
}

func TestCredentialService_StoresHashNotPassword(t *testing.T) {
	store := newTestStore(t)
	svc := newTestCredentials(t, store, nil)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "alice", "a@x.com", "secret1")
	require.NoError(t, err)

	user, err := store.GetUserByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.Contains(t, user.PasswordHash, "$argon2id$")
}

func TestCredentialService_Register(t *testing.T) {
	store := newTestStore(t)
	svc := newTestCredentials(t, store, nil)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Username: " alice ", Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1"})
	require.NoError(t, err)
	assert.Positive(t, user.ID)
	assert.Equal(t, "alice", user.Username)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "b@x.com", Password: "secret1", ConfirmPassword: "secret1"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, MsgUserExists, vErr.Message)
}

func TestCredentialService_RegisterMissingFieldCreatesNothing(t *testing.T) {
	store := newTestStore(t)
	svc := newTestCredentials(t, store, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "secret1", ConfirmPassword: "secret1"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, MsgAllFieldsRequired, vErr.Message)

	_, err = store.GetUserByLogin(ctx, "alice")
	require.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestCredentialService_Authenticate(t *testing.T) {
	store := newTestStore(t)
	recorder := metrics.NewInMemory()
	svc := newTestCredentials(t, store, recorder)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "alice", "a@x.com", "secret1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		login    string
		password string
		wantErr  error
	}{
		{"username", "alice", "secret1", nil},
		{"email", "a@x.com", "secret1", nil},
		{"surrounding spaces in login", "  alice ", "secret1", nil},
		{"wrong password", "alice", "secret2", ErrInvalidCredentials},
		{"unknown user", "mallory", "secret1", ErrInvalidCredentials},
		{"empty login", "", "secret1", ErrInvalidCredentials},
		{"empty password", "alice", "", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.Authenticate(ctx, tt.login, tt.password)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", user.Username)
		})
	}

	snap := recorder.Snapshot()
	assert.Equal(t, uint64(3), snap.Logins[metrics.OutcomeSuccess])
	assert.Equal(t, uint64(4), snap.Logins[metrics.OutcomeFailure])
}

// countingUsers counts GetUserByID calls that reach the repository.
type countingUsers struct {
	repository.UserRepository
	byID atomic.Int64
	err  error
}

func (c *countingUsers) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	c.byID.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.UserRepository.GetUserByID(ctx, id)
}

func TestCredentialService_GetByIDCaches(t *testing.T) {
	store := newTestStore(t)
	users := &countingUsers{UserRepository: store}
	svc := newTestCredentials(t, users, nil)
	ctx := context.Background()

	user := &model.User{Username: "alice", Email: "a@x.com", PasswordHash: "$argon2id$placeholder"}
	require.NoError(t, store.CreateUser(ctx, user))

	for i := 0; i < 3; i++ {
		got, err := svc.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
	}
	assert.Equal(t, int64(1), users.byID.Load())
}

func TestCredentialService_GetByIDNotFound(t *testing.T) {
	store := newTestStore(t)
	users := &countingUsers{UserRepository: store}
	svc := newTestCredentials(t, users, nil)

	_, err := svc.GetByID(context.Background(), 999)
	require.ErrorIs(t, err, repository.ErrUserNotFound)

	// Misses are not cached.
	_, err = svc.GetByID(context.Background(), 999)
	require.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.Equal(t, int64(2), users.byID.Load())
}

func TestCredentialService_GetByIDInfrastructureError(t *testing.T) {
	users := &countingUsers{err: errors.New("disk on fire")}
	svc := newTestCredentials(t, users, nil)

	_, err := svc.GetByID(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrUserNotFound)
}

func TestNewCredentialService_InvalidCacheSize(t *testing.T) {
	t.Parallel()

	_, err := NewCredentialService(nil, 0, nil, nil)
	require.Error(t, err)
}
