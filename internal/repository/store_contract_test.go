package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glycoguard/glycoguard/internal/model"
)

// runStoreContract exercises behavior every storage engine must share.
// newStore must return an empty, migrated store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateUser assigns ID", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user := newUser("alice", "a@x.com")
		require.NoError(t, store.CreateUser(ctx, user))
		assert.Positive(t, user.ID)
		assert.False(t, user.CreatedAt.IsZero())
	})

	t.Run("duplicate username is rejected and leaves one row", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.CreateUser(ctx, newUser("alice", "a@x.com")))

		err := store.CreateUser(ctx, newUser("alice", "other@x.com"))
		require.ErrorIs(t, err, ErrUserExists)

		_, err = store.GetUserByLogin(ctx, "other@x.com")
		require.ErrorIs(t, err, ErrUserNotFound)

		got, err := store.GetUserByLogin(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", got.Email)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.CreateUser(ctx, newUser("alice", "a@x.com")))
		err := store.CreateUser(ctx, newUser("bob", "a@x.com"))
		require.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("incomplete user is rejected", func(t *testing.T) {
		store := newStore(t)
		err := store.CreateUser(context.Background(), &model.User{Username: "alice"})
		require.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("GetUserByLogin matches username or email", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user := newUser("alice", "a@x.com")
		require.NoError(t, store.CreateUser(ctx, user))

		byName, err := store.GetUserByLogin(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byName.ID)
		assert.Equal(t, user.PasswordHash, byName.PasswordHash)

		byEmail, err := store.GetUserByLogin(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)

		_, err = store.GetUserByLogin(ctx, "nobody")
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("GetUserByLogin prefers username match", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		// bob's email is literally another user's username.
		require.NoError(t, store.CreateUser(ctx, newUser("bob", "carol")))
		carol := newUser("carol", "c@x.com")
		require.NoError(t, store.CreateUser(ctx, carol))

		got, err := store.GetUserByLogin(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, carol.ID, got.ID)
	})

	t.Run("GetUserByID", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user := newUser("alice", "a@x.com")
		require.NoError(t, store.CreateUser(ctx, user))

		got, err := store.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)

		_, err = store.GetUserByID(ctx, user.ID+1000)
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("SavePrediction then list returns newest first", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user := newUser("alice", "a@x.com")
		require.NoError(t, store.CreateUser(ctx, user))

		base := time.Now().UTC().Add(-time.Hour)
		for i := 0; i < 3; i++ {
			rec := &model.PredictionRecord{
				UserID:      user.ID,
				Features:    model.FeatureVector{1, 3, 28.5 + float64(i), 45, 1, 1, 50000, 5},
				Prediction:  model.LabelHighRisk,
				Probability: 0.5 + float64(i)/10,
				CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, store.SavePrediction(ctx, rec))
			assert.Positive(t, rec.ID)
		}

		latest := &model.PredictionRecord{
			UserID:      user.ID,
			Features:    model.FeatureVector{0, 2, 22.1, 30, 0, 1, 8, 0},
			Prediction:  model.LabelLowRisk,
			Probability: 0.12,
		}
		require.NoError(t, store.SavePrediction(ctx, latest))

		records, err := store.ListPredictionsByUser(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, records, 4)

		assert.Equal(t, latest.ID, records[0].ID)
		assert.Equal(t, latest.Features, records[0].Features)
		assert.Equal(t, model.LabelLowRisk, records[0].Prediction)
		assert.InDelta(t, 0.12, records[0].Probability, 1e-9)

		for i := 1; i < len(records); i++ {
			assert.False(t, records[i].CreatedAt.After(records[i-1].CreatedAt),
				"records must be in descending time order")
		}
	})

	t.Run("ListPredictionsByUser isolates users", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		alice := newUser("alice", "a@x.com")
		bob := newUser("bob", "b@x.com")
		require.NoError(t, store.CreateUser(ctx, alice))
		require.NoError(t, store.CreateUser(ctx, bob))

		require.NoError(t, store.SavePrediction(ctx, newPrediction(alice.ID)))
		require.NoError(t, store.SavePrediction(ctx, newPrediction(bob.ID)))
		require.NoError(t, store.SavePrediction(ctx, newPrediction(bob.ID)))

		records, err := store.ListPredictionsByUser(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, alice.ID, records[0].UserID)

		records, err = store.ListPredictionsByUser(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		for _, rec := range records {
			assert.Equal(t, bob.ID, rec.UserID)
		}
	})

	t.Run("empty history", func(t *testing.T) {
		store := newStore(t)
		records, err := store.ListPredictionsByUser(context.Background(), 42)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("invalid prediction is rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user := newUser("alice", "a@x.com")
		require.NoError(t, store.CreateUser(ctx, user))

		tests := []struct {
			name string
			rec  *model.PredictionRecord
		}{
			{"nil", nil},
			{"no user", &model.PredictionRecord{Prediction: model.LabelLowRisk}},
			{"bad label", &model.PredictionRecord{UserID: user.ID, Prediction: model.Label(3)}},
			{"probability above one", &model.PredictionRecord{UserID: user.ID, Probability: 1.01}},
			{"negative probability", &model.PredictionRecord{UserID: user.ID, Probability: -0.1}},
		}
		for _, tt := range tests {
			err := store.SavePrediction(ctx, tt.rec)
			assert.ErrorIs(t, err, ErrInvalidInput, tt.name)
		}

		records, err := store.ListPredictionsByUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(context.Background()))
	})
}

var userSeq int

func newUser(username, email string) *model.User {
	userSeq++
	return &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: fmt.Sprintf("$argon2id$v=19$m=65536,t=3,p=4$salt%d$hash", userSeq),
	}
}

func newPrediction(userID int64) *model.PredictionRecord {
	return &model.PredictionRecord{
		UserID:      userID,
		Features:    model.FeatureVector{1, 3, 28.5, 45, 1, 1, 50000, 5},
		Prediction:  model.LabelHighRisk,
		Probability: 0.73,
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidInput))
}
