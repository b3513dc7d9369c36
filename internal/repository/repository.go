// Package repository provides the database access layer.
// Two storage engines implement the same narrow interfaces: SQLite (default) and PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/glycoguard/glycoguard/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("username or email already exists")
	ErrInvalidInput = errors.New("invalid repository input")
)

// UserRepository persists user identities.
type UserRepository interface {
	// CreateUser inserts the user and fills its ID.
	// Returns ErrUserExists when the username or email is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	// GetUserByLogin matches either the username or the email.
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
}

// PredictionRepository persists prediction events.
type PredictionRepository interface {
	// SavePrediction appends one record and fills its ID and CreatedAt.
	SavePrediction(ctx context.Context, rec *model.PredictionRecord) error
	// ListPredictionsByUser returns the user's full history, most recent first.
	ListPredictionsByUser(ctx context.Context, userID int64) ([]*model.PredictionRecord, error)
}

// Store is a storage engine implementing every repository.
type Store interface {
	UserRepository
	PredictionRepository
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the configured storage engine and applies migrations.
// driver is "sqlite" (dsn is a file path) or "postgres" (dsn is a connection URL).
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(ctx, dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func validateUser(user *model.User) error {
	if user == nil || user.Username == "" || user.Email == "" || user.PasswordHash == "" {
		return fmt.Errorf("%w: username, email and password hash are required", ErrInvalidInput)
	}
	return nil
}

func validatePrediction(rec *model.PredictionRecord) error {
	if rec == nil || rec.UserID <= 0 {
		return fmt.Errorf("%w: prediction requires a user", ErrInvalidInput)
	}
	if !rec.Prediction.IsValid() {
		return fmt.Errorf("%w: prediction label %d", ErrInvalidInput, rec.Prediction)
	}
	if rec.Probability < 0 || rec.Probability > 1 {
		return fmt.Errorf("%w: probability %v out of range", ErrInvalidInput, rec.Probability)
	}
	return nil
}

var (
	_ Store = (*SQLiteRepository)(nil)
	_ Store = (*PostgresRepository)(nil)
)
