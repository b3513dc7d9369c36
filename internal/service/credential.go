package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/glycoguard/glycoguard/internal/auth"
	"github.com/glycoguard/glycoguard/internal/metrics"
	"github.com/glycoguard/glycoguard/internal/model"
	"github.com/glycoguard/glycoguard/internal/repository"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// RegisterInput is the registration form.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Normalize trims surrounding whitespace from the identity fields. Passwords are kept verbatim.
func (in RegisterInput) Normalize() RegisterInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	return in
}

// Validate checks the registration rules in the order they are reported.
func (in RegisterInput) Validate() error {
	if in.Username == "" || in.Email == "" || in.Password == "" || in.ConfirmPassword == "" {
		return validationError("", MsgAllFieldsRequired)
	}
	if in.Password != in.ConfirmPassword {
		return validationError("confirm_password", MsgPasswordMismatch)
	}
	if len(in.Password) < MinPasswordLength {
		return validationError("password", MsgPasswordTooShort)
	}
	return nil
}

// CredentialService registers and authenticates users.
type CredentialService struct {
	users   repository.UserRepository
	cache   *lru.Cache[int64, *model.User]
	metrics metrics.Recorder
	logger  *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewCredentialService creates a CredentialService caching up to cacheSize users.
func NewCredentialService(users repository.UserRepository, cacheSize int, recorder metrics.Recorder, logger *slog.Logger) (*CredentialService, error) {
	cache, err := lru.New[int64, *model.User](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create user cache: %w", err)
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		users:   users,
		cache:   cache,
		metrics: recorder,
		logger:  logger,
	}, nil
}

// Register validates the form and creates the user.
// Returns a *ValidationError for bad input, including a taken username or email.
func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		s.metrics.IncRegistration(metrics.OutcomeInvalid)
		return nil, err
	}

	user, err := s.create(ctx, in.Username, in.Email, in.Password)
	if errors.Is(err, repository.ErrUserExists) {
		return nil, validationError("", MsgUserExists)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser stores a new user with a hashed password.
// Returns false without error when the username or email already exists.
func (s *CredentialService) CreateUser(ctx context.Context, username, email, password string) (bool, error) {
	_, err := s.create(ctx, username, email, password)
	if errors.Is(err, repository.ErrUserExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *CredentialService) create(ctx context.Context, username, email, password string) (*model.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		s.metrics.IncRegistration(metrics.OutcomeFailure)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			s.metrics.IncRegistration(metrics.OutcomeDuplicate)
			s.logger.InfoContext(ctx, "registration rejected", slog.String("reason", "duplicate"))
			return nil, err
		}
		s.metrics.IncRegistration(metrics.OutcomeFailure)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.metrics.IncRegistration(metrics.OutcomeSuccess)
	s.logger.InfoContext(ctx, "user registered", slog.Int64("user_id", user.ID))
	return user, nil
}

// Authenticate returns the user whose username or email is login and whose password matches.
// Returns ErrInvalidCredentials when either is wrong.
func (s *CredentialService) Authenticate(ctx context.Context, login, password string) (*model.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		s.metrics.IncLogin(metrics.OutcomeFailure)
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByLogin(ctx, login)
	if errors.Is(err, repository.ErrUserNotFound) {
		// Equalize timing with the wrong-password path.
		_, _ = auth.VerifyPassword(password, s.dummy())
		s.metrics.IncLogin(metrics.OutcomeFailure)
		s.logger.InfoContext(ctx, "login failed", slog.String("reason", "unknown_user"))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.metrics.IncLogin(metrics.OutcomeFailure)
		s.logger.InfoContext(ctx, "login failed",
			slog.Int64("user_id", user.ID),
			slog.String("reason", "wrong_password"),
		)
		return nil, ErrInvalidCredentials
	}

	s.cache.Add(user.ID, user)
	s.metrics.IncLogin(metrics.OutcomeSuccess)
	s.logger.InfoContext(ctx, "login succeeded", slog.Int64("user_id", user.ID))
	return user, nil
}

// GetByID loads a user for session rehydration. Users are immutable, so cached entries never go stale.
// Returns repository.ErrUserNotFound when absent.
func (s *CredentialService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if user, ok := s.cache.Get(id); ok {
		return user, nil
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Add(id, user)
	return user, nil
}

func (s *CredentialService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := auth.HashPassword("timing-equalization-only")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}
