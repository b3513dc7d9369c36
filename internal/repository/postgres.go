package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/glycoguard/glycoguard/internal/model"
	"github.com/glycoguard/glycoguard/migrations"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresRepository stores users and predictions in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgresRepository with a connection pool and applies migrations.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresRepository{pool: pool}, nil
}

// migratePostgres runs goose over a database/sql handle that borrows from the pool.
func migratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.Postgres())
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Pool returns the underlying connection pool.
// Use sparingly - prefer adding methods to PostgresRepository.
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// withConn runs fn on an acquired connection that is always released.
func (r *PostgresRepository) withConn(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	return fn(conn)
}

// CreateUser inserts a new user into the database.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *model.User) error {
	if err := validateUser(user); err != nil {
		return err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	return r.withConn(ctx, func(conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx, query,
			user.Username,
			user.Email,
			user.PasswordHash,
			user.CreatedAt,
		).Scan(&user.ID)

		if err != nil {
			if isPgUniqueViolation(err) {
				return ErrUserExists
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
}

// GetUserByID retrieves a user by their ID.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE id = $1
	`

	var user *model.User
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		var err error
		user, err = scanPgUser(conn.QueryRow(ctx, query, id))
		return err
	})
	return user, err
}

// GetUserByLogin retrieves a user by username or email.
// An exact username match wins over an email match.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE username = $1 OR email = $1
		ORDER BY CASE WHEN username = $1 THEN 0 ELSE 1 END
		LIMIT 1
	`

	var user *model.User
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		var err error
		user, err = scanPgUser(conn.QueryRow(ctx, query, login))
		return err
	})
	return user, err
}

// SavePrediction appends one prediction record.
func (r *PostgresRepository) SavePrediction(ctx context.Context, rec *model.PredictionRecord) error {
	if err := validatePrediction(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO predictions
			(user_id, high_bp, gen_hlth, bmi, age, high_chol, chol_check, income, phys_hlth, prediction, probability, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	f := rec.Features
	return r.withConn(ctx, func(conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx, query,
			rec.UserID,
			f[0], f[1], f[2], f[3], f[4], f[5], f[6], f[7],
			int16(rec.Prediction),
			rec.Probability,
			rec.CreatedAt,
		).Scan(&rec.ID)
		if err != nil {
			return fmt.Errorf("failed to save prediction: %w", err)
		}
		return nil
	})
}

// ListPredictionsByUser returns every prediction for the user, most recent first.
func (r *PostgresRepository) ListPredictionsByUser(ctx context.Context, userID int64) ([]*model.PredictionRecord, error) {
	query := `
		SELECT id, user_id, high_bp, gen_hlth, bmi, age, high_chol, chol_check, income, phys_hlth,
		       prediction, probability, created_at
		FROM predictions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var records []*model.PredictionRecord
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, userID)
		if err != nil {
			return fmt.Errorf("failed to list predictions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanPrediction(rows)
			if err != nil {
				return fmt.Errorf("failed to scan prediction: %w", err)
			}
			records = append(records, rec)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating predictions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func scanPgUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
