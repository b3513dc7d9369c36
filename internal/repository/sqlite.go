package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/glycoguard/glycoguard/internal/model"
	"github.com/glycoguard/glycoguard/migrations"
)

// SQLiteRepository stores users and predictions in a SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and applies migrations.
func NewSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}

	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.SQLite())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Ping checks database connectivity.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// withConn runs fn on a dedicated connection that is always returned to the pool.
func (r *SQLiteRepository) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	return fn(conn)
}

// CreateUser inserts a new user into the database.
func (r *SQLiteRepository) CreateUser(ctx context.Context, user *model.User) error {
	if err := validateUser(user); err != nil {
		return err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`

	return r.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, query,
			user.Username,
			user.Email,
			user.PasswordHash,
			user.CreatedAt,
		)
		if err != nil {
			if isSQLiteUniqueViolation(err) {
				return ErrUserExists
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read user ID: %w", err)
		}
		user.ID = id
		return nil
	})
}

// GetUserByID retrieves a user by their ID.
func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE id = ?
	`

	var user *model.User
	err := r.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		user, err = scanSQLiteUser(conn.QueryRowContext(ctx, query, id))
		return err
	})
	return user, err
}

// GetUserByLogin retrieves a user by username or email.
// An exact username match wins over an email match.
func (r *SQLiteRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE username = ? OR email = ?
		ORDER BY CASE WHEN username = ? THEN 0 ELSE 1 END
		LIMIT 1
	`

	var user *model.User
	err := r.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		user, err = scanSQLiteUser(conn.QueryRowContext(ctx, query, login, login, login))
		return err
	})
	return user, err
}

// SavePrediction appends one prediction record.
func (r *SQLiteRepository) SavePrediction(ctx context.Context, rec *model.PredictionRecord) error {
	if err := validatePrediction(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO predictions
			(user_id, high_bp, gen_hlth, bmi, age, high_chol, chol_check, income, phys_hlth, prediction, probability, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	f := rec.Features
	return r.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, query,
			rec.UserID,
			f[0], f[1], f[2], f[3], f[4], f[5], f[6], f[7],
			int(rec.Prediction),
			rec.Probability,
			rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save prediction: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read prediction ID: %w", err)
		}
		rec.ID = id
		return nil
	})
}

// ListPredictionsByUser returns every prediction for the user, most recent first.
func (r *SQLiteRepository) ListPredictionsByUser(ctx context.Context, userID int64) ([]*model.PredictionRecord, error) {
	query := `
		SELECT id, user_id, high_bp, gen_hlth, bmi, age, high_chol, chol_check, income, phys_hlth,
		       prediction, probability, created_at
		FROM predictions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`

	var records []*model.PredictionRecord
	err := r.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, userID)
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

func scanSQLiteUser(row *sql.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*model.PredictionRecord, error) {
	var rec model.PredictionRecord
	var label int
	f := &rec.Features

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&f[0], &f[1], &f[2], &f[3], &f[4], &f[5], &f[6], &f[7],
		&label,
		&rec.Probability,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Prediction = model.Label(label)
	return &rec, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
