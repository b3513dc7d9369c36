// Package model defines domain entities for the application.
package model

import "time"

// User represents a registered account.
// Users are immutable after registration.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize
	CreatedAt    time.Time `json:"created_at"`
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID    int64
	Username  string
	Email     string
	SessionID string
}
