// Package service provides business logic for the application.
package service

import "errors"

// Service errors.
var (
	ErrInvalidCredentials = errors.New("invalid username/email or password")
)

// User-facing messages.
const (
	MsgAllFieldsRequired    = "All fields are required."
	MsgPasswordMismatch     = "Passwords do not match."
	MsgPasswordTooShort     = "Password must be at least 6 characters long."
	MsgUserExists           = "Username or email already exists."
	MsgInvalidCredentials   = "Invalid username/email or password."
	MsgPredictorUnavailable = "Prediction service is currently unavailable."
)

// ValidationError is a user input problem. Message is safe to show to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func validationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
