// Package domain contains entities without transport logic: participants, tracks and room-level meta-data.
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxParticipantIDLen = 36
	MaxUsernameLen      = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// ParticipantID is network-assigned and unique within a room for the lifetime of one connection.
type ParticipantID string

type User struct {
	ID       ParticipantID `json:"id"`
	Username string        `json:"username"`
}

// NewUser validates the name and assigns a fresh id.
func NewUser(username string) (*User, error) {
	username, err := ValidateUsername(username)
	if err != nil {
		return nil, err
	}
	return &User{ID: ParticipantID(uuid.NewString()), Username: username}, nil
}

func ValidateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return "", ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return username, nil
}
