// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDTooLong   = errors.New("user id too long")
)

type UserID string

// User is the display identity supplied by the client on join.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// NewUser validates the identity announced by a client.
// An empty id gets a generated one; an empty username is rejected.
func NewUser(id, username string) (*User, error) {
	if len(username) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &User{ID: UserID(id), Username: username}, nil
}

func (u *User) SetUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}
