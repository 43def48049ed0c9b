// Package domain contains the account entities shared by the canvas server and
// the ports used to persist them.
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken is returned when creating a user whose name already exists.
var ErrUsernameTaken = errors.New("username already exists")

// User is an authenticated identity together with its paint credit state.
type User struct {
	ID             int32
	Username       string
	PasswordHash   string
	Credits        int
	NextFreeCredit time.Time
	CreatedAt      time.Time
}

// Session is an opaque login token bound to a user.
type Session struct {
	Token     string
	UserID    int32
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserRepository defines the port for user persistence operations.
type UserRepository interface {
	GetByID(ctx context.Context, id int32) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, username, passwordHash string) (*User, error)
}

// CreditRepository persists the credit state of a user.
type CreditRepository interface {
	// SpendCredit atomically decrements the balance if it is positive and
	// reports whether a credit was spent.
	SpendCredit(ctx context.Context, userID int32) (bool, error)
	SetNextFreeCredit(ctx context.Context, userID int32, at time.Time) error
}

// CreditGranter adds purchased or awarded credits to a user.
type CreditGranter interface {
	AddCredits(ctx context.Context, userID int32, n int) error
}

// SessionRepository defines the port for session persistence operations.
type SessionRepository interface {
	Create(ctx context.Context, userID int32, token string, expiresAt time.Time) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) error
}
