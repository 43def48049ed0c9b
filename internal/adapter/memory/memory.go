// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"sync"
	"time"

	"pixelcanvas/internal/domain"
)

// DB implements the domain repositories in memory.
type DB struct {
	mu       sync.Mutex
	users    map[int32]*domain.User
	sessions map[string]*domain.Session

	userIDCounter int32
	now           func() time.Time
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		users:    make(map[int32]*domain.User),
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

// Ensure interfaces are met.
var _ domain.UserRepository = (*DB)(nil)
var _ domain.CreditRepository = (*DB)(nil)
var _ domain.CreditGranter = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- UserRepository ---

// GetByID returns a copy of the user with the given id.
func (db *DB) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetByUsername returns a copy of the user with the given name.
func (db *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Create adds a user with no credits whose free window is already open.
func (db *DB) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return nil, domain.ErrUsernameTaken
		}
	}

	db.userIDCounter++
	now := db.now().UTC()
	u := &domain.User{
		ID:             db.userIDCounter,
		Username:       username,
		PasswordHash:   passwordHash,
		NextFreeCredit: now,
		CreatedAt:      now,
	}
	db.users[u.ID] = u
	cp := *u
	return &cp, nil
}

// --- CreditRepository ---

// SpendCredit decrements the balance when it is positive.
func (db *DB) SpendCredit(ctx context.Context, userID int32) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if u.Credits <= 0 {
		return false, nil
	}
	u.Credits--
	return true, nil
}

// SetNextFreeCredit stores the start of the next free window.
func (db *DB) SetNextFreeCredit(ctx context.Context, userID int32, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.NextFreeCredit = at.UTC()
	return nil
}

// AddCredits grants credits to a user. It backs the admin seeding command and tests.
func (db *DB) AddCredits(ctx context.Context, userID int32, n int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Credits += n
	return nil
}

// --- SessionRepository ---

// SessionRepo implements session repository operations on DB.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo wraps a DB as a SessionRepository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create stores a session token.
func (r *SessionRepo) Create(ctx context.Context, userID int32, token string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.sessions[token] = &domain.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: r.db.now(),
	}
	return nil
}

// GetByToken returns the session for token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// Delete removes a session by token.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired removes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	for token, s := range r.db.sessions {
		if now.After(s.ExpiresAt) {
			delete(r.db.sessions, token)
		}
	}
	return nil
}
