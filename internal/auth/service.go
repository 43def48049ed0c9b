// Package auth is the thin account layer in front of the canvas: it registers
// users, issues opaque session tokens and resolves a request to an identity.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"pixelcanvas/internal/domain"
	"pixelcanvas/internal/protocol"
)

// CookieName is the cookie carrying the session token.
const CookieName = "Session"

// DefaultSessionTTL matches the lifetime of the session cookie.
const DefaultSessionTTL = 12 * time.Hour

const maxUsernameLen = 25

var (
	// ErrInvalidCredentials indicates that the provided username or password was incorrect.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidUsername indicates a username that cannot be shown on the canvas.
	ErrInvalidUsername = errors.New("username must be 1 to 25 letters or digits")
	// ErrInvalidPassword indicates an unusable password.
	ErrInvalidPassword = errors.New("password must not be empty")
	// ErrUnauthenticated indicates a request without a valid session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionExpired indicates that the session has expired.
	ErrSessionExpired = errors.New("session expired")
)

// Service handles registration, login and request authentication.
type Service struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	ttl      time.Duration
	now      func() time.Time
}

// NewService creates a new authentication service.
func NewService(users domain.UserRepository, sessions domain.SessionRepository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		users:    users,
		sessions: sessions,
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL returns the session lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// ValidUsername reports whether name is short and alphanumeric. Names travel
// inside comma separated protocol messages, where the anonymous marker is
// reserved.
func ValidUsername(name string) bool {
	if name == "" || len([]rune(name)) > maxUsernameLen {
		return false
	}
	if strings.EqualFold(name, protocol.AnonymousName) {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Register creates a user and logs it in.
func (s *Service) Register(ctx context.Context, username, password string) (string, *domain.User, error) {
	if !ValidUsername(username) {
		return "", nil, ErrInvalidUsername
	}
	if password == "" {
		return "", nil, ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}

	user, err := s.users.Create(ctx, username, string(hash))
	if err != nil {
		return "", nil, err
	}

	token, err := s.startSession(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Login authenticates a user and creates a session.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil || user == nil {
		return "", ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.startSession(ctx, user.ID)
}

// Logout invalidates a session.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// ValidateSession resolves a token to a fresh copy of its user.
func (s *Service) ValidateSession(ctx context.Context, token string) (*domain.User, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}

	if s.now().After(session.ExpiresAt) {
		_ = s.sessions.Delete(ctx, token)
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate resolves the session cookie of r.
func (s *Service) Authenticate(r *http.Request) (*domain.User, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrUnauthenticated
	}
	return s.ValidateSession(r.Context(), cookie.Value)
}

// PurgeExpired drops expired sessions.
func (s *Service) PurgeExpired(ctx context.Context) error {
	return s.sessions.DeleteExpired(ctx)
}

func (s *Service) startSession(ctx context.Context, userID int32) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := s.sessions.Create(ctx, userID, token, s.now().Add(s.ttl)); err != nil {
		return "", err
	}
	return token, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
