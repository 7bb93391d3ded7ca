// Package auth verifies who is calling. Local checks bcrypt password hashes
// held by a Credentials store and issues opaque session tokens kept in
// process memory.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWeakPassword       = errors.New("password must be 8 to 72 characters")
	ErrInvalidEmail       = errors.New("invalid email")
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt ignores bytes past 72
	tokenBytes     = 32
)

// Session is what a successful login hands back to the client.
type Session struct {
	Email       string    `json:"email"`
	IDToken     string    `json:"id_token"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Provider resolves credentials and tokens to a verified email.
type Provider interface {
	Register(ctx context.Context, email, password string) error
	Login(ctx context.Context, email, password string) (Session, error)
	Verify(ctx context.Context, token string) (string, error)
	Logout(ctx context.Context, token string) error
}

type session struct {
	email     string
	expiresAt time.Time
}

type Local struct {
	creds    Credentials
	mu       sync.Mutex
	sessions map[string]session // keyed by access token
	ttl      time.Duration
	cost     int
	now      func() time.Time
}

var _ Provider = (*Local)(nil)

// NewLocal returns a provider whose sessions last ttl. A nil creds keeps
// accounts in memory.
func NewLocal(ttl time.Duration, creds Credentials) *Local {
	if creds == nil {
		creds = NewMemoryCredentials()
	}
	return &Local{
		creds:    creds,
		sessions: make(map[string]session),
		ttl:      ttl,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t/")
}

func (l *Local) Register(ctx context.Context, email, password string) error {
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return ErrInvalidEmail
	}
	if n := utf8.RuneCountInString(password); n < minPasswordLen || len(password) > maxPasswordLen {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return l.creds.Create(ctx, email, hash)
}

// Unregister drops an account and its sessions, used to roll back a
// registration whose user record could not be created.
func (l *Local) Unregister(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	l.mu.Lock()
	for tok, s := range l.sessions {
		if s.email == email {
			delete(l.sessions, tok)
		}
	}
	l.mu.Unlock()
	return l.creds.Delete(ctx, email)
}

func (l *Local) Login(ctx context.Context, email, password string) (Session, error) {
	email = NormalizeEmail(email)
	hash, err := l.creds.Hash(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	access, err := newToken()
	if err != nil {
		return Session{}, err
	}
	id, err := newToken()
	if err != nil {
		return Session{}, err
	}
	expires := l.now().Add(l.ttl)

	l.mu.Lock()
	l.sessions[access] = session{email: email, expiresAt: expires}
	l.mu.Unlock()

	return Session{Email: email, IDToken: id, AccessToken: access, TokenType: "Bearer", ExpiresAt: expires}, nil
}

func (l *Local) Verify(_ context.Context, token string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[token]
	if !ok {
		return "", ErrInvalidToken
	}
	if l.now().After(s.expiresAt) {
		delete(l.sessions, token)
		return "", ErrInvalidToken
	}
	return s.email, nil
}

func (l *Local) Logout(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sessions[token]; !ok {
		return ErrInvalidToken
	}
	delete(l.sessions, token)
	return nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
