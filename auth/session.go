// Package auth holds the process-wide credential pair, its durable storage and
// the background refresh loop.
package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

var (
	// ErrNoCredential is returned when no access credential is held.
	ErrNoCredential = errors.New("no access credential")
	errMissingSub   = errors.New("missing sub")
)

// CredentialStore persists the credential pair outside process memory.
// Load returns nil, nil when nothing is stored.
type CredentialStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
	Clear(ctx context.Context) error
}

// Session is the credential provider injected into every outbound call. Login
// seeds it, logout discards it and the refresh scheduler is the only writer
// in between. The pair is swapped as a whole, so readers never see a mix of
// two generations.
type Session struct {
	store  CredentialStore
	logger *log.Logger
	tok    atomic.Pointer[oauth2.Token]
	// mu orders writers so the durable store ends up with the same pair as
	// memory. Readers only touch tok.
	mu sync.Mutex
}

// NewSession creates an empty session backed by store.
func NewSession(store CredentialStore, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Session{store: store, logger: logger}
}

// Load seeds the session from the durable store. An empty store leaves the
// session unauthenticated.
func (s *Session) Load(ctx context.Context) error {
	tok, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if tok == nil || tok.AccessToken == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok.Store(clone(tok))
	return nil
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	cur := s.tok.Load()
	if cur == nil || cur.AccessToken == "" {
		return nil, ErrNoCredential
	}
	return clone(cur), nil
}

// RefreshToken returns the stored refresh credential, empty when absent.
func (s *Session) RefreshToken() string {
	if cur := s.tok.Load(); cur != nil {
		return cur.RefreshToken
	}
	return ""
}

// Authenticated reports whether an access credential is held.
func (s *Session) Authenticated() bool {
	cur := s.tok.Load()
	return cur != nil && cur.AccessToken != ""
}

// UserID returns the sub claim of the access credential. The signature is
// not checked here; the backend verifies every call.
func (s *Session) UserID() (string, error) {
	cur := s.tok.Load()
	if cur == nil || cur.AccessToken == "" {
		return "", ErrNoCredential
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(cur.AccessToken, claims); err != nil {
		return "", err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errMissingSub
	}
	return sub, nil
}

// Seed installs the pair obtained at login.
func (s *Session) Seed(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return ErrNoCredential
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok.Store(clone(tok))
	return s.store.Save(ctx, tok)
}

// Discard drops the pair from memory and the durable store.
func (s *Session) Discard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok.Store(nil)
	return s.store.Clear(ctx)
}

// rotate replaces prev with next unless the session changed in between (for
// example a logout while the refresh call was in flight). A next without a
// refresh credential keeps the one from prev. The swap and the save happen
// under mu, so a concurrent Discard either runs first and the swap fails, or
// runs after the save and clears it.
func (s *Session) rotate(ctx context.Context, prev, next *oauth2.Token) (bool, error) {
	merged := clone(next)
	if merged.RefreshToken == "" && prev != nil {
		merged.RefreshToken = prev.RefreshToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tok.CompareAndSwap(prev, merged) {
		return false, nil
	}
	return true, s.store.Save(ctx, merged)
}

func (s *Session) current() *oauth2.Token {
	return s.tok.Load()
}

func clone(tok *oauth2.Token) *oauth2.Token {
	cp := *tok
	return &cp
}
