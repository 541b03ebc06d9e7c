package chatclient

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TokenPair is an access token and its refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresher exchanges refresh tokens for new token pairs.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
}

// SessionStore holds the current token pair and coordinates refreshes.
// Concurrent Refresh calls collapse into one provider round-trip, so a
// burst of expired-token failures triggers a single refresh.
type SessionStore struct {
	refresher Refresher

	mu      sync.RWMutex
	access  string
	refresh string

	group singleflight.Group
}

func NewSessionStore(refresher Refresher, accessToken, refreshToken string) *SessionStore {
	return &SessionStore{
		refresher: refresher,
		access:    accessToken,
		refresh:   refreshToken,
	}
}

// Token returns the current access token.
func (s *SessionStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// SetTokens replaces the stored pair, e.g. after an out-of-band login.
func (s *SessionStore) SetTokens(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = accessToken
	s.refresh = refreshToken
}

// Refresh exchanges the refresh token for a new pair and returns the
// new access token.
func (s *SessionStore) Refresh(ctx context.Context) (string, error) {
	token, err, _ := s.group.Do("refresh", func() (any, error) {
		s.mu.RLock()
		refreshToken := s.refresh
		s.mu.RUnlock()

		pair, err := s.refresher.Refresh(ctx, refreshToken)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.access = pair.AccessToken
		s.refresh = pair.RefreshToken
		s.mu.Unlock()
		return pair.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}
