package sessionbridge

import (
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/opengovern/session-bridge/internal/tokenclaims"
)

// TokenStore keeps the bearer token a role's refresh endpoint returned, for
// backends that hand out header tokens instead of (or alongside) cookies.
// Cookie-only sessions never populate it.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*oauth2.Token
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]*oauth2.Token)}
}

// Set stores tok for role; a nil token clears it.
func (s *TokenStore) Set(role string, tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok == nil {
		delete(s.tokens, role)
		return
	}
	s.tokens[role] = tok
}

// Get returns the role's token if it is still valid.
func (s *TokenStore) Get(role string) *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[role]
	if !ok || !tok.Valid() {
		return nil
	}
	return tok
}

// refreshToken returns the stored refresh token even when the access token expired.
func (s *TokenStore) refreshToken(role string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tok, ok := s.tokens[role]; ok {
		return tok.RefreshToken
	}
	return ""
}

func (s *TokenStore) Clear(role string) {
	s.Set(role, nil)
}

type refreshPayload struct {
	AccessToken     string `json:"access_token"`
	AccessTokenAlt  string `json:"accessToken"`
	TokenType       string `json:"token_type"`
	TokenTypeAlt    string `json:"tokenType"`
	RefreshToken    string `json:"refresh_token"`
	RefreshTokenAlt string `json:"refreshToken"`
	ExpiresIn       int64  `json:"expires_in"`
	ExpiresInAlt    int64  `json:"expiresIn"`
}

// tokenFromRefresh extracts a bearer token from a refresh response body.
// ok is false for cookie-only refresh responses.
func tokenFromRefresh(resp *NormalizedResponse, now time.Time) (*oauth2.Token, bool) {
	if resp == nil || len(resp.Data) == 0 {
		return nil, false
	}
	var p refreshPayload
	if err := json.Unmarshal(resp.Data, &p); err != nil {
		return nil, false
	}

	tok := &oauth2.Token{
		AccessToken:  firstNonEmpty(p.AccessToken, p.AccessTokenAlt),
		TokenType:    firstNonEmpty(p.TokenType, p.TokenTypeAlt),
		RefreshToken: firstNonEmpty(p.RefreshToken, p.RefreshTokenAlt),
	}
	if tok.AccessToken == "" {
		return nil, false
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = p.ExpiresInAlt
	}
	tok.Expiry = tokenclaims.FromExpiresIn(now, expiresIn)
	if tok.Expiry.IsZero() {
		if exp, ok := tokenclaims.Expiry(tok.AccessToken); ok {
			tok.Expiry = exp
		}
	}
	return tok, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
