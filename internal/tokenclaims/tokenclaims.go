// internal/tokenclaims
// --------------------
// This internal package reads expiry information out of the credentials a refresh
// endpoint hands back. Signatures are not verified here: the backend remains the
// authority on whether a token is acceptable, the gateway only needs to know when
// to stop attaching it.
//
// Functions:
// - Expiry: the "exp" claim of a JWT, if present.
// - FromExpiresIn: an absolute expiry from an OAuth2 style "expires_in" in seconds.
package tokenclaims

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var parser = jwt.NewParser()

// Expiry returns the exp claim of raw. ok is false when raw is not a JWT or
// carries no exp claim; opaque tokens are common and are not an error.
func Expiry(raw string) (exp time.Time, ok bool) {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ".") != 2 {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// FromExpiresIn converts a relative lifetime in seconds into an absolute time.
// Non-positive values yield the zero time, meaning "no known expiry".
func FromExpiresIn(now time.Time, seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(seconds) * time.Second)
}
