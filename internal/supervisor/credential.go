package supervisor

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// credentialExpired reports whether token is a JWT whose exp claim has
// passed. Opaque tokens are never considered expired here; the server
// remains the authority.
func credentialExpired(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
