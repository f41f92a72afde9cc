package devserver

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IssueToken signs a gateway token for userID. A non-positive ttl issues a
// token that has already expired.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(ttl).Unix(),
	}
	if ttl <= 0 {
		claims["exp"] = time.Now().Add(-time.Minute).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
