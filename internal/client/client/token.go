package client

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// now is replaced in tests.
var now = time.Now

// TokenExpired reports whether token is a JWT whose exp claim is in the past.
// Opaque tokens are never considered expired here; the server decides.
// The signature is not checked: this only saves a round-trip that the server
// would reject anyway.
func TokenExpired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now().Before(claims.ExpiresAt.Time)
}
