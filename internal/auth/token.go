package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload the attendance server signs into its tokens.
type Claims struct {
	UserID int64  `json:"kullanici_id"`
	Role   string `json:"rol"`
	jwt.RegisteredClaims
}

// Peek decodes the token's claims without checking the signature. The
// client has no signing key.
func Peek(tokenStr string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// Expired reports whether tokenStr carries an exp claim at or before now.
// Opaque tokens and tokens without exp are never considered expired.
func Expired(tokenStr string, now time.Time) bool {
	claims, err := Peek(tokenStr)
	if err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
