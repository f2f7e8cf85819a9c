package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type AccessClaims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func NewAccessToken(userID string, role, email string, exp time.Time, secret []byte) (string, error) {
	claims := AccessClaims{
		Role:  role,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func AccessClaimsFromToken(tokenStr string, secret []byte) (*AccessClaims, error) {
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return &claims, nil
}

// Expired reports whether the token's exp claim is in the past without
// verifying the signature. The client holds no signing secret, so a
// structural peek is all it can do before deciding between /auth/me and
// /auth/refresh on startup. Malformed tokens count as expired.
func Expired(tokenStr string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return now.After(claims.ExpiresAt.Time)
}
