package supabase

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Claims of a GoTrue access token.
type Claims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	SessionID    string         `json:"session_id"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// ParseAccessToken verifies the HS256 signature when secret is set. Without a
// secret the claims are read unverified; the backend still verifies every call.
func ParseAccessToken(secret, tokenString string) (*Claims, error) {
	if secret == "" {
		claims := &Claims{}
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
