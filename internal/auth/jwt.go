package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smartcanteen/api/internal/enum"
)

const (
	// TokenTTL is how long an access token stays valid. There is no refresh
	// token; clients log in again after expiry.
	TokenTTL = 8 * time.Hour

	Issuer = "smartcanteen-api"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies a canteen account. Username doubles as the owner key on
// orders.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IsStaff reports whether the holder works the kitchen counter.
func (c *Claims) IsStaff() bool {
	return c.Role == enum.UserRoleStaff
}

// CanActFor reports whether the holder may read or place orders owned by
// username. Staff can act for anyone.
func (c *Claims) CanActFor(username string) bool {
	return c.IsStaff() || c.Username == username
}

func GenerateToken(secret, username, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses an HS256 token issued by GenerateToken. Every failure
// wraps ErrInvalidToken.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
