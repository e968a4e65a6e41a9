package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorSubject is the subject carried by every operator session token.
const OperatorSubject = "operator"

// JWT validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// OperatorClaims defines JWT claims for the operator session cookie.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateOperatorToken signs an operator JWT with the configured expiry.
func GenerateOperatorToken(secret string, expiry time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := OperatorClaims{
		Role: OperatorSubject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   OperatorSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseOperatorToken validates an operator JWT and returns its claims.
func ParseOperatorToken(secret string, tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || claims.Role != OperatorSubject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
