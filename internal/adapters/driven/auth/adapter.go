package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// operatorClaims carries the operator identity on internal tokens
type operatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// Adapter issues and validates the HS256 tokens guarding the internal
// operator surface (status listing, index kickoff).
type Adapter struct {
	jwtSecret []byte
}

// NewAdapter creates a new auth adapter with the given JWT secret
func NewAdapter(jwtSecret string) *Adapter {
	return &Adapter{jwtSecret: []byte(jwtSecret)}
}

// IssueToken creates a signed operator token
func (a *Adapter) IssueToken(operator string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := operatorClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// ParseToken validates an operator token and returns the operator name
func (a *Adapter) ParseToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &operatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*operatorClaims); ok && token.Valid {
		return claims.Operator, nil
	}

	return "", fmt.Errorf("invalid token claims")
}
