package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type sessionClaims struct {
	BusinessID string `json:"business_id"`
	Email      string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed session token for a business owner.
func GenerateToken(secret string, businessID uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		BusinessID: businessID.String(),
		Email:      email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   businessID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and returns the business ID it was issued for.
func ParseToken(secret, tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	if claims, ok := token.Claims.(*sessionClaims); ok && token.Valid {
		return uuid.Parse(claims.BusinessID)
	}

	return uuid.Nil, jwt.ErrTokenInvalidClaims
}
