package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractToken extracts the JWT token from an Authorization header value.
// Supports "Bearer <token>" format.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

// ServiceJWTAuth authenticates calls between internal services. The channel
// adapter signs each webhook call with a short-lived service token.
type ServiceJWTAuth struct {
	secretKey []byte
	expiry    time.Duration
}

// NewServiceJWTAuth creates a service JWT auth instance.
func NewServiceJWTAuth(secretKey string, expiry time.Duration) (*ServiceJWTAuth, error) {
	if secretKey == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}
	if expiry == 0 {
		expiry = 15 * time.Minute
	}
	return &ServiceJWTAuth{secretKey: []byte(secretKey), expiry: expiry}, nil
}

// ServiceClaims are the claims carried by a service token.
type ServiceClaims struct {
	Service string `json:"svc"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token identifying the calling service.
func (a *ServiceJWTAuth) GenerateToken(service string) (string, error) {
	claims := ServiceClaims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "tasknest",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign service token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a service token and returns the calling service name.
func (a *ServiceJWTAuth) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secretKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid service token: %w", err)
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid || claims.Service == "" {
		return "", errors.New("invalid service token claims")
	}
	return claims.Service, nil
}
