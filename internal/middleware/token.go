package middleware

import (
	"errors"
	"time"

	"proxyhub-api/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the payload of an access token
type AccessClaims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken issues an HS256 access token for the user
func GenerateToken(userID uint, username string) (string, error) {
	secret := []byte(config.AppConfig.JWTAccessSecret)
	if len(secret) == 0 {
		return "", errors.New("JWT_ACCESS_SECRET is not set")
	}

	ttl := time.Duration(config.AppConfig.TokenTTLHours) * time.Hour
	claims := AccessClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "proxyhub-api",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyToken parses and validates an access token
func VerifyToken(tokenStr string) (*AccessClaims, error) {
	secret := []byte(config.AppConfig.JWTAccessSecret)
	if len(secret) == 0 {
		return nil, errors.New("JWT_ACCESS_SECRET is not set")
	}

	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AccessClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("token is invalid or expired")
}
