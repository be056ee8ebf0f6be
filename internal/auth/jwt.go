package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWTClaims struct {
	Subject   string `json:"sub"`
	Username  string `json:"username"`
	ExpiresAt time.Time
}

func (c JWTClaims) ToMapClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":      c.Subject,
		"username": c.Username,
		"exp":      c.ExpiresAt.Unix(),
	}
}

func GenerateJWT(c JWTClaims, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c.ToMapClaims())
	return token.SignedString([]byte(secret))
}
