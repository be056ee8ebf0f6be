package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

type AuthContext struct {
	Subject  string `json:"id"`
	Username string
}

func ParseToken(tokenStr string, secret string) (*AuthContext, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token")
	}

	ctx := &AuthContext{}
	if v, ok := claims["sub"].(string); ok {
		ctx.Subject = v
	}
	if v, ok := claims["username"].(string); ok {
		ctx.Username = v
	}
	return ctx, nil
}
