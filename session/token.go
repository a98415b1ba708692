package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

var ErrInvalidToken = errors.New("invalid session token")

const tokenLifetime = time.Hour * 24 * 30

// IssueToken signs a remember-me token for userID. The secret comes
// from config, a fresh one is generated at startup when none is set.
func IssueToken(userID uint) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(tokenLifetime).Unix(),
	})

	return t.SignedString([]byte(viper.GetString("session.secret")))
}

// VerifyToken validates a remember-me token and returns the user ID it
// was issued for.
func VerifyToken(token string) (uint, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return []byte(viper.GetString("session.secret")), nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}

	id, ok := claims["user_id"].(float64)
	if !ok || id < 1 {
		return 0, ErrInvalidToken
	}

	return uint(id), nil
}
