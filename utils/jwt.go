package utils

import (
	"errors"
	"time"

	"churchpilot/models"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID       uint `json:"user_id"`
	ChurchID     uint `json:"church_id"`
	TokenVersion int  `json:"token_version"`
	jwt.RegisteredClaims
}

// GenerateStaffToken issues an access token for a staff user
func GenerateStaffToken(user *models.User, secret []byte, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:       user.ID,
		ChurchID:     user.ChurchID,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseStaffToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
