package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UnsubscribeClaims encode the recipient identity (and optionally one
// sequence) into the opaque token carried by email/SMS footer links
type UnsubscribeClaims struct {
	ChurchID   uint   `json:"church_id"`
	MemberID   *uint  `json:"member_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	SequenceID *uint  `json:"sequence_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateUnsubscribeToken signs an unsubscribe token. Tokens stay valid for
// a year so old emails keep a working link.
func GenerateUnsubscribeToken(claims UnsubscribeClaims, secret []byte) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(365 * 24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString(secret)
}

func ParseUnsubscribeToken(tokenString string, secret []byte) (*UnsubscribeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UnsubscribeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UnsubscribeClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// UnsubscribeURL builds the footer link for a recipient
func UnsubscribeURL(baseURL string, claims UnsubscribeClaims, secret []byte) string {
	token, err := GenerateUnsubscribeToken(claims, secret)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/unsubscribe/%s", baseURL, token)
}
