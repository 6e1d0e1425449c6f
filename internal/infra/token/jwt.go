package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	TokenVersion int `json:"tv"`
	jwt.RegisteredClaims
}

// JWT はHS256で署名・検証する。
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) *JWT {
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (j *JWT) Issue(userID int64, tokenVersion int, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(j.ttl)

	c := claims{
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify は署名・期限・algを確認してユーザーIDとtoken versionを返す。
func (j *JWT) Verify(raw string) (int64, int, error) {
	var c claims
	parser := jwt.Parser{}
	tok, err := parser.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		//HS256以外は拒否
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil || !tok.Valid {
		return 0, 0, ErrInvalidToken
	}
	if c.ExpiresAt == nil || !c.ExpiresAt.After(j.now()) {
		return 0, 0, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, 0, ErrInvalidToken
	}
	return userID, c.TokenVersion, nil
}
