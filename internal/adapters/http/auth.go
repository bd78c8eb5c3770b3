package http

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/iftarcode/sfu-server/internal/domain"
)

var errBadHostToken = errors.New("bad host token")

type hostClaims struct {
	RoomCode string `json:"roomCode"`
	jwt.RegisteredClaims
}

// mintHostToken issues the room creator a token proving host rights over
// one room code.
func mintHostToken(secret string, code domain.RoomCode, ttl time.Duration) (string, error) {
	claims := hostClaims{
		RoomCode: string(code),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func verifyHostToken(secret, token string, code domain.RoomCode) error {
	if token == "" {
		return errBadHostToken
	}
	var claims hostClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadHostToken
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return errBadHostToken
	}
	if claims.RoomCode != string(code) {
		return errBadHostToken
	}
	return nil
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return ""
}
