package mockbackend

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

const tokenTTL = time.Hour * 24

var errInvalidToken = errors.New("invalid token")

type tokenIssuer struct {
	secret []byte
}

func (ti tokenIssuer) issue(userID uint) (string, error) {
	claims := jwt.MapClaims{
		servicedef.TokenUserIDClaim: userID,
		"exp":                       time.Now().Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
}

func (ti tokenIssuer) verify(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, errInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errInvalidToken
	}
	id, ok := claims[servicedef.TokenUserIDClaim].(float64)
	if !ok || id <= 0 {
		return 0, errInvalidToken
	}
	return uint(id), nil
}

func encodeCursor(postID uint) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(uint64(postID), 10)))
}
