package apiclient

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

// Session is the authenticated identity of one simulated user.
type Session struct {
	UserID   uint
	Username string
	Token    string
}

// userIDFromToken reads the user ID claim without verifying the signature.
func userIDFromToken(token string) (uint, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("token is not a readable JWT: %w", err)
	}
	switch v := claims[servicedef.TokenUserIDClaim].(type) {
	case float64:
		if v > 0 {
			return uint(v), nil
		}
	case nil:
		return 0, errors.New("token has no user ID claim")
	}
	return 0, fmt.Errorf("token has an invalid user ID claim: %v", claims[servicedef.TokenUserIDClaim])
}
