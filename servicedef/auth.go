package servicedef

import "time"

// Credential is what a simulated user registers and logs in with. It is also the body of a
// registration request.
type Credential struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResponse is returned by both registration and login. Registration leaves Token empty.
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// ErrorResponse is the body the backend sends with most non-success statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TokenUserIDClaim is the JWT claim that carries the user ID.
const TokenUserIDClaim = "user_id"
