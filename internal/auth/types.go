package auth

import "time"

// Identity is the signed-in user as seen by the rest of the app.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

type Claims struct {
	Sub       string `json:"sub"` // user ID
	Email     string `json:"email"`
	TokenID   string `json:"jti"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	UID       string    `json:"uid"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
