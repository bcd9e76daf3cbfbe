package server

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/panchalshubham0608/securekey/internal/auth"
)

type Options struct {
	Logger *log.Logger
	// Signer issues bearer tokens. A fresh key is generated when nil, so
	// tokens do not survive a restart.
	Signer *auth.JWTSigner
	Now    func() time.Time
}

type limits struct {
	loginIP  *multiLimiter
	loginID  *multiLimiter
	signupIP *multiLimiter
	unlockID *multiLimiter
}

func newLimits() limits {
	perWindow := func(n int, window time.Duration) float64 { return float64(n) / window.Seconds() }
	return limits{
		loginIP:  newMultiLimiter(rateOf(perWindow(10, time.Minute)), 10, time.Hour),
		loginID:  newMultiLimiter(rateOf(perWindow(5, time.Minute)), 5, time.Hour),
		signupIP: newMultiLimiter(rateOf(perWindow(5, 15*time.Minute)), 5, 30*time.Minute),
		unlockID: newMultiLimiter(rateOf(perWindow(5, time.Minute)), 5, time.Hour),
	}
}
