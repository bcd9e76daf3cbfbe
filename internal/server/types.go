package server

import (
	"time"

	"github.com/panchalshubham0608/securekey/internal/auth"
	"github.com/panchalshubham0608/securekey/internal/vault"
)

// userSession is an unlocked vault held for one signed-in user.
type userSession struct {
	id       auth.Identity
	vault    *vault.Session
	lastUsed time.Time
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type unlockReq struct {
	Password string `json:"password"`
}

type pinReq struct {
	PIN string `json:"pin"`
}

type itemReq struct {
	Account  string `json:"account"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type passwordReq struct {
	Password string `json:"password"`
}

type migrateReq struct {
	LegacyPassword string `json:"legacy_password"`
}

type itemResp struct {
	vault.Item
	Password string `json:"password,omitempty"`
}

type sessionResp struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	Unlocked    bool   `json:"unlocked"`
	QuickUnlock bool   `json:"quick_unlock"`
}

type quickUnlockStatus struct {
	Supported bool   `json:"supported"`
	Enabled   bool   `json:"enabled"`
	State     string `json:"state"`
}
