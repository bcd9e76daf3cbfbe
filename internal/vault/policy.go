package vault

import "time"

// Policy holds the client-side timers applied to an unlocked vault.
type Policy struct {
	// LockTimeout locks an idle session. Zero disables idle locking.
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
	// ClipboardTimeout clears a copied password.
	ClipboardTimeout time.Duration `mapstructure:"clipboard_timeout" yaml:"clipboard_timeout"`
}

func DefaultPolicy() Policy {
	return Policy{
		LockTimeout:      5 * time.Minute,
		ClipboardTimeout: 25 * time.Second,
	}
}
