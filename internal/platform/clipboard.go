package platform

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
)

type Clipboard interface {
	// Set copies text and blocks until ttl elapses or ctx ends, then clears
	// the clipboard if it still holds text.
	Set(ctx context.Context, text string, ttl time.Duration) error
}

type systemClipboard struct {
	write func(string) error
	read  func() (string, error)
}

func NewClipboard() Clipboard {
	return systemClipboard{write: clipboard.WriteAll, read: clipboard.ReadAll}
}

// ClipboardSupported reports whether a system clipboard utility is available.
func ClipboardSupported() bool { return !clipboard.Unsupported }

func (c systemClipboard) Set(ctx context.Context, text string, ttl time.Duration) error {
	if err := c.write(text); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	t := time.NewTimer(ttl)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	if cur, err := c.read(); err == nil && cur == text {
		return c.write("")
	}
	return nil
}
