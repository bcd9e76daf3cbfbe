// Package audit keeps a hash-chained record of security events. Entries
// carry uids and item ids only, never secrets.
package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/panchalshubham0608/securekey/internal/logging"
)

type Event string

const (
	VaultInitialized   Event = "vault.initialized"
	VaultUnlocked      Event = "vault.unlocked"
	VaultUnlockFailed  Event = "vault.unlock_failed"
	VaultLocked        Event = "vault.locked"
	QuickUnlockEnabled Event = "quick_unlock.enabled"
	QuickUnlockRemoved Event = "quick_unlock.disabled"
	QuickUnlockUsed    Event = "quick_unlock.used"
	QuickUnlockFailed  Event = "quick_unlock.failed"
	ItemMigrated       Event = "migration.item"
	MigrationFinished  Event = "migration.finished"
	SignedOut          Event = "auth.signed_out"
)

var ErrChainBroken = errors.New("audit chain broken")

type Entry struct {
	Seq    uint64    `json:"seq"`
	TS     time.Time `json:"ts"`
	UID    string    `json:"uid"`
	Event  Event     `json:"event"`
	Detail string    `json:"detail,omitempty"`
	Hash   string    `json:"hash"`
}

type Log struct {
	mu       sync.Mutex
	lastHash []byte
	entries  []Entry
	now      func() time.Time
	log      *log.Logger
}

// New returns an empty log. Each appended entry is also written to l at
// info level when l is non-nil.
func New(l *log.Logger) *Log {
	return &Log{now: time.Now, log: logging.OrNop(l)}
}

func (l *Log) Append(uid string, ev Event, detail string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := Entry{
		Seq:    uint64(len(l.entries)) + 1,
		TS:     l.now().UTC(),
		UID:    uid,
		Event:  ev,
		Detail: detail,
	}
	sum := chain(l.lastHash, e)
	l.lastHash = sum
	e.Hash = hex.EncodeToString(sum)
	l.entries = append(l.entries, e)
	l.log.Info("audit", "event", ev, "uid", uid, "detail", detail, "seq", e.Seq)
	return e
}

func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var prev []byte
	for i, e := range l.entries {
		if e.Seq != uint64(i)+1 {
			return ErrChainBroken
		}
		sum := chain(prev, e)
		if hex.EncodeToString(sum) != e.Hash {
			return ErrChainBroken
		}
		prev = sum
	}
	return nil
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// ForUser returns uid's entries, oldest first.
func (l *Log) ForUser(uid string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.UID == uid {
			out = append(out, e)
		}
	}
	return out
}

func chain(prev []byte, e Entry) []byte {
	h := sha256.New()
	h.Write(prev)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], e.Seq)
	h.Write(n[:])
	binary.BigEndian.PutUint64(n[:], uint64(e.TS.UnixNano()))
	h.Write(n[:])
	for _, s := range []string{e.UID, string(e.Event), e.Detail} {
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	return h.Sum(nil)
}
