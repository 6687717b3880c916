package mediaclient

import (
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// IdempotencyToken derives a stable token for one provisioning attempt of a
// redemption against one server. Retries of the same attempt reuse the token.
func IdempotencyToken(secret []byte, redemptionID, serverID string) string {
	if len(secret) > blake2b.Size {
		sum := blake2b.Sum256(secret)
		secret = sum[:]
	}
	h, err := blake2b.New256(secret)
	if err != nil {
		// Unreachable: key length is bounded above.
		panic(err)
	}
	h.Write([]byte(redemptionID))
	h.Write([]byte{0})
	h.Write([]byte(serverID))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Ledger remembers which idempotency token attempted to create which account
// so that lookup-before-create can tell a retry from a genuine collision.
// Vendors without native idempotency share one Ledger per process.
type Ledger struct {
	mu      sync.Mutex
	entries map[ledgerKey]string
}

type ledgerKey struct {
	serverID string
	token    string
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[ledgerKey]string)}
}

// Remember records that token is about to create subject on serverID.
func (l *Ledger) Remember(serverID, token, subject string) {
	if token == "" {
		return
	}
	l.mu.Lock()
	l.entries[ledgerKey{serverID, token}] = subject
	l.mu.Unlock()
}

// Owns reports whether subject on serverID was created by an earlier call
// carrying token.
func (l *Ledger) Owns(serverID, token, subject string) bool {
	if token == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	got, ok := l.entries[ledgerKey{serverID, token}]
	return ok && strings.EqualFold(got, subject)
}
