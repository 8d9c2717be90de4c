// Package auth implements wallet-based sign-in: one-time nonces and
// verification of SIWE-style signed messages for both plain key-pair
// accounts and contract-deployed smart accounts.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"devrelive/internal/logging"
)

// NonceStore holds the pending set of issued, not-yet-consumed nonces.
// There is no per-item expiry; the whole set is cleared on a fixed timer.
// Coarse, but it bounds growth and a cleared nonce simply forces the
// client through one more round trip.
type NonceStore struct {
	mu      sync.Mutex
	pending map[string]struct{}

	sweepInterval time.Duration
}

// NewNonceStore creates a nonce store sweeping at the given interval.
func NewNonceStore(sweepInterval time.Duration) *NonceStore {
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &NonceStore{
		pending:       make(map[string]struct{}),
		sweepInterval: sweepInterval,
	}
}

// Issue generates a cryptographically random token and registers it.
func (n *NonceStore) Issue() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(b)

	n.mu.Lock()
	n.pending[nonce] = struct{}{}
	n.mu.Unlock()

	logging.AuthDebug("Issued nonce %s...", nonce[:8])
	return nonce, nil
}

// Has reports whether a nonce is pending.
func (n *NonceStore) Has(nonce string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.pending[nonce]
	return ok
}

// Consume removes a nonce from the pending set, returning false if it was
// not there. One-shot: exactly one caller can consume a given nonce.
func (n *NonceStore) Consume(nonce string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.pending[nonce]; !ok {
		return false
	}
	delete(n.pending, nonce)
	return true
}

// Len returns the pending set size.
func (n *NonceStore) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// Run clears the pending set every sweep interval until ctx is cancelled.
func (n *NonceStore) Run(ctx context.Context) {
	ticker := time.NewTicker(n.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.mu.Lock()
			cleared := len(n.pending)
			n.pending = make(map[string]struct{})
			n.mu.Unlock()
			if cleared > 0 {
				logging.Auth("Nonce sweep cleared %d pending nonces", cleared)
			}
		}
	}
}
