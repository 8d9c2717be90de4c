package auth

import (
	"context"
	"errors"
	"strings"

	"devrelive/internal/logging"
)

// Verification failure modes. ErrNonceNotFound covers both "never issued"
// and "already consumed"; a retried verify with the same nonce must fail.
var (
	ErrMalformedMessage = errors.New("could not extract nonce from message")
	ErrNonceNotFound    = errors.New("nonce not found or already used")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Verifier checks SIWE-style signed messages against the pending nonce set.
// Explicitly constructed and shared by reference; no package-level state.
type Verifier struct {
	nonces *NonceStore
	caller ContractCaller // nil disables smart-account verification
}

// NewVerifier creates a verifier. caller may be nil when no chain endpoint
// is configured; plain key-pair accounts still verify.
func NewVerifier(nonces *NonceStore, caller ContractCaller) *Verifier {
	return &Verifier{nonces: nonces, caller: caller}
}

// Verify checks that message embeds a pending nonce and that signature is a
// valid signature over message by address. Supports plain key-pair accounts
// (signature recovery) and contract-deployed accounts (EIP-1271). The nonce
// is consumed on success only, and exactly once.
func (v *Verifier) Verify(ctx context.Context, address, message, signature string) error {
	nonce := ParseNonce(message)
	if nonce == "" {
		return ErrMalformedMessage
	}
	if !v.nonces.Has(nonce) {
		logging.AuthDebug("Rejected verify for %s: unknown nonce", address)
		return ErrNonceNotFound
	}

	address = strings.ToLower(address)

	recovered, recoverErr := recoverAddress(message, signature)
	if recoverErr == nil && strings.ToLower(recovered) == address {
		if !v.nonces.Consume(nonce) {
			return ErrNonceNotFound // lost the race to a concurrent verify
		}
		logging.Auth("Verified signature for %s (EOA)", address)
		return nil
	}

	// Recovery mismatch or failure: the signer may be a smart account.
	if v.caller != nil {
		ok, err := verifyEIP1271(ctx, v.caller, address, message, signature)
		if err != nil {
			logging.AuthDebug("EIP-1271 check failed for %s: %v", address, err)
		}
		if err == nil && ok {
			if !v.nonces.Consume(nonce) {
				return ErrNonceNotFound
			}
			logging.Auth("Verified signature for %s (EIP-1271)", address)
			return nil
		}
	}

	if recoverErr != nil {
		logging.AuthDebug("Signature recovery failed for %s: %v", address, recoverErr)
	}
	return ErrInvalidSignature
}
