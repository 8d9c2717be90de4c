package auth

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// nonceLine matches the nonce embedded in a SIWE-style message.
var nonceLine = regexp.MustCompile(`(?i)Nonce: ([a-f0-9]+)`)

// BuildMessage renders the fixed sign-in template the wallet signs. It
// embeds domain, address, nonce, issue time and chain identifier.
func BuildMessage(domain, address, nonce string, chainID int, issuedAt time.Time) string {
	return fmt.Sprintf(`%s wants you to sign in with your Ethereum account:
%s

Sign in to DevReLive

URI: https://%s
Version: 1
Chain ID: %d
Nonce: %s
Issued At: %s`,
		domain, address, domain, chainID, nonce, issuedAt.UTC().Format(time.RFC3339))
}

// ParseNonce extracts the nonce from a signed message, or "" if absent.
func ParseNonce(message string) string {
	m := nonceLine.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// personalHash computes the EIP-191 personal-message hash the wallet
// actually signed: keccak256("\x19Ethereum Signed Message:\n" + len + msg).
func personalHash(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message))))
	h.Write([]byte(message))
	return h.Sum(nil)
}

// decodeSignature parses a 0x-prefixed 65-byte r||s||v signature.
func decodeSignature(signature string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("signature is not hex: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	return sig, nil
}

// recoverAddress recovers the signing address from an EIP-191 personal
// signature over message. Handles both v in {27,28} and v in {0,1}.
func recoverAddress(message, signature string) (string, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return "", err
	}

	v := sig[64]
	if v < 27 {
		v += 27
	}

	// RecoverCompact wants the recovery code first.
	compact := make([]byte, 65)
	compact[0] = v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, personalHash(message))
	if err != nil {
		return "", fmt.Errorf("public key recovery failed: %w", err)
	}
	return pubkeyToAddress(pub), nil
}

// pubkeyToAddress derives the Ethereum address: last 20 bytes of
// keccak256 over the uncompressed public key without its 0x04 prefix.
func pubkeyToAddress(pub *secp256k1.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	digest := h.Sum(nil)
	return "0x" + hex.EncodeToString(digest[12:])
}
