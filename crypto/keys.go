// Package crypto wraps ed25519 signing and the pubkey string format used
// throughout the database: "ed25519:<base64-standard>".
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const pubKeyPrefix = "ed25519:"

// GenerateKeyPair creates a new Ed25519 signing key pair.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: generate key pair: %w", err)
	}
	return pub, priv, nil
}

// FormatPubKey renders a public key in the database's canonical string form.
func FormatPubKey(pub ed25519.PublicKey) string {
	return pubKeyPrefix + base64.StdEncoding.EncodeToString(pub)
}

// ParsePubKey parses a canonical pubkey string back into raw key bytes.
func ParsePubKey(s string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(s, pubKeyPrefix) {
		return nil, fmt.Errorf("crypto: pubkey %q missing %q prefix", s, pubKeyPrefix)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, pubKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("crypto: decode pubkey: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: pubkey has %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// Sign signs msg with priv, returning the raw signature bytes.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature of msg under pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// PubKeyFromPrivate returns the canonical pubkey string for a private key.
func PubKeyFromPrivate(priv ed25519.PrivateKey) string {
	return FormatPubKey(priv.Public().(ed25519.PublicKey))
}
