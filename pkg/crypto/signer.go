// Package crypto provides the signing primitives used to attest approval
// tokens and freeze lock documents.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// Signer signs and verifies detached artifact signatures.
type Signer interface {
	Sign(data []byte) (string, error)
	Verify(data []byte, sig string) (bool, error)
	PublicKey() string
	KeyID() string
}

// Ed25519Signer is the default Signer implementation.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	keyID   string
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub, keyID: keyID}, nil
}

// NewEd25519SignerFromKey wraps an existing private key.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		keyID:   keyID,
	}
}

// LoadEd25519Signer reads a hex-encoded private key seed from path, creating
// and persisting a new one if the file does not exist.
func LoadEd25519Signer(path, keyID string) (*Ed25519Signer, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		signer, genErr := NewEd25519Signer(keyID)
		if genErr != nil {
			return nil, genErr
		}
		seed := hex.EncodeToString(signer.privKey.Seed())
		if writeErr := os.WriteFile(path, []byte(seed+"\n"), 0600); writeErr != nil {
			return nil, fmt.Errorf("crypto: persist key: %w", writeErr)
		}
		return signer, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crypto: read key %s: %w", path, err)
	}

	seed, err := hex.DecodeString(trimNewline(string(raw)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: key file %s is not a valid ed25519 seed", path)
	}
	return NewEd25519SignerFromKey(ed25519.NewKeyFromSeed(seed), keyID), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// Sign returns the hex-encoded signature of data.
func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	return hex.EncodeToString(ed25519.Sign(s.privKey, data)), nil
}

// Verify checks a hex-encoded signature over data.
func (s *Ed25519Signer) Verify(data []byte, sig string) (bool, error) {
	raw, err := hex.DecodeString(sig)
	if err != nil {
		return false, fmt.Errorf("crypto: signature is not hex: %w", err)
	}
	return ed25519.Verify(s.pubKey, data, raw), nil
}

// PublicKey returns the hex-encoded public key.
func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

// KeyID identifies the signing key in attestations.
func (s *Ed25519Signer) KeyID() string { return s.keyID }

// PrivateKey exposes the underlying key for token signing (EdDSA JWTs).
func (s *Ed25519Signer) PrivateKey() ed25519.PrivateKey { return s.privKey }

// PublicKeyRaw exposes the raw public key for token verification.
func (s *Ed25519Signer) PublicKeyRaw() ed25519.PublicKey { return s.pubKey }
