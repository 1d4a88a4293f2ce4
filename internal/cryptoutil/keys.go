// Package cryptoutil wraps RSA-2048/PKCS#1 v1.5/SHA-256 signing behind a
// pair of small value types so the rest of the module never touches
// crypto/rsa or crypto/x509 directly.
package cryptoutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// KeyBits is the RSA modulus size used throughout the network.
const KeyBits = 2048

// PublicKey wraps an RSA public key. The zero value is not usable;
// construct one with NewPublicKey or by unmarshaling JSON.
type PublicKey struct {
	key *rsa.PublicKey
}

// NewPublicKey wraps an existing RSA public key.
func NewPublicKey(key *rsa.PublicKey) PublicKey {
	return PublicKey{key: key}
}

// DER returns the PKCS#1 DER encoding of the key.
func (k PublicKey) DER() []byte {
	return x509.MarshalPKCS1PublicKey(k.key)
}

// Fingerprint returns the DER encoding as a comparable, hashable string,
// for use as a map key (an *rsa.PublicKey pointer is not a useful map key
// since two wrappers holding structurally equal keys will not share a
// pointer).
func (k PublicKey) Fingerprint() string {
	return string(k.DER())
}

// Equal reports whether two wrapped keys represent the same RSA key.
func (k PublicKey) Equal(other PublicKey) bool {
	if k.key == nil || other.key == nil {
		return k.key == other.key
	}
	return k.key.Equal(other.key)
}

// Verify checks an RSA PKCS#1 v1.5 / SHA-256 signature over hash.
func (k PublicKey) Verify(hash, sig []byte) bool {
	if k.key == nil {
		return false
	}
	return rsa.VerifyPKCS1v15(k.key, crypto.SHA256, hash, sig) == nil
}

// preview renders the first 4 bytes of the key material (skipping the
// PKCS#1 DER header) as hex, mirroring the original's debug formatting.
func preview(der []byte, headerLen int) string {
	const keyHexLen = 4
	start := headerLen
	end := start + keyHexLen
	if end > len(der) {
		end = len(der)
	}
	if start > end {
		start = end
	}
	return fmt.Sprintf("%x", der[start:end])
}

func (k PublicKey) String() string {
	const publicHeaderLen = 9
	return preview(k.DER(), publicHeaderLen)
}

func (k PublicKey) MarshalJSON() ([]byte, error) {
	if k.key == nil {
		return nil, fmt.Errorf("cryptoutil: cannot marshal a zero-value PublicKey")
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(k.DER()))
}

func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return fmt.Errorf("cryptoutil: decode public key: %w", err)
	}
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("cryptoutil: decode public key base64: %w", err)
	}
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return fmt.Errorf("cryptoutil: parse public key der: %w", err)
	}
	k.key = pub
	return nil
}

// PrivateKey wraps an RSA private key.
type PrivateKey struct {
	key *rsa.PrivateKey
}

// GeneratePrivateKey creates a fresh KeyBits-sized RSA key pair.
func GeneratePrivateKey() (PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("cryptoutil: generate key: %w", err)
	}
	return PrivateKey{key: key}, nil
}

// NewPrivateKey wraps an existing RSA private key.
func NewPrivateKey(key *rsa.PrivateKey) PrivateKey {
	return PrivateKey{key: key}
}

// PublicKey derives the corresponding public key.
func (k PrivateKey) PublicKey() PublicKey {
	return PublicKey{key: &k.key.PublicKey}
}

// Sign produces an RSA PKCS#1 v1.5 / SHA-256 signature over hash.
func (k PrivateKey) Sign(hash []byte) ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.key, crypto.SHA256, hash)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: sign: %w", err)
	}
	return sig, nil
}

func (k PrivateKey) DER() []byte {
	return x509.MarshalPKCS1PrivateKey(k.key)
}

func (k PrivateKey) String() string {
	const privateHeaderLen = 12
	return preview(k.DER(), privateHeaderLen)
}

func (k PrivateKey) MarshalJSON() ([]byte, error) {
	if k.key == nil {
		return nil, fmt.Errorf("cryptoutil: cannot marshal a zero-value PrivateKey")
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(k.DER()))
}

func (k *PrivateKey) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return fmt.Errorf("cryptoutil: decode private key: %w", err)
	}
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("cryptoutil: decode private key base64: %w", err)
	}
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return fmt.Errorf("cryptoutil: parse private key der: %w", err)
	}
	k.key = key
	return nil
}

// Hash computes the SHA-256 digest used as the signing input throughout
// the module.
func Hash(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
