// Package crypto provides the cryptographic primitives behind identifier
// confidentiality and document integrity: authenticated field encryption,
// deterministic lookup hashing, and tamper-evident signature hashes.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"github.com/clinika/clinika/internal/platform/apperr"
)

const (
	// nonceSize is the per-message random nonce length. 16 bytes rather
	// than GCM's default 12 so the wire format matches the stored records.
	nonceSize = 16
	tagSize   = 16
	keySize   = 32

	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// kdfSalt is a fixed application salt for deriving the AES key from the
// configured secret. The secret itself is the high-entropy input; the salt
// only domain-separates this derivation from other uses of the same secret.
var kdfSalt = []byte("clinika.field-encryption.v1")

// Engine holds the process-wide key material. Derived once at startup and
// immutable for the process lifetime. It must never be logged.
type Engine struct {
	aead   cipher.AEAD
	pepper []byte
}

// NewEngine derives a 256-bit AES key from encryptionSecret via scrypt and
// keeps pepper for signature hashing. Empty secrets are a refuse-to-start
// misconfiguration, not a recoverable condition.
func NewEngine(encryptionSecret, signaturePepper string) (*Engine, error) {
	if encryptionSecret == "" {
		return nil, fmt.Errorf("crypto engine: encryption secret is required")
	}
	if signaturePepper == "" {
		return nil, fmt.Errorf("crypto engine: signature pepper is required")
	}

	key, err := scrypt.Key([]byte(encryptionSecret), kdfSalt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("crypto engine: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto engine: create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("crypto engine: create GCM: %w", err)
	}

	return &Engine{aead: aead, pepper: []byte(signaturePepper)}, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce and
// returns hex(nonce || tag || ciphertext). The format is self-contained; no
// external nonce storage is needed.
func (e *Engine) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", apperr.Crypto("encrypt: generate nonce", err)
	}

	// Seal returns ciphertext || tag; reorder to nonce || tag || ciphertext.
	sealed := e.aead.Seal(nil, nonce, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(body))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, body...)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Any malformed input or authentication-tag
// mismatch yields a crypto error; corrupted plaintext is never returned.
func (e *Engine) Decrypt(ciphertext string) (string, error) {
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", apperr.Crypto("decrypt: malformed hex", err)
	}
	if len(raw) < nonceSize+tagSize {
		return "", apperr.Crypto("decrypt: ciphertext too short", nil)
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	body := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(body)+tagSize)
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)

	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperr.Crypto("decrypt: authentication failed", err)
	}
	return string(plaintext), nil
}

// HashForLookup returns the SHA-256 hex of the digits of v. Deterministic
// and unsalted so equality lookups work without decryption. It is an index
// key for low-entropy identifiers, not a password hash; confidentiality of
// the raw value is carried by the separate encrypted column.
func HashForLookup(v string) string {
	sum := sha256.Sum256([]byte(normalizeDigits(v)))
	return hex.EncodeToString(sum[:])
}

// normalizeDigits strips everything but ASCII digits, so formatted and raw
// identifiers (e.g. "123.456.789-00" vs "12345678900") hash identically.
func normalizeDigits(v string) string {
	out := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if v[i] >= '0' && v[i] <= '9' {
			out = append(out, v[i])
		}
	}
	return string(out)
}
