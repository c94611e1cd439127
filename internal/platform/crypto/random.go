package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
)

// RandomToken returns a hex string of n random bytes (2n characters) from
// the system CSPRNG. Used for refresh tokens and similar opaque credentials.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("random token: length must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RandomNumericCode returns n uniformly random decimal digits from the
// system CSPRNG. Used for one-time MFA codes.
func RandomNumericCode(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("random code: length must be positive, got %d", n)
	}
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("random code: %w", err)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}
