package crypto

import (
	"encoding/hex"
	"strings"
	"sync"
	"testing"

	"github.com/clinika/clinika/internal/platform/apperr"
)

var (
	testEngineOnce sync.Once
	testEngineVal  *Engine
)

// testEngine derives key material once; scrypt is deliberately slow.
func testEngine(t *testing.T) *Engine {
	t.Helper()
	testEngineOnce.Do(func() {
		e, err := NewEngine("test-encryption-secret", "test-pepper")
		if err != nil {
			t.Fatalf("create engine: %v", err)
		}
		testEngineVal = e
	})
	return testEngineVal
}

func TestNewEngine_MissingSecrets(t *testing.T) {
	t.Run("empty encryption secret", func(t *testing.T) {
		if _, err := NewEngine("", "pepper"); err == nil {
			t.Fatal("expected error for empty encryption secret")
		}
	})
	t.Run("empty pepper", func(t *testing.T) {
		if _, err := NewEngine("secret", ""); err == nil {
			t.Fatal("expected error for empty pepper")
		}
	})
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	e := testEngine(t)

	cases := []string{
		"12345678900",
		"",
		"maria.silva@clinica.example",
		"conteúdo com acentuação e emoji 🩺",
		strings.Repeat("x", 4096),
	}
	for _, plaintext := range cases {
		ct, err := e.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypt %q: %v", plaintext, err)
		}
		got, err := e.Decrypt(ct)
		if err != nil {
			t.Fatalf("decrypt %q: %v", plaintext, err)
		}
		if got != plaintext {
			t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
		}
	}
}

func TestEncrypt_NonceIsFresh(t *testing.T) {
	e := testEngine(t)
	a, err := e.Encrypt("same value")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Encrypt("same value")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	e := testEngine(t)
	ct, err := e.Encrypt("sensitive identifier")
	if err != nil {
		t.Fatal(err)
	}

	raw, err := hex.DecodeString(ct)
	if err != nil {
		t.Fatal(err)
	}

	// Flip one byte at every position: nonce, tag, and body must all be
	// covered by authentication.
	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		_, err := e.Decrypt(hex.EncodeToString(tampered))
		if err == nil {
			t.Fatalf("tampered byte %d decrypted successfully", i)
		}
		if !apperr.Is(err, apperr.KindCrypto) {
			t.Fatalf("tampered byte %d: kind = %v, want KindCrypto", i, apperr.KindOf(err))
		}
	}
}

func TestDecrypt_MalformedInput(t *testing.T) {
	e := testEngine(t)

	cases := []struct {
		name string
		in   string
	}{
		{"not hex", "zzzz"},
		{"empty", ""},
		{"too short", hex.EncodeToString([]byte("short"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Decrypt(tc.in)
			if !apperr.Is(err, apperr.KindCrypto) {
				t.Fatalf("kind = %v, want KindCrypto (err=%v)", apperr.KindOf(err), err)
			}
		})
	}
}

func TestHashForLookup(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		if HashForLookup("12345678900") != HashForLookup("12345678900") {
			t.Fatal("same input hashed differently")
		}
	})

	t.Run("ignores formatting", func(t *testing.T) {
		if HashForLookup("123.456.789-00") != HashForLookup("12345678900") {
			t.Fatal("formatted and raw identifiers hashed differently")
		}
	})

	t.Run("distinct inputs", func(t *testing.T) {
		if HashForLookup("12345678900") == HashForLookup("12345678901") {
			t.Fatal("distinct identifiers collided")
		}
	})

	t.Run("hex sha256 shape", func(t *testing.T) {
		h := HashForLookup("12345678900")
		if len(h) != 64 {
			t.Fatalf("hash length = %d, want 64", len(h))
		}
		if _, err := hex.DecodeString(h); err != nil {
			t.Fatalf("hash is not hex: %v", err)
		}
	})
}

func TestRandomToken(t *testing.T) {
	tok, err := RandomToken(32)
	if err != nil {
		t.Fatal(err)
	}
	if len(tok) != 64 {
		t.Fatalf("token length = %d, want 64", len(tok))
	}
	if _, err := hex.DecodeString(tok); err != nil {
		t.Fatalf("token is not hex: %v", err)
	}

	other, err := RandomToken(32)
	if err != nil {
		t.Fatal(err)
	}
	if tok == other {
		t.Fatal("two tokens are identical")
	}

	if _, err := RandomToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestRandomNumericCode(t *testing.T) {
	code, err := RandomNumericCode(6)
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 6 {
		t.Fatalf("code length = %d, want 6", len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("code contains non-digit %q", r)
		}
	}

	if _, err := RandomNumericCode(-1); err == nil {
		t.Fatal("expected error for negative length")
	}
}
