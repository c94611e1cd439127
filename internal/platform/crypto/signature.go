package crypto

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/clinika/clinika/internal/platform/apperr"
)

// SignatureHash produces a deterministic digest binding payload and
// timestamp: SHA-256(canonicalJSON | RFC3339(ts) | pepper). Semantically
// identical payloads hash identically regardless of field order.
func (e *Engine) SignatureHash(payload any, ts time.Time) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", apperr.Crypto("signature hash: canonicalize payload", err)
	}

	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte("|"))
	h.Write([]byte(ts.UTC().Format(time.RFC3339)))
	h.Write([]byte("|"))
	h.Write(e.pepper)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifySignatureHash recomputes the hash for payload and ts and compares it
// against hash in constant time.
func (e *Engine) VerifySignatureHash(payload any, ts time.Time, hash string) (bool, error) {
	computed, err := e.SignatureHash(payload, ts)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}

// CanonicalJSON serializes v with recursively sorted object keys, no HTML
// escaping, and json.Number arithmetic so numeric formatting is stable.
// Strings are emitted as their exact UTF-8 bytes; no Unicode normalization
// is applied.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.Number:
		buf.WriteString(t.String())
		return nil
	case string:
		return writeJSONString(buf, t)
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case nil:
		buf.WriteString("null")
		return nil
	default:
		return fmt.Errorf("canonical json: unexpected type %T", v)
	}
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode appends a newline; strip it.
	buf.Truncate(buf.Len() - 1)
	return nil
}
