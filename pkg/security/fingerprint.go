package security

import (
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

const fingerprintBytes = 8

// PhoneFingerprinter derives stable, non-reversible references for phone
// numbers so they can appear in logs and metrics labels.
type PhoneFingerprinter struct {
	key []byte
}

// NewPhoneFingerprinter keys the hash with secret. Secrets longer than the
// BLAKE2b key limit are compressed first; an empty secret yields an unkeyed hash.
func NewPhoneFingerprinter(secret string) *PhoneFingerprinter {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &PhoneFingerprinter{key: key}
}

// Fingerprint returns a short hex reference for phone. Formatting characters
// are ignored so "0712 345 678" and "0712345678" map to the same value.
func (p *PhoneFingerprinter) Fingerprint(phone string) string {
	digits := NormalizePhone(phone)
	if digits == "" {
		return ""
	}
	h, err := blake2b.New(fingerprintBytes, p.key)
	if err != nil {
		// key length is bounded in the constructor
		panic(err)
	}
	_, _ = h.Write([]byte(digits))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizePhone strips everything except digits and a leading plus sign.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
