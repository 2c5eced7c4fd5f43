package phonepe

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

var ErrInvalidSignature = errors.New("invalid X-VERIFY signature")

// checksum builds the X-VERIFY value: sha256 hex of the parts plus salt key,
// then "###" and the salt index.
func checksum(saltKey string, saltIndex int, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	h.Write([]byte(saltKey))
	return hex.EncodeToString(h.Sum(nil)) + "###" + strconv.Itoa(saltIndex)
}

// verifyChecksum compares header against the expected value in constant time.
func verifyChecksum(header, saltKey string, saltIndex int, parts ...string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrInvalidSignature
	}
	want := checksum(saltKey, saltIndex, parts...)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(header)), []byte(want)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
