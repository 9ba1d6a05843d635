package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Prefix is the prefix for SHA-256 checksums.
const Prefix = "sha256:"

// Checksum represents a hex-encoded SHA-256 hash with the "sha256:" prefix.
type Checksum string

var (
	ErrMismatch = errors.New("checksum mismatch")
	ErrInvalid  = errors.New("invalid checksum format")
)

// Compute computes SHA-256 over a byte slice.
func Compute(data []byte) Checksum {
	sum := sha256.Sum256(data)
	return Format(sum[:])
}

// Verify checks data against an expected checksum.
func Verify(data []byte, expected Checksum) error {
	if _, err := Parse(expected); err != nil {
		return err
	}
	if actual := Compute(data); actual != expected {
		return fmt.Errorf("%w: expected %s got %s", ErrMismatch, expected, actual)
	}
	return nil
}

// Format formats raw hash bytes into a Checksum with the "sha256:" prefix.
func Format(sum []byte) Checksum {
	return Checksum(Prefix + hex.EncodeToString(sum))
}

// Parse strips the "sha256:" prefix and returns the raw hex string.
func Parse(c Checksum) (string, error) {
	s := string(c)
	if !strings.HasPrefix(s, Prefix) {
		return "", fmt.Errorf("%w: missing prefix %q", ErrInvalid, Prefix)
	}
	hexStr := s[len(Prefix):]
	if len(hexStr) != 64 {
		return "", fmt.Errorf("%w: expected 64 hex chars, got %d", ErrInvalid, len(hexStr))
	}
	if _, err := hex.DecodeString(hexStr); err != nil {
		return "", fmt.Errorf("%w: invalid hex: %v", ErrInvalid, err)
	}
	return hexStr, nil
}

// Short returns the first n hex characters, for compact tokens and logs.
func (c Checksum) Short(n int) string {
	s := strings.TrimPrefix(string(c), Prefix)
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}
