// Package bytecodec converts between byte slices and the uppercase hex
// strings used in logs, configs and test fixtures.
package bytecodec

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/user/gattlink/gatterr"
)

var (
	// ErrRange is returned when a requested range lies outside the input
	ErrRange = errors.New("bytecodec: range out of bounds")
	// ErrFormat is returned for odd-length or non-hex input. It is a
	// validation error.
	ErrFormat = fmt.Errorf("%w: bytecodec: malformed hex", gatterr.ErrValidation)
)

// ToHex encodes all of b.
func ToHex(b []byte) string {
	s, _ := ToHexRange(b, 0, len(b))
	return s
}

// ToHexRange encodes b[start:end] as uppercase two-digit pairs.
func ToHexRange(b []byte, start, end int) (string, error) {
	if start < 0 || start > end || end > len(b) {
		return "", fmt.Errorf("%w: [%d, %d) of %d bytes", ErrRange, start, end, len(b))
	}
	return strings.ToUpper(hex.EncodeToString(b[start:end])), nil
}

// FromHex decodes a hex string of either case. Empty input yields an empty,
// non-nil slice.
func FromHex(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return out, nil
}

// StartsWith reports whether haystack begins with needle.
func StartsWith(haystack, needle []byte) bool {
	return bytes.HasPrefix(haystack, needle)
}

// Contains reports whether b occurs anywhere in haystack.
func Contains(haystack []byte, b byte) bool {
	return bytes.IndexByte(haystack, b) >= 0
}
