package ir

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// AddressLength is the byte length of an account or contract address.
const AddressLength = 20

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Address is a 20-byte account or contract address.
type Address [AddressLength]byte

// IsAddress reports whether s is "0x" followed by exactly 40 hex digits.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ParseAddress decodes a hex address. Case is ignored.
func ParseAddress(s string) (Address, error) {
	var a Address
	if !IsAddress(s) {
		return a, fmt.Errorf("invalid address %q: want 0x followed by 40 hex digits", s)
	}
	if _, err := hex.Decode(a[:], []byte(s[2:])); err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Use only in tests or with constant inputs.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes copies a 20-byte slice into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Hex returns the lowercase 0x-prefixed form.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

// IsZero reports whether every byte is zero.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
