package crypto

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix defines the human-readable part of a bech32 address.
type AddressPrefix string

const (
	// LendPrefix is used for every participant and contract address known to
	// the lending protocol.
	LendPrefix AddressPrefix = "lend"

	// AddressLength is the size of the raw address payload.
	AddressLength = 20

	// noneAddress is how the zero address renders. Offers that have not been
	// accepted carry it as their borrower.
	noneAddress = "none"
)

// Address represents a 20-byte account or contract address with a specific
// prefix. The zero value is the "none" sentinel.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress builds an address from a prefix and a 20 byte payload. The payload
// is copied.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

// MustAddress decodes a bech32 string and panics on failure. Intended for
// tests and static fixtures.
func MustAddress(s string) Address {
	addr, err := DecodeAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// IsZero reports whether the address is the "none" sentinel.
func (a Address) IsZero() bool {
	return len(a.bytes) == 0
}

// Equal reports whether both addresses carry the same prefix and payload.
func (a Address) Equal(other Address) bool {
	if a.IsZero() || other.IsZero() {
		return a.IsZero() && other.IsZero()
	}
	return a.prefix == other.prefix && bytes.Equal(a.bytes, other.bytes)
}

func (a Address) String() string {
	if a.IsZero() {
		return noneAddress
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw address payload.
func (a Address) Bytes() []byte {
	if a.IsZero() {
		return nil
	}
	return append([]byte(nil), a.bytes...)
}

// Hex returns the lowercase hex form of the payload, used for storage keys.
func (a Address) Hex() string {
	return hex.EncodeToString(a.bytes)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// MarshalText encodes the address as its bech32 string.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a bech32 string. "none" and the empty string decode to
// the zero address.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a bech32 address string.
func DecodeAddress(addrStr string) (Address, error) {
	trimmed := strings.TrimSpace(addrStr)
	if trimmed == "" || strings.EqualFold(trimmed, noneAddress) {
		return Address{}, nil
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("invalid address length %d", len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}
