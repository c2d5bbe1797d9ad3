package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"

	"github.com/ethereum/go-ethereum/crypto"
)

// PrivateKey wraps a secp256k1 key used by operators and tests to derive
// participant addresses.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Address derives the lending address controlled by the key.
func (k *PrivateKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(k.PrivateKey.PublicKey).Bytes()
	return NewAddress(LendPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// AddressFromSeed derives a deterministic address from an arbitrary seed. It is
// used for fixtures and dev genesis files, never for real participants.
func AddressFromSeed(seed string) Address {
	hash := crypto.Keccak256([]byte(seed))
	return NewAddress(LendPrefix, hash[len(hash)-AddressLength:])
}
