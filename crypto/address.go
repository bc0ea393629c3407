package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Prefix is the human-readable part of every tripact participant address.
const Prefix = "tri"

// AddressLength is the byte length of a participant address.
const AddressLength = 20

// Address identifies an externally-acting participant or an instance custody
// vault. It is a 20-byte account identifier rendered as bech32.
type Address [AddressLength]byte

// NewAddress builds an address from raw bytes. It panics when the slice is
// not exactly 20 bytes long; callers parsing untrusted input should use
// DecodeAddress instead.
func NewAddress(b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	var addr Address
	copy(addr[:], b)
	return addr
}

// String renders the address in bech32 with the tripact prefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(Prefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is the all-zero value, used to mark an
// unclaimed role slot.
func (a Address) IsZero() bool {
	return a == Address{}
}

// DecodeAddress parses a bech32 participant address.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != Prefix {
		return Address{}, fmt.Errorf("unexpected address prefix: %s", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(conv))
	}
	return NewAddress(conv), nil
}

// ModuleAddress derives the well-known account address of a named system
// module. Clients grant spending allowances to a module address, never to
// individual instance vaults.
func ModuleAddress(name string) Address {
	hash := ethcrypto.Keccak256([]byte("tripact/module/" + name))
	return NewAddress(hash[12:])
}

// DeriveVaultAddress maps a 32-byte instance identifier onto the custody
// address that holds the instance's deposits. The mapping is deterministic so
// the vault can be recovered from the identifier alone.
func DeriveVaultAddress(id [32]byte) Address {
	hash := ethcrypto.Keccak256(id[:])
	return NewAddress(hash[12:])
}

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	return NewAddress(ethcrypto.PubkeyToAddress(*k.PublicKey).Bytes())
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
