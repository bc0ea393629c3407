package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	addr := NewAddress(bytes.Repeat([]byte{0x42}, AddressLength))
	encoded := addr.String()
	if !strings.HasPrefix(encoded, Prefix+"1") {
		t.Fatalf("encoded address missing prefix: %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
}

func TestDecodeAddressRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"not-bech32",
		"cosmos1qqqsyqcyq5rqwzqfpg9scrgwpugpzysnrujsuw", // wrong prefix
	}
	for _, in := range cases {
		if _, err := DecodeAddress(in); err == nil {
			t.Fatalf("expected decode of %q to fail", in)
		}
	}
}

func TestNewAddressPanicsOnWrongLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewAddress([]byte{0x01})
}

func TestIsZero(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Fatalf("zero value must report zero")
	}
	if NewAddress(bytes.Repeat([]byte{0x01}, AddressLength)).IsZero() {
		t.Fatalf("non-zero address reported zero")
	}
}

func TestDeriveVaultAddressIsDeterministic(t *testing.T) {
	id := [32]byte{0x01, 0x02}
	first := DeriveVaultAddress(id)
	second := DeriveVaultAddress(id)
	if first != second {
		t.Fatalf("vault derivation not deterministic")
	}
	other := DeriveVaultAddress([32]byte{0x03})
	if first == other {
		t.Fatalf("distinct identifiers mapped to the same vault")
	}
}

func TestModuleAddressesAreDistinct(t *testing.T) {
	if ModuleAddress("escrow") == ModuleAddress("fees") {
		t.Fatalf("distinct module names mapped to the same address")
	}
	if ModuleAddress("escrow") != ModuleAddress("escrow") {
		t.Fatalf("module address not deterministic")
	}
}

func TestKeyAddressDerivation(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if key.PubKey().Address() != restored.PubKey().Address() {
		t.Fatalf("restored key derives a different address")
	}
}
