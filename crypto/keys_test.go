package crypto

import (
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("address %q lacks the %s prefix", encoded, AddressPrefix)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	if _, err := DecodeAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"); err == nil {
		t.Fatal("expected foreign prefix to be rejected")
	}
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatal("expected malformed string to be rejected")
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !restored.PubKey().Address().Equal(key.PubKey().Address()) {
		t.Fatal("restored key derives a different address")
	}
}

func TestZeroAddress(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Fatal("zero value must report IsZero")
	}
	addr, err := NewAddress(make([]byte, AddressLength))
	if err != nil {
		t.Fatal(err)
	}
	if !addr.IsZero() {
		t.Fatal("all-zero bytes must report IsZero")
	}
	if _, err := NewAddress(make([]byte, 19)); err == nil {
		t.Fatal("expected short input to be rejected")
	}
}
