package tor

import (
	"errors"
	"strings"
	"testing"
)

// Valid v3 addresses generated from deterministic public keys. They do not
// correspond to any real onion service.
const (
	// testOnionV3Addr1 is generated from an all-zero 32-byte public key
	testOnionV3Addr1 = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion"
	// testOnionV3Addr2 is generated from a sequential (0,1,2,...,31) public key
	testOnionV3Addr2 = "aaaqeayeaudaocajbifqydiob4ibceqtcqkrmfyydenbwha5dyp3kead.onion"
)

func TestIsValidV3Address(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		address  string
		expected bool
	}{
		{"valid v3 address", testOnionV3Addr1, true},
		{"second valid v3 address", testOnionV3Addr2, true},
		{"uppercase is normalized", strings.ToUpper(strings.TrimSuffix(testOnionV3Addr1, ".onion")) + ".onion", true},
		{"v2 address", "facebookcorewwwi.onion", false},
		{"too short", "abc.onion", false},
		{"too long", strings.Repeat("a", 57) + ".onion", false},
		{"missing suffix", strings.Repeat("a", 56), false},
		{"invalid characters", strings.Repeat("0", 56) + ".onion", false},
		{"empty string", "", false},
		{"wrong checksum", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqe.onion", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsValidV3Address(tc.address); got != tc.expected {
				t.Errorf("IsValidV3Address(%q): expected %v, got %v", tc.address, tc.expected, got)
			}
		})
	}
}

func TestIsV2Address(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		address  string
		expected bool
	}{
		{"facebookcorewwwi.onion", true},
		{"FACEBOOKCOREWWWI.onion", true},
		{testOnionV3Addr1, false},
		{"abc.onion", false},
	}
	for _, tc := range testCases {
		if got := IsV2Address(tc.address); got != tc.expected {
			t.Errorf("IsV2Address(%q): expected %v, got %v", tc.address, tc.expected, got)
		}
	}
}

func TestIsOnionHost(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		host     string
		expected bool
	}{
		{testOnionV3Addr1, true},
		{testOnionV3Addr1 + ":8080", true},
		{"WWW." + strings.ToUpper(testOnionV3Addr1), true},
		{"anything.onion.", true},
		{"example.com", false},
		{"onion.example.com", false},
		{"127.0.0.1:8080", false},
		{"[::1]:80", false},
	}
	for _, tc := range testCases {
		if got := IsOnionHost(tc.host); got != tc.expected {
			t.Errorf("IsOnionHost(%q): expected %v, got %v", tc.host, tc.expected, got)
		}
	}
}

func TestValidateOnionHost(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		host    string
		wantErr error
	}{
		{"valid address", testOnionV3Addr1, nil},
		{"valid address with port", testOnionV3Addr2 + ":8080", nil},
		{"subdomain of valid address", "files." + testOnionV3Addr1, nil},
		{"clearnet host is not checked", "example.com:443", nil},
		{"bad checksum", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqe.onion", ErrInvalidOnionAddress},
		{"v2 address", "facebookcorewwwi.onion", ErrV2AddressDeprecated},
		{"garbage onion", "not-an-address.onion", ErrInvalidOnionAddress},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateOnionHost(tc.host)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestComputeV3AddressFromPublicKey(t *testing.T) {
	t.Parallel()

	t.Run("invalid public key length returns error", func(t *testing.T) {
		t.Parallel()
		for _, length := range []int{0, 16, 31, 33, 64} {
			if _, err := ComputeV3AddressFromPublicKey(make([]byte, length)); err == nil {
				t.Errorf("expected error for pubkey length %d, got nil", length)
			}
		}
	})

	t.Run("known keys produce known addresses", func(t *testing.T) {
		t.Parallel()
		zero, err := ComputeV3AddressFromPublicKey(make([]byte, 32))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if zero != testOnionV3Addr1 {
			t.Errorf("expected %s, got %s", testOnionV3Addr1, zero)
		}

		seq := make([]byte, 32)
		for i := range seq {
			seq[i] = byte(i)
		}
		got, err := ComputeV3AddressFromPublicKey(seq)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != testOnionV3Addr2 {
			t.Errorf("expected %s, got %s", testOnionV3Addr2, got)
		}
	})
}
