package tor

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Onion address constants.
const (
	// OnionV3Length is the length of a v3 onion label without the ".onion" suffix.
	OnionV3Length = 56

	// OnionV3Version is the version byte for v3 onion addresses.
	OnionV3Version = 0x03

	// OnionSuffix is the common suffix for all onion addresses.
	OnionSuffix = ".onion"
)

// onionV3Pattern matches v3 onion addresses (56 base32 characters + .onion).
var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// onionV2Pattern matches the deprecated 16-character v2 form.
var onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)

// checksumPrefix is the prefix used in v3 onion address checksum calculation.
var checksumPrefix = []byte(".onion checksum")

// Onion address validation errors.
var (
	// ErrInvalidOnionAddress is returned when an .onion host is not a valid v3 address.
	ErrInvalidOnionAddress = newOnionError("invalid onion address")

	// ErrV2AddressDeprecated is returned for a v2 address.
	// V2 addresses stopped working in October 2021.
	ErrV2AddressDeprecated = newOnionError("v2 onion addresses are deprecated and no longer functional")
)

type onionError struct {
	message string
}

func newOnionError(message string) *onionError {
	return &onionError{message: message}
}

// Error implements the error interface.
func (e *onionError) Error() string {
	return e.message
}

// IsOnionHost reports whether host (optionally with a port) is in the
// .onion top-level domain.
func IsOnionHost(host string) bool {
	host = strings.ToLower(stripPort(host))
	return strings.HasSuffix(strings.TrimSuffix(host, "."), OnionSuffix)
}

// ValidateOnionHost checks an .onion host (optionally with a port) for a
// well-formed v3 address with a correct checksum. Subdomains of an onion
// service are accepted. Hosts outside .onion are not checked.
func ValidateOnionHost(host string) error {
	if !IsOnionHost(host) {
		return nil
	}
	host = strings.TrimSuffix(strings.ToLower(stripPort(host)), ".")

	labels := strings.Split(strings.TrimSuffix(host, OnionSuffix), ".")
	address := labels[len(labels)-1] + OnionSuffix
	if IsValidV3Address(address) {
		return nil
	}
	if IsV2Address(address) {
		return ErrV2AddressDeprecated
	}
	return ErrInvalidOnionAddress
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i != -1 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}

// IsValidV3Address checks if the given address is a valid v3 onion address.
// It performs both format validation and checksum verification, the same
// checks Tor makes before connecting.
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	onionPart := strings.TrimSuffix(address, OnionSuffix)
	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(onionPart))
	if err != nil {
		return false
	}

	// 32 bytes ed25519 public key, 2 bytes checksum, 1 byte version.
	if len(decoded) != 35 {
		return false
	}
	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]

	if version != OnionV3Version {
		return false
	}

	expected := computeV3Checksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

// computeV3Checksum returns the first 2 bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)
	return hash[:2]
}

// IsV2Address checks if the given address matches the v2 onion address format.
func IsV2Address(address string) bool {
	return onionV2Pattern.MatchString(strings.ToLower(address))
}

// ComputeV3AddressFromPublicKey computes the v3 onion address of an
// ed25519 public key. The key must be exactly 32 bytes.
func ComputeV3AddressFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrInvalidOnionAddress
	}

	checksum := computeV3Checksum(pubkey, OnionV3Version)

	addressData := make([]byte, 35)
	copy(addressData[:32], pubkey)
	copy(addressData[32:34], checksum)
	addressData[34] = OnionV3Version

	encoded := base32.StdEncoding.EncodeToString(addressData)
	return strings.ToLower(encoded) + OnionSuffix, nil
}
