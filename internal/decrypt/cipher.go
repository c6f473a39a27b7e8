package decrypt

import (
	"bytes"
	"crypto/cipher"
	"crypto/des" //nolint:gosec // the files in the wild use DES
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

// KeySize is the DES key length in bytes.
const KeySize = 8

// FieldCipher encrypts and decrypts single CSV fields.
type FieldCipher struct {
	block cipher.Block
}

// NewFieldCipher returns a FieldCipher for an 8-byte key.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(key))
	}
	block, err := des.NewCipher(key) //nolint:gosec // see import
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return &FieldCipher{block: block}, nil
}

// Encrypt returns the base64 ciphertext of value.
func (c *FieldCipher) Encrypt(value string) string {
	data := pad([]byte(value), des.BlockSize)
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += des.BlockSize {
		c.block.Encrypt(out[i:i+des.BlockSize], data[i:i+des.BlockSize])
	}
	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt reverses Encrypt.
func (c *FieldCipher) Decrypt(field string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(field)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCiphertext, err)
	}
	if len(data) == 0 || len(data)%des.BlockSize != 0 {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidCiphertext, len(data))
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += des.BlockSize {
		c.block.Decrypt(out[i:i+des.BlockSize], data[i:i+des.BlockSize])
	}
	plain, err := unpad(out, des.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", ErrNotUTF8
	}
	return string(plain), nil
}

// pad appends PKCS#7 padding.
func pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips PKCS#7 padding.
func unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, ErrBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}
