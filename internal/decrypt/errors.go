package decrypt

import "errors"

var (
	// ErrInvalidKey is returned when a key is not KeySize bytes long.
	ErrInvalidKey = errors.New("DES key must be 8 bytes")

	// ErrInvalidCiphertext is returned when a field is not valid base64 or
	// not a whole number of blocks.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrBadPadding is returned when the decrypted block does not end in
	// valid PKCS#7 padding, which usually means the key is wrong.
	ErrBadPadding = errors.New("invalid padding")

	// ErrNotUTF8 is returned when a decrypted field is not valid UTF-8.
	ErrNotUTF8 = errors.New("decrypted field is not valid UTF-8")
)
