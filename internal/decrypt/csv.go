package decrypt

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EncryptCSV encrypts every non-empty field of the CSV read from r and
// writes the result to w. Empty fields stay empty.
func EncryptCSV(r io.Reader, w io.Writer, key []byte) error {
	c, err := NewFieldCipher(key)
	if err != nil {
		return err
	}
	return transformCSV(r, w, func(field string) (string, error) {
		return c.Encrypt(field), nil
	})
}

// DecryptCSV decrypts every non-empty field of the CSV read from r and
// writes the result to w. It fails on the first field that does not
// decrypt, so output written before the error must be discarded.
func DecryptCSV(r io.Reader, w io.Writer, key []byte) error {
	c, err := NewFieldCipher(key)
	if err != nil {
		return err
	}
	return transformCSV(r, w, c.Decrypt)
}

// EncryptFile encrypts the CSV file src into dst.
func EncryptFile(src, dst string, key []byte) (err error) {
	in, err := os.Open(src) //nolint:gosec // caller-supplied path
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // caller-supplied path
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	return EncryptCSV(in, out, key)
}

func transformCSV(r io.Reader, w io.Writer, fn func(string) (string, error)) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	writer := csv.NewWriter(w)

	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("row %d: %w", row, err)
		}
		for i, field := range record {
			if field == "" {
				continue
			}
			if record[i], err = fn(field); err != nil {
				return fmt.Errorf("row %d field %d: %w", row, i+1, err)
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
