package decrypt

import (
	"bytes"

	"github.com/nao1215/onionharvest/internal/model"
)

// DeriveKeys turns key findings into candidate DES keys: each finding value
// truncated or zero-padded to KeySize bytes. Duplicates are dropped and the
// order of first appearance is kept.
func DeriveKeys(findings []model.KeyFinding) [][]byte {
	seen := make(map[string]struct{}, len(findings))
	keys := make([][]byte, 0, len(findings))
	for _, f := range findings {
		value := f.Value()
		if value == "" {
			continue
		}
		key := make([]byte, KeySize)
		copy(key, value)
		if _, dup := seen[string(key)]; dup {
			continue
		}
		seen[string(key)] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// keyHint returns the first two characters of a key for the record.
func keyHint(key []byte) string {
	key = bytes.TrimRight(key, "\x00")
	if len(key) > 2 {
		key = key[:2]
	}
	return string(bytes.ToValidUTF8(key, nil))
}
