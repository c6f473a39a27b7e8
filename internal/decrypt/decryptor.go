package decrypt

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/onionharvest/internal/model"
)

// DecryptedDir is the directory created next to a download for its
// decrypted copy.
const DecryptedDir = "decrypted"

// Store is the part of the tracking store the decryptor uses.
type Store interface {
	Snapshot() model.TrackingDocument
	RecordDecryption(url string, rec model.DecryptionRecord)
}

// Stats counts decryption outcomes per file.
type Stats struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	// Skipped counts files that are not CSV, missing on disk or already
	// decrypted.
	Skipped int `json:"skipped"`
	// NoKeys counts files of domains without any key findings.
	NoKeys int `json:"no_keys"`
}

// Total returns the number of files considered.
func (s Stats) Total() int {
	return s.Success + s.Failed + s.Skipped + s.NoKeys
}

// Decryptor decrypts downloaded CSV files with the keys of their domain.
type Decryptor struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Decryptor.
type Option func(*Decryptor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decryptor) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New returns a Decryptor for store.
func New(store Store, opts ...Option) *Decryptor {
	d := &Decryptor{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes every completed download of the current snapshot. It stops
// early, returning ctx.Err(), when ctx is cancelled.
func (d *Decryptor) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	doc := d.store.Snapshot()

	byDomain := make(map[string][]model.DownloadRecord)
	for _, rec := range doc.Downloads {
		if rec.Completed() {
			byDomain[rec.Domain] = append(byDomain[rec.Domain], rec)
		}
	}
	domains := make([]string, 0, len(byDomain))
	for domain := range byDomain {
		domains = append(domains, domain)
	}
	slices.Sort(domains)

	for _, domain := range domains {
		records := byDomain[domain]
		keys := DeriveKeys(doc.Keys[domain])
		if len(keys) == 0 {
			d.logger.Debug("no keys for domain", "domain", domain, "files", len(records))
			stats.NoKeys += len(records)
			continue
		}
		d.logger.Info("decrypting domain files", "domain", domain, "files", len(records), "keys", len(keys))

		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if prev, ok := doc.Decryptions[rec.URL]; ok && prev.Status == model.DecryptionSuccess {
				stats.Skipped++
				continue
			}
			if !strings.EqualFold(filepath.Ext(rec.LocalPath), ".csv") {
				stats.Skipped++
				continue
			}
			if _, err := os.Stat(rec.LocalPath); err != nil {
				d.logger.Warn("downloaded file missing", "path", rec.LocalPath, "error", err)
				stats.Skipped++
				continue
			}

			out := d.decryptFile(rec, keys)
			d.store.RecordDecryption(rec.URL, out)
			if out.Status == model.DecryptionSuccess {
				stats.Success++
			} else {
				stats.Failed++
			}
		}
	}

	d.logger.Info("decryption finished",
		"success", stats.Success,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"no_keys", stats.NoKeys,
	)
	return stats, nil
}

// decryptFile tries each key on the file and writes the first full
// decryption to the decrypted directory.
func (d *Decryptor) decryptFile(rec model.DownloadRecord, keys [][]byte) model.DecryptionRecord {
	result := model.DecryptionRecord{
		Status:    model.DecryptionFailed,
		Timestamp: d.now().UTC(),
	}

	data, err := os.ReadFile(rec.LocalPath)
	if err != nil {
		d.logger.Warn("cannot read download", "path", rec.LocalPath, "error", err)
		return result
	}

	for _, key := range keys {
		var buf bytes.Buffer
		if err := DecryptCSV(bytes.NewReader(data), &buf, key); err != nil {
			d.logger.Debug("key rejected", "path", rec.LocalPath, "error", err)
			continue
		}

		dst := filepath.Join(filepath.Dir(rec.LocalPath), DecryptedDir, filepath.Base(rec.LocalPath))
		if err := writeFile(dst, buf.Bytes()); err != nil {
			d.logger.Error("cannot write decrypted file", "path", dst, "error", err)
			return result
		}
		result.Status = model.DecryptionSuccess
		result.DecryptedPath = dst
		result.KeyHint = keyHint(key)
		d.logger.Info("file decrypted", "url", rec.URL, "path", dst)
		return result
	}

	d.logger.Warn("no key decrypts file", "url", rec.URL, "keys", len(keys))
	return result
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".decrypt-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Join(err, os.Remove(tmp.Name()))
	}
	return nil
}
