package model

import "time"

// TrackingDocument is the full persisted state of the tracking store.
//
// The document is loaded once at process start and written back as a whole
// on every flush. Only the tracking store mutates it; every other reader gets
// a deep copy from Clone.
type TrackingDocument struct {
	// Downloads is the ordered, append-only list of download records.
	Downloads []DownloadRecord `json:"downloads"`

	// Keys maps a domain to the ordered findings recorded for it.
	Keys map[string][]KeyFinding `json:"keys"`

	// Session holds bookkeeping about the runs that touched the document.
	Session SessionStats `json:"session"`

	// Decryptions maps a download URL to the outcome of decrypting that file.
	Decryptions map[string]DecryptionRecord `json:"decryptions,omitempty"`
}

// SessionStats is run bookkeeping stored alongside the tracking data.
type SessionStats struct {
	// Runs counts crawl runs that opened this document.
	Runs int `json:"runs"`

	// LastRunID is the identifier of the most recent run.
	LastRunID string `json:"last_run_id,omitempty"`

	// LastFlush is the time of the last successful flush.
	LastFlush time.Time `json:"last_flush,omitzero"`
}

// DecryptionStatus is the outcome of decrypting a downloaded file.
type DecryptionStatus string

const (
	// DecryptionSuccess means one of the domain keys decrypted the file.
	DecryptionSuccess DecryptionStatus = "success"

	// DecryptionFailed means every candidate key failed.
	DecryptionFailed DecryptionStatus = "failed"
)

// DecryptionRecord describes the result of decrypting one downloaded file.
type DecryptionRecord struct {
	Status        DecryptionStatus `json:"status"`
	DecryptedPath string           `json:"decrypted_path,omitempty"`
	// KeyHint is the first two characters of the key that worked.
	KeyHint   string    `json:"key_hint,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTrackingDocument returns an empty document with initialized collections.
func NewTrackingDocument() *TrackingDocument {
	return &TrackingDocument{
		Downloads:   make([]DownloadRecord, 0),
		Keys:        make(map[string][]KeyFinding),
		Decryptions: make(map[string]DecryptionRecord),
	}
}

// Normalize replaces nil collections with empty ones and restores the Domain
// field of every finding from its map key.
func (d *TrackingDocument) Normalize() {
	if d.Downloads == nil {
		d.Downloads = make([]DownloadRecord, 0)
	}
	if d.Keys == nil {
		d.Keys = make(map[string][]KeyFinding)
	}
	if d.Decryptions == nil {
		d.Decryptions = make(map[string]DecryptionRecord)
	}
	for domain, findings := range d.Keys {
		for i := range findings {
			findings[i].Domain = domain
		}
	}
}

// Clone returns a deep copy of the document.
func (d *TrackingDocument) Clone() TrackingDocument {
	out := TrackingDocument{
		Downloads:   make([]DownloadRecord, len(d.Downloads)),
		Keys:        make(map[string][]KeyFinding, len(d.Keys)),
		Session:     d.Session,
		Decryptions: make(map[string]DecryptionRecord, len(d.Decryptions)),
	}
	copy(out.Downloads, d.Downloads)
	for domain, findings := range d.Keys {
		cp := make([]KeyFinding, len(findings))
		copy(cp, findings)
		out.Keys[domain] = cp
	}
	for url, rec := range d.Decryptions {
		out.Decryptions[url] = rec
	}
	return out
}

// DownloadsForDomain returns the download records of one domain in insertion order.
func (d *TrackingDocument) DownloadsForDomain(domain string) []DownloadRecord {
	out := make([]DownloadRecord, 0)
	for _, rec := range d.Downloads {
		if rec.Domain == domain {
			out = append(out, rec)
		}
	}
	return out
}
