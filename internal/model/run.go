package model

import "time"

// StoreStats is a read-only snapshot of tracking store counters.
type StoreStats struct {
	TotalDownloads     int `json:"total_downloads"`
	CompletedDownloads int `json:"completed_downloads"`
	FailedDownloads    int `json:"failed_downloads"`
	TotalKeys          int `json:"total_keys"`
	DomainsSeen        int `json:"domains_seen"`
}

// Totals aggregates site reports of a run.
type Totals struct {
	Sites           int                 `json:"sites"`
	SitesAborted    int                 `json:"sites_aborted"`
	PagesFetched    int                 `json:"pages_fetched"`
	FilesDownloaded int                 `json:"files_downloaded"`
	FilesFailed     int                 `json:"files_failed"`
	DedupHits       int                 `json:"dedup_hits"`
	KeysFound       int                 `json:"keys_found"`
	BytesDownloaded int64               `json:"bytes_downloaded"`
	Failures        map[FailureKind]int `json:"failures"`
}

// FailureCount returns the number of failures across all kinds.
func (t Totals) FailureCount() int {
	n := 0
	for _, c := range t.Failures {
		n += c
	}
	return n
}

// RunReport is the final report of one crawl run.
type RunReport struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Sites      []SiteReport `json:"sites"`
	Totals     Totals       `json:"totals"`
	Store      StoreStats   `json:"store"`
}

// NewRunReport builds a run report and computes its totals.
func NewRunReport(runID string, started time.Time, sites []SiteReport, store StoreStats) *RunReport {
	r := &RunReport{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Sites:      sites,
		Store:      store,
	}
	r.Totals = ComputeTotals(sites)
	return r
}

// ComputeTotals sums the counters of every site report.
func ComputeTotals(sites []SiteReport) Totals {
	t := Totals{
		Sites:    len(sites),
		Failures: make(map[FailureKind]int),
	}
	for _, s := range sites {
		if s.State == SiteAborted {
			t.SitesAborted++
		}
		t.PagesFetched += s.PagesFetched
		t.FilesDownloaded += s.FilesDownloaded
		t.FilesFailed += s.FilesFailed
		t.DedupHits += s.DedupHits
		t.KeysFound += s.KeysFound
		t.BytesDownloaded += s.BytesDownloaded
		for kind, fs := range s.Failures {
			if len(fs) > 0 {
				t.Failures[kind] += len(fs)
			}
		}
	}
	return t
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
