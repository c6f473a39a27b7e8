package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/onionharvest/internal/config"
	"github.com/nao1215/onionharvest/internal/model"
	"github.com/nao1215/onionharvest/internal/tracker"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show what the tracking document holds",
		Long: `Stats prints download and key counters of the tracking document, per domain
and in total. The document is only read.`,
		Args: cobra.NoArgs,
		RunE: runStatsCmd,
	}

	cmd.Flags().StringP("tracking", "f", config.DefaultTrackingFile,
		"Tracking document of downloads and findings")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")

	return cmd
}

// domainStats summarizes the downloads and keys of one domain.
type domainStats struct {
	Domain       string    `json:"domain"`
	Completed    int       `json:"completed"`
	Failed       int       `json:"failed"`
	Bytes        int64     `json:"bytes"`
	Keys         int       `json:"keys"`
	Decrypted    int       `json:"decrypted"`
	LastDownload time.Time `json:"last_download,omitzero"`
}

// trackingStats is the output of the stats command.
type trackingStats struct {
	Store     model.StoreStats `json:"store"`
	Bytes     int64            `json:"bytes"`
	Runs      int              `json:"runs"`
	LastRunID string           `json:"last_run_id,omitempty"`
	LastFlush time.Time        `json:"last_flush,omitzero"`
	Domains   []domainStats    `json:"domains"`
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	trackingPath, err := cmd.Flags().GetString("tracking")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	// Open never writes; the store is not closed so the file stays untouched.
	store, err := tracker.Open(trackingPath, tracker.WithLogger(newLogger(cmd, getVerboseFlag(cmd), false)))
	if err != nil {
		return fmt.Errorf("failed to open tracking document: %w", err)
	}

	stats := collectStats(store.Stats(), store.Snapshot())
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	writeStats(out, trackingPath, stats)
	return nil
}

func collectStats(st model.StoreStats, doc model.TrackingDocument) trackingStats {
	byDomain := make(map[string]*domainStats)
	get := func(domain string) *domainStats {
		d, ok := byDomain[domain]
		if !ok {
			d = &domainStats{Domain: domain}
			byDomain[domain] = d
		}
		return d
	}

	var total int64
	for _, rec := range doc.Downloads {
		d := get(rec.Domain)
		if !rec.Completed() {
			d.Failed++
			continue
		}
		d.Completed++
		d.Bytes += rec.Size
		total += rec.Size
		if rec.Timestamp.After(d.LastDownload) {
			d.LastDownload = rec.Timestamp
		}
		if dec, ok := doc.Decryptions[rec.URL]; ok && dec.Status == model.DecryptionSuccess {
			d.Decrypted++
		}
	}
	for domain, findings := range doc.Keys {
		get(domain).Keys += len(findings)
	}

	domains := make([]domainStats, 0, len(byDomain))
	for _, name := range slices.Sorted(maps.Keys(byDomain)) {
		domains = append(domains, *byDomain[name])
	}
	return trackingStats{
		Store:     st,
		Bytes:     total,
		Runs:      doc.Session.Runs,
		LastRunID: doc.Session.LastRunID,
		LastFlush: doc.Session.LastFlush,
		Domains:   domains,
	}
}

func writeStats(w io.Writer, path string, s trackingStats) {
	fmt.Fprintf(w, "Tracking document: %s\n", path)
	if s.Runs > 0 {
		fmt.Fprintf(w, "Runs:              %d (last %s)\n", s.Runs, s.LastRunID)
	}
	if !s.LastFlush.IsZero() {
		fmt.Fprintf(w, "Last saved:        %s\n", humanize.Time(s.LastFlush))
	}
	fmt.Fprintf(w, "Downloads:         %s completed, %s failed (%s)\n",
		humanize.Comma(int64(s.Store.CompletedDownloads)),
		humanize.Comma(int64(s.Store.FailedDownloads)),
		humanize.Bytes(uint64(max(s.Bytes, 0))))
	fmt.Fprintf(w, "Keys:              %d across %d domains\n", s.Store.TotalKeys, s.Store.DomainsSeen)

	if len(s.Domains) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tFILES\tFAILED\tSIZE\tKEYS\tDECRYPTED\tLAST DOWNLOAD")
	for _, d := range s.Domains {
		last := "-"
		if !d.LastDownload.IsZero() {
			last = humanize.Time(d.LastDownload)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%d\t%s\n",
			d.Domain, d.Completed, d.Failed, humanize.Bytes(uint64(max(d.Bytes, 0))), d.Keys, d.Decrypted, last)
	}
	_ = tw.Flush()
}
