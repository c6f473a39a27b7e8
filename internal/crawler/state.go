package crawler

// Phase is the position of a site in its crawl life cycle.
//
//	queued -> fetching <-> processing-links -> done | aborted
type Phase int

const (
	// PhaseQueued means the site waits for a crawl slot.
	PhaseQueued Phase = iota
	// PhaseFetching means page requests are being dispatched.
	PhaseFetching
	// PhaseProcessingLinks means a fetched page is being turned into new
	// targets, download batches and findings.
	PhaseProcessingLinks
	// PhaseDone is terminal. The site may still have partial failures.
	PhaseDone
	// PhaseAborted is terminal. The site could not be crawled at all.
	PhaseAborted
)

// String returns the phase name used in logs.
func (p Phase) String() string {
	switch p {
	case PhaseQueued:
		return "queued"
	case PhaseFetching:
		return "fetching"
	case PhaseProcessingLinks:
		return "processing-links"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseAborted
}
