package usecase

import "fmt"

// SourceError is a transient failure of a single source. The source is
// skipped and the run continues.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e SourceError) Unwrap() error { return e.Err }

// EnrichmentError is a per-item or per-batch enrichment failure. Transient
// errors are retried by the adapter before surfacing here; permanent ones are
// never retried. Either way the affected items are dropped, not the run.
type EnrichmentError struct {
	Permanent bool
	Err       error
}

func (e EnrichmentError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("enrichment (%s): %v", kind, e.Err)
}

func (e EnrichmentError) Unwrap() error { return e.Err }

// StoreError means the destination store is unusable. It is fatal: the run
// stops after the last committed batch and attempts no further writes.
type StoreError struct {
	Err error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("destination store: %v", e.Err)
}

func (e StoreError) Unwrap() error { return e.Err }
