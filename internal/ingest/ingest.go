// Package ingest feeds files uploaded outside the mailbox into the same
// per-attachment pipeline the scan uses.
package ingest

import (
	"context"

	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/scan"
)

// Result is the per-file ingest outcome.
type Result struct {
	Path    string
	Key     entity.InvoiceKey
	HashHex string
	Outcome scan.Outcome
	Invoice *entity.Invoice
	Errors  []string
	Err     string
}

func (r Result) Deduplicated() bool { return r.Outcome == scan.OutcomeDuplicate }

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Skipped      uint32
	Failed       uint32
}

// Ingestor is the behavior the server and watcher depend on.
type Ingestor interface {
	IngestFile(ctx context.Context, userID, path string) (Result, error)
	IngestDir(ctx context.Context, userID, root string, skipHidden bool) ([]Result, DirStats, error)
}
