// Package update implements the two catalog update modes: append (resolve
// new titles and add their records) and diff-refresh (compare upstream
// price-history and storefront state against the stored catalog and
// rebuild only what changed).
package update

import (
	"github.com/vibecoder-lab/gamevault/internal/config"
	"github.com/vibecoder-lab/gamevault/internal/persistence"
	"github.com/vibecoder-lab/gamevault/internal/pricehistory"
	"github.com/vibecoder-lab/gamevault/internal/storefront"
)

// Deps bundles the collaborators every update mode needs. Each client
// already carries its own rate-controlled http.Client; this package only
// orchestrates calls, it holds no transport state of its own.
type Deps struct {
	Storefront   *storefront.Client
	PriceHistory *pricehistory.Client
	Persistence  persistence.Adapter
	Config       *config.Config
	BatchDir     string // root for lock file + checkpoint shards, default "data/batch"
}

func (d Deps) batchDir() string {
	if d.BatchDir == "" {
		return "data/batch"
	}
	return d.BatchDir
}

// FailedGame records a per-id storefront failure. Any such failure blocks
// the catalog write, both in append and in diff-refresh Phase 2.
type FailedGame struct {
	AppID  string
	Reason string
}

// NewMapping is one accepted (app-id, history-id, title) triple produced by
// resolving the title file, handed to Append by the caller.
type NewMapping struct {
	AppID     string
	HistoryID string
	Title     string
}

// NewEntry records one record newly added to the catalog.
type NewEntry struct {
	AppID string
	Title string
}

// Report summarizes one update run.
type Report struct {
	AppendMode   bool
	RebuiltCount int
	UpdatedCount int
	FailedGames  []FailedGame
	MissingData  []string
	NewlyAdded   []NewEntry
	Aborted      bool
	AbortReason  string
}
