// Package persistence stores the id-map and catalog under one of two
// interchangeable backends: a local filesystem mirror, or a remote
// namespaced key-value store. Both keep the same two logical keys,
// "id-map" and "games-data", plus timestamped backups of the catalog.
package persistence

import (
	"context"

	"github.com/vibecoder-lab/gamevault/internal/catalog"
)

// Adapter is the storage backend the updater writes through. Reads must
// tolerate a missing id-map/catalog (first run) by returning an empty
// value, not an error.
type Adapter interface {
	GetIDMap(ctx context.Context) ([]catalog.IDMapEntry, error)
	PutIDMap(ctx context.Context, idMap []catalog.IDMapEntry) error
	GetGamesData(ctx context.Context) (catalog.Envelope, error)
	PutGamesData(ctx context.Context, env catalog.Envelope) error
	Backup(ctx context.Context, env catalog.Envelope) error
}
