package update

import "errors"

// ErrEmptyBatch is returned when a price-history batch call returns zero
// entries for a non-empty id list. The run aborts before any persistence
// write; checkpoints and the resolver TSV survive for the next attempt.
var ErrEmptyBatch = errors.New("update: price-history batch returned no entries for non-empty input")
