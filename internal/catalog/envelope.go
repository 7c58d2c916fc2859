package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const dataVersion = 1

// NewEnvelope wraps games in a fresh envelope. lastUpdated is preserved by
// the caller across append-mode runs; diff-refresh runs always pass now.
func NewEnvelope(games []GameRecord, source string, lastUpdated time.Time) Envelope {
	return Envelope{
		Meta: Meta{
			LastUpdated: lastUpdated.UTC().Format(time.RFC3339),
			DataVersion: dataVersion,
			Source:      source,
			BuildID:     uuid.NewString(),
			RecordCount: len(games),
		},
		Games: games,
	}
}

// Validate checks the invariants that must hold for any persisted catalog:
// unique ids, bounded tag count, and a sane Cut/Price/Regular relationship
// for every known deal quote.
func Validate(env Envelope) error {
	seen := make(map[string]struct{}, len(env.Games))
	for _, g := range env.Games {
		if _, dup := seen[g.ID]; dup {
			return fmt.Errorf("catalog: duplicate id %q", g.ID)
		}
		seen[g.ID] = struct{}{}

		if len(g.Tags) > 3 {
			return fmt.Errorf("catalog: id %q has %d tags, max 3", g.ID, len(g.Tags))
		}

		for currency, deal := range g.Deal {
			if err := validateDeal(g.ID, currency, deal); err != nil {
				return err
			}
		}
	}
	if env.Meta.RecordCount != len(env.Games) {
		return fmt.Errorf("catalog: record_count %d does not match %d games", env.Meta.RecordCount, len(env.Games))
	}
	return nil
}

func validateDeal(id, currency string, d DealQuote) error {
	if d.Cut < 0 || d.Cut > 100 {
		return fmt.Errorf("catalog: id %q currency %q cut %d out of [0,100]", id, currency, d.Cut)
	}
	if d.NoITADData && d.StoreLow.Known {
		return fmt.Errorf("catalog: id %q currency %q noItadData but storeLow is known", id, currency)
	}
	if d.Price.Known && d.Regular.Known {
		if d.Price.Value == d.Regular.Value && d.Cut != 0 {
			return fmt.Errorf("catalog: id %q currency %q price==regular but cut=%d", id, currency, d.Cut)
		}
		if d.Price.Value != d.Regular.Value && d.Cut == 0 {
			return fmt.Errorf("catalog: id %q currency %q price!=regular but cut=0", id, currency)
		}
	}
	return nil
}

// ComputeCut derives the discount percentage from regular and sale price,
// matching the storefront's own rounding (round half away from zero).
func ComputeCut(regular, price int) int {
	if regular <= 0 {
		return 0
	}
	pct := float64(regular-price) / float64(regular) * 100
	if pct < 0 {
		pct = 0
	}
	return int(pct + 0.5)
}
