package update

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vibecoder-lab/gamevault/internal/catalog"
)

// primaryComparisonRegion is the deal key (a region code) Phase 1 diffs
// against. Every record carries it (the JP entry is always present), so it is the single source
// of truth for "did this id change" regardless of how many regions the
// run additionally tracks.
const primaryComparisonRegion = "JP"

// Refresh runs the diff-refresh pipeline: batch-compare stored price-history
// state, fall back to a storefront compare for noItadData records, rebuild
// only what changed, and persist the merged catalog in original order with
// a fresh last_updated.
func Refresh(ctx context.Context, deps Deps, regions []string) (Report, error) {
	cfg := deps.Config

	idMap, err := deps.Persistence.GetIDMap(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("update: load id-map: %w", err)
	}
	env, err := deps.Persistence.GetGamesData(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("update: load games data: %w", err)
	}

	byID := make(map[string]catalog.GameRecord, len(env.Games))
	for _, g := range env.Games {
		byID[g.ID] = g
	}
	historyIDByApp := make(map[string]string, len(idMap))
	for _, e := range idMap {
		if e.ITADID != "" {
			historyIDByApp[e.ID] = e.ITADID
		}
	}

	// Phase 1: batch-fetch price-history deals for every id whose primary
	// region isn't already noItadData (those bypass price-history entirely
	// and are handled in Phase 1.5 instead).
	var historyIDs []string
	for _, e := range idMap {
		g, ok := byID[e.ID]
		if !ok || e.ITADID == "" {
			continue
		}
		if primary, ok := g.Deal[primaryComparisonRegion]; ok && primary.NoITADData {
			continue
		}
		historyIDs = append(historyIDs, e.ITADID)
	}

	deals := dealsByRegion{}
	if len(historyIDs) > 0 {
		for _, region := range regions {
			batch, err := deps.PriceHistory.BatchDeals(ctx, historyIDs, region, cfg.Regions, 0)
			if err != nil {
				return Report{}, fmt.Errorf("update: batch price-history fetch (%s): %w", region, err)
			}
			if len(batch) == 0 {
				return Report{}, fmt.Errorf("%w: %d ids in batch", ErrEmptyBatch, len(historyIDs))
			}
			deals[region] = batch
		}
	}

	toUpdate := make(map[string]bool)
	for _, e := range idMap {
		g, ok := byID[e.ID]
		if !ok {
			continue
		}
		primary, hasPrimary := g.Deal[primaryComparisonRegion]
		if hasPrimary && primary.NoITADData {
			continue // Phase 1.5 decides these
		}
		if e.ITADID == "" {
			toUpdate[e.ID] = true
			continue
		}
		deal := deals.forRegion(primaryComparisonRegion, e.ITADID)
		if deal == nil || (!deal.PriceKnown && deal.StoreLow == nil) {
			toUpdate[e.ID] = true // no usable data, refetch and synthesize noItadData
			continue
		}
		if !hasPrimary || !primary.Price.Known {
			toUpdate[e.ID] = true
			continue
		}
		if deal.PriceKnown && deal.Price != primary.Price.Value {
			toUpdate[e.ID] = true
			continue
		}
		if deal.Cut != primary.Cut {
			toUpdate[e.ID] = true
		}
	}

	// Phase 1.5: storefront current-price compare for noItadData records,
	// one fetch per noItadData region so a US-only noItadData record is
	// compared against the US storefront response, never JP's.
	for _, e := range idMap {
		g, ok := byID[e.ID]
		if !ok {
			continue
		}
		for _, region := range regions {
			dq, present := g.Deal[region]
			if !present || !dq.NoITADData {
				continue
			}
			info, err := deps.Storefront.GetBasicInfo(ctx, e.ID, region)
			if err != nil || info == nil {
				continue // non-fatal: record stays as-is this run
			}
			price, ok := info.Prices[region]
			if !ok || !price.Known {
				continue
			}
			current := price.Price
			if price.SalePriceKnown {
				current = price.SalePrice
			}
			if !dq.Price.Known || current != dq.Price.Value {
				toUpdate[e.ID] = true
			}
		}
	}

	report := Report{AppendMode: false}
	source := env.Meta.Source
	if source == "" {
		source = "gamevault-updater"
	}

	if len(toUpdate) == 0 {
		newEnv := catalog.NewEnvelope(env.Games, source, time.Now())
		if err := deps.Persistence.PutGamesData(ctx, newEnv); err != nil {
			return Report{}, fmt.Errorf("update: persist games data: %w", err)
		}
		return report, nil
	}

	// Phase 2: rebuild every marked id.
	rebuilt := make(map[string]catalog.GameRecord, len(toUpdate))
	var failed []FailedGame
	for id := range toUpdate {
		historyID := historyIDByApp[id]
		info, err := deps.Storefront.GetGameInfo(ctx, id, regions)
		if err != nil {
			failed = append(failed, FailedGame{AppID: id, Reason: err.Error()})
			continue
		}
		if info == nil {
			failed = append(failed, FailedGame{AppID: id, Reason: "not found"})
			continue
		}
		tags := fetchTags(ctx, deps.PriceHistory, historyID)
		rebuilt[id] = buildGameRecord(id, historyID, info, regions, deals, tags)
	}

	report.FailedGames = failed
	report.UpdatedCount = len(rebuilt)

	if len(failed) > 0 {
		report.Aborted = true
		report.AbortReason = fmt.Sprintf("%d storefront fetch(es) failed in phase 2", len(failed))
		return report, nil
	}

	// Phase 3: merge in original catalog order.
	finalGames := make([]catalog.GameRecord, len(env.Games))
	for i, g := range env.Games {
		if nr, ok := rebuilt[g.ID]; ok {
			finalGames[i] = nr
		} else {
			finalGames[i] = g
		}
	}

	if err := deps.Persistence.Backup(ctx, env); err != nil {
		log.Warn().Err(err).Msg("update: backup of previous catalog failed")
	}
	newEnv := catalog.NewEnvelope(finalGames, source, time.Now())
	if err := deps.Persistence.PutGamesData(ctx, newEnv); err != nil {
		return Report{}, fmt.Errorf("update: persist games data: %w", err)
	}

	return report, nil
}
