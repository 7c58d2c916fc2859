package update

import (
	"context"

	"github.com/vibecoder-lab/gamevault/internal/catalog"
	"github.com/vibecoder-lab/gamevault/internal/pricehistory"
	"github.com/vibecoder-lab/gamevault/internal/storefront"
)

// buildDealQuote assembles one currency's DealQuote, preferring the
// price-history deal's own price/regular/cut/storeLow fields (the values
// the diff-refresh comparison is run against) and falling back to the
// storefront price when price-history has nothing for this id. A game
// with neither source available yields an all-dash quote.
func buildDealQuote(price storefront.Price, deal *pricehistory.Deal) catalog.DealQuote {
	if deal != nil && (deal.PriceKnown || deal.RegularKnown) {
		dq := catalog.DealQuote{Cut: deal.Cut}
		if deal.PriceKnown {
			dq.Price = catalog.Price(deal.Price)
		} else {
			dq.Price = catalog.Dash
		}
		if deal.RegularKnown {
			dq.Regular = catalog.Price(deal.Regular)
		} else {
			dq.Regular = catalog.Dash
		}
		if deal.StoreLow != nil {
			dq.StoreLow = catalog.Price(*deal.StoreLow)
		} else {
			dq.StoreLow = catalog.Dash
		}
		return dq
	}

	if !price.Known {
		return catalog.DealQuote{
			Price: catalog.Dash, Regular: catalog.Dash, StoreLow: catalog.Dash,
			NoITADData: true,
		}
	}

	current := price.Price
	if price.SalePriceKnown {
		current = price.SalePrice
	}
	regular := price.Price
	cut := catalog.ComputeCut(regular, current)

	dq := catalog.DealQuote{
		Price:      catalog.Price(current),
		Regular:    catalog.Price(regular),
		Cut:        cut,
		StoreLow:   catalog.Dash,
		NoITADData: true,
	}
	if deal != nil && deal.StoreLow != nil {
		dq.StoreLow = catalog.Price(*deal.StoreLow)
		dq.NoITADData = false
	}
	return dq
}

// dealsByRegion maps region -> (history-id -> deal), one entry per target
// currency batch-fetched from price-history.
type dealsByRegion map[string]map[string]*pricehistory.Deal

func (d dealsByRegion) forRegion(region, historyID string) *pricehistory.Deal {
	if historyID == "" {
		return nil
	}
	byID, ok := d[region]
	if !ok {
		return nil
	}
	return byID[historyID]
}

// buildGameRecord assembles a full catalog record from a fetched
// storefront GameInfo, an optional history id, its fetched tags, and the
// batched price-history deals for every target region.
func buildGameRecord(appID, historyID string, info *storefront.GameInfo, regions []string, deals dealsByRegion, tags []string) catalog.GameRecord {
	deal := make(map[string]catalog.DealQuote, len(regions))
	for _, region := range regions {
		price := info.Prices[region]
		deal[region] = buildDealQuote(price, deals.forRegion(region, historyID))
	}

	return catalog.GameRecord{
		ID:                 appID,
		ITADID:             historyID,
		Title:              info.Title,
		StoreURL:           info.StoreURL,
		ImageURL:           info.ImageURL,
		ReleaseDate:        info.ReleaseDate,
		ReviewScore:        info.ReviewScore,
		Genres:             info.Genres,
		Tags:               tags,
		Developers:         info.Developers,
		Publishers:         info.Publishers,
		Platforms:          catalog.Platforms(info.Platforms),
		SupportedLanguages: info.SupportedLanguages,
		Deal:               deal,
	}
}

// fetchTags returns up to 3 tags for a history id, or nil when there is no
// history id or the lookup fails; tag-fetch failure is non-fatal.
func fetchTags(ctx context.Context, ph tagFetcher, historyID string) []string {
	if historyID == "" || ph == nil {
		return nil
	}
	tags, err := ph.FetchTags(ctx, historyID)
	if err != nil {
		return nil
	}
	return tags
}

type tagFetcher interface {
	FetchTags(ctx context.Context, historyID string) ([]string, error)
}
