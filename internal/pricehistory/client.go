package pricehistory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/vibecoder-lab/gamevault/internal/config"
)

const defaultBaseURL = "https://api.isthereanydeal.com"

const defaultChunkSize = 200

// Client fetches id lookups, batched price/deal data, and tags from the
// price-history API. Rate limiting, circuit breaking, and 429/403
// handling all live in the http.Client's transport (internal/httpclient);
// this client only shapes requests and parses responses.
type Client struct {
	http    *http.Client
	apiKey  string
	baseURL string // overridable for tests
}

func New(httpClient *http.Client, apiKey string) *Client {
	return &Client{http: httpClient, apiKey: apiKey, baseURL: defaultBaseURL}
}

// SetBaseURL overrides the price-history host, for tests and alternate
// environments.
func (c *Client) SetBaseURL(baseURL string) { c.baseURL = baseURL }

// LookupID resolves a storefront app id to its price-history id. A game
// the upstream doesn't know about returns ("", nil), not an error.
func (c *Client) LookupID(ctx context.Context, appID string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("pricehistory: no API key configured")
	}

	u := fmt.Sprintf("%s/games/lookup/v1?key=%s&appid=%s", c.baseURL, url.QueryEscape(c.apiKey), url.QueryEscape(appID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("pricehistory: decode lookup for %s: %w", appID, err)
	}
	if !out.Found || out.Game.ID == "" {
		return "", nil
	}
	return out.Game.ID, nil
}

// BatchDeals fetches the Steam-shop deal (current price, regular price,
// discount percent, all-time low) for each id, chunking requests above
// chunkSize (a chunkSize <= 0 uses the default of 200). When the ids span
// more than one chunk, a chunk that fails entirely marks every id in it
// unresolved (nil) rather than aborting the whole batch; other chunks still
// complete. When they fit in one chunk, that request's failure is returned
// as an error.
func (c *Client) BatchDeals(ctx context.Context, ids []string, region string, regions map[string]config.Region, chunkSize int) (map[string]*Deal, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("pricehistory: no API key configured")
	}
	regionCfg, ok := regions[region]
	if !ok {
		return nil, fmt.Errorf("pricehistory: unknown region %q", region)
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	result := make(map[string]*Deal, len(ids))
	if len(ids) <= chunkSize {
		chunk, err := c.fetchDealsBatch(ctx, ids, regionCfg.ITADCountry, regionCfg.Currency)
		if err != nil {
			return nil, err
		}
		for k, v := range chunk {
			result[k] = v
		}
		return result, nil
	}

	for i := 0; i < len(ids); i += chunkSize {
		end := i + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]
		deals, err := c.fetchDealsBatch(ctx, chunk, regionCfg.ITADCountry, regionCfg.Currency)
		if err != nil {
			log.Warn().Err(err).Int("chunk_size", len(chunk)).Msg("pricehistory: chunk failed, marking ids unresolved")
			for _, id := range chunk {
				result[id] = nil
			}
			continue
		}
		for k, v := range deals {
			result[k] = v
		}
	}
	return result, nil
}

func (c *Client) fetchDealsBatch(ctx context.Context, ids []string, country, expectedCurrency string) (map[string]*Deal, error) {
	u := fmt.Sprintf("%s/games/prices/v3?key=%s&country=%s", c.baseURL, url.QueryEscape(c.apiKey), url.QueryEscape(country))

	body, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var entries []pricesEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("pricehistory: decode batch prices: %w", err)
	}

	result := make(map[string]*Deal, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}
		result[entry.ID] = extractSteamDeal(entry, expectedCurrency)
	}
	return result, nil
}

// extractSteamDeal finds the Steam (shop id 61) deal entry and converts
// its price/regular/cut/storeLow fields. A currency mismatch against the
// requested region is logged but not treated as a failure, matching the
// upstream's own tolerance for it.
func extractSteamDeal(entry pricesEntry, expectedCurrency string) *Deal {
	for _, raw := range entry.Deals {
		if raw.Shop.ID != steamShopID {
			continue
		}

		deal := &Deal{Cut: raw.Cut}

		if raw.Price != nil && raw.Price.Amount > 0 {
			checkCurrency(entry.ID, raw.Price.Currency, expectedCurrency)
			deal.Price = int(raw.Price.Amount)
			deal.PriceKnown = true
		}
		if raw.Regular != nil && raw.Regular.Amount > 0 {
			checkCurrency(entry.ID, raw.Regular.Currency, expectedCurrency)
			deal.Regular = int(raw.Regular.Amount)
			deal.RegularKnown = true
		}
		if raw.StoreLow != nil && raw.StoreLow.Amount > 0 {
			checkCurrency(entry.ID, raw.StoreLow.Currency, expectedCurrency)
			low := int(raw.StoreLow.Amount)
			deal.StoreLow = &low
		}

		if !deal.PriceKnown && !deal.RegularKnown && deal.StoreLow == nil {
			return nil
		}
		return deal
	}
	return nil
}

func checkCurrency(id, got, expected string) {
	if got != "" && got != expected {
		log.Warn().Str("expected", expected).Str("got", got).Str("id", id).Msg("pricehistory: currency mismatch")
	}
}

// GetHistoricalLow fetches the store-low price for a single id.
func (c *Client) GetHistoricalLow(ctx context.Context, id, region string, regions map[string]config.Region) (*int, error) {
	deals, err := c.BatchDeals(ctx, []string{id}, region, regions, defaultChunkSize)
	if err != nil {
		return nil, err
	}
	if d := deals[id]; d != nil {
		return d.StoreLow, nil
	}
	return nil, nil
}

// FetchTags returns up to 3 tags for a price-history id. Failure here is
// expected to be treated as non-fatal by callers: an empty slice plus an
// error just means the tags field stays empty.
func (c *Client) FetchTags(ctx context.Context, historyID string) ([]string, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("pricehistory: no API key configured")
	}

	u := fmt.Sprintf("%s/games/info/v2?key=%s&id=%s", c.baseURL, url.QueryEscape(c.apiKey), url.QueryEscape(historyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("pricehistory: decode tags for %s: %w", historyID, err)
	}
	if len(out.Tags) > 3 {
		out.Tags = out.Tags[:3]
	}
	return out.Tags, nil
}
