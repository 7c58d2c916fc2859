package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/vibecoder-lab/gamevault/internal/config"
)

const defaultBaseURL = "https://store.steampowered.com"

// Client fetches product data from the storefront API. One Client serves
// all regions; region-specific country codes come from the config region
// table passed to each call.
type Client struct {
	http    *http.Client
	regions map[string]config.Region
	baseURL string // overridable for tests
}

func New(httpClient *http.Client, regions map[string]config.Region) *Client {
	return &Client{http: httpClient, regions: regions, baseURL: defaultBaseURL}
}

// SetBaseURL overrides the storefront host, for tests and alternate
// environments.
func (c *Client) SetBaseURL(baseURL string) { c.baseURL = baseURL }

func (c *Client) fetchAppDetails(ctx context.Context, appID, steamCC string) (appDetails, bool, error) {
	u := fmt.Sprintf("%s/api/appdetails?appids=%s&l=english&cc=%s", c.baseURL, url.QueryEscape(appID), url.QueryEscape(steamCC))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return appDetails{}, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return appDetails{}, false, err
	}
	defer resp.Body.Close()

	var env appDetailsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return appDetails{}, false, fmt.Errorf("storefront: decode appdetails for %s: %w", appID, err)
	}

	entry, ok := env[appID]
	if !ok || !entry.Success {
		return appDetails{}, false, nil
	}
	return entry.Data, true, nil
}

// GetBasicInfo fetches only appdetails, for the diff-refresh current-price
// comparison path.
func (c *Client) GetBasicInfo(ctx context.Context, appID, region string) (*BasicInfo, error) {
	regionCfg, ok := c.regions[region]
	if !ok {
		return nil, fmt.Errorf("storefront: unknown region %q", region)
	}

	data, found, err := c.fetchAppDetails(ctx, appID, regionCfg.SteamCC)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	price := extractPrice(data, regionCfg.Currency)
	prices := map[string]Price{}
	if price.Known {
		prices[region] = price
	}

	return &BasicInfo{
		Title:              valueOr(data.Name, "Unknown"),
		Genres:             extractGenres(data),
		SupportedLanguages: data.SupportedLanguages,
		Platforms:          extractPlatforms(data),
		Developers:         data.Developers,
		Publishers:         data.Publishers,
		ReleaseDate:        extractReleaseDate(data),
		Prices:             prices,
	}, nil
}

// GetGameInfo fetches the full product record: appdetails for the first
// region (synchronously, since later steps need its data), then the store
// page image, the review summary, and any additional regions' prices
// concurrently.
func (c *Client) GetGameInfo(ctx context.Context, appID string, regions []string) (*GameInfo, error) {
	if len(regions) == 0 {
		regions = []string{"JP"}
	}
	firstRegion := regions[0]
	firstCfg, ok := c.regions[firstRegion]
	if !ok {
		return nil, fmt.Errorf("storefront: unknown region %q", firstRegion)
	}

	data, found, err := c.fetchAppDetails(ctx, appID, firstCfg.SteamCC)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	result := &GameInfo{
		Title:              valueOr(data.Name, "Unknown"),
		AppID:              appID,
		StoreURL:           fmt.Sprintf("%s/app/%s/", c.baseURL, appID),
		SupportedLanguages: data.SupportedLanguages,
		Genres:             extractGenres(data),
		Platforms:          extractPlatforms(data),
		Developers:         data.Developers,
		Publishers:         data.Publishers,
		ReleaseDate:        valueOr(extractReleaseDate(data), "-"),
		Prices:             map[string]Price{},
		ImageURL:           "-",
		ReviewScore:        "-",
	}

	if price := extractPrice(data, firstCfg.Currency); price.Known {
		result.Prices[firstRegion] = price
	}

	g, gctx := errgroup.WithContext(ctx)
	var imageURL, reviewScore string
	additional := make([]Price, len(regions)-1)
	additionalOK := make([]bool, len(regions)-1)

	g.Go(func() error {
		imageURL = c.fetchImageURL(gctx, appID, data.HeaderImage)
		return nil
	})
	g.Go(func() error {
		reviewScore = c.fetchReviewScore(gctx, appID)
		return nil
	})
	for i, region := range regions[1:] {
		i, region := i, region
		g.Go(func() error {
			regionCfg, ok := c.regions[region]
			if !ok {
				return nil
			}
			d, found, err := c.fetchAppDetails(gctx, appID, regionCfg.SteamCC)
			if err != nil || !found {
				return nil // additional-region price failures are non-fatal
			}
			if p := extractPrice(d, regionCfg.Currency); p.Known {
				additional[i] = p
				additionalOK[i] = true
			}
			return nil
		})
	}

	_ = g.Wait() // no task returns a real error; failures degrade individual fields

	if imageURL != "" {
		result.ImageURL = imageURL
	}
	if reviewScore != "" {
		result.ReviewScore = reviewScore
	}
	for i, region := range regions[1:] {
		if additionalOK[i] {
			result.Prices[region] = additional[i]
		}
	}

	return result, nil
}

func (c *Client) fetchImageURL(ctx context.Context, appID, headerImage string) string {
	storeURL := fmt.Sprintf("%s/app/%s/", c.baseURL, appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, storeURL, nil)
	if err != nil {
		return headerImage
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return headerImage
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return headerImage
	}
	return extractImageURL(string(body), appID, headerImage)
}

func (c *Client) fetchReviewScore(ctx context.Context, appID string) string {
	reviewURL := fmt.Sprintf("%s/appreviews/%s?json=1", c.baseURL, appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reviewURL, nil)
	if err != nil {
		return ""
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var out reviewsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ""
	}
	return out.QuerySummary.ReviewScoreDesc
}

// AppListEntry is one row of the full app list used by the title resolver.
type AppListEntry struct {
	AppID int    `json:"appid"`
	Name  string `json:"name"`
}

type appListResponse struct {
	AppList struct {
		Apps []AppListEntry `json:"apps"`
	} `json:"applist"`
}

// GetAppList fetches the full Steam app-id/title list.
func (c *Client) GetAppList(ctx context.Context) ([]AppListEntry, error) {
	u := c.baseURL + "/ISteamApps/GetAppList/v2/"
	// The app list lives on a different host than the storefront API in
	// the live service (api.steampowered.com); the base URL is
	// parameterized the same way so a config override can redirect it.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out appListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("storefront: decode app list: %w", err)
	}
	return out.AppList.Apps, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// appIDString is a convenience used by callers holding a numeric app id.
func appIDString(id int) string { return strconv.Itoa(id) }
