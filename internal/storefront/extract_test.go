package storefront

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPrice_Free(t *testing.T) {
	p := extractPrice(appDetails{IsFree: true}, "JPY")
	assert.True(t, p.Known)
	assert.Equal(t, 0, p.Price)
}

func TestExtractPrice_NoOverview(t *testing.T) {
	p := extractPrice(appDetails{}, "JPY")
	assert.False(t, p.Known)
}

func TestExtractPrice_FullPriceNoSale(t *testing.T) {
	p := extractPrice(appDetails{PriceOverview: &priceOverview{Final: 1999, Initial: 1999}}, "USD")
	assert.True(t, p.Known)
	assert.Equal(t, 20, p.Price) // ceil(19.99)
	assert.False(t, p.SalePriceKnown)
}

func TestExtractPrice_OnSale(t *testing.T) {
	p := extractPrice(appDetails{PriceOverview: &priceOverview{Final: 999, Initial: 1999, DiscountPercent: 50}}, "USD")
	assert.True(t, p.Known)
	assert.Equal(t, 20, p.Price)
	assert.True(t, p.SalePriceKnown)
	assert.Equal(t, 10, p.SalePrice)
	assert.Equal(t, 50, p.DiscountPercent)
}

func TestExtractPrice_FinalZeroMeansFree(t *testing.T) {
	p := extractPrice(appDetails{PriceOverview: &priceOverview{Final: 0, Initial: 0}}, "USD")
	assert.True(t, p.Known)
	assert.Equal(t, 0, p.Price)
}

func TestExtractGenres_DefaultsToOther(t *testing.T) {
	assert.Equal(t, []string{"Other"}, extractGenres(appDetails{}))
}

func TestExtractGenres_Dedupes(t *testing.T) {
	g := extractGenres(appDetails{Genres: []genreEntry{{Description: "Action"}, {Description: "Action"}, {Description: "RPG"}}})
	assert.Equal(t, []string{"Action", "RPG"}, g)
}

func TestExtractReleaseDate_ISO(t *testing.T) {
	d := extractReleaseDate(appDetails{ReleaseDate: releaseDateRaw{Date: "2023-01-15"}})
	assert.Equal(t, "2023-01-15", d)
}

func TestExtractReleaseDate_Japanese(t *testing.T) {
	d := extractReleaseDate(appDetails{ReleaseDate: releaseDateRaw{Date: "2023年1月15日"}})
	assert.Equal(t, "2023-01-15", d)
}

func TestExtractReleaseDate_English(t *testing.T) {
	d := extractReleaseDate(appDetails{ReleaseDate: releaseDateRaw{Date: "15 Jan, 2023"}})
	assert.Equal(t, "2023-01-15", d)
}

func TestExtractReleaseDate_Unparseable(t *testing.T) {
	d := extractReleaseDate(appDetails{ReleaseDate: releaseDateRaw{Date: "coming soon"}})
	assert.Equal(t, "coming soon", d)
}

func TestExtractImageURL_FallsBackToHeaderImage(t *testing.T) {
	url := extractImageURL("<html>no match here</html>", "620", "https://example.com/header.jpg")
	assert.Equal(t, "https://example.com/header.jpg", url)
}

func TestExtractImageURL_FindsCapsule(t *testing.T) {
	html := `<img src="https://cdn.example.com/apps/620/abc_capsule_616x353.jpg?t=1">`
	url := extractImageURL(html, "620", "https://fallback.jpg")
	assert.Contains(t, url, "capsule_616x353.jpg")
}
