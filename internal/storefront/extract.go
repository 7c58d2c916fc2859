package storefront

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// extractPrice ports the original price-extraction rules exactly:
// free games, and any price_overview whose final is 0, price at 0;
// otherwise price is the ceiling of initial when it is nonzero, else of
// final; a sale price is recorded only when initial > final > 0.
func extractPrice(d appDetails, currency string) Price {
	p := Price{Currency: currency}

	if d.IsFree {
		p.Price = 0
		p.Known = true
		return p
	}

	if d.PriceOverview == nil {
		return p
	}

	finalPrice := float64(d.PriceOverview.Final) / 100
	initialPrice := float64(d.PriceOverview.Initial) / 100

	if finalPrice == 0 {
		p.Price = 0
		p.Known = true
		return p
	}

	p.Known = true
	if initialPrice > 0 {
		p.Price = int(math.Ceil(initialPrice))
	} else {
		p.Price = int(math.Ceil(finalPrice))
	}

	if initialPrice > finalPrice && finalPrice > 0 {
		p.SalePrice = int(math.Ceil(finalPrice))
		p.SalePriceKnown = true
		p.DiscountPercent = d.PriceOverview.DiscountPercent
	}

	return p
}

func extractGenres(d appDetails) []string {
	var genres []string
	seen := make(map[string]bool)
	for _, g := range d.Genres {
		if g.Description == "" || seen[g.Description] {
			continue
		}
		seen[g.Description] = true
		genres = append(genres, g.Description)
	}
	if len(genres) == 0 {
		return []string{"Other"}
	}
	return genres
}

func extractPlatforms(d appDetails) Platforms {
	return Platforms{Windows: d.Platforms.Windows, Mac: d.Platforms.Mac, Linux: d.Platforms.Linux}
}

var (
	isoDateRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	jpDateRE  = regexp.MustCompile(`^(\d{4})年(\d{1,2})月(\d{1,2})日$`)

	englishDateLayouts = []string{
		"2 Jan, 2006",
		"2 January, 2006",
		"Jan 2, 2006",
		"January 2, 2006",
	}
)

// extractReleaseDate ports the original's format-detection chain: already
// ISO, then the Japanese "YYYY年M月D日" form, then a chain of English
// layouts. An unrecognized non-empty string is passed through unchanged,
// matching the original's final fallback.
func extractReleaseDate(d appDetails) string {
	dateStr := d.ReleaseDate.Date
	if dateStr == "" {
		return ""
	}

	if isoDateRE.MatchString(dateStr) {
		return dateStr
	}

	if m := jpDateRE.FindStringSubmatch(dateStr); m != nil {
		year := m[1]
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return fmt.Sprintf("%s-%02d-%02d", year, month, day)
	}

	for _, layout := range englishDateLayouts {
		if t, err := time.Parse(layout, dateStr); err == nil {
			return t.Format("2006-01-02")
		}
	}

	return dateStr
}

var capsuleImageRE = func(appID string) *regexp.Regexp {
	return regexp.MustCompile(`https://[^"']*?/apps/` + appID + `/[^"']*?capsule_616x353\.jpg[^"']*`)
}

// extractImageURL finds the capsule_616x353.jpg URL in the store page HTML,
// falling back to header_image when the scrape finds nothing.
func extractImageURL(html, appID, headerImage string) string {
	if m := capsuleImageRE(appID).FindString(html); m != "" {
		return m
	}
	return headerImage
}
