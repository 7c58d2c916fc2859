package resolver

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/vibecoder-lab/gamevault/internal/config"
	"github.com/vibecoder-lab/gamevault/internal/storefront"
)

// shouldExclude reports whether a candidate name should be skipped: any
// EXCLUDE_KEYWORDS hit disqualifies it unless a KEEP_EDITIONS token is
// also present. Both lists are matched case-insensitively.
func shouldExclude(name string, cfg config.ResolverConfig) bool {
	upper := strings.ToUpper(name)

	for _, keep := range cfg.KeepEditions {
		if strings.Contains(upper, strings.ToUpper(keep)) {
			return false
		}
	}
	for _, exclude := range cfg.ExcludeKeywords {
		if strings.Contains(upper, strings.ToUpper(exclude)) {
			return true
		}
	}
	return false
}

// calculateScore scores a candidate title against the search line: 100 for
// a case-insensitive exact match, a length-penalized substring score, or a
// SequenceMatcher-ratio similarity score, matching the original's scoring
// ladder exactly.
func calculateScore(line, candidate string, cfg config.ResolverConfig) int {
	search := strings.ToLower(strings.TrimSpace(line))
	cand := strings.ToLower(strings.TrimSpace(candidate))

	if search == cand {
		return cfg.ScoreExactMatch
	}

	if strings.Contains(cand, search) {
		lengthDiff := len(cand) - len(search)
		if lengthDiff < 0 {
			lengthDiff = -lengthDiff
		}
		score := cfg.ScorePartialMatchBase - lengthDiff
		if score < 0 {
			score = 0
		}
		return score
	}

	sm := difflib.NewMatcher(strings.Split(search, ""), strings.Split(cand, ""))
	similarity := sm.Ratio()
	return int(similarity * float64(cfg.ScoreSimilarityMult))
}

// isAllDigits reports whether s is non-empty and every rune is a digit.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// findDigitAppID looks for a whitespace-split token in line that is all
// digits and exists in appList, returning its entry.
func findDigitAppID(line string, appList []storefront.AppListEntry) (storefront.AppListEntry, bool) {
	for _, token := range strings.Fields(line) {
		if !isAllDigits(token) {
			continue
		}
		id, err := strconv.Atoi(token)
		if err != nil {
			continue
		}
		for _, app := range appList {
			if app.AppID == id {
				return app, true
			}
		}
	}
	return storefront.AppListEntry{}, false
}

// findCandidates scores every non-excluded app-list entry, retaining those
// at or above CandidateThreshold and sorting by score descending.
func findCandidates(line string, appList []storefront.AppListEntry, cfg config.ResolverConfig) []Candidate {
	var candidates []Candidate
	for _, app := range appList {
		if app.Name == "" || app.AppID == 0 {
			continue
		}
		if shouldExclude(app.Name, cfg) {
			continue
		}
		score := calculateScore(line, app.Name, cfg)
		if score < cfg.CandidateThreshold {
			continue
		}
		candidates = append(candidates, Candidate{
			AppID: strconv.Itoa(app.AppID),
			Name:  app.Name,
			Score: score,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	return candidates
}
