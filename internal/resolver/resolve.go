package resolver

import (
	"strconv"

	"github.com/vibecoder-lab/gamevault/internal/config"
	"github.com/vibecoder-lab/gamevault/internal/storefront"
)

// Resolve maps one title-file line to an app id against the given full
// app list. A bare digit token is checked directly against the list; any
// match there is accepted outright, without scoring.
func Resolve(line string, appList []storefront.AppListEntry, cfg config.ResolverConfig) Result {
	if app, ok := findDigitAppID(line, appList); ok {
		return Result{
			Line:    line,
			Outcome: Accepted,
			AppID:   strconv.Itoa(app.AppID),
			Name:    app.Name,
			Score:   cfg.ScoreExactMatch,
		}
	}

	candidates := findCandidates(line, appList, cfg)
	if len(candidates) == 0 {
		return Result{Line: line, Outcome: NoMatch}
	}

	exact := 0
	for _, c := range candidates {
		if c.Score == cfg.ScoreExactMatch {
			exact++
		}
	}
	if exact > 1 {
		return Result{Line: line, Outcome: Ambiguous, Candidates: candidates}
	}

	best := candidates[0]
	if best.Score >= cfg.AutoAcceptThreshold {
		return Result{
			Line:       line,
			Outcome:    Accepted,
			AppID:      best.AppID,
			Name:       best.Name,
			Score:      best.Score,
			Candidates: candidates,
		}
	}

	return Result{
		Line:       line,
		Outcome:    MatchBelowAutoAccept,
		Name:       best.Name,
		Score:      best.Score,
		Candidates: candidates,
	}
}
