package update

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vibecoder-lab/gamevault/internal/catalog"
)

// DeleteReport summarizes a Delete run.
type DeleteReport struct {
	Removed []string
	Missing []string // ids present in the list but not in the store
}

// Delete removes every app-id listed in listPath (one per line) from both
// the id-map and the catalog, writing the id-map before the catalog per
// the persistence ordering invariant. An id absent from either store is a
// non-fatal warning, not a failure.
func Delete(ctx context.Context, deps Deps, listPath string) (DeleteReport, error) {
	ids, err := readDeleteList(listPath)
	if err != nil {
		return DeleteReport{}, fmt.Errorf("update: read delete list: %w", err)
	}
	if len(ids) == 0 {
		return DeleteReport{}, nil
	}
	toDelete := make(map[string]bool, len(ids))
	for _, id := range ids {
		toDelete[id] = true
	}

	idMap, err := deps.Persistence.GetIDMap(ctx)
	if err != nil {
		return DeleteReport{}, fmt.Errorf("update: load id-map: %w", err)
	}
	env, err := deps.Persistence.GetGamesData(ctx)
	if err != nil {
		return DeleteReport{}, fmt.Errorf("update: load games data: %w", err)
	}

	seen := make(map[string]bool, len(ids))
	newIDMap := make([]catalog.IDMapEntry, 0, len(idMap))
	for _, e := range idMap {
		if toDelete[e.ID] {
			seen[e.ID] = true
			continue
		}
		newIDMap = append(newIDMap, e)
	}

	newGames := make([]catalog.GameRecord, 0, len(env.Games))
	for _, g := range env.Games {
		if toDelete[g.ID] {
			seen[g.ID] = true
			continue
		}
		newGames = append(newGames, g)
	}

	var report DeleteReport
	for _, id := range ids {
		if seen[id] {
			report.Removed = append(report.Removed, id)
		} else {
			report.Missing = append(report.Missing, id)
			log.Warn().Str("app_id", id).Msg("update: delete list id not present in id-map or catalog")
		}
	}

	if err := deps.Persistence.Backup(ctx, env); err != nil {
		log.Warn().Err(err).Msg("update: backup before delete failed")
	}
	if err := deps.Persistence.PutIDMap(ctx, newIDMap); err != nil {
		return DeleteReport{}, fmt.Errorf("update: persist id-map: %w", err)
	}
	newEnv := catalog.NewEnvelope(newGames, env.Meta.Source, envLastUpdatedOrNow(env))
	if err := deps.Persistence.PutGamesData(ctx, newEnv); err != nil {
		return DeleteReport{}, fmt.Errorf("update: persist games data: %w", err)
	}

	return report, nil
}

func readDeleteList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	return ids, scanner.Err()
}
