package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/vibecoder-lab/gamevault/internal/catalog"
)

// Append resolves new titles (already matched by the caller via
// internal/resolver) into catalog records and adds them to the existing
// id-map and catalog. Runs at or above the configured batch threshold
// enter batch sub-mode: a lock file, checkpoint shards every
// CheckpointEvery records, and resume-from-latest-shard on restart.
func Append(ctx context.Context, deps Deps, newMappings []NewMapping, regions []string) (Report, error) {
	cfg := deps.Config
	batchDir := deps.batchDir()

	idMap, err := deps.Persistence.GetIDMap(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("update: load id-map: %w", err)
	}
	env, err := deps.Persistence.GetGamesData(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("update: load games data: %w", err)
	}

	existing := make(map[string]bool, len(idMap))
	for _, e := range idMap {
		existing[e.ID] = true
	}

	var newIDs []NewMapping
	for _, m := range newMappings {
		if !existing[m.AppID] {
			newIDs = append(newIDs, m)
		}
	}

	report := Report{AppendMode: true}
	if len(newIDs) == 0 {
		return report, nil
	}

	batchMode := len(newIDs) >= cfg.BatchThreshold
	startIndex := 0
	var batchStartTime string
	var restoreLog func()
	defer func() {
		if restoreLog != nil {
			restoreLog()
		}
	}()

	if batchMode {
		lock, locked, lerr := readLock(batchDir)
		if lerr != nil {
			return Report{}, fmt.Errorf("update: read lock file: %w", lerr)
		}
		if !locked {
			lock = &Lock{StartTime: nowTimestamp(), LogFile: batchLogFileName}
			if err := writeLock(batchDir, *lock); err != nil {
				return Report{}, fmt.Errorf("update: write lock file: %w", err)
			}
		}
		batchStartTime = lock.StartTime

		restore, err := redirectBatchLog(batchLogPath(batchDir))
		if err != nil {
			return Report{}, err
		}
		restoreLog = restore

		if n, found, cerr := latestCheckpoint(batchDir); cerr != nil {
			return Report{}, fmt.Errorf("update: read checkpoints: %w", cerr)
		} else if found {
			startIndex = n
			log.Info().Int("resume_from", n).Msg("update: resuming batch append from checkpoint")
		}
	}

	toProcess := newIDs[startIndex:]

	historyIDs := make([]string, 0, len(toProcess))
	for _, m := range toProcess {
		if m.HistoryID != "" {
			historyIDs = append(historyIDs, m.HistoryID)
		}
	}

	deals := dealsByRegion{}
	if deps.PriceHistory != nil && len(historyIDs) > 0 {
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

	var accumulator []catalog.GameRecord
	var newlyAdded []NewEntry

	for i, m := range toProcess {
		info, err := deps.Storefront.GetGameInfo(ctx, m.AppID, regions)
		if err != nil {
			report.FailedGames = append(report.FailedGames, FailedGame{AppID: m.AppID, Reason: err.Error()})
			continue
		}
		if info == nil {
			report.FailedGames = append(report.FailedGames, FailedGame{AppID: m.AppID, Reason: "not found"})
			continue
		}

		tags := fetchTags(ctx, deps.PriceHistory, m.HistoryID)
		record := buildGameRecord(m.AppID, m.HistoryID, info, regions, deals, tags)

		accumulator = append(accumulator, record)
		newlyAdded = append(newlyAdded, NewEntry{AppID: m.AppID, Title: info.Title})
		idMap = append(idMap, catalog.IDMapEntry{ID: m.AppID, ITADID: m.HistoryID})

		if batchMode {
			absolute := startIndex + i + 1
			if absolute%cfg.CheckpointEvery == 0 {
				if err := writeCheckpoint(batchDir, absolute, accumulator); err != nil {
					return Report{}, fmt.Errorf("update: write checkpoint: %w", err)
				}
				if err := deps.Persistence.PutIDMap(ctx, idMap); err != nil {
					return Report{}, fmt.Errorf("update: persist id-map at checkpoint: %w", err)
				}
				accumulator = nil
			}
		}
	}

	report.NewlyAdded = newlyAdded
	report.RebuiltCount = len(newlyAdded)

	if len(report.FailedGames) > 0 {
		report.Aborted = true
		report.AbortReason = fmt.Sprintf("%d storefront fetch(es) failed", len(report.FailedGames))
		return report, nil
	}

	var newRecords []catalog.GameRecord
	if batchMode {
		shardCounts, err := listCheckpoints(batchDir)
		if err != nil {
			return Report{}, fmt.Errorf("update: list checkpoints: %w", err)
		}
		for _, n := range shardCounts {
			recs, err := loadCheckpoint(batchDir, n)
			if err != nil {
				return Report{}, fmt.Errorf("update: load checkpoint %d: %w", n, err)
			}
			newRecords = append(newRecords, recs...)
		}
		newRecords = append(newRecords, accumulator...)
	} else {
		newRecords = accumulator
	}

	seen := make(map[string]bool, len(env.Games))
	finalGames := make([]catalog.GameRecord, 0, len(env.Games)+len(newRecords))
	for _, g := range env.Games {
		if !seen[g.ID] {
			finalGames = append(finalGames, g)
			seen[g.ID] = true
		}
	}
	for _, g := range newRecords {
		if !seen[g.ID] {
			finalGames = append(finalGames, g)
			seen[g.ID] = true
		}
	}

	newEnv := catalog.NewEnvelope(finalGames, "gamevault-updater", envLastUpdatedOrNow(env))

	if len(env.Games) > 0 {
		if err := deps.Persistence.Backup(ctx, env); err != nil {
			log.Warn().Err(err).Msg("update: backup of previous catalog failed")
		}
	}
	if err := deps.Persistence.PutIDMap(ctx, idMap); err != nil {
		return Report{}, fmt.Errorf("update: persist id-map: %w", err)
	}
	if err := deps.Persistence.PutGamesData(ctx, newEnv); err != nil {
		return Report{}, fmt.Errorf("update: persist games data: %w", err)
	}

	if batchMode {
		if err := clearCheckpoints(batchDir); err != nil {
			return Report{}, fmt.Errorf("update: clear checkpoints: %w", err)
		}
		if err := removeLock(batchDir); err != nil {
			return Report{}, fmt.Errorf("update: remove lock file: %w", err)
		}

		if restoreLog != nil {
			restoreLog()
			restoreLog = nil
		}
		finalPath := filepath.Join(batchDir, finalLogName(batchStartTime, nowTimestamp()))
		if err := os.Rename(batchLogPath(batchDir), finalPath); err != nil && !os.IsNotExist(err) {
			return Report{}, fmt.Errorf("update: rename batch log: %w", err)
		}
	}

	return report, nil
}
