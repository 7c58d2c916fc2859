package update

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vibecoder-lab/gamevault/internal/catalog"
)

// Lock is the contents of the batch-in-progress lock file: a marker that a
// batch sub-mode run is underway, naming when it started and where its
// redirected log lives.
type Lock struct {
	StartTime string `json:"start_time"`
	LogFile   string `json:"log_file"`
}

func lockPath(batchDir string) string { return filepath.Join(batchDir, "batch_in_progress.lock") }

// batchLogFileName is the per-run log file a batch append redirects to
// while in progress; it is renamed to rebuild_<start>_to_<end>.log once
// the run completes successfully.
const batchLogFileName = "rebuild_in_progress.log"

func batchLogPath(batchDir string) string { return filepath.Join(batchDir, batchLogFileName) }

// finalLogName formats the completed batch run's log file name from the
// lock's start timestamp and a completion timestamp, both RFC3339 with
// colons stripped so the result is a valid filename on every OS.
func finalLogName(startTime, endTime string) string {
	return fmt.Sprintf("rebuild_%s_to_%s.log", stripColons(startTime), stripColons(endTime))
}

func stripColons(ts string) string {
	return strings.NewReplacer(":", "").Replace(ts)
}

func writeLock(batchDir string, lock Lock) error {
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		return fmt.Errorf("update: create batch dir: %w", err)
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(lockPath(batchDir), data, 0o644)
}

func removeLock(batchDir string) error {
	err := os.Remove(lockPath(batchDir))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func readLock(batchDir string) (*Lock, bool, error) {
	data, err := os.ReadFile(lockPath(batchDir))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, false, fmt.Errorf("update: parse lock file: %w", err)
	}
	return &lock, true, nil
}

func checkpointDir(batchDir string) string { return filepath.Join(batchDir, "checkpoints") }

func checkpointPath(batchDir string, count int) string {
	return filepath.Join(checkpointDir(batchDir), fmt.Sprintf("games_checkpoint_%d.json", count))
}

func writeCheckpoint(batchDir string, count int, records []catalog.GameRecord) error {
	dir := checkpointDir(batchDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("update: create checkpoint dir: %w", err)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return os.WriteFile(checkpointPath(batchDir, count), data, 0o644)
}

// listCheckpoints returns every checkpoint shard's record count, ascending.
func listCheckpoints(batchDir string) ([]int, error) {
	dir := checkpointDir(batchDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update: list checkpoints: %w", err)
	}

	var counts []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "games_checkpoint_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "games_checkpoint_"), ".json")
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		counts = append(counts, n)
	}
	sort.Ints(counts)
	return counts, nil
}

func latestCheckpoint(batchDir string) (int, bool, error) {
	counts, err := listCheckpoints(batchDir)
	if err != nil {
		return 0, false, err
	}
	if len(counts) == 0 {
		return 0, false, nil
	}
	return counts[len(counts)-1], true, nil
}

func loadCheckpoint(batchDir string, count int) ([]catalog.GameRecord, error) {
	data, err := os.ReadFile(checkpointPath(batchDir, count))
	if err != nil {
		return nil, fmt.Errorf("update: read checkpoint %d: %w", count, err)
	}
	var records []catalog.GameRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("update: parse checkpoint %d: %w", count, err)
	}
	return records, nil
}

// clearCheckpoints removes the checkpoint shard directory after a
// successful run folds every shard into the final catalog.
func clearCheckpoints(batchDir string) error {
	err := os.RemoveAll(checkpointDir(batchDir))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func nowTimestamp() string { return time.Now().UTC().Format(time.RFC3339) }
