package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vibecoder-lab/gamevault/internal/budget"
	"github.com/vibecoder-lab/gamevault/internal/catalog"
	"github.com/vibecoder-lab/gamevault/internal/circuitbreak"
	"github.com/vibecoder-lab/gamevault/internal/config"
	"github.com/vibecoder-lab/gamevault/internal/httpclient"
	"github.com/vibecoder-lab/gamevault/internal/metrics"
	"github.com/vibecoder-lab/gamevault/internal/persistence"
	"github.com/vibecoder-lab/gamevault/internal/pricehistory"
	"github.com/vibecoder-lab/gamevault/internal/ratelimit"
	"github.com/vibecoder-lab/gamevault/internal/resolver"
	"github.com/vibecoder-lab/gamevault/internal/storefront"
	"github.com/vibecoder-lab/gamevault/internal/update"
)

const (
	version          = "v1.0.0"
	titlesFilePath   = "data/refs/titles.txt"
	deleteListPath   = "data/refs/delete_appid_list.txt"
	storefrontHost   = "store.steampowered.com"
	priceHistoryHost = "api.isthereanydeal.com"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "gamevault API_KEY",
		Short:   "Catalog updater: diff-refresh, append, and delete over the video-game catalog",
		Version: version,
		Args:    cobra.ExactArgs(1),
		RunE:    runUpdate,
	}

	rootCmd.Flags().Bool("append", false, "Append mode: resolve titles from data/refs/titles.txt and add new ids")
	rootCmd.Flags().String("regions", "JP", "Comma-separated region codes (JP,US,UK,EU)")
	rootCmd.Flags().Bool("kv", false, "Force remote (KV) persistence even when running locally")
	rootCmd.Flags().Bool("reset-prices", false, "Testing hook: after the run has persisted, force every stored deal.*.price to 1 and write the catalog again")
	rootCmd.Flags().Bool("delete", false, "Delete mode: remove ids listed in data/refs/delete_appid_list.txt")
	rootCmd.Flags().String("config", "", "Path to a YAML config overlay")

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("gamevault: run failed")
		os.Exit(1)
	}
}

func runUpdate(cmd *cobra.Command, args []string) error {
	apiKey := args[0]

	appendMode, _ := cmd.Flags().GetBool("append")
	deleteMode, _ := cmd.Flags().GetBool("delete")
	forceKV, _ := cmd.Flags().GetBool("kv")
	resetPrices, _ := cmd.Flags().GetBool("reset-prices")
	regionsFlag, _ := cmd.Flags().GetString("regions")
	configPath, _ := cmd.Flags().GetString("config")

	if appendMode && deleteMode {
		return fmt.Errorf("gamevault: --append and --delete are mutually exclusive")
	}

	regions := strings.Split(regionsFlag, ",")
	for i := range regions {
		regions[i] = strings.TrimSpace(regions[i])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("gamevault: load config: %w", err)
	}

	if os.Getenv("GITHUB_ACTIONS") == "true" || forceKV {
		cfg.Persistence.Mode = "remote"
	}
	if ns := os.Getenv("KV_NAMESPACE_ID"); ns != "" {
		cfg.Persistence.Namespace = ns
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("gamevault: config: %w", err)
	}

	adapter, err := persistence.New(cfg.Persistence)
	if err != nil {
		return fmt.Errorf("gamevault: build persistence adapter: %w", err)
	}

	storeStack := newStorefrontClient(cfg)
	itadStack := newPriceHistoryClient(cfg, apiKey)

	deps := update.Deps{
		Storefront:   storeStack.client,
		PriceHistory: itadStack.client,
		Persistence:  adapter,
		Config:       cfg,
	}
	defer writeMetricsSnapshot(storeStack, itadStack)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var report update.Report
	switch {
	case deleteMode:
		delReport, err := update.Delete(ctx, deps, deleteListPath)
		if err != nil {
			return err
		}
		log.Info().Int("removed", len(delReport.Removed)).Int("missing", len(delReport.Missing)).
			Msg("gamevault: delete complete")
		return nil

	case appendMode:
		mappings, err := resolveTitleFile(ctx, deps.Storefront, deps.PriceHistory, cfg, titlesFilePath)
		if err != nil {
			return fmt.Errorf("gamevault: resolve titles: %w", err)
		}
		report, err = update.Append(ctx, deps, mappings, regions)
		if err != nil {
			return err
		}

	default:
		report, err = update.Refresh(ctx, deps, regions)
		if err != nil {
			return err
		}
	}

	if resetPrices {
		if err := applyResetPrices(ctx, adapter); err != nil {
			return fmt.Errorf("gamevault: reset-prices: %w", err)
		}
	}

	logReport(report)
	if report.Aborted {
		return fmt.Errorf("gamevault: run aborted: %s", report.AbortReason)
	}
	return nil
}

func logReport(report update.Report) {
	ev := log.Info()
	if report.Aborted {
		ev = log.Error()
	}
	ev.Bool("append_mode", report.AppendMode).
		Int("rebuilt", report.RebuiltCount).
		Int("updated", report.UpdatedCount).
		Int("failed", len(report.FailedGames)).
		Int("newly_added", len(report.NewlyAdded)).
		Bool("aborted", report.Aborted).
		Msg("gamevault: run complete")
}

// storefrontStack and priceHistoryStack bundle one host's middleware collaborators alongside the
// domain client built on top of them, so the run can snapshot their stats
// into metrics after the update completes.
type storefrontStack struct {
	client     *storefront.Client
	controller *ratelimit.Controller
	tracker    *budget.Tracker
}

type priceHistoryStack struct {
	client     *pricehistory.Client
	controller *ratelimit.Controller
	tracker    *budget.Tracker
}

func newStorefrontClient(cfg *config.Config) storefrontStack {
	controller := ratelimit.New(ratelimit.Config{
		Host:               storefrontHost,
		TargetRPS:          cfg.StoreRateLimit.TargetRPS,
		WindowSeconds:      cfg.StoreRateLimit.WindowSeconds,
		WindowLimit:        cfg.StoreRateLimit.WindowLimit,
		InitialConcurrency: cfg.StoreRateLimit.InitialConcurrency,
		WarmupRequests:     cfg.StoreRateLimit.WarmupRequests,
	})
	breaker := circuitbreak.New(storefrontHost, circuitbreak.Config{
		ConsecutiveFailures: cfg.StoreCircuit.ConsecutiveFailures,
		Timeout:             cfg.StoreCircuit.Timeout(),
		Interval:            cfg.StoreCircuit.Interval(),
	})
	var tracker *budget.Tracker
	if cfg.StoreBudget.Limit > 0 {
		tracker = budget.NewTracker("storefront", cfg.StoreBudget.Limit, cfg.StoreBudget.ResetHourUTC, cfg.StoreBudget.WarnThreshold)
	}

	client := httpclient.NewClient(httpclient.Config{
		Host:       storefrontHost,
		UserAgent:  "gamevault-updater/" + version,
		Controller: controller,
		Breaker:    breaker,
		Budget:     tracker,
	}, 30*time.Second)

	return storefrontStack{client: storefront.New(client, cfg.Regions), controller: controller, tracker: tracker}
}

func newPriceHistoryClient(cfg *config.Config, apiKey string) priceHistoryStack {
	controller := ratelimit.New(ratelimit.Config{
		Host:               priceHistoryHost,
		TargetRPS:          cfg.ITADRateLimit.TargetRPS,
		WindowSeconds:      cfg.ITADRateLimit.WindowSeconds,
		WindowLimit:        cfg.ITADRateLimit.WindowLimit,
		InitialConcurrency: cfg.ITADRateLimit.InitialConcurrency,
		WarmupRequests:     cfg.ITADRateLimit.WarmupRequests,
	})
	breaker := circuitbreak.New(priceHistoryHost, circuitbreak.Config{
		ConsecutiveFailures: cfg.ITADCircuit.ConsecutiveFailures,
		Timeout:             cfg.ITADCircuit.Timeout(),
		Interval:            cfg.ITADCircuit.Interval(),
	})
	var tracker *budget.Tracker
	if cfg.ITADBudget.Limit > 0 {
		tracker = budget.NewTracker("pricehistory", cfg.ITADBudget.Limit, cfg.ITADBudget.ResetHourUTC, cfg.ITADBudget.WarnThreshold)
	}

	client := httpclient.NewClient(httpclient.Config{
		Host:       priceHistoryHost,
		UserAgent:  "gamevault-updater/" + version,
		Controller: controller,
		Breaker:    breaker,
		Budget:     tracker,
	}, 60*time.Second)

	return priceHistoryStack{client: pricehistory.New(client, apiKey), controller: controller, tracker: tracker}
}

// writeMetricsSnapshot dumps this run's rate-controller and budget stats to
// a Prometheus text-exposition file. Failure here is logged, never fatal:
// metrics are an observability aid, not part of the update's correctness.
func writeMetricsSnapshot(storeStack storefrontStack, itadStack priceHistoryStack) {
	snap := metrics.NewSnapshot()
	snap.RecordController(storeStack.controller.Stats())
	snap.RecordController(itadStack.controller.Stats())
	if storeStack.tracker != nil {
		snap.RecordBudget("storefront", storeStack.tracker.Stats())
	}
	if itadStack.tracker != nil {
		snap.RecordBudget("pricehistory", itadStack.tracker.Stats())
	}
	if err := snap.WriteFile("data/metrics.prom"); err != nil {
		log.Warn().Err(err).Msg("gamevault: write metrics snapshot failed")
	}
}

// resolveTitleFile reads newline-delimited title (or bare app-id) entries,
// resolves each against the cached app list, and keeps only the accepted
// matches plus their price-history lookup. Ambiguous and below-threshold
// lines are logged and skipped, not fed into Append.
func resolveTitleFile(ctx context.Context, sf *storefront.Client, ph *pricehistory.Client, cfg *config.Config, path string) ([]update.NewMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	appList, err := sf.GetAppList(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch app list: %w", err)
	}

	resumePath := path + ".resume"
	resumed, err := resolver.LoadResume(resumePath)
	if err != nil {
		return nil, err
	}
	writer, err := resolver.OpenResumeWriter(resumePath)
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	mappings := make([]update.NewMapping, 0, len(resumed))
	resumedIDs := make(map[string]bool, len(resumed))
	for _, e := range resumed {
		resumedIDs[e.AppID] = true
		mappings = append(mappings, update.NewMapping{AppID: e.AppID, HistoryID: e.HistoryID})
	}

	lineNum := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lineNum++
		if lineNum <= len(resumed) {
			continue // already processed on a prior, interrupted run
		}
		result := resolver.Resolve(line, appList, cfg.Resolver)
		switch result.Outcome {
		case resolver.Accepted:
			if resumedIDs[result.AppID] {
				continue // already recorded in the resume file
			}
			historyID, err := ph.LookupID(ctx, result.AppID)
			if err != nil {
				log.Warn().Str("app_id", result.AppID).Err(err).Msg("gamevault: price-history lookup failed, continuing without it")
			}
			if err := writer.Append(resolver.ResumeEntry{AppID: result.AppID, HistoryID: historyID}); err != nil {
				return nil, fmt.Errorf("resume: %w", err)
			}
			mappings = append(mappings, update.NewMapping{AppID: result.AppID, HistoryID: historyID, Title: result.Name})
		case resolver.Ambiguous:
			log.Warn().Str("line", line).Msg("gamevault: ambiguous title match, skipped")
		case resolver.MatchBelowAutoAccept:
			log.Warn().Str("line", line).Int("score", result.Score).Msg("gamevault: match below auto-accept threshold, skipped")
		case resolver.NoMatch:
			log.Warn().Str("line", line).Msg("gamevault: no candidate match, skipped")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mappings, nil
}

// applyResetPrices is the testing hook from the CLI surface: it forces
// every persisted deal's price to 1 so downstream consumers can exercise
// a deterministic, always-on-sale state without faking upstream responses.
func applyResetPrices(ctx context.Context, adapter persistence.Adapter) error {
	env, err := adapter.GetGamesData(ctx)
	if err != nil {
		return err
	}
	for gi := range env.Games {
		for currency, dq := range env.Games[gi].Deal {
			dq.Price = catalog.Price(1)
			env.Games[gi].Deal[currency] = dq
		}
	}
	return adapter.PutGamesData(ctx, env)
}
