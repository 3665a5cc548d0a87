// fairaudit runs an offline fairness audit over recorded loan
// decisions, either from the service's BoltDB ledger or from a JSON
// records file, and prints the narrative report.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"lendguard/internal/cfg"
	"lendguard/internal/decision"
	"lendguard/internal/fairness"
	"lendguard/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dataPath    = flag.String("data", "", "Path to data directory holding the decision ledger")
		recordsPath = flag.String("records", "", "Path to a JSON file of audit records (alternative to -data)")
		attribute   = flag.String("attribute", "gender", "Protected attribute to audit when reading the ledger")
		startDate   = flag.String("start", "", "Start date (YYYY-MM-DD), defaults to 30 days ago")
		endDate     = flag.String("end", "", "End date (YYYY-MM-DD), defaults to now")
		jsonOut     = flag.String("json", "", "Write the full report as JSON to this file")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *dataPath != "" {
		config.DataPath = *dataPath
	}

	records, err := loadRecords(config, *recordsPath, *attribute, *startDate, *endDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load audit records")
	}
	log.Info().Int("records", len(records)).Str("attribute", *attribute).Msg("audit input loaded")

	auditor := fairness.NewEngine(fairness.Config{
		ExpectedGroups:     config.ProtectedGroups,
		CalibrationBuckets: config.CalibrationBuckets,
	})

	report, err := auditor.Audit(records)
	if err != nil {
		log.Fatal().Err(err).Msg("Audit failed")
	}

	fmt.Println(report.Narrative)

	if *jsonOut != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to serialize report")
		}
		if err := os.WriteFile(*jsonOut, data, 0o600); err != nil {
			log.Fatal().Err(err).Msg("Failed to write report file")
		}
		log.Info().Str("path", *jsonOut).Msg("report written")
	}

	if !report.Passes80PctRule {
		os.Exit(1)
	}
}

// loadRecords reads audit input from a JSON file when -records is
// given, otherwise from the decision ledger.
func loadRecords(config cfg.Settings, recordsPath, attribute, startDate, endDate string) ([]fairness.Record, error) {
	if recordsPath != "" {
		data, err := os.ReadFile(recordsPath)
		if err != nil {
			return nil, fmt.Errorf("read records file: %w", err)
		}
		var records []fairness.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse records file: %w", err)
		}
		return records, nil
	}

	if config.DataPath == "" {
		return nil, fmt.Errorf("either -records or -data (or a configured data path) is required")
	}

	start, end, err := parseRange(startDate, endDate)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(config.DataPath)
	if err != nil {
		return nil, fmt.Errorf("open decision ledger: %w", err)
	}
	defer store.Close()

	decisions, err := store.DecisionsInRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("read decision ledger: %w", err)
	}

	records := make([]fairness.Record, 0, len(decisions))
	for _, d := range decisions {
		group, ok := d.Groups[attribute]
		if !ok {
			continue
		}
		records = append(records, fairness.Record{
			Approved:    d.Label == string(decision.Approve),
			Probability: d.Probability,
			Group:       group,
			Outcome:     d.Outcome,
		})
	}
	return records, nil
}

func parseRange(startDate, endDate string) (time.Time, time.Time, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)

	if startDate != "" {
		t, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", startDate, err)
		}
		start = t
	}
	if endDate != "" {
		t, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", endDate, err)
		}
		end = t.AddDate(0, 0, 1) // inclusive end day
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must be after start date")
	}
	return start, end, nil
}
