package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/zhaobenny/sleepdash/cli/internal/aggregator"
	"github.com/zhaobenny/sleepdash/cli/internal/output"
	"github.com/zhaobenny/sleepdash/internal/config"
	"github.com/zhaobenny/sleepdash/internal/dashboard"
	"github.com/zhaobenny/sleepdash/internal/logging"
	"github.com/zhaobenny/sleepdash/internal/model"
	"github.com/zhaobenny/sleepdash/internal/parser"
	"github.com/zhaobenny/sleepdash/internal/pipeline"
	"github.com/zhaobenny/sleepdash/internal/whoop"
)

const version = "0.1.0"

func main() {
	// Detect subcommand first
	command := "daily"
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "daily", "weekly", "monthly", "stages", "fetch", "config":
			command, args = args[0], args[1:]
		}
	}

	// Handle special commands
	switch command {
	case "fetch":
		runFetch(args)
		return
	case "config":
		runConfig(args)
		return
	}

	fs := flag.NewFlagSet("sleepdash", flag.ExitOnError)

	var (
		since    string
		until    string
		file     string
		cfgPath  string
		jsonOut  bool
		compact  bool
		verbose  bool
		showHelp bool
		showVer  bool
	)

	fs.StringVar(&since, "since", "", "Start date filter, inclusive (YYYYMMDD)")
	fs.StringVar(&until, "until", "", "End date filter, inclusive (YYYYMMDD)")
	fs.StringVar(&file, "file", "", "Read cycles saved by 'sleepdash fetch' instead of calling WHOOP")
	fs.StringVar(&cfgPath, "config", "", "Path to config file (default ~/.sleepdash.yaml)")
	fs.BoolVar(&jsonOut, "json", false, "Output as JSON")
	fs.BoolVar(&compact, "compact", false, "Force compact table output")
	fs.BoolVar(&compact, "c", false, "Force compact table output")
	fs.BoolVar(&verbose, "verbose", false, "Log pipeline progress to stderr")
	fs.BoolVar(&showHelp, "help", false, "Show help")
	fs.BoolVar(&showHelp, "h", false, "Show help")
	fs.BoolVar(&showVer, "version", false, "Show version")
	fs.BoolVar(&showVer, "v", false, "Show version")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `sleepdash - WHOOP sleep reports

Usage: sleepdash [command] [options]

Commands:
  daily     Show one row per cycle (default)
  weekly    Show averages per ISO week
  monthly   Show averages per month
  stages    Show mean hours per sleep stage
  fetch     Save raw cycles to a file
  config    Configure the WHOOP account

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  sleepdash                          Show daily sleep
  sleepdash weekly --since 20210411
  sleepdash monthly --json
  sleepdash fetch --out cycles.json
  sleepdash stages --file cycles.json
`)
	}

	fs.Parse(args)

	if showVer {
		fmt.Printf("sleepdash version %s\n", version)
		return
	}

	if showHelp {
		fs.Usage()
		return
	}

	// Parse dates
	var opts aggregator.Options
	if since != "" {
		t, err := time.Parse("20060102", since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid --since date format. Use YYYYMMDD.\n")
			os.Exit(1)
		}
		opts.Since = t
	}
	if until != "" {
		t, err := time.Parse("20060102", until)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid --until date format. Use YYYYMMDD.\n")
			os.Exit(1)
		}
		opts.Until = t
	}

	logger := newLogger(verbose)
	defer logger.Sync() //nolint:errcheck

	table, err := loadTable(file, cfgPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if table.Len() == 0 {
		fmt.Println("No cycles found.")
		return
	}

	rows := aggregator.FilterRows(table.Rows(), opts)
	if len(rows) == 0 {
		fmt.Println("No sleep data found for the specified date range.")
		return
	}

	if command == "stages" {
		means := dashboard.StageMeans(rows)
		if jsonOut {
			out := make(map[string]model.Metric, len(means))
			for i, m := range means {
				out[dashboard.StageLabels[i]] = m
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
		output.PrintStages(os.Stdout, dashboard.StageLabels, means)
		return
	}

	var results []model.SleepSummary
	var title string

	switch command {
	case "daily":
		results = aggregator.ByDay(rows)
		title = "Date"
	case "weekly":
		results = aggregator.ByWeek(rows)
		title = "Week"
	case "monthly":
		results = aggregator.ByMonth(rows)
		title = "Month"
	}
	total := aggregator.Total(rows)

	if jsonOut {
		if err := output.PrintJSON(os.Stdout, results, total); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	output.PrintTable(os.Stdout, results, total, title, output.TableOptions{ForceCompact: compact})
}

func newLogger(verbose bool) *zap.SugaredLogger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger
}

// loadTable reads a saved cycles file, or runs the full fetch when file is empty
func loadTable(file, cfgPath string, logger *zap.SugaredLogger) (*model.SleepTable, error) {
	if file != "" {
		records, err := parser.ParseFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		return parser.Flatten(records)
	}

	cfg, cred, window, err := account(cfgPath)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := whoop.NewClient(cfg.Whoop.BaseURL, cfg.Whoop.Timeout, logger.Named("whoop"))
	return pipeline.Run(ctx, client, cred, window, logger.Named("pipeline"))
}

// account loads the config and resolves the credential and fetch window
func account(cfgPath string) (*config.Config, model.Credential, pipeline.Window, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, model.Credential{}, pipeline.Window{}, err
	}

	password := cfg.Whoop.Password()
	if password == "" {
		return nil, model.Credential{}, pipeline.Window{}, fmt.Errorf("WHOOP password not set: export %s", cfg.Whoop.PasswordEnv)
	}
	start, end, err := cfg.Whoop.Window()
	if err != nil {
		return nil, model.Credential{}, pipeline.Window{}, err
	}

	return cfg,
		model.Credential{Username: cfg.Whoop.Username, Password: password},
		pipeline.Window{Start: start, End: end},
		nil
}

func runFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	var (
		out     string
		cfgPath string
		verbose bool
	)
	fs.StringVar(&out, "out", "", "Write cycles to this file instead of stdout")
	fs.StringVar(&cfgPath, "config", "", "Path to config file (default ~/.sleepdash.yaml)")
	fs.BoolVar(&verbose, "verbose", false, "Log progress to stderr")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: sleepdash fetch [options]

Downloads every cycle in the configured window as a JSON array. The file can
be read back with --file by the report commands.

Options:
`)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	logger := newLogger(verbose)
	defer logger.Sync() //nolint:errcheck

	cfg, cred, window, err := account(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := whoop.NewClient(cfg.Whoop.BaseURL, cfg.Whoop.Timeout, logger.Named("whoop"))
	session, err := client.Authenticate(ctx, cred)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	records, err := client.FetchCycles(ctx, session, window.Start, window.End)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// refuse to save a file the reports could not read
	if _, err := parser.Flatten(records); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if out == "" {
		os.Stdout.Write(append(data, '\n'))
		return
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", out, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Saved %d cycles to %s\n", len(records), out)
}

func runConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	var (
		cfgPath     string
		username    string
		baseURL     string
		passwordEnv string
		show        bool
	)
	fs.StringVar(&cfgPath, "config", "", "Path to config file (default ~/.sleepdash.yaml)")
	fs.StringVar(&username, "username", "", "WHOOP account email")
	fs.StringVar(&baseURL, "base-url", "", "WHOOP API base URL")
	fs.StringVar(&passwordEnv, "password-env", "", "Environment variable holding the WHOOP password")
	fs.BoolVar(&show, "show", false, "Show current configuration")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: sleepdash config [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  sleepdash config --username me@example.com
  sleepdash config --show
`)
	}

	fs.Parse(args)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if show {
		fmt.Printf("Username: %s\n", cfg.Whoop.Username)
		fmt.Printf("Password env: %s", cfg.Whoop.PasswordEnv)
		if cfg.Whoop.Password() == "" {
			fmt.Print(" (not set)")
		}
		fmt.Println()
		fmt.Printf("Base URL: %s\n", cfg.Whoop.BaseURL)
		fmt.Printf("Window: %s .. %s\n", cfg.Whoop.Start, cfg.Whoop.End)
		fmt.Printf("Timeout: %s\n", cfg.Whoop.Timeout)
		return
	}

	if username == "" && baseURL == "" && passwordEnv == "" {
		fs.Usage()
		return
	}

	if username != "" {
		cfg.Whoop.Username = username
	}
	if baseURL != "" {
		cfg.Whoop.BaseURL = baseURL
	}
	if passwordEnv != "" {
		cfg.Whoop.PasswordEnv = passwordEnv
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration saved.")
}
