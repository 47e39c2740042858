// Command import stages and commits a loan-portfolio workbook from the
// command line, printing progress to stderr and the report to stdout.
//
//	import -file cartera.xlsx                 # store from DB_DRIVER / DATABASE_URL
//	import -file cartera.xlsx -sqlite c.db    # local SQLite file
//	import -file cartera.xlsx -dry-run        # in-memory store, nothing persisted
//	import -file cartera.xlsx -phases populations,clients
//
// Exit status is 0 when the report is clean, 2 when any unit failed and 1
// on setup errors.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/carteras/internal/config"
	"github.com/JonMunkholm/carteras/internal/core"
	"github.com/JonMunkholm/carteras/internal/database"
	"github.com/JonMunkholm/carteras/internal/logging"
	"github.com/JonMunkholm/carteras/internal/workbook"
)

type options struct {
	file     string
	sqlite   string
	dryRun   bool
	phases   string
	format   string
	logLevel string
}

func main() {
	var opts options
	flag.StringVar(&opts.file, "file", "", "xlsx workbook to import (required)")
	flag.StringVar(&opts.sqlite, "sqlite", "", "commit into this SQLite file instead of the configured store")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "commit into an in-memory store")
	flag.StringVar(&opts.phases, "phases", "", "comma-separated phases to run in order (default: all)")
	flag.StringVar(&opts.format, "format", "text", "report format: text or json")
	flag.StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL")
	flag.Parse()

	_ = godotenv.Overload()

	code, err := run(context.Background(), opts, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import: %v\n", err)
		if msg := core.FormatUserError(err); core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, msg)
		}
	}
	os.Exit(code)
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) (int, error) {
	if opts.file == "" {
		return 1, fmt.Errorf("-file is required")
	}
	phases, err := parsePhases(opts.phases)
	if err != nil {
		return 1, err
	}

	cfg, err := config.LoadFrom(overrides(opts))
	if err != nil {
		return 1, err
	}
	level := cfg.Logging.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := logging.Setup(stderr, level, cfg.Logging.Format)

	wb, err := decodeFile(opts.file)
	if err != nil {
		return 1, err
	}
	sc := cfg.ServiceConfig(logger)
	staged, err := core.StageWorkbook(wb, sc.Stage)
	if err != nil {
		return 1, err
	}
	logger.Info("staged workbook", "file", staged.FileName, "sheets", len(staged.Sheets), "rows", staged.RowCount())

	store, err := database.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return 1, err
	}
	defer store.Close()

	orch := core.NewOrchestrator(store, sc.Retry, logger)
	state := core.NewCommitState()
	progress := func(percent int, label string, _ core.CommitReport) {
		fmt.Fprintf(stderr, "\r%3d%% %-14s", percent, label)
		if percent == 100 && label == "Completed" {
			fmt.Fprintln(stderr)
		}
	}

	var report core.CommitReport
	if len(phases) == 0 {
		if report, err = orch.Commit(ctx, staged, state, progress); err != nil {
			return 1, err
		}
	} else {
		for _, p := range phases {
			if _, err := orch.RunPhase(ctx, staged, state, p, progress); err != nil {
				return 1, err
			}
		}
		report = state.Report.Snapshot()
	}

	if err := writeReport(stdout, report, opts.format); err != nil {
		return 1, err
	}
	if !report.GlobalOK {
		return 2, nil
	}
	return 0, nil
}

// overrides layers the storage flags over the process environment.
func overrides(opts options) config.LookupFunc {
	set := map[string]string{}
	switch {
	case opts.dryRun:
		set["DB_DRIVER"] = database.DriverMemory
	case opts.sqlite != "":
		set["DB_DRIVER"] = database.DriverSQLite
		set["SQLITE_PATH"] = opts.sqlite
	}
	return func(key string) (string, bool) {
		if v, ok := set[key]; ok {
			return v, true
		}
		return os.LookupEnv(key)
	}
}

func parsePhases(list string) ([]core.Phase, error) {
	var out []core.Phase
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		p, err := core.ParsePhase(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeFile(path string) (*core.Workbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return workbook.Decode(f, path)
}

func writeReport(w io.Writer, report core.CommitReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "text", "":
		_, err := io.WriteString(w, report.String())
		return err
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
