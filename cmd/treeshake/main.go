// Package main implements the CLI driver for the treeshake analyzer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/715d/treeshake/pkg/graphstore"
	"github.com/715d/treeshake/pkg/treeshake"
)

// Config holds all command-line configuration options for the analyzer.
type Config struct {
	Snapshots  []string // snapshot files or directories to analyze
	Verbose    bool     // enables detailed output and statistics
	JSON       bool     // enables JSON output format
	Keep       []string // extra keep rules applied to every snapshot
	MinVersion string   // overrides each snapshot's platform floor
	Profile    bool     // enables CPU and memory profiling
	FailOnMiss bool     // exit non-zero when references cannot be resolved

	Neo4jURI      string // export results when set
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
	Neo4jClean    bool // remove previous export of each snapshot first
}

const (
	exitMissingFound = 1
	exitError        = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config

func main() {
	var rootCmd = &cobra.Command{
		Use:   "treeshake [snapshots...]",
		Short: "Compute live classes and members of a program snapshot",
		Long: `treeshake runs a whole-program reachability analysis over class hierarchy
snapshots, starting from their keep rules.

For each snapshot it reports:
- Live and instantiated classes, and live methods and fields
- Program methods that override library methods
- Members that need a platform version above the floor
- The class dominating the allocations of each instantiated class`,
		Example: `  treeshake app.yaml                        # Analyze one snapshot
  treeshake snapshots/                      # Analyze every snapshot in a directory
  treeshake -v --min-version v26 app.yaml   # Verbose output with a higher floor
  treeshake --json app.yaml > report.json   # JSON output to file
  treeshake --neo4j-uri bolt://localhost:7687 --neo4j-password secret app.yaml`,
		Args:               cobra.MinimumNArgs(1),
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("treeshake version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	flags.StringArrayVar(&cfg.Keep, "keep", nil, "Additional keep rule applied to every snapshot (repeatable)")
	flags.StringVar(&cfg.MinVersion, "min-version", "", "Override the platform floor of every snapshot (e.g. v21)")
	flags.BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	flags.BoolVar(&cfg.FailOnMiss, "fail-on-missing", false, "Exit with status 1 when references cannot be resolved")
	flags.StringVar(&cfg.Neo4jURI, "neo4j-uri", "", "Export results to the Neo4j server at this bolt URI")
	flags.StringVar(&cfg.Neo4jUser, "neo4j-user", "neo4j", "Neo4j username")
	flags.StringVar(&cfg.Neo4jPassword, "neo4j-password", "", "Neo4j password (defaults to $NEO4J_PASSWORD)")
	flags.StringVar(&cfg.Neo4jDatabase, "neo4j-database", "", "Neo4j database (defaults to the server default)")
	flags.BoolVar(&cfg.Neo4jClean, "neo4j-clean", false, "Remove the previous export of each snapshot before writing")

	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg.Snapshots = args
	slog.Info("starting analysis", "snapshots", cfg.Snapshots)

	results, err := runAnalysis(cmd.Context(), &cfg)
	if err != nil {
		return errWithCode(fmt.Errorf("analyze: %w", err), exitError)
	}

	if cfg.Neo4jURI != "" {
		if err := export(cmd.Context(), &cfg, results); err != nil {
			return errWithCode(fmt.Errorf("export: %w", err), exitError)
		}
	}

	if err := writeResults(os.Stdout, results, &cfg); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}

	if cfg.FailOnMiss {
		for _, r := range results {
			if len(r.Missing) > 0 {
				return errWithCode(nil, exitMissingFound)
			}
		}
	}
	return nil
}

func runAnalysis(ctx context.Context, cfg *Config) ([]*treeshake.Result, error) {
	start := time.Now()

	slog.Info("loading snapshots", "paths", cfg.Snapshots)
	snaps, err := treeshake.LoadSnapshots(ctx, treeshake.LoaderOptions{Paths: cfg.Snapshots})
	if err != nil {
		return nil, err
	}
	slog.Info("loaded snapshots", "num", len(snaps))

	analyzer, err := treeshake.NewAnalyzer(treeshake.AnalyzerOptions{
		Rules:      cfg.Keep,
		MinVersion: cfg.MinVersion,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("running analysis")
	results, err := analyzer.AnalyzeAll(ctx, snaps)
	if err != nil {
		return nil, err
	}
	slog.Info("analysis completed", "dur", time.Since(start))
	return results, nil
}

func export(ctx context.Context, cfg *Config, results []*treeshake.Result) error {
	password := cfg.Neo4jPassword
	if password == "" {
		password = os.Getenv("NEO4J_PASSWORD")
	}
	exporter, err := graphstore.Open(ctx, graphstore.Config{
		URI:      cfg.Neo4jURI,
		User:     cfg.Neo4jUser,
		Password: password,
		Database: cfg.Neo4jDatabase,
	})
	if err != nil {
		return err
	}
	defer exporter.Close(ctx)

	if err := exporter.CreateIndexes(ctx); err != nil {
		return err
	}
	for _, r := range results {
		if cfg.Neo4jClean {
			if err := exporter.Clean(ctx, r.Snapshot); err != nil {
				return err
			}
		}
		if err := exporter.Export(ctx, r); err != nil {
			return err
		}
	}
	slog.Info("exported results", "uri", cfg.Neo4jURI, "snapshots", len(results))
	return nil
}

func writeResults(w io.Writer, results []*treeshake.Result, cfg *Config) error {
	var output string
	var err error

	if cfg.JSON {
		output, err = formatJSONOutput(results)
	} else {
		output = formatTextOutput(results, cfg)
	}

	if err != nil {
		return err
	}

	_, err = io.WriteString(w, output)
	return err
}

type jOutput struct {
	Results   []*treeshake.Result `json:"results"`
	Version   string              `json:"version"`
	Timestamp string              `json:"timestamp"`
}

func formatJSONOutput(results []*treeshake.Result) (string, error) {
	data, err := json.MarshalIndent(jOutput{
		Results:   results,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling json output: %w", err)
	}
	return string(data) + "\n", nil
}

func formatTextOutput(results []*treeshake.Result, cfg *Config) string {
	var output strings.Builder

	for _, r := range results {
		if cfg.Verbose {
			slog.Info(r.Snapshot,
				"live_classes", r.Stats.LiveClasses,
				"live_methods", r.Stats.LiveMethods,
				"live_fields", r.Stats.LiveFields,
				"rounds", r.Stats.Rounds,
				"analysis_duration", r.Stats.Duration.String())
		}
		if len(results) > 1 {
			fmt.Fprintf(&output, "%s:\n", r.Snapshot)
		}

		fmt.Fprintf(&output, "live: %d classes, %d methods, %d fields\n",
			r.Stats.LiveClasses, r.Stats.LiveMethods, r.Stats.LiveFields)
		for _, ref := range r.LibraryOverrides {
			fmt.Fprintf(&output, "override %s\n", ref)
		}
		for _, m := range r.AboveFloor {
			fmt.Fprintf(&output, "requires %s %s\n", m.MinVersion, m.Ref)
		}
		for _, d := range r.Dominance {
			fmt.Fprintf(&output, "dominates %s %s\n", d.Dominator, d.Class)
		}
		for _, ref := range r.Missing {
			fmt.Fprintf(&output, "missing %s\n", ref)
		}
		if cfg.Verbose {
			for _, m := range r.Members {
				fmt.Fprintf(&output, "  %s %s (%s)\n", m.Kind, m.Ref, m.Reason)
			}
		}
	}

	return output.String()
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(handler))
	}

	if !cfg.Profile {
		return nil
	}

	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e codedError) Unwrap() error { return e.err }
