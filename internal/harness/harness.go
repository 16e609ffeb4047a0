package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/treeshake/pkg/snapshot"
	"github.com/715d/treeshake/pkg/treeshake"
)

// TestCase represents a single fixture.
type TestCase struct {
	// Name is the fixture path relative to the testdata root.
	Name string

	// Description is the archive comment.
	Description string

	Snapshot       *snapshot.Snapshot
	Configurations []Configuration
}

// TestHarness manages test execution.
type TestHarness struct{}

// NewHarness creates a new test harness.
func NewHarness() *TestHarness {
	return &TestHarness{}
}

// Run executes a test case with all its configurations.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	require.NotEmpty(t, tc.Configurations, "test case has no configurations")

	var results []ConfigurationResult
	allSuccess := true

	for _, cfg := range tc.Configurations {
		cfgResult := h.runConfiguration(t, tc, cfg)
		results = append(results, *cfgResult)
		if !cfgResult.Success {
			allSuccess = false
		}
	}

	var resultMsg string
	if allSuccess {
		resultMsg = fmt.Sprintf("All %d configurations passed", len(tc.Configurations))
	} else {
		failedCount := 0
		var msgs []string
		for _, cr := range results {
			if !cr.Success {
				failedCount++
				msgs = append(msgs, fmt.Sprintf("[%s] %s:\n  %s",
					cr.Configuration.Name, cr.Message, strings.Join(cr.Details, "\n  ")))
			}
		}
		resultMsg = fmt.Sprintf("%d/%d configurations failed:\n%s",
			failedCount, len(tc.Configurations), strings.Join(msgs, "\n"))
	}

	return &TestResult{
		TestCase:             tc,
		ConfigurationResults: results,
		Success:              allSuccess,
		Message:              resultMsg,
	}
}

// runConfiguration analyzes the snapshot under a single configuration.
func (h *TestHarness) runConfiguration(t *testing.T, tc *TestCase, cfg Configuration) *ConfigurationResult {
	t.Helper()
	analyzer, err := treeshake.NewAnalyzer(treeshake.AnalyzerOptions{
		Rules:      cfg.Keep,
		MinVersion: cfg.MinVersion,
	})
	require.NoError(t, err)

	result, err := analyzer.Analyze(t.Context(), tc.Snapshot)
	if err != nil {
		for _, expectedErr := range cfg.ExpectedErrors {
			if strings.Contains(err.Error(), expectedErr) {
				return &ConfigurationResult{
					Configuration: cfg,
					Success:       true,
					Message:       fmt.Sprintf("Got expected error: %v", err),
				}
			}
		}
		require.NoError(t, err)
	}
	if len(cfg.ExpectedErrors) > 0 {
		return &ConfigurationResult{
			Configuration: cfg,
			Result:        result,
			Message:       "Expected an error, analysis succeeded",
			Details:       cfg.ExpectedErrors,
		}
	}
	return validateConfigurationResults(cfg, result)
}

// ConfigurationResult represents the result of running a single configuration.
type ConfigurationResult struct {
	// Configuration is the configuration that was run.
	Configuration Configuration

	// Result is the raw result from the analyzer.
	Result *treeshake.Result

	// Success indicates if this configuration passed.
	Success bool

	// Message provides a summary of the result for this configuration.
	Message string

	// Details provides detailed information about failures.
	Details []string
}

// TestResult represents the result of running a test case.
type TestResult struct {
	TestCase             *TestCase
	ConfigurationResults []ConfigurationResult

	// Success indicates if all configurations passed.
	Success bool

	// Message provides a summary of the result.
	Message string
}

func validateConfigurationResults(cfg Configuration, r *treeshake.Result) *ConfigurationResult {
	var details []string

	for _, ref := range cfg.Live {
		if _, ok := r.Member(ref); !ok {
			details = append(details, "Should have been live: "+ref)
		}
	}
	for _, ref := range cfg.Dead {
		if _, ok := r.Member(ref); ok {
			details = append(details, "Should have been dead: "+ref)
		}
	}

	if cfg.Instantiated != nil {
		details = append(details, compareSets("instantiated", cfg.Instantiated, r.InstantiatedClasses)...)
	}
	details = append(details, compareSets("library override", cfg.LibraryOverrides, r.LibraryOverrides)...)
	details = append(details, compareSets("missing reference", cfg.Missing, r.Missing)...)

	for _, ref := range slices.Sorted(maps.Keys(cfg.Versions)) {
		want := cfg.Versions[ref]
		m, ok := r.Member(ref)
		switch {
		case !ok:
			details = append(details, fmt.Sprintf("Version of %s: not live, expected %s", ref, want))
		case m.MinVersion != want:
			details = append(details, fmt.Sprintf("Version of %s: expected %s, got %s", ref, want, m.MinVersion))
		}
	}

	if cfg.Dominance != nil {
		got := make(map[string]string, len(r.Dominance))
		for _, d := range r.Dominance {
			got[d.Class] = d.Dominator
		}
		for _, class := range slices.Sorted(maps.Keys(cfg.Dominance)) {
			if want := cfg.Dominance[class]; got[class] != want {
				details = append(details, fmt.Sprintf("Dominator of %s: expected %s, got %q", class, want, got[class]))
			}
		}
		for _, class := range slices.Sorted(maps.Keys(got)) {
			if _, ok := cfg.Dominance[class]; !ok {
				details = append(details, fmt.Sprintf("Unexpected dominator of %s: %s", class, got[class]))
			}
		}
	}

	cfgResult := &ConfigurationResult{
		Configuration: cfg,
		Result:        r,
		Success:       len(details) == 0,
		Details:       details,
	}
	if cfgResult.Success {
		cfgResult.Message = fmt.Sprintf("All expectations met (%d live members)", len(r.Members))
	} else {
		cfgResult.Message = fmt.Sprintf("Test failed: %d mismatches", len(details))
	}
	return cfgResult
}

// compareSets reports the elements missing from actual and the unexpected
// ones, sorted.
func compareSets(kind string, expected, actual []string) []string {
	var details []string
	for _, e := range slices.Sorted(slices.Values(expected)) {
		if !slices.Contains(actual, e) {
			details = append(details, fmt.Sprintf("Expected %s: %s", kind, e))
		}
	}
	for _, a := range slices.Sorted(slices.Values(actual)) {
		if !slices.Contains(expected, a) {
			details = append(details, fmt.Sprintf("Unexpected %s: %s", kind, a))
		}
	}
	return details
}
