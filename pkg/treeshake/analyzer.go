package treeshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/715d/treeshake/internal/analysis"
	"github.com/715d/treeshake/internal/apilevel"
	"github.com/715d/treeshake/internal/enqueuer"
	"github.com/715d/treeshake/internal/initdom"
	"github.com/715d/treeshake/internal/override"
	"github.com/715d/treeshake/pkg/keep"
	"github.com/715d/treeshake/pkg/platform"
	"github.com/715d/treeshake/pkg/snapshot"
)

// AnalyzerOptions holds configuration options for the analyzer.
type AnalyzerOptions struct {
	// Rules are keep rules applied in addition to each snapshot's own.
	Rules []string

	// MinVersion overrides the platform floor of every snapshot when set.
	MinVersion string
}

// Analyzer runs one reachability phase per snapshot. It is safe to call
// Analyze concurrently for different snapshots.
type Analyzer struct {
	nameCache *analysis.NameCache
	rules     []*keep.Rule
	floor     *platform.Version
	opts      AnalyzerOptions
}

// NewAnalyzer creates a new analyzer with the given options.
func NewAnalyzer(opts AnalyzerOptions) (*Analyzer, error) {
	a := &Analyzer{
		nameCache: analysis.NewNameCache(),
		opts:      opts,
	}
	rules, err := keep.Parse(opts.Rules)
	if err != nil {
		return nil, fmt.Errorf("parse keep rules: %w", err)
	}
	a.rules = rules
	if opts.MinVersion != "" {
		floor, err := platform.Parse(opts.MinVersion)
		if err != nil {
			return nil, fmt.Errorf("parse min version: %w", err)
		}
		if floor.IsUnknown() {
			return nil, errors.New("min version must be known")
		}
		a.floor = floor
	}
	return a, nil
}

// Analyze runs a fresh phase over s with the library override,
// version-gating and initialization-dominance analyses registered.
func (a *Analyzer) Analyze(ctx context.Context, s *snapshot.Snapshot) (*Result, error) {
	if s == nil || s.Program == nil {
		return nil, errors.New("no snapshot provided")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	// Step 1: Select entry points.
	own, err := keep.Parse(s.Keep)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.Name, err)
	}
	roots := keep.Select(s.Program, slices.Concat(own, a.rules))
	if roots.Len() == 0 {
		return nil, fmt.Errorf("snapshot %s: no entry points", s.Name)
	}

	floor := s.MinVersion
	if a.floor != nil {
		floor = a.floor
	}

	// Step 2: Build the phase.
	e := enqueuer.New(s.Program)
	overrides := override.New(s.Program)
	versions := apilevel.New(s.Program, s.Versions, floor, e.State())
	dominance := initdom.New(s.Program)
	e.Register(overrides)
	e.Register(versions)
	e.Register(dominance)

	// Step 3: Run to the fixpoint and completion.
	state, err := e.Run(enqueuer.Roots{
		Classes:      roots.Classes,
		Methods:      roots.Methods,
		Fields:       roots.Fields,
		Instantiated: roots.Instantiated,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.Name, err)
	}

	r := a.assemble(s, state, floor, dominance)
	r.Stats.Roots = roots.Len()
	r.Stats.HierarchyJoin = overrides.Stats().Joins
	r.Stats.Duration = time.Since(start)
	slog.Debug("snapshot analyzed",
		"snapshot", s.Name,
		"live_classes", r.Stats.LiveClasses,
		"live_methods", r.Stats.LiveMethods,
		"overrides", len(r.LibraryOverrides),
		"dur", r.Stats.Duration)
	return r, nil
}

func (a *Analyzer) assemble(s *snapshot.Snapshot, state *enqueuer.State, floor *platform.Version, dominance *initdom.Analysis) *Result {
	r := &Result{
		Snapshot:   s.Name,
		MinVersion: floor.String(),
		Missing:    state.Missing(),
	}

	live := state.LiveClasses()
	for _, c := range live {
		r.LiveClasses = append(r.LiveClasses, string(c.Name))
	}
	for _, c := range state.InstantiatedClasses() {
		r.InstantiatedClasses = append(r.InstantiatedClasses, string(c.Name))
	}

	for _, mi := range slices.Concat(state.LiveMethods(), state.LiveFields()) {
		m := a.member(mi)
		r.Members = append(r.Members, m)
		if mi.MinVersion != nil && !mi.MinVersion.Equal(floor) {
			r.AboveFloor = append(r.AboveFloor, m)
		}
		if mi.LibraryOverride().IsTrue() {
			r.LibraryOverrides = append(r.LibraryOverrides, m.Ref)
		}
	}
	byRef := func(x, y Member) int { return strings.Compare(x.Ref, y.Ref) }
	slices.SortFunc(r.Members, byRef)
	slices.SortFunc(r.AboveFloor, byRef)
	slices.Sort(r.LibraryOverrides)

	for _, c := range dominance.Classes() {
		dom, _ := dominance.Dominator(c)
		r.Dominance = append(r.Dominance, Dominance{Class: string(c.Name), Dominator: string(dom)})
	}

	stats := state.Stats()
	r.Stats = Stats{
		Classes:      s.Program.Len(),
		LiveClasses:  len(live),
		LiveMethods:  len(state.LiveMethods()),
		LiveFields:   len(state.LiveFields()),
		Rounds:       stats.Rounds,
		Traced:       stats.Traced,
		Dispatches:   stats.Dispatches,
		Instructions: stats.Instructions,
	}
	return r
}

func (a *Analyzer) member(mi *analysis.MemberInfo) Member {
	m := Member{
		Name:   a.nameCache.MemberName(mi),
		Reason: mi.Reason,
	}
	if mi.MinVersion != nil {
		m.MinVersion = mi.MinVersion.String()
	}
	if mi.IsMethod() {
		m.Ref = mi.Method.String()
		m.Kind = "method"
		if mi.Method.Holder.IsProgram() && mi.Method.IsVirtual() {
			m.LibraryOverride = mi.LibraryOverride().String()
		}
		return m
	}
	m.Ref = mi.Field.String()
	m.Kind = "field"
	return m
}
