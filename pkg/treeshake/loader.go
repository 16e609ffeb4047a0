package treeshake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/715d/treeshake/pkg/snapshot"
)

// LoaderOptions configures snapshot loading.
type LoaderOptions struct {
	// Paths are snapshot files or directories. A directory contributes its
	// *.yaml and *.yml files.
	Paths []string

	// Dir resolves relative paths. If empty, uses the current working
	// directory.
	Dir string
}

// LoadSnapshots decodes the snapshots named by opts concurrently. The result
// follows the order of the expanded paths, each path once.
func LoadSnapshots(ctx context.Context, opts LoaderOptions) ([]*snapshot.Snapshot, error) {
	paths, err := expandPaths(opts)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no snapshots found matching paths: %v", opts.Paths)
	}

	// Each goroutine writes only its own index.
	snaps := make([]*snapshot.Snapshot, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(goruntime.NumCPU())
	for idx, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := snapshot.Load(path)
			if err != nil {
				return err
			}
			snaps[idx] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	return snaps, nil
}

// AnalyzeAll analyzes independent snapshots concurrently, one phase each.
// Results are in the order of snaps.
func (a *Analyzer) AnalyzeAll(ctx context.Context, snaps []*snapshot.Snapshot) ([]*Result, error) {
	results := make([]*Result, len(snaps))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(goruntime.NumCPU())
	for idx, s := range snaps {
		g.Go(func() error {
			r, err := a.Analyze(ctx, s)
			if err != nil {
				return err
			}
			results[idx] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func expandPaths(opts LoaderOptions) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range opts.Paths {
		if opts.Dir != "" && !filepath.IsAbs(p) {
			p = filepath.Join(opts.Dir, p)
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat snapshot: %w", err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		var files []string
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(p, pattern))
			if err != nil {
				return nil, fmt.Errorf("listing %s: %w", p, err)
			}
			files = append(files, matches...)
		}
		slices.Sort(files)
		for _, f := range files {
			add(f)
		}
	}
	return out, nil
}
