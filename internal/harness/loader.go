package harness

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
	yaml "gopkg.in/yaml.v3"

	"github.com/715d/treeshake/pkg/snapshot"
)

// Fixture file names inside a txtar archive.
const (
	snapshotFile = "snapshot.yaml"
	expectedFile = "expected.yaml"
)

// LoadTestCase loads the fixture archive at path. The test case is named
// after the archive's path relative to root.
func LoadTestCase(t *testing.T, path, root string) *TestCase {
	t.Helper()
	ar, err := txtar.ParseFile(path)
	require.NoError(t, err)

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil {
			name = strings.TrimSuffix(filepath.ToSlash(rel), ".txtar")
		}
	}

	tc, err := parseArchive(name, ar)
	require.NoError(t, err, "fixture %s", path)
	return tc
}

func parseArchive(name string, ar *txtar.Archive) (*TestCase, error) {
	files := make(map[string][]byte, len(ar.Files))
	for _, f := range ar.Files {
		if _, dup := files[f.Name]; dup {
			return nil, fmt.Errorf("duplicate file %s", f.Name)
		}
		files[f.Name] = f.Data
	}
	for _, want := range []string{snapshotFile, expectedFile} {
		if _, ok := files[want]; !ok {
			return nil, fmt.Errorf("missing %s", want)
		}
	}

	s, err := snapshot.Parse(name, files[snapshotFile])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", snapshotFile, err)
	}
	var exp Expectations
	if err := yaml.Unmarshal(files[expectedFile], &exp); err != nil {
		return nil, fmt.Errorf("%s: %w", expectedFile, err)
	}
	if len(exp.Configurations) == 0 {
		return nil, fmt.Errorf("%s: no configurations", expectedFile)
	}
	return &TestCase{
		Name:           name,
		Description:    strings.TrimSpace(string(ar.Comment)),
		Snapshot:       s,
		Configurations: exp.Configurations,
	}, nil
}
