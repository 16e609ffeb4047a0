package treeshake

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/715d/treeshake/pkg/snapshot"
)

const widgets = `
min_version: v21
classes:
  - name: java.lang.Object
    origin: library
    methods:
      - sig: <init>()
      - sig: java.lang.String toString()
  - {name: java.lang.String, origin: library, super: java.lang.Object}
  - name: java.io.Closeable
    origin: library
    flags: [interface]
    methods:
      - {sig: void close(), flags: [abstract]}
  - name: com.example.Widget
    super: java.lang.Object
    interfaces: [java.io.Closeable]
    methods:
      - sig: <init>()
        code: [invoke-direct java.lang.Object <init>()]
      - sig: void close()
        code: [invoke-static com.vendor.Sdk void release()]
      - sig: java.lang.String toString()
      - sig: void unused()
  - name: com.example.Main
    super: java.lang.Object
    methods:
      - sig: void main(java.lang.String[])
        flags: [static]
        code:
          - new-instance com.example.Widget
          - invoke-direct com.example.Widget <init>()
keep:
  - -keep class com.example.Main { void main(java.lang.String[]); }
versions:
  java.io.Closeable: v19
  java.io.Closeable#void close(): v19
`

func parse(t *testing.T, src string) *snapshot.Snapshot {
	t.Helper()
	s, err := snapshot.Parse(t.Name(), []byte(src))
	require.NoError(t, err)
	return s
}

func TestAnalyzer_NewAnalyzer(t *testing.T) {
	tests := []struct {
		name    string
		opts    AnalyzerOptions
		wantErr string
	}{
		{name: "defaults"},
		{name: "rules and floor", opts: AnalyzerOptions{Rules: []string{"-keep class a.**"}, MinVersion: "v26"}},
		{name: "bad rule", opts: AnalyzerOptions{Rules: []string{"-keep"}}, wantErr: "parse keep rules"},
		{name: "bad floor", opts: AnalyzerOptions{MinVersion: "twenty"}, wantErr: "parse min version"},
		{name: "unknown floor", opts: AnalyzerOptions{MinVersion: "unknown"}, wantErr: "must be known"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAnalyzer(tt.opts)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, a.nameCache)
		})
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	a, err := NewAnalyzer(AnalyzerOptions{})
	require.NoError(t, err)
	r, err := a.Analyze(t.Context(), parse(t, widgets))
	require.NoError(t, err)

	require.Equal(t, "v21", r.MinVersion)
	require.Equal(t, []string{"java.lang.Object", "java.io.Closeable", "com.example.Widget", "com.example.Main"}, r.LiveClasses)
	require.Equal(t, []string{"com.example.Widget"}, r.InstantiatedClasses)
	require.Equal(t, []string{
		"com.example.Widget#java.lang.String toString()",
		"com.example.Widget#void close()",
	}, r.LibraryOverrides)
	require.Equal(t, []string{"class com.vendor.Sdk"}, r.Missing)
	require.Equal(t, []Dominance{{Class: "com.example.Widget", Dominator: "com.example.Main"}}, r.Dominance)

	_, ok := r.Member("com.example.Widget#void unused()")
	require.False(t, ok, "unused is never called")

	closeMember, ok := r.Member("com.example.Widget#void close()")
	require.True(t, ok)
	require.Equal(t, Member{
		Ref:             "com.example.Widget#void close()",
		Name:            "Widget.close()",
		Kind:            "method",
		Reason:          "overrides java.io.Closeable",
		MinVersion:      "unknown",
		LibraryOverride: "true",
	}, closeMember)
	require.Equal(t, []Member{closeMember}, r.AboveFloor)

	main, ok := r.Member("com.example.Main#void main(java.lang.String[])")
	require.True(t, ok)
	require.Equal(t, "v21", main.MinVersion)
	require.Empty(t, main.LibraryOverride, "static methods carry no override flag")

	require.Equal(t, 5, r.Stats.Classes)
	require.Equal(t, 2, r.Stats.Roots, "the Main class and its main method")
	require.Equal(t, len(r.Members), r.Stats.LiveMethods+r.Stats.LiveFields)
}

func TestAnalyzer_MinVersionOverride(t *testing.T) {
	a, err := NewAnalyzer(AnalyzerOptions{MinVersion: "v30"})
	require.NoError(t, err)
	r, err := a.Analyze(t.Context(), parse(t, widgets))
	require.NoError(t, err)

	require.Equal(t, "v30", r.MinVersion)
	main, ok := r.Member("com.example.Main#void main(java.lang.String[])")
	require.True(t, ok)
	require.Equal(t, "v30", main.MinVersion)
}

func TestAnalyzer_ExtraRules(t *testing.T) {
	a, err := NewAnalyzer(AnalyzerOptions{Rules: []string{"-keep class com.example.Widget { void unused(); }"}})
	require.NoError(t, err)
	r, err := a.Analyze(t.Context(), parse(t, widgets))
	require.NoError(t, err)

	unused, ok := r.Member("com.example.Widget#void unused()")
	require.True(t, ok)
	require.Equal(t, "false", unused.LibraryOverride)
	require.Equal(t, 4, r.Stats.Roots)
}

func TestAnalyzer_Errors(t *testing.T) {
	a, err := NewAnalyzer(AnalyzerOptions{})
	require.NoError(t, err)

	_, err = a.Analyze(t.Context(), nil)
	require.ErrorContains(t, err, "no snapshot provided")

	_, err = a.Analyze(t.Context(), parse(t, `
classes:
  - {name: java.lang.Object, origin: library}
keep:
  - -keep class com.example.**
`))
	require.ErrorContains(t, err, "no entry points")

	_, err = a.Analyze(t.Context(), parse(t, `
classes:
  - {name: java.lang.Object, origin: library}
keep:
  - -keep nothing
`))
	require.ErrorContains(t, err, "invalid keep rule")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = a.Analyze(ctx, parse(t, widgets))
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzer_AnalyzeAllIsDeterministic(t *testing.T) {
	a, err := NewAnalyzer(AnalyzerOptions{})
	require.NoError(t, err)

	var snaps []*snapshot.Snapshot
	for range 8 {
		snaps = append(snaps, parse(t, widgets))
	}
	results, err := a.AnalyzeAll(t.Context(), snaps)
	require.NoError(t, err)
	require.Len(t, results, len(snaps))

	ignore := cmpopts.IgnoreFields(Stats{}, "Duration")
	for _, r := range results[1:] {
		if diff := cmp.Diff(results[0], r, ignore); diff != "" {
			t.Errorf("results differ (-first +other):\n%s", diff)
		}
	}
}
