package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/treeshake/pkg/treeshake"
)

func sampleResult(name string) *treeshake.Result {
	closeM := treeshake.Member{
		Ref:             "com.example.Widget#void close()",
		Name:            "Widget.close()",
		Kind:            "method",
		Reason:          "overrides java.io.Closeable",
		MinVersion:      "v26",
		LibraryOverride: "true",
	}
	return &treeshake.Result{
		Snapshot:         name,
		MinVersion:       "v21",
		LiveClasses:      []string{"com.example.Main", "com.example.Widget"},
		Members:          []treeshake.Member{closeM},
		LibraryOverrides: []string{closeM.Ref},
		AboveFloor:       []treeshake.Member{closeM},
		Dominance:        []treeshake.Dominance{{Class: "com.example.Widget", Dominator: "com.example.Main"}},
		Missing:          []string{"class com.vendor.Sdk"},
		Stats:            treeshake.Stats{LiveClasses: 2, LiveMethods: 1},
	}
}

func TestWriteResults_Text(t *testing.T) {
	tests := []struct {
		name    string
		results []*treeshake.Result
		verbose bool
		want    string
	}{
		{
			name:    "single snapshot",
			results: []*treeshake.Result{sampleResult("app")},
			want: "live: 2 classes, 1 methods, 0 fields\n" +
				"override com.example.Widget#void close()\n" +
				"requires v26 com.example.Widget#void close()\n" +
				"dominates com.example.Main com.example.Widget\n" +
				"missing class com.vendor.Sdk\n",
		},
		{
			name:    "verbose lists members",
			results: []*treeshake.Result{sampleResult("app")},
			verbose: true,
			want: "live: 2 classes, 1 methods, 0 fields\n" +
				"override com.example.Widget#void close()\n" +
				"requires v26 com.example.Widget#void close()\n" +
				"dominates com.example.Main com.example.Widget\n" +
				"missing class com.vendor.Sdk\n" +
				"  method com.example.Widget#void close() (overrides java.io.Closeable)\n",
		},
		{
			name:    "several snapshots are labeled",
			results: []*treeshake.Result{{Snapshot: "a"}, {Snapshot: "b"}},
			want: "a:\nlive: 0 classes, 0 methods, 0 fields\n" +
				"b:\nlive: 0 classes, 0 methods, 0 fields\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeResults(&buf, tt.results, &Config{Verbose: tt.verbose}))
			require.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriteResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, []*treeshake.Result{sampleResult("app")}, &Config{JSON: true}))

	var out jOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, version, out.Version)
	require.NotEmpty(t, out.Timestamp)
	require.Len(t, out.Results, 1)
	require.Equal(t, "app", out.Results[0].Snapshot)
	require.Equal(t, "true", out.Results[0].Members[0].LibraryOverride)
}

func TestCodedError(t *testing.T) {
	inner := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", errWithCode(inner, exitError))

	var cErr codedError
	require.ErrorAs(t, err, &cErr)
	require.Equal(t, exitError, cErr.code)
	require.ErrorIs(t, err, inner)

	require.Empty(t, errWithCode(nil, exitMissingFound).Error())
}
