package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/treeshake/pkg/model"
)

const widgetSnapshot = `
min_version: v21
classes:
  - name: java.lang.Object
    origin: library
    methods:
      - sig: <init>()
  - name: java.io.Closeable
    origin: library
    flags: [interface]
    methods:
      - {sig: void close(), flags: [abstract]}
  - name: com.example.Widget
    interfaces: [java.io.Closeable]
    super: java.lang.Object
    fields:
      - {name: count, type: int, flags: [static]}
    methods:
      - sig: void close()
        code:
          - sget com.example.Widget count:int
          - new-instance com.example.Widget
keep:
  - -keep class com.example.Widget
versions:
  java.io.Closeable: v19
`

func TestParse(t *testing.T) {
	s, err := Parse("widget.yaml", []byte(widgetSnapshot))
	require.NoError(t, err)
	require.Equal(t, "widget.yaml", s.Name)
	require.Equal(t, model.DefaultRoot, s.Program.Root())
	require.Equal(t, 3, s.Program.Len())
	require.Equal(t, "v21", s.MinVersion.String())
	require.Equal(t, 1, s.Versions.Len())
	require.Equal(t, []string{"-keep class com.example.Widget"}, s.Keep)

	w, kind := s.Program.Lookup("com.example.Widget")
	require.Equal(t, model.LookupProgram, kind)
	require.Equal(t, model.ClassID(2), w.ID)

	closeM := w.LookupMethod(model.MethodSignature{Name: "close", Return: "void"})
	require.NotNil(t, closeM)
	require.Len(t, closeM.Code.Instructions, 2)
	require.Equal(t, model.OpStaticGet, closeM.Code.Instructions[0].Op)
	require.NotNil(t, w.LookupField("count"))

	closeable, kind := s.Program.Lookup("java.io.Closeable")
	require.Equal(t, model.LookupLibrary, kind)
	require.True(t, closeable.IsInterface())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:  "bad yaml",
			input: "classes: [",
		},
		{
			name:    "duplicate class",
			input:   "classes: [{name: a.A}, {name: a.A}]",
			wantErr: model.ErrDuplicateClass,
		},
		{
			name:    "bad origin",
			input:   "classes: [{name: a.A, origin: vendor}]",
			wantErr: model.ErrMalformed,
		},
		{
			name:    "bad instruction",
			input:   "classes: [{name: a.A, methods: [{sig: void f(), code: [jump a.B]}]}]",
			wantErr: model.ErrMalformed,
		},
		{
			name:    "duplicate method",
			input:   "classes: [{name: a.A, methods: [{sig: void f()}, {sig: void f()}]}]",
			wantErr: model.ErrMalformed,
		},
		{
			name:  "unknown floor",
			input: "min_version: unknown\nclasses: []",
		},
		{
			name:  "bad version table",
			input: "classes: []\nversions: {a.A: later}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.name, []byte(tt.input))
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(widgetSnapshot), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, s.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
