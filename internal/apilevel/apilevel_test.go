package apilevel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/treeshake/internal/enqueuer"
	"github.com/715d/treeshake/pkg/model"
	"github.com/715d/treeshake/pkg/snapshot"
)

const app = `
min_version: v21
classes:
  - {name: java.lang.Object, origin: library}
  - {name: java.lang.String, origin: library, super: java.lang.Object}
  - name: android.app.NotificationChannel
    origin: library
    super: java.lang.Object
    methods:
      - sig: <init>()
      - sig: void setName(java.lang.String)
  - name: android.os.Build
    origin: library
    super: java.lang.Object
    fields:
      - {name: SDK_INT, type: int, flags: [static]}
      - {name: SUPPORTED_ABIS, type: "java.lang.String[]", flags: [static]}
  - name: android.view.WindowInsets
    origin: library
    super: java.lang.Object
    methods:
      - sig: android.graphics.Insets getInsets(int)
  - name: com.example.Main
    super: java.lang.Object
    fields:
      - {name: channel, type: android.app.NotificationChannel}
    methods:
      - sig: void main()
        flags: [static]
        code:
          - invoke-static com.example.Main void plain()
          - invoke-static com.example.Main void notify()
          - invoke-static com.example.Main void insets()
          - invoke-static com.example.Main void vendor()
          - invoke-static com.example.Main void constClass()
          - invoke-static com.example.Main void filledArray()
          - invoke-static com.example.Main void emptyArray()
          - invoke-static com.example.Main void intArray()
          - invoke-static com.example.Main void take(android.app.NotificationChannel)
          - invoke-static com.example.Main android.app.NotificationChannel[] channels()
          - invoke-static com.example.Main java.lang.String label(int)
      - sig: void plain()
        flags: [static]
        code:
          - sget android.os.Build SDK_INT:int
      - sig: void notify()
        flags: [static]
        code:
          - new-instance android.app.NotificationChannel
          - invoke-direct android.app.NotificationChannel <init>()
          - invoke-virtual android.app.NotificationChannel void setName(java.lang.String)
      - sig: void insets()
        flags: [static]
        code:
          - invoke-virtual android.view.WindowInsets android.graphics.Insets getInsets(int)
          - iget com.example.Main channel:android.app.NotificationChannel
      - sig: void vendor()
        flags: [static]
        code:
          - invoke-static com.vendor.Sdk void init()
      - sig: void constClass()
        flags: [static]
        code: [const-class android.app.NotificationChannel]
      - sig: void filledArray()
        flags: [static]
        code: [filled-new-array android.app.NotificationChannel 2]
      - sig: void emptyArray()
        flags: [static]
        code: ["new-array android.app.NotificationChannel[]"]
      - sig: void intArray()
        flags: [static]
        code: ["new-array int[]"]
      - sig: void take(android.app.NotificationChannel)
        flags: [static]
      - sig: android.app.NotificationChannel[] channels()
        flags: [static]
      - sig: java.lang.String label(int)
        flags: [static]
versions:
  android.app.NotificationChannel: v26
  android.os.Build: v1
  android.os.Build#SDK_INT:int: v4
  android.view.WindowInsets: v20
  android.view.WindowInsets#android.graphics.Insets getInsets(int): v30
`

func run(t *testing.T) (*enqueuer.State, *Analysis, *model.Program) {
	t.Helper()
	s, err := snapshot.Parse(t.Name(), []byte(app))
	require.NoError(t, err)

	e := enqueuer.New(s.Program)
	a := New(s.Program, s.Versions, s.MinVersion, e.State())
	e.Register(a)

	mainRef, err := model.ParseMethodRef("com.example.Main#void main()")
	require.NoError(t, err)
	state, err := e.Run(enqueuer.Roots{Methods: []*model.Method{s.Program.ResolveMethod(mainRef)}})
	require.NoError(t, err)
	return state, a, s.Program
}

func minVersion(t *testing.T, state *enqueuer.State, prog *model.Program, ref string) string {
	t.Helper()
	r, err := model.ParseMethodRef(ref)
	require.NoError(t, err)
	mi := state.MethodInfo(prog.ResolveMethod(r))
	require.NotNil(t, mi, "%s is not live", ref)
	require.NotNil(t, mi.MinVersion)
	return mi.MinVersion.String()
}

func TestMinVersions(t *testing.T) {
	state, _, prog := run(t)

	tests := []struct {
		method string
		want   string
	}{
		{"com.example.Main#void plain()", "v21"},
		{"com.example.Main#void notify()", "v26"},
		{"com.example.Main#void insets()", "v30"},
		{"com.example.Main#void vendor()", "unknown"},
		{"com.example.Main#void main()", "v21"},
		{"android.app.NotificationChannel#void setName(java.lang.String)", "v26"},
		{"com.example.Main#void constClass()", "v26"},
		{"com.example.Main#void filledArray()", "v26"},
		{"com.example.Main#void emptyArray()", "v26"},
		{"com.example.Main#void intArray()", "v21"},
		{"com.example.Main#void take(android.app.NotificationChannel)", "v26"},
		{"com.example.Main#android.app.NotificationChannel[] channels()", "v26"},
		{"com.example.Main#java.lang.String label(int)", "v21"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			require.Equal(t, tt.want, minVersion(t, state, prog, tt.method))
		})
	}
}

func TestFloorMarkerIsShared(t *testing.T) {
	state, a, prog := run(t)

	var atFloor int
	for _, mi := range state.LiveMethods() {
		if mi.MinVersion.Equal(a.Floor()) {
			require.Same(t, a.Floor(), mi.MinVersion, "%s must reuse the floor marker", mi)
			atFloor++
		}
	}
	require.Positive(t, atFloor)

	build := prog.Definition("android.os.Build")
	sdk := state.FieldInfo(build.LookupField("SDK_INT"))
	require.NotNil(t, sdk)
	require.Same(t, a.Floor(), sdk.MinVersion, "v4 is below the v21 floor")

	channel := state.FieldInfo(prog.Definition("com.example.Main").LookupField("channel"))
	require.NotNil(t, channel)
	require.Equal(t, "v26", channel.MinVersion.String(), "field type counts")
}

func TestClassVersion(t *testing.T) {
	_, a, _ := run(t)
	require.Equal(t, "v21", a.ClassVersion("com.example.Main").String(), "program classes are at the floor")
	require.Equal(t, "v26", a.ClassVersion("android.app.NotificationChannel").String())
	require.Same(t, a.Floor(), a.ClassVersion("android.view.WindowInsets"), "v20 is below the floor")
	require.True(t, a.ClassVersion("com.vendor.Sdk").IsUnknown())

	ref, ok := classType("java.lang.String[][]")
	require.True(t, ok)
	require.Equal(t, model.ClassRef("java.lang.String"), ref)
	_, ok = classType("int[]")
	require.False(t, ok)
}
