package enqueuer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/treeshake/pkg/model"
	"github.com/715d/treeshake/pkg/snapshot"
)

const shapes = `
classes:
  - name: java.lang.Object
    origin: library
    methods:
      - sig: <init>()
      - sig: java.lang.String toString()
  - name: java.lang.Runnable
    origin: library
    flags: [interface]
    methods:
      - {sig: void run(), flags: [abstract]}
  - name: com.example.Shape
    flags: [abstract]
    super: java.lang.Object
    methods:
      - {sig: double area(), flags: [abstract]}
      - sig: <clinit>()
        code:
          - sput com.example.Shape count:int
    fields:
      - {name: count, type: int, flags: [static]}
  - name: com.example.Circle
    super: com.example.Shape
    methods:
      - sig: <init>()
      - sig: double area()
        code:
          - iget com.example.Circle radius:double
      - sig: void unused()
    fields:
      - {name: radius, type: double}
  - name: com.example.Square
    super: com.example.Shape
    methods:
      - sig: <init>()
      - sig: double area()
  - name: com.example.Main
    super: java.lang.Object
    methods:
      - sig: void main(java.lang.String[])
        flags: [static]
        code:
          - new-instance com.example.Circle
          - invoke-direct com.example.Circle <init>()
          - invoke-virtual com.example.Shape double area()
          - invoke-virtual com.example.Shape double area()
          - check-cast com.example.Square
          - invoke-static com.example.Gone void vanish()
          - sget com.example.Main missing:int
          - filled-new-array com.example.Square[] 2
          - const-class com.example.Circle
`

func load(t *testing.T, src string) *model.Program {
	t.Helper()
	s, err := snapshot.Parse(t.Name(), []byte(src))
	require.NoError(t, err)
	return s.Program
}

func method(t *testing.T, prog *model.Program, ref string) *model.Method {
	t.Helper()
	r, err := model.ParseMethodRef(ref)
	require.NoError(t, err)
	m := prog.ResolveMethod(r)
	require.NotNil(t, m, "method %s", ref)
	return m
}

// recorder logs every callback it receives.
type recorder struct {
	name   string
	events []string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) log(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) ProcessNewlyLiveClass(c *model.Class, _ Worklist) error {
	r.log("class %s", c.Name)
	return nil
}

func (r *recorder) ProcessNewLiveNonProgramType(c *model.Class) error {
	r.log("library %s", c.Name)
	return nil
}

func (r *recorder) ProcessNewlyInstantiatedClass(c *model.Class, _ *model.Method, _ Worklist) error {
	r.log("new %s", c.Name)
	return nil
}

func (r *recorder) ProcessNewlyLiveMethod(m *model.Method, _ *model.Method, _ Worklist) error {
	r.log("method %s", m)
	return nil
}

func (r *recorder) TraceInvokeVirtual(ref model.MethodRef, _ *model.Method) {
	r.log("invoke-virtual %s", ref)
}

func (r *recorder) TraceInstanceOf(ref model.ClassRef, _ *model.Method) {
	r.log("instance-of %s", ref)
}

func (r *recorder) TraceConstClass(ref model.ClassRef, _ *model.Method) {
	r.log("const-class %s", ref)
}

func (r *recorder) TraceNewArray(elem model.ClassRef, constant bool, length int, ctx *model.Method) {
	r.log("new-array %s constant=%t length=%d in %s", elem, constant, length, ctx)
}

func (r *recorder) Done(*State) error {
	r.log("done")
	return nil
}

func count(events []string, want string) int {
	n := 0
	for _, e := range events {
		if e == want {
			n++
		}
	}
	return n
}

func TestRun_Reachability(t *testing.T) {
	prog := load(t, shapes)
	e := New(prog)
	rec := &recorder{name: "rec"}
	e.Register(rec)

	state, err := e.Run(Roots{Methods: []*model.Method{
		method(t, prog, "com.example.Main#void main(java.lang.String[])"),
	}})
	require.NoError(t, err)

	live := func(ref string) bool {
		r, err := model.ParseMethodRef(ref)
		require.NoError(t, err)
		return state.MethodInfo(prog.ResolveMethod(r)) != nil
	}
	require.True(t, live("com.example.Circle#double area()"), "dispatched on instantiated Circle")
	require.True(t, live("com.example.Circle#<init>()"))
	require.True(t, live("com.example.Shape#<clinit>()"), "static initializer of live class")
	require.False(t, live("com.example.Square#double area()"), "Square is never instantiated")
	require.False(t, live("com.example.Circle#void unused()"))

	square, _ := prog.Lookup("com.example.Square")
	require.True(t, state.IsLiveClass(square), "check-cast keeps the class")
	require.False(t, state.IsInstantiated(square))
	circle, _ := prog.Lookup("com.example.Circle")
	require.True(t, state.IsInstantiated(circle))
	require.Equal(t, []*model.Class{circle}, state.InstantiatedClasses())

	require.NotNil(t, state.FieldInfo(circle.LookupField("radius")))
	require.Equal(t, []string{
		"class com.example.Gone",
		"field com.example.Main#missing:int",
	}, state.Missing())

	// Per-occurrence tracing, once-only liveness.
	require.Equal(t, 2, count(rec.events, "invoke-virtual com.example.Shape#double area()"))
	require.Equal(t, 1, count(rec.events, "method com.example.Circle#double area()"))
	require.Equal(t, 1, count(rec.events, "class com.example.Circle"))
	require.Equal(t, 1, count(rec.events, "library java.lang.Object"))
	require.Equal(t, 1, count(rec.events, "instance-of com.example.Square"))
	require.Equal(t, 1, count(rec.events, "const-class com.example.Circle"))
	require.Equal(t, 1, count(rec.events,
		"new-array com.example.Square[] constant=true length=2 in com.example.Main#void main(java.lang.String[])"))
	require.Equal(t, "done", rec.events[len(rec.events)-1])
	require.Equal(t, 1, count(rec.events, "done"))
}

func TestRun_ReflectiveInstantiation(t *testing.T) {
	prog := load(t, shapes)
	e := New(prog)

	square, _ := prog.Lookup("com.example.Square")
	state, err := e.Run(Roots{
		Methods:      []*model.Method{method(t, prog, "com.example.Main#void main(java.lang.String[])")},
		Instantiated: []*model.Class{square},
	})
	require.NoError(t, err)
	require.True(t, state.IsInstantiated(square))
	require.Equal(t, square, state.InstantiationOrder()[0])
	require.NotNil(t, state.MethodInfo(method(t, prog, "com.example.Square#double area()")))
}

func TestRun_RegistrationOrder(t *testing.T) {
	prog := load(t, shapes)
	e := New(prog)

	var order []string
	for _, n := range []string{"first", "second", "third"} {
		e.Register(&orderListener{name: n, order: &order})
	}
	_, err := e.Run(Roots{Methods: []*model.Method{
		method(t, prog, "com.example.Square#<init>()"),
	}})
	require.NoError(t, err)
	// Square.<init>, then the static initializer of its superclass Shape.
	require.Equal(t, []string{
		"first:method", "second:method", "third:method",
		"first:method", "second:method", "third:method",
		"first:done", "second:done", "third:done",
	}, order)
}

type orderListener struct {
	name  string
	order *[]string
}

func (l *orderListener) Name() string { return l.name }

func (l *orderListener) ProcessNewlyLiveMethod(*model.Method, *model.Method, Worklist) error {
	*l.order = append(*l.order, l.name+":method")
	return nil
}

func (l *orderListener) Done(*State) error {
	*l.order = append(*l.order, l.name+":done")
	return nil
}

// fixpointAdder keeps Square alive only once the first fixpoint is reached.
type fixpointAdder struct {
	square *model.Class
	calls  int
}

func (f *fixpointAdder) Name() string { return "fixpoint" }

func (f *fixpointAdder) NotifyFixpoint(wl Worklist) error {
	f.calls++
	wl.MarkInstantiated(f.square, nil, "fixpoint")
	return nil
}

func TestRun_FixpointMayEnqueue(t *testing.T) {
	prog := load(t, shapes)
	square, _ := prog.Lookup("com.example.Square")
	adder := &fixpointAdder{square: square}

	e := New(prog)
	e.Register(adder)
	state, err := e.Run(Roots{Methods: []*model.Method{
		method(t, prog, "com.example.Main#void main(java.lang.String[])"),
	}})
	require.NoError(t, err)
	require.True(t, state.IsInstantiated(square))
	require.NotNil(t, state.MethodInfo(method(t, prog, "com.example.Square#double area()")))
	require.Equal(t, 2, adder.calls, "second fixpoint adds nothing")
	require.Equal(t, 2, state.Stats().Rounds)
}

// lateMarker captures the worklist and misuses it at completion.
type lateMarker struct {
	wl Worklist
	m  *model.Method
}

func (l *lateMarker) Name() string { return "late" }

func (l *lateMarker) ProcessNewlyLiveMethod(_ *model.Method, _ *model.Method, wl Worklist) error {
	l.wl = wl
	return nil
}

func (l *lateMarker) Done(*State) error {
	l.wl.MarkMethodLive(l.m, nil, "too late")
	return nil
}

func TestRun_LivenessAfterCompletion(t *testing.T) {
	prog := load(t, shapes)
	late := &lateMarker{m: method(t, prog, "com.example.Circle#void unused()")}

	e := New(prog)
	e.Register(late)
	_, err := e.Run(Roots{Methods: []*model.Method{
		method(t, prog, "com.example.Square#<init>()"),
	}})
	require.ErrorIs(t, err, ErrLivenessAfterCompletion)
	require.ErrorContains(t, err, "late")
}

type failing struct{}

func (failing) Name() string { return "broken" }

func (failing) ProcessNewlyLiveClass(*model.Class, Worklist) error {
	return errors.New("boom")
}

func TestRun_CallbackErrorAborts(t *testing.T) {
	prog := load(t, shapes)
	e := New(prog)
	e.Register(failing{})
	state, err := e.Run(Roots{Methods: []*model.Method{
		method(t, prog, "com.example.Square#<init>()"),
	}})
	require.Nil(t, state)
	require.ErrorContains(t, err, "broken: live class com.example.Square: boom")

	_, err = e.Run(Roots{})
	require.Error(t, err, "an engine serves one phase")
}

func TestRun_SupertypesAndInterfaces(t *testing.T) {
	prog := load(t, `
classes:
  - {name: java.lang.Object, origin: library}
  - {name: java.lang.Runnable, origin: library, flags: [interface], methods: [{sig: void run(), flags: [abstract]}]}
  - name: com.example.Task
    super: java.lang.Object
    interfaces: [java.lang.Runnable, com.example.Absent]
    methods:
      - sig: <init>()
      - sig: void run()
  - name: com.example.Main
    super: java.lang.Object
    methods:
      - sig: void main()
        flags: [static]
        code:
          - new-instance com.example.Task
          - invoke-interface java.lang.Runnable void run()
`)
	e := New(prog)
	state, err := e.Run(Roots{Methods: []*model.Method{method(t, prog, "com.example.Main#void main()")}})
	require.NoError(t, err)

	runnable, _ := prog.Lookup("java.lang.Runnable")
	require.True(t, state.IsLiveClass(runnable))
	require.NotNil(t, state.MethodInfo(method(t, prog, "com.example.Task#void run()")))
	require.Contains(t, state.Missing(), "class com.example.Absent")

	names := make([]model.ClassRef, 0)
	for _, c := range state.LiveClasses() {
		names = append(names, c.Name)
	}
	require.Equal(t, []model.ClassRef{
		"java.lang.Object", "java.lang.Runnable", "com.example.Task", "com.example.Main",
	}, names)
}
