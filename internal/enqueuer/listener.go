package enqueuer

import "github.com/715d/treeshake/pkg/model"

// Worklist is the liveness surface offered to analyses. It may only be used
// from non-completion callbacks; any call made once completion has started
// fails the phase with ErrLivenessAfterCompletion.
type Worklist interface {
	MarkClassLive(c *model.Class, reason string)
	MarkInstantiated(c *model.Class, ctx *model.Method, reason string)
	MarkMethodLive(m *model.Method, ctx *model.Method, reason string)
	MarkFieldLive(f *model.Field, ctx *model.Method, reason string)
}

// Analysis is implemented by every registered listener. An analysis
// additionally implements any subset of the capability interfaces below.
type Analysis interface {
	Name() string
}

// NewlyLiveClassListener is notified once per live program class.
type NewlyLiveClassListener interface {
	ProcessNewlyLiveClass(c *model.Class, wl Worklist) error
}

// NewlyLiveNonProgramTypeListener is notified once per live classpath or
// library class.
type NewlyLiveNonProgramTypeListener interface {
	ProcessNewLiveNonProgramType(c *model.Class) error
}

// NewlyInstantiatedClassListener is notified once per instantiated class.
// ctx is the method containing the first allocation, nil when unknown.
type NewlyInstantiatedClassListener interface {
	ProcessNewlyInstantiatedClass(c *model.Class, ctx *model.Method, wl Worklist) error
}

// NewlyLiveMethodListener is notified once per live method.
type NewlyLiveMethodListener interface {
	ProcessNewlyLiveMethod(m *model.Method, ctx *model.Method, wl Worklist) error
}

// NewlyLiveFieldListener is notified once per live field.
type NewlyLiveFieldListener interface {
	ProcessNewlyLiveField(f *model.Field, ctx *model.Method, wl Worklist) error
}

// TracedCodeListener is notified once per traced method body, after all of
// its instructions were reported.
type TracedCodeListener interface {
	ProcessTracedCode(m *model.Method, wl Worklist) error
}

// The Trace listeners are notified once per occurrence in a traced body.
// No deduplication happens across sites.
type (
	InvokeStaticListener interface {
		TraceInvokeStatic(ref model.MethodRef, ctx *model.Method)
	}
	InvokeDirectListener interface {
		TraceInvokeDirect(ref model.MethodRef, ctx *model.Method)
	}
	InvokeSuperListener interface {
		TraceInvokeSuper(ref model.MethodRef, ctx *model.Method)
	}
	InvokeInterfaceListener interface {
		TraceInvokeInterface(ref model.MethodRef, ctx *model.Method)
	}
	InvokeVirtualListener interface {
		TraceInvokeVirtual(ref model.MethodRef, ctx *model.Method)
	}
	FieldAccessListener interface {
		TraceFieldAccess(ref model.FieldRef, kind model.FieldAccessKind, ctx *model.Method)
	}
	InstanceOfListener interface {
		TraceInstanceOf(ref model.ClassRef, ctx *model.Method)
	}

	// NewInstanceListener sees every allocation. ctx is nil for
	// reflective allocations.
	NewInstanceListener interface {
		TraceNewInstance(ref model.ClassRef, ctx *model.Method)
	}
	ConstClassListener interface {
		TraceConstClass(ref model.ClassRef, ctx *model.Method)
	}

	// NewArrayListener sees new-array and filled-new-array, including
	// arrays of primitives. constant is set for filled-new-array, whose
	// element count is length.
	NewArrayListener interface {
		TraceNewArray(elementType model.ClassRef, constant bool, length int, ctx *model.Method)
	}
)

// FixpointListener is notified each time the worklist drains. It may
// enqueue more work, in which case the engine continues.
type FixpointListener interface {
	NotifyFixpoint(wl Worklist) error
}

// FinishedListener is notified once, after the final fixpoint.
type FinishedListener interface {
	Done(state *State) error
}

// listeners holds the registered analyses sorted by capability, each list
// in registration order.
type listeners struct {
	analyses        []Analysis
	liveClass       []NewlyLiveClassListener
	liveNonProgram  []NewlyLiveNonProgramTypeListener
	instantiated    []NewlyInstantiatedClassListener
	liveMethod      []NewlyLiveMethodListener
	liveField       []NewlyLiveFieldListener
	tracedCode      []TracedCodeListener
	invokeStatic    []InvokeStaticListener
	invokeDirect    []InvokeDirectListener
	invokeSuper     []InvokeSuperListener
	invokeInterface []InvokeInterfaceListener
	invokeVirtual   []InvokeVirtualListener
	fieldAccess     []FieldAccessListener
	instanceOf      []InstanceOfListener
	newInstance     []NewInstanceListener
	constClass      []ConstClassListener
	newArray        []NewArrayListener
	fixpoint        []FixpointListener
	finished        []FinishedListener
}

func (l *listeners) add(a Analysis) {
	l.analyses = append(l.analyses, a)
	if x, ok := a.(NewlyLiveClassListener); ok {
		l.liveClass = append(l.liveClass, x)
	}
	if x, ok := a.(NewlyLiveNonProgramTypeListener); ok {
		l.liveNonProgram = append(l.liveNonProgram, x)
	}
	if x, ok := a.(NewlyInstantiatedClassListener); ok {
		l.instantiated = append(l.instantiated, x)
	}
	if x, ok := a.(NewlyLiveMethodListener); ok {
		l.liveMethod = append(l.liveMethod, x)
	}
	if x, ok := a.(NewlyLiveFieldListener); ok {
		l.liveField = append(l.liveField, x)
	}
	if x, ok := a.(TracedCodeListener); ok {
		l.tracedCode = append(l.tracedCode, x)
	}
	if x, ok := a.(InvokeStaticListener); ok {
		l.invokeStatic = append(l.invokeStatic, x)
	}
	if x, ok := a.(InvokeDirectListener); ok {
		l.invokeDirect = append(l.invokeDirect, x)
	}
	if x, ok := a.(InvokeSuperListener); ok {
		l.invokeSuper = append(l.invokeSuper, x)
	}
	if x, ok := a.(InvokeInterfaceListener); ok {
		l.invokeInterface = append(l.invokeInterface, x)
	}
	if x, ok := a.(InvokeVirtualListener); ok {
		l.invokeVirtual = append(l.invokeVirtual, x)
	}
	if x, ok := a.(FieldAccessListener); ok {
		l.fieldAccess = append(l.fieldAccess, x)
	}
	if x, ok := a.(InstanceOfListener); ok {
		l.instanceOf = append(l.instanceOf, x)
	}
	if x, ok := a.(NewInstanceListener); ok {
		l.newInstance = append(l.newInstance, x)
	}
	if x, ok := a.(ConstClassListener); ok {
		l.constClass = append(l.constClass, x)
	}
	if x, ok := a.(NewArrayListener); ok {
		l.newArray = append(l.newArray, x)
	}
	if x, ok := a.(FixpointListener); ok {
		l.fixpoint = append(l.fixpoint, x)
	}
	if x, ok := a.(FinishedListener); ok {
		l.finished = append(l.finished, x)
	}
}

// name returns the analysis name of a listener for error wrapping.
func name(x any) string {
	if a, ok := x.(Analysis); ok {
		return a.Name()
	}
	return "unknown"
}
