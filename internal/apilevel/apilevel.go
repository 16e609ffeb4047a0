// Package apilevel computes the minimum platform version required by every
// live member.
//
// The version of a member is the maximum, over the member's own reference
// and every type and member its body refers to, of the version listed in the
// platform table. References to classes outside the program model are
// Unknown, which orders above every concrete version. Members that only
// need the compilation floor share one floor marker.
package apilevel

import (
	"log/slog"
	"strings"

	"github.com/715d/treeshake/internal/enqueuer"
	"github.com/715d/treeshake/pkg/model"
	"github.com/715d/treeshake/pkg/platform"
)

// Analysis is the version-gating analysis of one phase.
type Analysis struct {
	prog  *model.Program
	table *platform.Table
	state *enqueuer.State

	// floor is the shared marker stored on members that need nothing
	// newer than the compilation floor.
	floor *platform.Version

	// Version accumulated over the body being traced.
	tracing *model.Method
	acc     *platform.Version
}

var (
	_ enqueuer.NewlyLiveMethodListener = (*Analysis)(nil)
	_ enqueuer.NewlyLiveFieldListener  = (*Analysis)(nil)
	_ enqueuer.TracedCodeListener      = (*Analysis)(nil)
	_ enqueuer.InvokeVirtualListener   = (*Analysis)(nil)
	_ enqueuer.FieldAccessListener     = (*Analysis)(nil)
	_ enqueuer.ConstClassListener      = (*Analysis)(nil)
	_ enqueuer.NewArrayListener        = (*Analysis)(nil)
	_ enqueuer.FinishedListener        = (*Analysis)(nil)
)

// New creates the analysis. state is the liveness state of the engine the
// analysis is registered with.
func New(prog *model.Program, table *platform.Table, floor *platform.Version, state *enqueuer.State) *Analysis {
	return &Analysis{
		prog:  prog,
		table: table,
		state: state,
		floor: floor,
	}
}

// Name implements enqueuer.Analysis.
func (a *Analysis) Name() string { return "api-level" }

// Floor returns the shared floor marker.
func (a *Analysis) Floor() *platform.Version { return a.floor }

// ClassVersion returns the version introducing ref.
func (a *Analysis) ClassVersion(ref model.ClassRef) *platform.Version {
	c, kind := a.prog.Lookup(ref)
	switch kind {
	case model.LookupMissing:
		return platform.Unknown
	case model.LookupProgram:
		return a.floor
	}
	if v, ok := a.table.Class(c.Name); ok {
		return platform.Max(a.floor, v)
	}
	return a.floor
}

// MethodVersion returns the version introducing ref, which is never older
// than its holder.
func (a *Analysis) MethodVersion(ref model.MethodRef) *platform.Version {
	v := a.ClassVersion(ref.Holder)
	if w, ok := a.table.Method(ref); ok {
		v = platform.Max(v, w)
	}
	return v
}

// FieldVersion returns the version introducing ref, which is never older
// than its holder.
func (a *Analysis) FieldVersion(ref model.FieldRef) *platform.Version {
	v := a.ClassVersion(ref.Holder)
	if w, ok := a.table.Field(ref); ok {
		v = platform.Max(v, w)
	}
	return v
}

// ProcessNewlyLiveMethod records the version of the method's own
// reference and of its parameter and return types. The body, if any, is
// accounted for once it is traced.
func (a *Analysis) ProcessNewlyLiveMethod(m *model.Method, _ *model.Method, _ enqueuer.Worklist) error {
	mi := a.state.MethodInfo(m)
	if mi == nil {
		return nil
	}
	v := a.MethodVersion(m.Reference())
	for _, typ := range append(m.Signature.ParamTypes(), m.Signature.Return) {
		if ref, ok := classType(typ); ok {
			v = platform.Max(v, a.ClassVersion(ref))
		}
	}
	mi.MinVersion = a.intern(v)
	return nil
}

// ProcessNewlyLiveField records the version of the field and its type.
func (a *Analysis) ProcessNewlyLiveField(f *model.Field, _ *model.Method, _ enqueuer.Worklist) error {
	fi := a.state.FieldInfo(f)
	if fi == nil {
		return nil
	}
	v := a.FieldVersion(f.Reference())
	if typ, ok := classType(f.Type); ok {
		v = platform.Max(v, a.ClassVersion(typ))
	}
	fi.MinVersion = a.intern(v)
	return nil
}

func (a *Analysis) TraceInvokeStatic(ref model.MethodRef, ctx *model.Method) {
	a.add(ctx, a.MethodVersion(ref))
}

func (a *Analysis) TraceInvokeDirect(ref model.MethodRef, ctx *model.Method) {
	a.add(ctx, a.MethodVersion(ref))
}

func (a *Analysis) TraceInvokeSuper(ref model.MethodRef, ctx *model.Method) {
	a.add(ctx, a.MethodVersion(ref))
}

func (a *Analysis) TraceInvokeInterface(ref model.MethodRef, ctx *model.Method) {
	a.add(ctx, a.MethodVersion(ref))
}

func (a *Analysis) TraceInvokeVirtual(ref model.MethodRef, ctx *model.Method) {
	a.add(ctx, a.MethodVersion(ref))
}

func (a *Analysis) TraceFieldAccess(ref model.FieldRef, _ model.FieldAccessKind, ctx *model.Method) {
	a.add(ctx, a.FieldVersion(ref))
}

func (a *Analysis) TraceInstanceOf(ref model.ClassRef, ctx *model.Method) {
	a.add(ctx, a.ClassVersion(ref))
}

func (a *Analysis) TraceConstClass(ref model.ClassRef, ctx *model.Method) {
	a.add(ctx, a.ClassVersion(ref))
}

func (a *Analysis) TraceNewArray(elementType model.ClassRef, _ bool, _ int, ctx *model.Method) {
	if ref, ok := classType(string(elementType)); ok {
		a.add(ctx, a.ClassVersion(ref))
	}
}

func (a *Analysis) TraceNewInstance(ref model.ClassRef, ctx *model.Method) {
	if ctx != nil {
		a.add(ctx, a.ClassVersion(ref))
	}
}

// add folds v into the accumulator of the body of ctx.
func (a *Analysis) add(ctx *model.Method, v *platform.Version) {
	if a.tracing != ctx {
		a.tracing, a.acc = ctx, a.floor
	}
	a.acc = platform.Max(a.acc, v)
}

// ProcessTracedCode stores the maximum over the traced body.
func (a *Analysis) ProcessTracedCode(m *model.Method, _ enqueuer.Worklist) error {
	mi := a.state.MethodInfo(m)
	if mi != nil && a.tracing == m {
		cur := mi.MinVersion
		if cur == nil {
			cur = a.floor
		}
		mi.MinVersion = a.intern(platform.Max(cur, a.acc))
	}
	a.tracing, a.acc = nil, nil
	return nil
}

// Done reports how many members need more than the floor.
func (a *Analysis) Done(state *enqueuer.State) error {
	above := 0
	for _, mi := range state.LiveMethods() {
		if mi.MinVersion != a.floor {
			above++
		}
	}
	for _, fi := range state.LiveFields() {
		if fi.MinVersion != a.floor {
			above++
		}
	}
	slog.Debug("api levels", "floor", a.floor.String(), "above_floor", above)
	return nil
}

// intern returns the shared floor marker for floor versions.
func (a *Analysis) intern(v *platform.Version) *platform.Version {
	if v == nil || v.Equal(a.floor) {
		return a.floor
	}
	return v
}

// classType returns the class named by a type descriptor, stripping array
// dimensions. It reports false for primitives.
func classType(typ string) (model.ClassRef, bool) {
	elem := strings.TrimRight(typ, "[]")
	return model.ClassRef(elem), strings.Contains(elem, ".")
}
