package enqueuer

import (
	"strings"

	"github.com/715d/treeshake/pkg/model"
)

// tracer walks the body of a live method, reports every occurrence to the
// trace listeners and requests the liveness it implies.
type tracer struct {
	e *Enqueuer
}

var _ model.CodeVisitor = (*tracer)(nil)

func (t *tracer) VisitInvoke(op model.Op, ref model.MethodRef) {
	e := t.e
	ctx := e.current
	e.state.stats.Instructions++

	switch op {
	case model.OpInvokeStatic:
		for _, l := range e.l.invokeStatic {
			l.TraceInvokeStatic(ref, ctx)
		}
	case model.OpInvokeDirect:
		for _, l := range e.l.invokeDirect {
			l.TraceInvokeDirect(ref, ctx)
		}
	case model.OpInvokeSuper:
		for _, l := range e.l.invokeSuper {
			l.TraceInvokeSuper(ref, ctx)
		}
	case model.OpInvokeInterface:
		for _, l := range e.l.invokeInterface {
			l.TraceInvokeInterface(ref, ctx)
		}
		e.recordVirtualSite(ref, ctx)
		return
	case model.OpInvokeVirtual:
		for _, l := range e.l.invokeVirtual {
			l.TraceInvokeVirtual(ref, ctx)
		}
		e.recordVirtualSite(ref, ctx)
		return
	}

	if e.lookupClass(ref.Holder) == nil {
		return
	}
	target := e.prog.ResolveMethod(ref)
	if target == nil {
		e.state.missing["method "+ref.String()] = struct{}{}
		return
	}
	e.MarkMethodLive(target, ctx, "invoked from "+ctx.String())
}

func (t *tracer) VisitFieldAccess(kind model.FieldAccessKind, ref model.FieldRef) {
	e := t.e
	ctx := e.current
	e.state.stats.Instructions++

	for _, l := range e.l.fieldAccess {
		l.TraceFieldAccess(ref, kind, ctx)
	}
	if e.lookupClass(ref.Holder) == nil {
		return
	}
	f := e.prog.ResolveField(ref)
	if f == nil {
		e.state.missing["field "+ref.String()] = struct{}{}
		return
	}
	e.MarkFieldLive(f, ctx, "accessed from "+ctx.String())
}

func (t *tracer) VisitNewInstance(ref model.ClassRef) {
	e := t.e
	ctx := e.current
	e.state.stats.Instructions++

	e.traceNewInstance(ref, ctx)
	if c := e.lookupClass(ref); c != nil {
		e.MarkInstantiated(c, ctx, "allocated in "+ctx.String())
	}
}

func (t *tracer) VisitTypeReference(op model.Op, ref model.ClassRef) {
	e := t.e
	ctx := e.current
	e.state.stats.Instructions++

	switch op {
	case model.OpInstanceOf, model.OpCheckCast:
		for _, l := range e.l.instanceOf {
			l.TraceInstanceOf(ref, ctx)
		}
	case model.OpConstClass:
		for _, l := range e.l.constClass {
			l.TraceConstClass(ref, ctx)
		}
	}
	if c := e.lookupClass(ref); c != nil {
		e.MarkClassLive(c, "referenced from "+ctx.String())
	}
}

func (t *tracer) VisitNewArray(elementType model.ClassRef, constant bool, length int) {
	e := t.e
	ctx := e.current
	e.state.stats.Instructions++

	for _, l := range e.l.newArray {
		l.TraceNewArray(elementType, constant, length, ctx)
	}

	elem := model.ClassRef(strings.TrimRight(string(elementType), "[]"))
	if !strings.Contains(string(elem), ".") {
		return // primitive
	}
	if c := e.lookupClass(elem); c != nil {
		e.MarkClassLive(c, "array element in "+ctx.String())
	}
}
