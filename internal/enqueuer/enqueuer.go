// Package enqueuer computes the live subset of a program with a worklist
// fixpoint and notifies registered analyses of every liveness event.
//
// The engine is a Rapid Type Analysis: virtual call sites are tabulated
// against the set of instantiated classes, and as each new class is
// instantiated the recorded call sites are dispatched on it, and as each new
// call site is discovered it is dispatched on every known instantiated
// subtype. Each time a method becomes live its body is traced for more call
// sites, field accesses and allocations, until a fixed point is reached.
//
// One Enqueuer serves exactly one phase. It is single threaded: callbacks
// run synchronously, in registration order, and must not block.
package enqueuer

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/715d/treeshake/internal/analysis"
	"github.com/715d/treeshake/pkg/model"
)

// ErrLivenessAfterCompletion is reported when an analysis requests more
// liveness once completion has started.
var ErrLivenessAfterCompletion = errors.New("liveness requested after completion")

// Roots are the entry points of a phase.
type Roots struct {
	Classes []*model.Class
	Methods []*model.Method
	Fields  []*model.Field

	// Instantiated classes are allocated reflectively, from an unknown
	// context.
	Instantiated []*model.Class
}

type itemKind uint8

const (
	itemClass itemKind = iota
	itemInstantiated
	itemMethod
	itemField
)

type item struct {
	kind   itemKind
	class  *model.Class
	method *model.Method
	field  *model.Field
	ctx    *model.Method
}

// virtualSite is an invoke-virtual or invoke-interface target seen in a
// traced body. Sites are deduplicated by reference for dispatch.
type virtualSite struct {
	ref model.MethodRef
	ctx *model.Method // first body the site was seen in
}

// Enqueuer is the reachability engine of one phase.
type Enqueuer struct {
	prog  *model.Program
	state *State
	l     listeners

	worklist []item

	sites    []virtualSite
	siteSeen map[model.MethodRef]struct{}

	tracer  tracer
	current *model.Method // body being traced

	ran        bool
	completing bool
	err        error // first sticky contract violation
}

// New creates an engine over prog.
func New(prog *model.Program) *Enqueuer {
	e := &Enqueuer{
		prog:     prog,
		state:    newState(prog),
		siteSeen: make(map[model.MethodRef]struct{}),
	}
	e.tracer.e = e
	return e
}

// Register adds an analysis. Its callbacks run after those of previously
// registered analyses.
func (e *Enqueuer) Register(a Analysis) {
	e.l.add(a)
}

// State returns the liveness state. It is complete once Run returns.
func (e *Enqueuer) State() *State { return e.state }

// Run computes the fixpoint from roots, then runs the completion callbacks.
// Any error aborts the phase; a partial state is never returned.
func (e *Enqueuer) Run(roots Roots) (*State, error) {
	if e.ran {
		return nil, errors.New("enqueuer: phase already run")
	}
	e.ran = true

	const initialWorklistCap = 1024
	e.worklist = make([]item, 0, initialWorklistCap)

	for _, c := range roots.Classes {
		e.MarkClassLive(c, "keep rule")
	}
	for _, c := range roots.Instantiated {
		e.traceNewInstance(c.Name, nil)
		e.MarkInstantiated(c, nil, "kept constructor")
	}
	for _, m := range roots.Methods {
		e.MarkMethodLive(m, nil, "keep rule")
	}
	for _, f := range roots.Fields {
		e.MarkFieldLive(f, nil, "keep rule")
	}

	// Double-buffer the worklist so the hot loop reuses both arrays.
	shadow := make([]item, 0, initialWorklistCap)
	for {
		for len(e.worklist) > 0 {
			shadow, e.worklist = e.worklist, shadow[:0]
			for _, it := range shadow {
				e.state.stats.Items++
				if err := e.process(it); err != nil {
					return nil, err
				}
				if e.err != nil {
					return nil, e.err
				}
			}
		}
		e.state.stats.Rounds++
		slog.Debug("fixpoint reached",
			"round", e.state.stats.Rounds,
			"items", e.state.stats.Items,
			"live_methods", len(e.state.methodOrder))

		for _, l := range e.l.fixpoint {
			if err := l.NotifyFixpoint(e); err != nil {
				return nil, fmt.Errorf("%s: fixpoint: %w", name(l), err)
			}
		}
		if e.err != nil {
			return nil, e.err
		}
		if len(e.worklist) == 0 {
			break
		}
	}

	e.completing = true
	for _, l := range e.l.finished {
		if err := l.Done(e.state); err != nil {
			return nil, fmt.Errorf("%s: completion: %w", name(l), err)
		}
		if e.err != nil {
			return nil, fmt.Errorf("%s: %w", name(l), e.err)
		}
	}
	slog.Debug("reachability complete",
		"live_classes", e.state.liveClasses.Len(),
		"instantiated", e.state.instantiated.Len(),
		"live_methods", len(e.state.methodOrder),
		"live_fields", len(e.state.fieldOrder),
		"missing", len(e.state.missing))
	return e.state, nil
}

// accepting reports whether new liveness may be recorded, failing the phase
// when completion has already started.
func (e *Enqueuer) accepting() bool {
	if e.completing {
		if e.err == nil {
			e.err = ErrLivenessAfterCompletion
		}
		return false
	}
	return e.err == nil
}

// MarkClassLive marks c live.
func (e *Enqueuer) MarkClassLive(c *model.Class, reason string) {
	if !e.accepting() || c == nil {
		return
	}
	if !e.state.liveClasses.Insert(int(c.ID)) {
		return
	}
	slog.Debug("class live", "class", c.Name, "reason", reason)
	e.worklist = append(e.worklist, item{kind: itemClass, class: c})
}

// MarkInstantiated marks c live and directly instantiated.
func (e *Enqueuer) MarkInstantiated(c *model.Class, ctx *model.Method, reason string) {
	if !e.accepting() || c == nil {
		return
	}
	e.MarkClassLive(c, reason)
	if !e.state.instantiated.Insert(int(c.ID)) {
		return
	}
	e.state.instantiationOrder = append(e.state.instantiationOrder, c)
	e.worklist = append(e.worklist, item{kind: itemInstantiated, class: c, ctx: ctx})
}

// MarkMethodLive marks m live.
func (e *Enqueuer) MarkMethodLive(m *model.Method, ctx *model.Method, reason string) {
	if !e.accepting() || m == nil {
		return
	}
	if _, ok := e.state.methods[m]; ok {
		return
	}
	mi := analysis.NewMethodInfo(m, reason)
	e.state.methods[m] = mi
	e.state.methodOrder = append(e.state.methodOrder, mi)
	e.worklist = append(e.worklist, item{kind: itemMethod, method: m, ctx: ctx})
}

// MarkFieldLive marks f live.
func (e *Enqueuer) MarkFieldLive(f *model.Field, ctx *model.Method, reason string) {
	if !e.accepting() || f == nil {
		return
	}
	if _, ok := e.state.fields[f]; ok {
		return
	}
	fi := analysis.NewFieldInfo(f, reason)
	e.state.fields[f] = fi
	e.state.fieldOrder = append(e.state.fieldOrder, fi)
	e.worklist = append(e.worklist, item{kind: itemField, field: f, ctx: ctx})
}

func (e *Enqueuer) process(it item) error {
	switch it.kind {
	case itemClass:
		return e.processClass(it.class)
	case itemInstantiated:
		return e.processInstantiated(it.class, it.ctx)
	case itemMethod:
		return e.processMethod(it.method, it.ctx)
	case itemField:
		return e.processField(it.field, it.ctx)
	}
	return nil
}

func (e *Enqueuer) processClass(c *model.Class) error {
	if c.IsProgram() {
		for _, l := range e.l.liveClass {
			if err := l.ProcessNewlyLiveClass(c, e); err != nil {
				return fmt.Errorf("%s: live class %s: %w", name(l), c.Name, err)
			}
		}
	} else {
		for _, l := range e.l.liveNonProgram {
			if err := l.ProcessNewLiveNonProgramType(c); err != nil {
				return fmt.Errorf("%s: live type %s: %w", name(l), c.Name, err)
			}
		}
	}

	for _, ref := range c.Supertypes() {
		if s := e.lookupClass(ref); s != nil {
			e.MarkClassLive(s, "supertype of "+string(c.Name))
		}
	}
	if init := c.StaticInitializer(); init != nil {
		e.MarkMethodLive(init, nil, "static initializer")
	}
	return nil
}

func (e *Enqueuer) processInstantiated(c *model.Class, ctx *model.Method) error {
	for _, l := range e.l.instantiated {
		if err := l.ProcessNewlyInstantiatedClass(c, ctx, e); err != nil {
			return fmt.Errorf("%s: instantiated %s: %w", name(l), c.Name, err)
		}
	}
	if c.IsAbstract() {
		return nil
	}
	for _, site := range e.sites {
		if e.prog.IsSubtype(c.Name, site.ref.Holder) {
			e.dispatch(site, c)
		}
	}
	return nil
}

func (e *Enqueuer) processMethod(m *model.Method, ctx *model.Method) error {
	for _, l := range e.l.liveMethod {
		if err := l.ProcessNewlyLiveMethod(m, ctx, e); err != nil {
			return fmt.Errorf("%s: live method %s: %w", name(l), m, err)
		}
	}
	e.MarkClassLive(m.Holder, "holder of "+m.String())
	if m.Code == nil {
		return nil
	}

	e.state.stats.Traced++
	e.current = m
	m.Code.Accept(&e.tracer)
	e.current = nil

	for _, l := range e.l.tracedCode {
		if err := l.ProcessTracedCode(m, e); err != nil {
			return fmt.Errorf("%s: traced %s: %w", name(l), m, err)
		}
	}
	return nil
}

func (e *Enqueuer) processField(f *model.Field, ctx *model.Method) error {
	for _, l := range e.l.liveField {
		if err := l.ProcessNewlyLiveField(f, ctx, e); err != nil {
			return fmt.Errorf("%s: live field %s: %w", name(l), f, err)
		}
	}
	e.MarkClassLive(f.Holder, "holder of "+f.String())
	return nil
}

// lookupClass resolves ref, recording it as missing when it is not part of
// the program model.
func (e *Enqueuer) lookupClass(ref model.ClassRef) *model.Class {
	c, kind := e.prog.Lookup(ref)
	if kind == model.LookupMissing {
		e.state.missing["class "+string(ref)] = struct{}{}
		return nil
	}
	return c
}

// recordVirtualSite adds a virtual call site to the cross-product and
// dispatches it on every instantiated subtype seen so far.
func (e *Enqueuer) recordVirtualSite(ref model.MethodRef, ctx *model.Method) {
	holder := e.lookupClass(ref.Holder)
	if holder == nil {
		return
	}
	e.MarkClassLive(holder, "invoked from "+ctx.String())
	if _, ok := e.siteSeen[ref]; ok {
		return
	}
	e.siteSeen[ref] = struct{}{}
	if e.prog.ResolveMethod(ref) == nil {
		e.state.missing["method "+ref.String()] = struct{}{}
		return
	}

	site := virtualSite{ref: ref, ctx: ctx}
	e.sites = append(e.sites, site)
	for _, c := range e.state.instantiationOrder {
		if !c.IsAbstract() && e.prog.IsSubtype(c.Name, ref.Holder) {
			e.dispatch(site, c)
		}
	}
}

// dispatch marks the implementation selected for site on receiver live.
// When no single implementation exists, every program method the search
// passed through is kept.
func (e *Enqueuer) dispatch(site virtualSite, receiver *model.Class) {
	e.state.stats.Dispatches++
	res := e.prog.LookupVirtualDispatchTarget(receiver, site.ref.Signature)
	reason := "dispatch from " + site.ctx.String()
	if res.Kind == model.DispatchSingle {
		e.MarkMethodLive(res.Target, site.ctx, reason)
		return
	}
	for _, m := range res.Visited {
		e.MarkMethodLive(m, site.ctx, reason)
	}
}

func (e *Enqueuer) traceNewInstance(ref model.ClassRef, ctx *model.Method) {
	for _, l := range e.l.newInstance {
		l.TraceNewInstance(ref, ctx)
	}
}
