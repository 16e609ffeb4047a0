// Package initdom tracks, for every allocated class, the nearest common
// superclass of all classes that allocate it.
//
// If class Y dominates the allocations of X, then Y is initialized by the
// time any instance method of X runs. Allocations from an unknown context,
// such as reflection, widen the fact to the hierarchy root. Facts only ever
// widen.
package initdom

import (
	"log/slog"
	"slices"

	"golang.org/x/tools/container/intsets"

	"github.com/715d/treeshake/internal/enqueuer"
	"github.com/715d/treeshake/internal/hierarchy"
	"github.com/715d/treeshake/pkg/model"
)

// Analysis is the initialization-dominance analysis of one phase.
type Analysis struct {
	prog      *model.Program
	ancestors *hierarchy.Engine[*model.Class, *intsets.Sparse]

	dominators map[*model.Class]model.ClassRef
	err        error
}

var (
	_ enqueuer.NewInstanceListener = (*Analysis)(nil)
	_ enqueuer.FixpointListener    = (*Analysis)(nil)
	_ enqueuer.FinishedListener    = (*Analysis)(nil)
)

// New creates the analysis for one phase over prog.
func New(prog *model.Program) *Analysis {
	return &Analysis{
		prog:       prog,
		ancestors:  hierarchy.New[*model.Class, *intsets.Sparse](&superclasses{prog: prog}),
		dominators: make(map[*model.Class]model.ClassRef),
	}
}

// Name implements enqueuer.Analysis.
func (a *Analysis) Name() string { return "init-dominance" }

// TraceNewInstance widens the fact of the allocated class with the holder
// of ctx, or to the root when ctx is unknown.
func (a *Analysis) TraceNewInstance(ref model.ClassRef, ctx *model.Method) {
	c := a.prog.Definition(ref)
	// Unresolvable classes are recorded as missing by the engine.
	if c == nil || a.err != nil {
		return
	}
	root := a.prog.Root()
	cur, seen := a.dominators[c]
	switch {
	case seen && cur == root:
		return
	case ctx == nil:
		a.dominators[c] = root
	case !seen:
		a.dominators[c] = ctx.Holder.Name
	default:
		lub, err := a.leastUpperBound(cur, ctx.Holder)
		if err != nil {
			a.err = err
			return
		}
		a.dominators[c] = lub
	}
}

// Dominator returns the fact of c. It reports false if c was never
// allocated.
func (a *Analysis) Dominator(c *model.Class) (model.ClassRef, bool) {
	ref, ok := a.dominators[c]
	return ref, ok
}

// Classes returns the allocated classes in ID order.
func (a *Analysis) Classes() []*model.Class {
	out := make([]*model.Class, 0, len(a.dominators))
	for c := range a.dominators {
		out = append(out, c)
	}
	slices.SortFunc(out, func(x, y *model.Class) int { return int(x.ID - y.ID) })
	return out
}

// NotifyFixpoint surfaces errors found while tracing.
func (a *Analysis) NotifyFixpoint(enqueuer.Worklist) error { return a.err }

// Done surfaces errors found while tracing.
func (a *Analysis) Done(*enqueuer.State) error {
	if a.err != nil {
		return a.err
	}
	slog.Debug("initialization dominance", "classes", len(a.dominators))
	return nil
}

// LeastUpperBound returns the nearest common superclass of x and y, or the
// root when their superclass chains do not meet.
func (a *Analysis) LeastUpperBound(x, y *model.Class) (model.ClassRef, error) {
	return a.leastUpperBound(x.Name, y)
}

func (a *Analysis) leastUpperBound(x model.ClassRef, y *model.Class) (model.ClassRef, error) {
	if x == y.Name {
		return x, nil
	}
	xc := a.prog.Definition(x)
	if xc == nil {
		return a.prog.Root(), nil
	}
	ys, err := a.ancestors.Fact(y)
	if err != nil {
		return "", err
	}
	for _, c := range a.prog.SuperclassChain(xc) {
		if ys.Has(int(c.ID)) {
			return c.Name, nil
		}
	}
	return a.prog.Root(), nil
}

// superclasses computes the set of IDs on a class's superclass chain,
// including the class itself.
type superclasses struct {
	prog *model.Program
}

func (s *superclasses) Parents(c *model.Class) []*model.Class {
	if super := s.prog.Definition(c.Super); super != nil && c.Super != "" {
		return []*model.Class{super}
	}
	return nil
}

func (s *superclasses) Join(_ *model.Class, parents []*intsets.Sparse) *intsets.Sparse {
	set := new(intsets.Sparse)
	if len(parents) == 1 {
		set.Copy(parents[0])
	}
	return set
}

func (s *superclasses) Local(c *model.Class, set *intsets.Sparse) (*intsets.Sparse, error) {
	set.Insert(int(c.ID))
	return set, nil
}
