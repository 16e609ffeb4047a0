package override

import (
	"log/slog"

	"github.com/715d/treeshake/internal/enqueuer"
	"github.com/715d/treeshake/internal/hierarchy"
	"github.com/715d/treeshake/pkg/model"
)

// Analysis flags library overrides of instantiated program classes.
type Analysis struct {
	prog  *model.Program
	facts *hierarchy.Engine[*model.Class, *Fact]

	// Instantiated concrete program classes, in instantiation order.
	classes []*model.Class

	flagged []*model.Method
}

var (
	_ enqueuer.NewlyInstantiatedClassListener = (*Analysis)(nil)
	_ enqueuer.FinishedListener               = (*Analysis)(nil)
)

// New creates the analysis for one phase over prog.
func New(prog *model.Program) *Analysis {
	return &Analysis{
		prog:  prog,
		facts: hierarchy.New[*model.Class, *Fact](&joiner{prog: prog}),
	}
}

// Name implements enqueuer.Analysis.
func (a *Analysis) Name() string { return "library-override" }

// Fact returns the fact of c, computing it if needed.
func (a *Analysis) Fact(c *model.Class) (*Fact, error) {
	return a.facts.Fact(c)
}

// Stats returns the join counters of the underlying engine.
func (a *Analysis) Stats() hierarchy.Stats { return a.facts.Stats() }

// Flagged returns the methods flagged at completion, in flag order.
func (a *Analysis) Flagged() []*model.Method { return a.flagged }

// ProcessNewlyInstantiatedClass keeps every method that library code could
// dispatch to on an instance of c.
func (a *Analysis) ProcessNewlyInstantiatedClass(c *model.Class, _ *model.Method, wl enqueuer.Worklist) error {
	if !c.IsProgram() || c.IsAbstract() {
		return nil
	}
	fact, err := a.facts.Fact(c)
	if err != nil {
		return err
	}
	a.classes = append(a.classes, c)
	for _, sig := range fact.Signatures() {
		reason := "overrides " + fact.Owner(sig).String()
		res := a.prog.LookupVirtualDispatchTarget(c, sig)
		if target := res.ProgramTarget(); target != nil {
			wl.MarkMethodLive(target, nil, reason)
			continue
		}
		if res.Kind != model.DispatchSingle {
			for _, m := range res.Visited {
				wl.MarkMethodLive(m, nil, reason)
			}
		}
	}
	return nil
}

// Done flags the library overrides and finalizes the flag of every other
// live program method.
func (a *Analysis) Done(state *enqueuer.State) error {
	for _, c := range a.classes {
		fact, err := a.facts.Fact(c)
		if err != nil {
			return err
		}
		for _, sig := range fact.Signatures() {
			res := a.prog.LookupVirtualDispatchTarget(c, sig)
			if target := res.ProgramTarget(); target != nil {
				a.flag(state, target)
				a.markOverridesAsLibraryMethodOverrides(state, c, sig)
				continue
			}
			if res.Kind != model.DispatchSingle {
				// No single implementation: keep whatever the search
				// passed through.
				for _, m := range res.Visited {
					a.flag(state, m)
				}
			}
		}
	}

	for _, mi := range state.LiveMethods() {
		if m := mi.Method; m.Holder.IsProgram() && m.IsVirtual() {
			mi.FinalizeLibraryOverride()
		}
	}
	slog.Debug("library overrides",
		"classes", len(a.classes),
		"flagged", len(a.flagged),
		"joins", a.facts.Stats().Joins)
	return nil
}

// markOverridesAsLibraryMethodOverrides flags every live program override
// of sig in the supertypes of c.
func (a *Analysis) markOverridesAsLibraryMethodOverrides(state *enqueuer.State, c *model.Class, sig model.MethodSignature) {
	for _, s := range a.prog.AllSupertypes(c) {
		if !s.IsProgram() {
			continue
		}
		if m := s.LookupMethod(sig); m != nil && m.IsVirtual() {
			a.flag(state, m)
		}
	}
}

func (a *Analysis) flag(state *enqueuer.State, m *model.Method) {
	mi := state.MethodInfo(m)
	if mi == nil || !mi.MarkLibraryOverride() {
		return
	}
	a.flagged = append(a.flagged, m)
	slog.Debug("library override", "method", m.String())
}
