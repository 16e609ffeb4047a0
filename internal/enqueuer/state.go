package enqueuer

import (
	"maps"
	"slices"

	"golang.org/x/tools/container/intsets"

	"github.com/715d/treeshake/internal/analysis"
	"github.com/715d/treeshake/pkg/model"
)

// State is the liveness state of one phase. It is owned by the Enqueuer;
// analyses only write the monotonic fields of the MemberInfo records.
type State struct {
	Program *model.Program

	liveClasses  intsets.Sparse
	instantiated intsets.Sparse

	// Instantiated classes in the order they became instantiated.
	instantiationOrder []*model.Class

	methods     map[*model.Method]*analysis.MemberInfo
	methodOrder []*analysis.MemberInfo
	fields      map[*model.Field]*analysis.MemberInfo
	fieldOrder  []*analysis.MemberInfo

	missing map[string]struct{}

	stats Stats
}

// Stats counts the work done by one phase.
type Stats struct {
	Rounds       int // fixpoint rounds, including the final empty one
	Items        int // worklist items processed
	Traced       int // method bodies traced
	Dispatches   int // virtual dispatch resolutions
	Instructions int // instructions visited
}

func newState(prog *model.Program) *State {
	return &State{
		Program: prog,
		methods: make(map[*model.Method]*analysis.MemberInfo),
		fields:  make(map[*model.Field]*analysis.MemberInfo),
		missing: make(map[string]struct{}),
	}
}

// IsLiveClass reports whether c is live.
func (s *State) IsLiveClass(c *model.Class) bool {
	return s.liveClasses.Has(int(c.ID))
}

// IsInstantiated reports whether c is directly instantiated.
func (s *State) IsInstantiated(c *model.Class) bool {
	return s.instantiated.Has(int(c.ID))
}

// LiveClasses returns the live classes in ID order.
func (s *State) LiveClasses() []*model.Class {
	return s.byID(&s.liveClasses)
}

// InstantiatedClasses returns the instantiated classes in ID order.
func (s *State) InstantiatedClasses() []*model.Class {
	return s.byID(&s.instantiated)
}

// InstantiationOrder returns the instantiated classes in the order they
// were discovered.
func (s *State) InstantiationOrder() []*model.Class {
	return s.instantiationOrder
}

func (s *State) byID(set *intsets.Sparse) []*model.Class {
	ids := set.AppendTo(make([]int, 0, set.Len()))
	out := make([]*model.Class, len(ids))
	for i, id := range ids {
		out[i] = s.Program.ClassByID(model.ClassID(id))
	}
	return out
}

// MethodInfo returns the facts of a live method, or nil if it is not live.
func (s *State) MethodInfo(m *model.Method) *analysis.MemberInfo {
	return s.methods[m]
}

// FieldInfo returns the facts of a live field, or nil if it is not live.
func (s *State) FieldInfo(f *model.Field) *analysis.MemberInfo {
	return s.fields[f]
}

// LiveMethods returns the live methods in the order they became live.
func (s *State) LiveMethods() []*analysis.MemberInfo { return s.methodOrder }

// LiveFields returns the live fields in the order they became live.
func (s *State) LiveFields() []*analysis.MemberInfo { return s.fieldOrder }

// Missing returns the sorted unresolvable references seen while tracing.
func (s *State) Missing() []string {
	return slices.Sorted(maps.Keys(s.missing))
}

// Stats returns the work counters.
func (s *State) Stats() Stats { return s.stats }
