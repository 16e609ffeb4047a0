// Package override finds the program methods that may be invoked from
// library code through a library supertype.
//
// A program class that overrides a method of a library class or interface
// can be called by the library at run time even when no call site in the
// program targets it. Such methods are flagged so that later passes never
// inline, merge or devirtualize them.
package override

import (
	"cmp"
	"maps"
	"slices"

	"golang.org/x/tools/container/intsets"

	"github.com/715d/treeshake/pkg/model"
)

// Fact is the library override summary of one class, computed over the
// class and all of its ancestors.
type Fact struct {
	// LibrarySupertypes holds the IDs of the non-program ancestors,
	// including the class itself when it is not a program class.
	LibrarySupertypes *intsets.Sparse

	// OverriddenLibraryMethods maps each signature that the class's
	// hierarchy slice may override to the library class or interface that
	// declares it.
	OverriddenLibraryMethods map[model.MethodSignature]*model.Class

	// Facts with a single parent share that parent's set and map until the
	// first write.
	sharedSet     bool
	sharedMethods bool
}

// Signatures returns the keys of OverriddenLibraryMethods in a stable
// order.
func (f *Fact) Signatures() []model.MethodSignature {
	return slices.SortedFunc(maps.Keys(f.OverriddenLibraryMethods), func(a, b model.MethodSignature) int {
		return cmp.Or(
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.Params, b.Params),
			cmp.Compare(a.Return, b.Return),
		)
	})
}

// Owner returns the library class recorded for sig.
func (f *Fact) Owner(sig model.MethodSignature) *model.Class {
	return f.OverriddenLibraryMethods[sig]
}

// record adds sig unless it is already present. On a collision the owner
// with the smallest ID wins, which is the first writer when owners are
// visited in ID order.
func (f *Fact) record(sig model.MethodSignature, owner *model.Class) {
	if cur, ok := f.OverriddenLibraryMethods[sig]; ok && cur.ID <= owner.ID {
		return
	}
	if f.sharedMethods || f.OverriddenLibraryMethods == nil {
		f.OverriddenLibraryMethods = maps.Clone(f.OverriddenLibraryMethods)
		if f.OverriddenLibraryMethods == nil {
			f.OverriddenLibraryMethods = make(map[model.MethodSignature]*model.Class)
		}
		f.sharedMethods = false
	}
	f.OverriddenLibraryMethods[sig] = owner
}

func (f *Fact) addLibrarySupertype(c *model.Class) {
	if f.sharedSet {
		var s intsets.Sparse
		s.Copy(f.LibrarySupertypes)
		f.LibrarySupertypes = &s
		f.sharedSet = false
	}
	f.LibrarySupertypes.Insert(int(c.ID))
}

// joiner is the fact algebra of the analysis.
type joiner struct {
	prog *model.Program
	ids  []int
}

func (j *joiner) Parents(c *model.Class) []*model.Class {
	refs := c.Supertypes()
	parents := make([]*model.Class, 0, len(refs))
	for _, ref := range refs {
		if s := j.prog.Definition(ref); s != nil {
			parents = append(parents, s)
		}
	}
	return parents
}

func (j *joiner) Join(_ *model.Class, parents []*Fact) *Fact {
	switch len(parents) {
	case 0:
		return &Fact{LibrarySupertypes: new(intsets.Sparse)}
	case 1:
		p := parents[0]
		return &Fact{
			LibrarySupertypes:        p.LibrarySupertypes,
			OverriddenLibraryMethods: p.OverriddenLibraryMethods,
			sharedSet:                true,
			sharedMethods:            true,
		}
	}
	f := &Fact{LibrarySupertypes: new(intsets.Sparse)}
	for _, p := range parents {
		f.LibrarySupertypes.UnionWith(p.LibrarySupertypes)
		for sig, owner := range p.OverriddenLibraryMethods {
			f.record(sig, owner)
		}
	}
	return f
}

func (j *joiner) Local(c *model.Class, f *Fact) (*Fact, error) {
	if !c.IsProgram() {
		f.addLibrarySupertype(c)
		if c.IsInterface() {
			for _, m := range c.VirtualMethods() {
				f.record(m.Signature, c)
			}
		}
		return f, nil
	}

	methods := c.VirtualMethods()
	if len(methods) == 0 || f.LibrarySupertypes.IsEmpty() {
		return f, nil
	}
	j.ids = f.LibrarySupertypes.AppendTo(j.ids[:0])
	for _, m := range methods {
		if _, ok := f.OverriddenLibraryMethods[m.Signature]; ok {
			continue
		}
		// Interface methods were captured unconditionally; only library
		// classes are matched here.
		for _, id := range j.ids {
			lib := j.prog.ClassByID(model.ClassID(id))
			if lib.IsInterface() {
				continue
			}
			if lm := lib.LookupMethod(m.Signature); lm != nil && lm.IsVirtual() {
				f.record(m.Signature, lib)
				break
			}
		}
	}
	return f, nil
}
