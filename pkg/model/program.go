package model

import (
	"fmt"
	"slices"
)

// DefaultRoot is the hierarchy root used when a snapshot names none.
const DefaultRoot ClassRef = "java.lang.Object"

// LookupKind is the outcome of a class lookup.
type LookupKind uint8

const (
	LookupProgram LookupKind = iota
	LookupClasspath
	LookupLibrary
	LookupMissing
)

// String returns the lower-case name of the lookup outcome.
func (k LookupKind) String() string {
	if k == LookupMissing {
		return "missing"
	}
	return Origin(k).String()
}

// Program is an immutable snapshot of the classes visible to one phase.
type Program struct {
	root    ClassRef
	classes []*Class
	byName  map[ClassRef]*Class
}

// NewClass creates a class that is not yet part of a Program.
func NewClass(name ClassRef, origin Origin, super ClassRef, interfaces []ClassRef, flags ClassFlags) *Class {
	return &Class{
		ID:          -1,
		Name:        name,
		Origin:      origin,
		Super:       super,
		Interfaces:  interfaces,
		Flags:       flags,
		methodIndex: make(map[MethodSignature]*Method),
		fieldIndex:  make(map[string]*Field),
	}
}

// AddMethod declares a method on c. Bodies of non-program classes are
// dropped.
func (c *Class) AddMethod(sig MethodSignature, flags MemberFlags, code *Code) (*Method, error) {
	if _, ok := c.methodIndex[sig]; ok {
		return nil, malformedf("class %s: duplicate method %s", c.Name, sig)
	}
	if !c.IsProgram() {
		code = nil
	}
	m := &Method{Holder: c, Signature: sig, Flags: flags, Code: code}
	c.Methods = append(c.Methods, m)
	c.methodIndex[sig] = m
	return m, nil
}

// AddField declares a field on c.
func (c *Class) AddField(name, typ string, flags MemberFlags) (*Field, error) {
	if _, ok := c.fieldIndex[name]; ok {
		return nil, malformedf("class %s: duplicate field %s", c.Name, name)
	}
	f := &Field{Holder: c, Name: name, Type: typ, Flags: flags}
	c.Fields = append(c.Fields, f)
	c.fieldIndex[name] = f
	return f, nil
}

// NewProgram assembles classes into a Program and assigns their IDs in
// the given order.
func NewProgram(root ClassRef, classes []*Class) (*Program, error) {
	if root == "" {
		root = DefaultRoot
	}
	p := &Program{
		root:    root,
		classes: make([]*Class, 0, len(classes)),
		byName:  make(map[ClassRef]*Class, len(classes)),
	}
	for _, c := range classes {
		if _, ok := p.byName[c.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClass, c.Name)
		}
		if c.Name == root && c.Super != "" {
			return nil, malformedf("root class %s has superclass %s", root, c.Super)
		}
		c.ID = ClassID(len(p.classes))
		p.classes = append(p.classes, c)
		p.byName[c.Name] = c
	}
	return p, nil
}

// Root returns the hierarchy root.
func (p *Program) Root() ClassRef { return p.root }

// Classes returns all classes in ID order.
func (p *Program) Classes() []*Class { return p.classes }

// Len returns the number of classes.
func (p *Program) Len() int { return len(p.classes) }

// ClassByID returns the class with the given arena ID.
func (p *Program) ClassByID(id ClassID) *Class { return p.classes[id] }

// Lookup resolves a class reference.
func (p *Program) Lookup(ref ClassRef) (*Class, LookupKind) {
	c, ok := p.byName[ref]
	if !ok {
		return nil, LookupMissing
	}
	return c, LookupKind(c.Origin)
}

// Definition resolves a class reference, returning nil when it is missing.
func (p *Program) Definition(ref ClassRef) *Class {
	return p.byName[ref]
}

// ProgramClass resolves a class reference to a program class, or nil.
func (p *Program) ProgramClass(ref ClassRef) *Class {
	if c := p.byName[ref]; c != nil && c.IsProgram() {
		return c
	}
	return nil
}

// SuperclassChain returns c followed by its resolvable superclasses. The
// chain stops at the root or at the first missing superclass; it never
// revisits a class.
func (p *Program) SuperclassChain(c *Class) []*Class {
	var chain []*Class
	seen := make(map[*Class]bool)
	for c != nil && !seen[c] {
		seen[c] = true
		chain = append(chain, c)
		if c.Super == "" {
			break
		}
		c = p.byName[c.Super]
	}
	return chain
}

// AllSupertypes returns every resolvable proper supertype of c, breadth
// first, each once.
func (p *Program) AllSupertypes(c *Class) []*Class {
	var out []*Class
	seen := map[*Class]bool{c: true}
	queue := []*Class{c}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ref := range cur.Supertypes() {
			s := p.byName[ref]
			if s == nil || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
			queue = append(queue, s)
		}
	}
	return out
}

// IsSubtype reports whether sub is sup or has it as a transitive supertype.
// Every class is a subtype of the root.
func (p *Program) IsSubtype(sub, sup ClassRef) bool {
	if sub == sup || sup == p.root {
		return true
	}
	c := p.byName[sub]
	if c == nil {
		return false
	}
	for _, s := range p.AllSupertypes(c) {
		if s.Name == sup {
			return true
		}
	}
	return false
}

// ResolveMethod performs symbolic resolution of ref: the superclass chain
// of the holder is searched first, then its superinterfaces. It returns nil
// when the holder is missing or no declaration matches.
func (p *Program) ResolveMethod(ref MethodRef) *Method {
	holder := p.byName[ref.Holder]
	if holder == nil {
		return nil
	}
	for _, c := range p.SuperclassChain(holder) {
		if m := c.LookupMethod(ref.Signature); m != nil {
			return m
		}
	}
	var abstract *Method
	for _, s := range p.AllSupertypes(holder) {
		if !s.IsInterface() {
			continue
		}
		m := s.LookupMethod(ref.Signature)
		if m == nil || m.IsStatic() || m.IsPrivate() {
			continue
		}
		if !m.IsAbstract() {
			return m
		}
		if abstract == nil {
			abstract = m
		}
	}
	return abstract
}

// ResolveField resolves a field reference through the holder, its
// interfaces and its superclasses.
func (p *Program) ResolveField(ref FieldRef) *Field {
	holder := p.byName[ref.Holder]
	if holder == nil {
		return nil
	}
	if f := holder.LookupField(ref.Name); f != nil && f.Type == ref.Type {
		return f
	}
	for _, s := range p.AllSupertypes(holder) {
		if f := s.LookupField(ref.Name); f != nil && f.Type == ref.Type {
			return f
		}
	}
	return nil
}

// DispatchKind is the outcome of virtual dispatch resolution.
type DispatchKind uint8

const (
	// DispatchNone means no implementation was found.
	DispatchNone DispatchKind = iota

	// DispatchSingle means exactly one implementation was selected.
	DispatchSingle

	// DispatchAmbiguous means several maximally specific default methods
	// compete.
	DispatchAmbiguous
)

// DispatchResult is the outcome of LookupVirtualDispatchTarget.
type DispatchResult struct {
	Kind DispatchKind

	// Target is the selected implementation when Kind is DispatchSingle. It
	// may belong to a non-program class.
	Target *Method

	// Visited lists the program methods matching the signature that the
	// search passed through, in search order.
	Visited []*Method
}

// ProgramTarget returns the selected implementation if it is a program
// method.
func (r DispatchResult) ProgramTarget() *Method {
	if r.Kind == DispatchSingle && r.Target.Holder.IsProgram() {
		return r.Target
	}
	return nil
}

// LookupVirtualDispatchTarget selects the implementation of sig invoked on a
// receiver whose runtime class is receiver. The superclass chain is searched
// first; without a concrete match the maximally specific default methods of
// all superinterfaces decide.
func (p *Program) LookupVirtualDispatchTarget(receiver *Class, sig MethodSignature) DispatchResult {
	var res DispatchResult
	visit := func(m *Method) {
		if m.Holder.IsProgram() && !slices.Contains(res.Visited, m) {
			res.Visited = append(res.Visited, m)
		}
	}

	for _, c := range p.SuperclassChain(receiver) {
		if c.IsInterface() {
			continue
		}
		m := c.LookupMethod(sig)
		if m == nil || !m.IsVirtual() {
			continue
		}
		visit(m)
		if m.IsAbstract() {
			break
		}
		res.Kind = DispatchSingle
		res.Target = m
		return res
	}

	var candidates []*Method
	for _, s := range p.AllSupertypes(receiver) {
		if !s.IsInterface() {
			continue
		}
		if m := s.LookupMethod(sig); m != nil && m.IsVirtual() {
			candidates = append(candidates, m)
		}
	}
	if receiver.IsInterface() {
		if m := receiver.LookupMethod(sig); m != nil && m.IsVirtual() {
			candidates = append([]*Method{m}, candidates...)
		}
	}

	var defaults []*Method
	for _, m := range candidates {
		if p.hasMoreSpecific(m, candidates) {
			continue
		}
		visit(m)
		if !m.IsAbstract() {
			defaults = append(defaults, m)
		}
	}
	switch len(defaults) {
	case 0:
		res.Kind = DispatchNone
	case 1:
		res.Kind = DispatchSingle
		res.Target = defaults[0]
	default:
		res.Kind = DispatchAmbiguous
	}
	return res
}

// hasMoreSpecific reports whether another candidate is declared in a proper
// subinterface of m's holder.
func (p *Program) hasMoreSpecific(m *Method, candidates []*Method) bool {
	for _, other := range candidates {
		if other == m || other.Holder == m.Holder {
			continue
		}
		if p.IsSubtype(other.Holder.Name, m.Holder.Name) {
			return true
		}
	}
	return false
}
