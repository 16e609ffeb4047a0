// Package model provides a read-only view of a compiled program: its classes,
// methods, fields and class hierarchy.
//
// A Program is an immutable snapshot for the duration of one analysis phase.
// Classes are stored in an arena and carry a dense ID that is stable for the
// lifetime of the Program, so analyses can key bit sets and caches by it.
package model

import (
	"errors"
	"strings"
)

var (
	// ErrDuplicateClass is returned when two classes share a name.
	ErrDuplicateClass = errors.New("duplicate class definition")

	// ErrMalformed is returned for syntactically invalid signatures,
	// instructions or references.
	ErrMalformed = errors.New("malformed program model")
)

// ClassRef is the fully qualified name of a class. It may name a class that
// is not part of the Program.
type ClassRef string

// String returns the class name.
func (r ClassRef) String() string { return string(r) }

// Package returns the package part of the class name.
func (r ClassRef) Package() string {
	if i := strings.LastIndexByte(string(r), '.'); i >= 0 {
		return string(r[:i])
	}
	return ""
}

// SimpleName returns the class name without its package.
func (r ClassRef) SimpleName() string {
	if i := strings.LastIndexByte(string(r), '.'); i >= 0 {
		return string(r[i+1:])
	}
	return string(r)
}

// Origin distinguishes classes with rewritable bodies from black boxes.
type Origin uint8

const (
	// OriginProgram marks a class whose body is available and may be rewritten.
	OriginProgram Origin = iota

	// OriginClasspath marks a class known only by shape, compiled against
	// but not shipped.
	OriginClasspath

	// OriginLibrary marks a platform class known only by shape.
	OriginLibrary
)

var originNames = [...]string{"program", "classpath", "library"}

// String returns the lower-case name of the origin.
func (o Origin) String() string {
	if int(o) < len(originNames) {
		return originNames[o]
	}
	return "unknown"
}

// ParseOrigin parses the textual origin used by snapshots.
func ParseOrigin(s string) (Origin, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "program":
		return OriginProgram, true
	case "classpath":
		return OriginClasspath, true
	case "library":
		return OriginLibrary, true
	}
	return 0, false
}

// ClassFlags holds the class-level access flags the analyses care about.
type ClassFlags uint8

const (
	ClassAbstract ClassFlags = 1 << iota
	ClassInterface
)

// MemberFlags holds the member-level access flags the analyses care about.
type MemberFlags uint8

const (
	MemberStatic MemberFlags = 1 << iota
	MemberPrivate
	MemberAbstract
	MemberNative
)

// ClassID is the arena index of a class within its Program.
type ClassID int

// Class is a node of the class hierarchy.
type Class struct {
	// ID is the dense arena index of this class.
	ID ClassID

	// Name is the fully qualified class name.
	Name ClassRef

	// Origin tells whether the body is known.
	Origin Origin

	// Super is the direct superclass, empty for the hierarchy root.
	Super ClassRef

	// Interfaces are the directly implemented (or extended) interfaces.
	Interfaces []ClassRef

	// Flags are the class access flags.
	Flags ClassFlags

	// Methods are the declared methods in declaration order.
	Methods []*Method

	// Fields are the declared fields in declaration order.
	Fields []*Field

	methodIndex map[MethodSignature]*Method
	fieldIndex  map[string]*Field
}

// IsProgram reports whether the class body is known and rewritable.
func (c *Class) IsProgram() bool { return c.Origin == OriginProgram }

// IsInterface reports whether the class is an interface.
func (c *Class) IsInterface() bool { return c.Flags&ClassInterface != 0 }

// IsAbstract reports whether the class is abstract. Interfaces are abstract.
func (c *Class) IsAbstract() bool { return c.Flags&(ClassAbstract|ClassInterface) != 0 }

// Supertypes returns the immediate supertypes: the superclass (if any)
// followed by the interfaces.
func (c *Class) Supertypes() []ClassRef {
	refs := make([]ClassRef, 0, len(c.Interfaces)+1)
	if c.Super != "" {
		refs = append(refs, c.Super)
	}
	return append(refs, c.Interfaces...)
}

// LookupMethod returns the declared method with the given signature.
func (c *Class) LookupMethod(sig MethodSignature) *Method {
	return c.methodIndex[sig]
}

// LookupField returns the declared field with the given name.
func (c *Class) LookupField(name string) *Field {
	return c.fieldIndex[name]
}

// VirtualMethods returns the declared virtual methods in declaration order.
func (c *Class) VirtualMethods() []*Method {
	var out []*Method
	for _, m := range c.Methods {
		if m.IsVirtual() {
			out = append(out, m)
		}
	}
	return out
}

// StaticInitializer returns the class initializer, or nil.
func (c *Class) StaticInitializer() *Method {
	return c.methodIndex[MethodSignature{Name: ClassInitializerName, Return: "void"}]
}

// String returns the class name.
func (c *Class) String() string { return string(c.Name) }

// Method is a declared method.
type Method struct {
	Holder    *Class
	Signature MethodSignature
	Flags     MemberFlags

	// Code is the method body, nil for abstract, native and non-program
	// methods.
	Code *Code
}

// Reference returns the symbolic reference to this method.
func (m *Method) Reference() MethodRef {
	return MethodRef{Holder: m.Holder.Name, Signature: m.Signature}
}

// IsStatic reports whether the method is static.
func (m *Method) IsStatic() bool { return m.Flags&MemberStatic != 0 }

// IsPrivate reports whether the method is private.
func (m *Method) IsPrivate() bool { return m.Flags&MemberPrivate != 0 }

// IsAbstract reports whether the method has no body by declaration.
func (m *Method) IsAbstract() bool { return m.Flags&MemberAbstract != 0 }

// IsInstanceInitializer reports whether the method is a constructor.
func (m *Method) IsInstanceInitializer() bool {
	return m.Signature.Name == InstanceInitializerName
}

// IsVirtual reports whether the method participates in virtual dispatch.
func (m *Method) IsVirtual() bool {
	return !m.IsStatic() && !m.IsPrivate() && !m.IsInstanceInitializer() &&
		m.Signature.Name != ClassInitializerName
}

// String returns the qualified method reference.
func (m *Method) String() string { return m.Reference().String() }

// Field is a declared field.
type Field struct {
	Holder *Class
	Name   string
	Type   string
	Flags  MemberFlags
}

// Reference returns the symbolic reference to this field.
func (f *Field) Reference() FieldRef {
	return FieldRef{Holder: f.Holder.Name, Name: f.Name, Type: f.Type}
}

// IsStatic reports whether the field is static.
func (f *Field) IsStatic() bool { return f.Flags&MemberStatic != 0 }

// String returns the qualified field reference.
func (f *Field) String() string { return f.Reference().String() }

// ParseClassFlags parses snapshot class flags.
func ParseClassFlags(names []string) (ClassFlags, error) {
	var flags ClassFlags
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "abstract":
			flags |= ClassAbstract
		case "interface":
			flags |= ClassInterface | ClassAbstract
		case "public", "final":
		default:
			return 0, malformedf("unknown class flag %q", name)
		}
	}
	return flags, nil
}

// ParseMemberFlags parses snapshot member flags.
func ParseMemberFlags(names []string) (MemberFlags, error) {
	var flags MemberFlags
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "static":
			flags |= MemberStatic
		case "private":
			flags |= MemberPrivate
		case "abstract":
			flags |= MemberAbstract
		case "native":
			flags |= MemberNative
		case "public", "protected", "final", "synchronized", "volatile", "transient":
		default:
			return 0, malformedf("unknown member flag %q", name)
		}
	}
	return flags, nil
}
