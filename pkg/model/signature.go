package model

import (
	"fmt"
	"strings"
)

const (
	// InstanceInitializerName is the name of constructors.
	InstanceInitializerName = "<init>"

	// ClassInitializerName is the name of static initializers.
	ClassInitializerName = "<clinit>"
)

// MethodSignature identifies a method within a class: its name, parameter
// types and return type. Signatures are not globally unique and every
// comparison takes all three parts into account.
type MethodSignature struct {
	Name   string
	Params string // comma-separated parameter types, no spaces
	Return string
}

// ParamTypes returns the parameter types.
func (s MethodSignature) ParamTypes() []string {
	if s.Params == "" {
		return nil
	}
	return strings.Split(s.Params, ",")
}

// String renders the signature as "ret name(p1,p2)".
func (s MethodSignature) String() string {
	return s.Return + " " + s.Name + "(" + s.Params + ")"
}

// ParseMethodSignature parses "ret name(p1, p2)". Initializers may omit the
// return type.
func ParseMethodSignature(s string) (MethodSignature, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return MethodSignature{}, malformedf("method signature %q: missing parameter list", s)
	}
	head := strings.TrimSpace(s[:open])
	params := s[open+1 : len(s)-1]

	var ret, name string
	if i := strings.LastIndexByte(head, ' '); i >= 0 {
		ret, name = strings.TrimSpace(head[:i]), head[i+1:]
	} else {
		name = head
		if name != InstanceInitializerName && name != ClassInitializerName {
			return MethodSignature{}, malformedf("method signature %q: missing return type", s)
		}
		ret = "void"
	}
	if name == "" || ret == "" || strings.ContainsAny(name, " \t") {
		return MethodSignature{}, malformedf("method signature %q", s)
	}

	var parts []string
	for p := range strings.SplitSeq(params, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts = append(parts, p)
	}
	return MethodSignature{Name: name, Params: strings.Join(parts, ","), Return: ret}, nil
}

// MethodRef is a symbolic reference to a method as it appears at a use site.
type MethodRef struct {
	Holder    ClassRef
	Signature MethodSignature
}

// String renders the reference as "holder#ret name(params)".
func (r MethodRef) String() string {
	return string(r.Holder) + "#" + r.Signature.String()
}

// ParseMethodRef parses "holder#ret name(params)".
func ParseMethodRef(s string) (MethodRef, error) {
	holder, rest, ok := strings.Cut(s, "#")
	if !ok {
		return MethodRef{}, malformedf("method reference %q: missing '#'", s)
	}
	sig, err := ParseMethodSignature(rest)
	if err != nil {
		return MethodRef{}, err
	}
	return MethodRef{Holder: ClassRef(strings.TrimSpace(holder)), Signature: sig}, nil
}

// FieldRef is a symbolic reference to a field as it appears at a use site.
type FieldRef struct {
	Holder ClassRef
	Name   string
	Type   string
}

// String renders the reference as "holder#name:type".
func (r FieldRef) String() string {
	return string(r.Holder) + "#" + r.Name + ":" + r.Type
}

// ParseFieldRef parses "holder#name:type".
func ParseFieldRef(s string) (FieldRef, error) {
	holder, rest, ok := strings.Cut(s, "#")
	if !ok {
		return FieldRef{}, malformedf("field reference %q: missing '#'", s)
	}
	name, typ, ok := strings.Cut(rest, ":")
	if !ok || name == "" || typ == "" {
		return FieldRef{}, malformedf("field reference %q: want name:type", s)
	}
	return FieldRef{Holder: ClassRef(strings.TrimSpace(holder)), Name: name, Type: typ}, nil
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
