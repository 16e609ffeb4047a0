package model

import (
	"strconv"
	"strings"
)

// Op is the kind of a traced instruction.
type Op uint8

const (
	OpInvokeStatic Op = iota
	OpInvokeDirect
	OpInvokeSuper
	OpInvokeInterface
	OpInvokeVirtual
	OpStaticGet
	OpStaticPut
	OpInstanceGet
	OpInstancePut
	OpNewInstance
	OpInstanceOf
	OpCheckCast
	OpConstClass
	OpNewArray
	OpFilledNewArray
)

var opNames = map[string]Op{
	"invoke-static":    OpInvokeStatic,
	"invoke-direct":    OpInvokeDirect,
	"invoke-super":     OpInvokeSuper,
	"invoke-interface": OpInvokeInterface,
	"invoke-virtual":   OpInvokeVirtual,
	"sget":             OpStaticGet,
	"sput":             OpStaticPut,
	"iget":             OpInstanceGet,
	"iput":             OpInstancePut,
	"new-instance":     OpNewInstance,
	"instance-of":      OpInstanceOf,
	"check-cast":       OpCheckCast,
	"const-class":      OpConstClass,
	"new-array":        OpNewArray,
	"filled-new-array": OpFilledNewArray,
}

// IsInvoke reports whether the op is a method invocation.
func (o Op) IsInvoke() bool { return o <= OpInvokeVirtual }

// IsFieldAccess reports whether the op reads or writes a field.
func (o Op) IsFieldAccess() bool { return o >= OpStaticGet && o <= OpInstancePut }

// FieldAccessKind classifies field accesses.
type FieldAccessKind uint8

const (
	StaticRead FieldAccessKind = iota
	StaticWrite
	InstanceRead
	InstanceWrite
)

// IsStatic reports whether the access targets a static field.
func (k FieldAccessKind) IsStatic() bool { return k == StaticRead || k == StaticWrite }

// IsWrite reports whether the access writes the field.
func (k FieldAccessKind) IsWrite() bool { return k == StaticWrite || k == InstanceWrite }

// Instruction is one traced instruction. Only the operands relevant to the
// op are set.
type Instruction struct {
	Op     Op
	Class  ClassRef // owner of the member, allocated or tested class, array element type
	Method MethodSignature
	Field  FieldRef
	Length int // element count of filled-new-array
}

// Code is a method body, opaque to analyses except through Accept.
type Code struct {
	Instructions []Instruction
}

// CodeVisitor receives the instructions of a body, one call per occurrence.
type CodeVisitor interface {
	VisitInvoke(op Op, ref MethodRef)
	VisitFieldAccess(kind FieldAccessKind, ref FieldRef)
	VisitNewInstance(ref ClassRef)
	VisitTypeReference(op Op, ref ClassRef)
	VisitNewArray(elementType ClassRef, constant bool, length int)
}

// Accept walks the body in order.
func (c *Code) Accept(v CodeVisitor) {
	if c == nil {
		return
	}
	for _, insn := range c.Instructions {
		switch {
		case insn.Op.IsInvoke():
			v.VisitInvoke(insn.Op, MethodRef{Holder: insn.Class, Signature: insn.Method})
		case insn.Op.IsFieldAccess():
			v.VisitFieldAccess(FieldAccessKind(insn.Op-OpStaticGet), insn.Field)
		case insn.Op == OpNewInstance:
			v.VisitNewInstance(insn.Class)
		case insn.Op == OpNewArray:
			v.VisitNewArray(insn.Class, false, 0)
		case insn.Op == OpFilledNewArray:
			v.VisitNewArray(insn.Class, true, insn.Length)
		default:
			v.VisitTypeReference(insn.Op, insn.Class)
		}
	}
}

// ParseInstruction parses one textual instruction:
//
//	invoke-virtual <class> <ret> <name>(<params>)
//	sget|sput|iget|iput <class> <name>:<type>
//	new-instance|instance-of|check-cast|const-class <class>
//	new-array <type>
//	filled-new-array <type> <length>
func ParseInstruction(s string) (Instruction, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return Instruction{}, malformedf("instruction %q: missing operand", s)
	}
	op, ok := opNames[fields[0]]
	if !ok {
		return Instruction{}, malformedf("instruction %q: unknown op %q", s, fields[0])
	}
	insn := Instruction{Op: op, Class: ClassRef(fields[1])}
	switch {
	case op.IsInvoke():
		if len(fields) < 3 {
			return Instruction{}, malformedf("instruction %q: missing method signature", s)
		}
		sig, err := ParseMethodSignature(strings.Join(fields[2:], " "))
		if err != nil {
			return Instruction{}, err
		}
		insn.Method = sig
	case op.IsFieldAccess():
		if len(fields) != 3 {
			return Instruction{}, malformedf("instruction %q: want <class> <name>:<type>", s)
		}
		ref, err := ParseFieldRef(fields[1] + "#" + fields[2])
		if err != nil {
			return Instruction{}, err
		}
		insn.Field = ref
	case op == OpFilledNewArray:
		if len(fields) != 3 {
			return Instruction{}, malformedf("instruction %q: want <type> <length>", s)
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil || n < 0 {
			return Instruction{}, malformedf("instruction %q: bad length", s)
		}
		insn.Length = n
	default:
		if len(fields) != 2 {
			return Instruction{}, malformedf("instruction %q: trailing operands", s)
		}
	}
	return insn, nil
}
