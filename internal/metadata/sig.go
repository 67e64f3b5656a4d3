package metadata

import (
	"fmt"
	"strings"
)

// ElementType is the CLI signature element tag (ECMA-335 II.23.1.16).
type ElementType byte

const (
	ElemEnd         ElementType = 0x00
	ElemVoid        ElementType = 0x01
	ElemBoolean     ElementType = 0x02
	ElemChar        ElementType = 0x03
	ElemI1          ElementType = 0x04
	ElemU1          ElementType = 0x05
	ElemI2          ElementType = 0x06
	ElemU2          ElementType = 0x07
	ElemI4          ElementType = 0x08
	ElemU4          ElementType = 0x09
	ElemI8          ElementType = 0x0A
	ElemU8          ElementType = 0x0B
	ElemR4          ElementType = 0x0C
	ElemR8          ElementType = 0x0D
	ElemString      ElementType = 0x0E
	ElemPtr         ElementType = 0x0F
	ElemByRef       ElementType = 0x10
	ElemValueType   ElementType = 0x11
	ElemClass       ElementType = 0x12
	ElemVar         ElementType = 0x13
	ElemArray       ElementType = 0x14
	ElemGenericInst ElementType = 0x15
	ElemTypedByRef  ElementType = 0x16
	ElemI           ElementType = 0x18
	ElemU           ElementType = 0x19
	ElemFnPtr       ElementType = 0x1B
	ElemObject      ElementType = 0x1C
	ElemSZArray     ElementType = 0x1D
	ElemMVar        ElementType = 0x1E
	ElemCModReqd    ElementType = 0x1F
	ElemCModOpt     ElementType = 0x20
	ElemSentinel    ElementType = 0x41
	ElemPinned      ElementType = 0x45

	// Custom attribute named-argument tags (II.23.3).
	ElemAttrType     ElementType = 0x50
	ElemAttrBoxed    ElementType = 0x51
	ElemAttrField    ElementType = 0x53
	ElemAttrProperty ElementType = 0x54
)

var elemNames = map[ElementType]string{
	ElemVoid: "void", ElemBoolean: "bool", ElemChar: "char",
	ElemI1: "sbyte", ElemU1: "byte", ElemI2: "short", ElemU2: "ushort",
	ElemI4: "int", ElemU4: "uint", ElemI8: "long", ElemU8: "ulong",
	ElemR4: "float", ElemR8: "double", ElemString: "string",
	ElemObject: "object", ElemI: "native int", ElemU: "native uint",
	ElemTypedByRef: "typedref",
}

// TypeSig is the structural description of a type as it appears in a
// signature or an instruction operand.
//
// Which fields are meaningful depends on Elem:
//   - primitives: none
//   - CLASS / VALUETYPE: Target (a *TypeDef or *TypeRef)
//   - BYREF / SZARRAY / PTR / PINNED: Inner
//   - GENERICINST: Target and Args
//   - VAR / MVAR: Number
type TypeSig struct {
	Elem   ElementType
	Target Type
	Inner  *TypeSig
	Args   []*TypeSig
	Number int
}

func (s *TypeSig) String() string {
	switch s.Elem {
	case ElemClass, ElemValueType:
		return s.Target.TypeFullName()
	case ElemByRef:
		return s.Inner.String() + "&"
	case ElemPtr:
		return s.Inner.String() + "*"
	case ElemSZArray:
		return s.Inner.String() + "[]"
	case ElemPinned:
		return s.Inner.String() + " pinned"
	case ElemVar:
		return fmt.Sprintf("!%d", s.Number)
	case ElemMVar:
		return fmt.Sprintf("!!%d", s.Number)
	case ElemGenericInst:
		args := make([]string, len(s.Args))
		for i, a := range s.Args {
			args[i] = a.String()
		}
		return s.Target.TypeFullName() + "<" + strings.Join(args, ", ") + ">"
	}
	if n, ok := elemNames[s.Elem]; ok {
		return n
	}
	return fmt.Sprintf("elem(0x%02X)", byte(s.Elem))
}

// NamedType returns the ref or def a CLASS/VALUETYPE/GENERICINST sig
// resolves to, nil for everything else.
func (s *TypeSig) NamedType() Type {
	switch s.Elem {
	case ElemClass, ElemValueType, ElemGenericInst:
		return s.Target
	}
	return nil
}

type MethodSig struct {
	HasThis           bool
	ExplicitThis      bool
	CallConv          byte
	GenericParamCount int
	Ret               *TypeSig
	Params            []*TypeSig
}

func (s *MethodSig) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.String()
	}
	return s.Ret.String() + "(" + strings.Join(params, ", ") + ")"
}
