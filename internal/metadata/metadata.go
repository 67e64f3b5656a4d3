package metadata

import "fmt"

// Type is implemented by every shape a type can take in the loaded
// object graph: a definition in this module, a reference into another
// assembly, a structural specification, or a generic parameter.
// The lowering layer never owns these; it keys its own id maps on them.
type Type interface {
	TypeFullName() string
}

type Version struct {
	Major    uint16
	Minor    uint16
	Build    uint16
	Revision uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

type Assembly struct {
	Name    string
	Version Version
	Flags   uint32

	EntryPoint *MethodDef

	Refs        []*AssemblyRef
	TypeRefs    []*TypeRef
	MemberRefs  []*MemberRef
	Types       []*TypeDef
	TypeSpecs   []*TypeSpec
	MethodSpecs []*MethodSpec
	Resources   []*Resource

	// Assembly-level custom attributes. These never survive lowering,
	// and the dump does not list them.
	Attributes []*Attribute
}

type AssemblyRef struct {
	Name    string
	Version Version
	Flags   uint32
	Token   uint32
}

// TypeRef names a type defined in another assembly. Scope is the
// defining assembly ref, or the enclosing type ref for nested externals.
type TypeRef struct {
	Name      string
	Namespace string
	Scope     *AssemblyRef
	Enclosing *TypeRef
	Token     uint32
}

func (t *TypeRef) TypeFullName() string {
	if t.Enclosing != nil {
		return t.Enclosing.TypeFullName() + "+" + t.Name
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// MemberRef is a field or method defined in another assembly (or on a
// type specification). Exactly one of FieldSig and MethodSig is set.
type MemberRef struct {
	Name          string
	DeclaringType Type
	FieldSig      *TypeSig
	MethodSig     *MethodSig
	Token         uint32
}

func (m *MemberRef) IsField() bool { return m.FieldSig != nil }

func (m *MemberRef) FullName() string {
	return m.DeclaringType.TypeFullName() + "::" + m.Name
}

// TypeSpec is a structural type not expressible as a ref or def:
// generic instantiations, generic parameters in signature position,
// arrays, pointers, by-refs.
type TypeSpec struct {
	Sig   *TypeSig
	Token uint32
}

func (t *TypeSpec) TypeFullName() string { return t.Sig.String() }

// MethodSpec is a generic method instantiation.
type MethodSpec struct {
	Method        any // *MethodDef or *MemberRef
	Instantiation []*TypeSig
	Token         uint32
}

type Resource struct {
	Name  string
	Flags uint32
	Data  []byte
}
