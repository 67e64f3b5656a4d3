package metadata

// TypeAttributes bits (ECMA-335 II.23.1.15), the subset the processor
// inspects.
const (
	TypeFlagVisibilityMask uint32 = 0x00000007
	TypeFlagPublic         uint32 = 0x00000001
	TypeFlagNestedPublic   uint32 = 0x00000002
	TypeFlagInterface      uint32 = 0x00000020
	TypeFlagAbstract       uint32 = 0x00000080
	TypeFlagSealed         uint32 = 0x00000100
)

// FieldAttributes bits.
const (
	FieldFlagStatic  uint16 = 0x0010
	FieldFlagInitOnly uint16 = 0x0020
	FieldFlagLiteral uint16 = 0x0040
	FieldFlagHasDefault uint16 = 0x8000
)

// MethodAttributes / MethodImplAttributes bits.
const (
	MethodFlagStatic   uint32 = 0x0010
	MethodFlagVirtual  uint32 = 0x0040
	MethodFlagAbstract uint32 = 0x0400
	MethodFlagSpecialName uint32 = 0x0800

	MethodImplInternalCall uint16 = 0x1000
	MethodImplNative       uint16 = 0x0003
)

const ModuleTypeName = "<Module>"

type TypeDef struct {
	Name      string
	Namespace string
	Flags     uint32

	Extends       Type
	DeclaringType *TypeDef
	NestedTypes   []*TypeDef
	Interfaces    []Type

	Fields        []*FieldDef
	Methods       []*MethodDef
	GenericParams []*GenericParam
	Attributes    []*Attribute

	Token uint32
}

func (t *TypeDef) TypeFullName() string {
	if t.DeclaringType != nil {
		return t.DeclaringType.TypeFullName() + "+" + t.Name
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

func (t *TypeDef) IsModuleType() bool { return t.Name == ModuleTypeName }

func (t *TypeDef) IsInterface() bool { return t.Flags&TypeFlagInterface != 0 }

func (t *TypeDef) IsPublic() bool {
	vis := t.Flags & TypeFlagVisibilityMask
	return vis == TypeFlagPublic || vis == TypeFlagNestedPublic
}

func extendsName(t *TypeDef) string {
	if t.Extends == nil {
		return ""
	}
	return t.Extends.TypeFullName()
}

func (t *TypeDef) IsEnum() bool { return extendsName(t) == "System.Enum" }

func (t *TypeDef) IsValueType() bool {
	n := extendsName(t)
	return n == "System.ValueType" || n == "System.Enum"
}

// EnumUnderlyingField returns the value__ instance field of an enum.
func (t *TypeDef) EnumUnderlyingField() *FieldDef {
	for _, f := range t.Fields {
		if !f.IsStatic() {
			return f
		}
	}
	return nil
}

type FieldDef struct {
	Name          string
	DeclaringType *TypeDef
	Flags         uint16
	Sig           *TypeSig

	// DefaultValue is the raw constant blob for fields with a
	// compile-time default, nil otherwise.
	DefaultValue []byte

	Attributes []*Attribute
	Token      uint32
}

func (f *FieldDef) IsStatic() bool  { return f.Flags&FieldFlagStatic != 0 }
func (f *FieldDef) IsLiteral() bool { return f.Flags&FieldFlagLiteral != 0 }

func (f *FieldDef) FullName() string {
	return f.DeclaringType.TypeFullName() + "::" + f.Name
}

type MethodDef struct {
	Name          string
	DeclaringType *TypeDef
	Flags         uint32
	ImplFlags     uint16
	Sig           *MethodSig

	Locals []*TypeSig
	Body   *MethodBody

	GenericParams []*GenericParam
	Attributes    []*Attribute
	Token         uint32
}

func (m *MethodDef) IsStatic() bool   { return m.Flags&MethodFlagStatic != 0 }
func (m *MethodDef) IsVirtual() bool  { return m.Flags&MethodFlagVirtual != 0 }
func (m *MethodDef) IsAbstract() bool { return m.Flags&MethodFlagAbstract != 0 }

// HasNativeImpl reports a method with no IL body that the nano runtime
// binds to a native stub.
func (m *MethodDef) HasNativeImpl() bool {
	return m.Body == nil && !m.IsAbstract()
}

func (m *MethodDef) FullName() string {
	return m.DeclaringType.TypeFullName() + "::" + m.Name
}

// GenericParam is a generic type or method parameter declaration.
// Exactly one of OwnerType and OwnerMethod is set.
type GenericParam struct {
	Number      int
	Name        string
	OwnerType   *TypeDef
	OwnerMethod *MethodDef
	Token       uint32
}

func (g *GenericParam) TypeFullName() string {
	if g.OwnerMethod != nil {
		return "!!" + g.Name
	}
	return "!" + g.Name
}
