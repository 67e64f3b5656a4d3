package metadata

// Attribute is a custom attribute instance attached to an assembly,
// type, field or method.
type Attribute struct {
	// Ctor is the attribute constructor: *MethodDef for attributes
	// defined in this assembly, *MemberRef otherwise.
	Ctor  any
	Fixed []AttrArg
	Named []NamedAttrArg
	Token uint32
}

// AttributeType returns the declaring type of the constructor.
func (a *Attribute) AttributeType() Type {
	switch c := a.Ctor.(type) {
	case *MethodDef:
		return c.DeclaringType
	case *MemberRef:
		return c.DeclaringType
	}
	return nil
}

func (a *Attribute) TypeFullName() string {
	if t := a.AttributeType(); t != nil {
		return t.TypeFullName()
	}
	return ""
}

// AttrArg is one serialized attribute argument. Value holds bool,
// int64, uint64, float64 or string depending on Elem; ElemAttrType
// arguments carry the type's full name as a string.
type AttrArg struct {
	Elem  ElementType
	Value any

	// Array is set instead of Value for SZARRAY arguments.
	Array []AttrArg
}

type NamedAttrArg struct {
	IsField bool
	Name    string
	Arg     AttrArg
}
