package tables

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

const TYPE_DEF_RECORD_SIZE = 22

// TypeDefTable holds this module's type definitions in the order the
// type orderer produced. Nested types always land after their
// declaring type.
type TypeDefTable struct {
	ctx *Context
	itemTable[*metadata.TypeDef, *metadata.TypeDef]

	// First member ids are fixed while the field/method def tables
	// populate, in the same type order.
	first_field  map[*metadata.TypeDef]uint16
	first_method map[*metadata.TypeDef]uint16
}

func NewTypeDefTable(ctx *Context) *TypeDefTable {
	return &TypeDefTable{
		ctx:          ctx,
		itemTable:    newItemTable[*metadata.TypeDef, *metadata.TypeDef](),
		first_field:  map[*metadata.TypeDef]uint16{},
		first_method: map[*metadata.TypeDef]uint16{},
	}
}

func (t *TypeDefTable) Populate(ordered []*metadata.TypeDef) {
	for _, td := range ordered {
		t.add(td, td)
	}
}

func (t *TypeDefTable) TryGetId(td *metadata.TypeDef) (uint16, bool) {
	return t.tryGetId(td)
}

func (t *TypeDefTable) PreAllocateStrings() error {
	for i := 0; i < t.Len(); i++ {
		td := t.At(i)
		if _, err := t.ctx.Strings.GetOrCreate(td.Name, true); err != nil {
			return err
		}
		if _, err := t.ctx.Strings.GetOrCreate(td.Namespace, true); err != nil {
			return err
		}
	}
	return nil
}

// OrderedFields returns a type's non-literal fields, statics first,
// source order within each group. Literal constants never reach the
// field-def table.
func OrderedFields(td *metadata.TypeDef) []*metadata.FieldDef {
	fields := []*metadata.FieldDef{}
	for _, f := range td.Fields {
		if f.IsStatic() && !f.IsLiteral() {
			fields = append(fields, f)
		}
	}
	for _, f := range td.Fields {
		if !f.IsStatic() && !f.IsLiteral() {
			fields = append(fields, f)
		}
	}
	return fields
}

// OrderedMethods returns a type's methods: virtual first, then
// instance, then static, source order within each group.
func OrderedMethods(td *metadata.TypeDef) []*metadata.MethodDef {
	methods := []*metadata.MethodDef{}
	for _, m := range td.Methods {
		if m.IsVirtual() {
			methods = append(methods, m)
		}
	}
	for _, m := range td.Methods {
		if !m.IsVirtual() && !m.IsStatic() {
			methods = append(methods, m)
		}
	}
	for _, m := range td.Methods {
		if !m.IsVirtual() && m.IsStatic() {
			methods = append(methods, m)
		}
	}
	return methods
}

func (t *TypeDefTable) methodCounts(td *metadata.TypeDef) (virtual, instance, static int) {
	for _, m := range td.Methods {
		switch {
		case m.IsVirtual():
			virtual++
		case m.IsStatic():
			static++
		default:
			instance++
		}
	}
	return
}

// typeDataType is the nano data type code stored on the record: enums
// report their underlying primitive, other value types VALUETYPE,
// everything else CLASS.
func (t *TypeDefTable) typeDataType(td *metadata.TypeDef) DataType {
	if dt, ok := primitive_types[td.TypeFullName()]; ok {
		return dt
	}
	if td.IsEnum() {
		if under := td.EnumUnderlyingField(); under != nil {
			if dt, ok := elem_data_types[under.Sig.Elem]; ok {
				return dt
			}
		}
		return DATATYPE_VALUETYPE
	}
	if td.IsValueType() {
		return DATATYPE_VALUETYPE
	}
	return DATATYPE_CLASS
}

func (t *TypeDefTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		td := t.At(i)
		name_id, ok := t.ctx.Strings.TryGetId(td.Name)
		if !ok {
			return errors.Wrapf(ERR_UNRESOLVED, "type def name %q", td.Name)
		}
		ns_id, ok := t.ctx.Strings.TryGetId(td.Namespace)
		if !ok {
			return errors.Wrapf(ERR_UNRESOLVED, "type def namespace %q", td.Namespace)
		}

		extends := EmptyId
		if td.Extends != nil {
			tok, err := t.ctx.EncodeTypeToken(td.Extends)
			if err != nil {
				return errors.Wrapf(err, "extends of %s", td.TypeFullName())
			}
			extends = tok
		}

		enclosing := EmptyId
		if td.DeclaringType != nil {
			id, ok := t.TryGetId(td.DeclaringType)
			if !ok {
				return errors.Wrapf(ERR_UNRESOLVED, "declaring type of %s", td.TypeFullName())
			}
			enclosing = id
		}

		iface_sig := EmptyId
		if len(td.Interfaces) > 0 {
			id, err := t.ctx.Signatures.GetOrCreateInterfaceSig(td.Interfaces)
			if err != nil {
				return errors.Wrapf(err, "interfaces of %s", td.TypeFullName())
			}
			iface_sig = id
		}

		virtual, instance, static := t.methodCounts(td)
		if virtual > 0xFF || instance > 0xFF || static > 0xFF {
			return errors.Wrapf(ERR_UNSUPPORTED, "%s has too many methods", td.TypeFullName())
		}

		start := w.BeginRecord()
		w.WriteU16(name_id)
		w.WriteU16(ns_id)
		w.WriteU16(extends)
		w.WriteU16(enclosing)
		w.WriteU16(iface_sig)
		w.WriteU16(t.first_field[td])
		w.WriteU16(t.first_method[td])
		w.WriteU8(uint8(virtual))
		w.WriteU8(uint8(instance))
		w.WriteU8(uint8(static))
		w.WriteU8(byte(t.typeDataType(td)))
		w.WriteU32(td.Flags)
		if err := w.EndRecord(start, TYPE_DEF_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}
