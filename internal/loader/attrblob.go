package loader

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/pkg"
)

// buildAttributes parses every custom attribute attached to owners the
// nano image carries: the assembly, types, fields and methods.
// Attributes whose blob cannot be decoded are skipped with a warning;
// an attribute type the runtime cannot load is worthless anyway.
func (b *graphBuilder) buildAttributes() error {
	for i, row := range b.raw.rows[tblCustomAttribute] {
		parent_table, parent_row := decodeCoded(codedHasCustomAttribute, row[0])

		var attach func(*metadata.Attribute)
		switch parent_table {
		case tblAssembly:
			attach = func(a *metadata.Attribute) {
				b.asm.Attributes = append(b.asm.Attributes, a)
			}
		case tblTypeDef:
			if parent_row == 0 || int(parent_row) > len(b.typedefs) {
				continue
			}
			td := b.typedefs[parent_row-1]
			attach = func(a *metadata.Attribute) {
				td.Attributes = append(td.Attributes, a)
			}
		case tblField:
			if parent_row == 0 || int(parent_row) > len(b.fields) || b.fields[parent_row-1] == nil {
				continue
			}
			f := b.fields[parent_row-1]
			attach = func(a *metadata.Attribute) {
				f.Attributes = append(f.Attributes, a)
			}
		case tblMethodDef:
			if parent_row == 0 || int(parent_row) > len(b.methods) || b.methods[parent_row-1] == nil {
				continue
			}
			m := b.methods[parent_row-1]
			attach = func(a *metadata.Attribute) {
				m.Attributes = append(m.Attributes, a)
			}
		default:
			continue
		}

		ctor_table, ctor_row := decodeCoded(codedCustomAttributeType, row[1])
		var ctor any
		switch ctor_table {
		case tblMethodDef:
			if ctor_row == 0 || int(ctor_row) > len(b.methods) {
				continue
			}
			ctor = b.methods[ctor_row-1]
		case tblMemberRef:
			m, err := b.memberRef(ctor_row)
			if err != nil {
				pkg.WarnLog("attribute ctor unresolved:", err)
				continue
			}
			ctor = m
		default:
			continue
		}

		blob, err := b.md.blobAt(row[2])
		if err != nil {
			return err
		}
		fixed, named, err := b.parseAttrBlob(ctor, blob)
		if err != nil {
			pkg.WarnLog("skipping attribute blob:", err)
			continue
		}
		attach(&metadata.Attribute{
			Ctor:  ctor,
			Fixed: fixed,
			Named: named,
			Token: uint32(tblCustomAttribute)<<24 | uint32(i+1),
		})
	}
	return nil
}

func ctorSig(ctor any) *metadata.MethodSig {
	switch m := ctor.(type) {
	case *metadata.MethodDef:
		return m.Sig
	case *metadata.MemberRef:
		return m.MethodSig
	}
	return nil
}

type attrReader struct {
	data []byte
	pos  int
}

func (r *attrReader) need(n int) error {
	if r.pos+n > len(r.data) {
		return errors.Wrap(ERR_BAD_IMAGE, "attribute blob underrun")
	}
	return nil
}

func (r *attrReader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *attrReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *attrReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *attrReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// serString reads a compressed-length UTF-8 string; 0xFF is null.
func (r *attrReader) serString() (string, error) {
	if err := r.need(1); err != nil {
		return "", err
	}
	if r.data[r.pos] == 0xFF {
		r.pos++
		return "", nil
	}
	length, n := readCompressed(r.data[r.pos:])
	r.pos += n
	if err := r.need(int(length)); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+int(length)])
	r.pos += int(length)
	return s, nil
}

func (b *graphBuilder) parseAttrBlob(ctor any, blob []byte) ([]metadata.AttrArg, []metadata.NamedAttrArg, error) {
	sig := ctorSig(ctor)
	if sig == nil {
		return nil, nil, errors.Wrap(ERR_BAD_IMAGE, "attribute ctor has no signature")
	}
	r := &attrReader{data: blob}
	prolog, err := r.u16()
	if err != nil {
		return nil, nil, err
	}
	if prolog != 0x0001 {
		return nil, nil, errors.Wrapf(ERR_BAD_IMAGE, "attribute prolog 0x%04X", prolog)
	}

	fixed := []metadata.AttrArg{}
	for _, p := range sig.Params {
		arg, err := b.readFixedArg(r, p)
		if err != nil {
			return nil, nil, err
		}
		fixed = append(fixed, arg)
	}

	named := []metadata.NamedAttrArg{}
	count, err := r.u16()
	if err != nil {
		// Old compilers omit the named count when empty.
		return fixed, named, nil
	}
	for i := 0; i < int(count); i++ {
		kind, err := r.u8()
		if err != nil {
			return nil, nil, err
		}
		if kind != byte(metadata.ElemAttrField) && kind != byte(metadata.ElemAttrProperty) {
			return nil, nil, errors.Wrapf(ERR_BAD_IMAGE, "named argument kind 0x%02X", kind)
		}
		arg_type, err := r.readFieldOrPropType()
		if err != nil {
			return nil, nil, err
		}
		name, err := r.serString()
		if err != nil {
			return nil, nil, err
		}
		arg, err := b.readElemValue(r, arg_type)
		if err != nil {
			return nil, nil, err
		}
		named = append(named, metadata.NamedAttrArg{
			IsField: kind == byte(metadata.ElemAttrField),
			Name:    name,
			Arg:     arg,
		})
	}
	return fixed, named, nil
}

// readFieldOrPropType reads a named argument's type descriptor,
// reducing enums to their 32-bit underlying representation.
func (r *attrReader) readFieldOrPropType() (metadata.ElementType, error) {
	b, err := r.u8()
	if err != nil {
		return 0, err
	}
	elem := metadata.ElementType(b)
	const elemAttrEnum = metadata.ElementType(0x55)
	if elem == elemAttrEnum {
		if _, err := r.serString(); err != nil {
			return 0, err
		}
		return metadata.ElemI4, nil
	}
	return elem, nil
}

// readFixedArg reads one ctor argument guided by the parameter type.
func (b *graphBuilder) readFixedArg(r *attrReader, p *metadata.TypeSig) (metadata.AttrArg, error) {
	switch p.Elem {
	case metadata.ElemSZArray:
		n, err := r.u32()
		if err != nil {
			return metadata.AttrArg{}, err
		}
		arg := metadata.AttrArg{Elem: metadata.ElemSZArray}
		if n == 0xFFFFFFFF {
			return arg, nil
		}
		for i := uint32(0); i < n; i++ {
			e, err := b.readFixedArg(r, p.Inner)
			if err != nil {
				return metadata.AttrArg{}, err
			}
			arg.Array = append(arg.Array, e)
		}
		return arg, nil

	case metadata.ElemClass:
		if p.Target != nil && p.Target.TypeFullName() == "System.Type" {
			name, err := r.serString()
			if err != nil {
				return metadata.AttrArg{}, err
			}
			return metadata.AttrArg{Elem: metadata.ElemAttrType, Value: name}, nil
		}
		return metadata.AttrArg{}, errors.Wrapf(ERR_BAD_IMAGE, "attribute argument of class %s", p.String())

	case metadata.ElemValueType:
		// Enums serialize as their underlying integer.
		if td, ok := p.Target.(*metadata.TypeDef); ok && td.IsEnum() {
			if under := td.EnumUnderlyingField(); under != nil {
				return b.readElemValueReader(r, under.Sig.Elem)
			}
		}
		return b.readElemValueReader(r, metadata.ElemI4)

	case metadata.ElemObject:
		elem, err := r.readFieldOrPropType()
		if err != nil {
			return metadata.AttrArg{}, err
		}
		return b.readElemValue(r, elem)
	}
	return b.readElemValueReader(r, p.Elem)
}

func (b *graphBuilder) readElemValue(r *attrReader, elem metadata.ElementType) (metadata.AttrArg, error) {
	if elem == metadata.ElemAttrType {
		name, err := r.serString()
		if err != nil {
			return metadata.AttrArg{}, err
		}
		return metadata.AttrArg{Elem: metadata.ElemAttrType, Value: name}, nil
	}
	if elem == metadata.ElemSZArray {
		inner, err := r.readFieldOrPropType()
		if err != nil {
			return metadata.AttrArg{}, err
		}
		n, err := r.u32()
		if err != nil {
			return metadata.AttrArg{}, err
		}
		arg := metadata.AttrArg{Elem: metadata.ElemSZArray}
		if n == 0xFFFFFFFF {
			return arg, nil
		}
		for i := uint32(0); i < n; i++ {
			e, err := b.readElemValue(r, inner)
			if err != nil {
				return metadata.AttrArg{}, err
			}
			arg.Array = append(arg.Array, e)
		}
		return arg, nil
	}
	return b.readElemValueReader(r, elem)
}

func (b *graphBuilder) readElemValueReader(r *attrReader, elem metadata.ElementType) (metadata.AttrArg, error) {
	arg := metadata.AttrArg{Elem: elem}
	switch elem {
	case metadata.ElemBoolean:
		v, err := r.u8()
		if err != nil {
			return arg, err
		}
		arg.Value = v != 0
	case metadata.ElemI1:
		v, err := r.u8()
		if err != nil {
			return arg, err
		}
		arg.Value = int64(int8(v))
	case metadata.ElemU1:
		v, err := r.u8()
		if err != nil {
			return arg, err
		}
		arg.Value = uint64(v)
	case metadata.ElemChar, metadata.ElemU2:
		v, err := r.u16()
		if err != nil {
			return arg, err
		}
		arg.Value = uint64(v)
	case metadata.ElemI2:
		v, err := r.u16()
		if err != nil {
			return arg, err
		}
		arg.Value = int64(int16(v))
	case metadata.ElemI4:
		v, err := r.u32()
		if err != nil {
			return arg, err
		}
		arg.Value = int64(int32(v))
	case metadata.ElemU4:
		v, err := r.u32()
		if err != nil {
			return arg, err
		}
		arg.Value = uint64(v)
	case metadata.ElemI8:
		v, err := r.u64()
		if err != nil {
			return arg, err
		}
		arg.Value = int64(v)
	case metadata.ElemU8:
		v, err := r.u64()
		if err != nil {
			return arg, err
		}
		arg.Value = v
	case metadata.ElemR4:
		v, err := r.u32()
		if err != nil {
			return arg, err
		}
		arg.Value = float64(math.Float32frombits(v))
	case metadata.ElemR8:
		v, err := r.u64()
		if err != nil {
			return arg, err
		}
		arg.Value = math.Float64frombits(v)
	case metadata.ElemString:
		v, err := r.serString()
		if err != nil {
			return arg, err
		}
		arg.Value = v
	default:
		return arg, errors.Wrapf(ERR_BAD_IMAGE, "attribute value element 0x%02X", byte(elem))
	}
	return arg, nil
}
