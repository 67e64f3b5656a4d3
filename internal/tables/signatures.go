package tables

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/pkg"
)

// Method signatures are serialized little-endian; field, local,
// interface-list and type-spec signatures big-endian. The consuming
// runtime fixes this split.
type sigWriter struct {
	order binary.ByteOrder
	buf   bytes.Buffer
}

func newSigWriter(order binary.ByteOrder) *sigWriter {
	return &sigWriter{order: order}
}

// Type-spec signatures use the field-side byte order.
func newSigWriterForSpec() *sigWriter {
	return newSigWriter(binary.BigEndian)
}

func (w *sigWriter) WriteU8(v uint8) { w.buf.WriteByte(v) }

func (w *sigWriter) WriteU16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *sigWriter) WriteU32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *sigWriter) WriteU64(v uint64) {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *sigWriter) WriteBytes(b []byte) { w.buf.Write(b) }

func (w *sigWriter) Bytes() []byte { return w.buf.Bytes() }

// Leading byte of field signatures, shared with the CLI format.
const FieldSigLead byte = 0x06

// Method signature flag for instance methods.
const MethodSigHasThis byte = 0x20

// SignatureTable interns signature byte strings into one contiguous
// blob and returns byte offsets into it. A new signature that occurs
// as a contiguous run inside already-emitted bytes reuses that run's
// offset instead of growing the blob.
type SignatureTable struct {
	ctx  *Context
	ids  *pkg.InsertSortMap[string, uint16]
	blob []byte
}

func NewSignatureTable(ctx *Context) *SignatureTable {
	return &SignatureTable{ctx: ctx, ids: pkg.NewInsertSortMap[string, uint16]()}
}

func (t *SignatureTable) GetOrCreate(sig []byte) (uint16, error) {
	key := string(sig)
	if t.ids.Has(key) {
		return t.ids.Get(key), nil
	}
	if t.ctx != nil && t.ctx.IsMinimizeComplete() {
		return 0, errors.Wrap(ERR_INVARIANT, "signature table frozen")
	}
	if len(sig) > 0 {
		if i := bytes.Index(t.blob, sig); i >= 0 {
			id := uint16(i)
			t.ids.Push(key, id)
			return id, nil
		}
	}
	end := len(t.blob) + len(sig)
	if end > int(EmptyId) {
		return 0, errors.Wrap(ERR_UNSUPPORTED, "signature blob overflow")
	}
	id := uint16(len(t.blob))
	t.blob = append(t.blob, sig...)
	t.ids.Push(key, id)
	return id, nil
}

func (t *SignatureTable) TryGetId(sig []byte) (uint16, bool) {
	key := string(sig)
	if !t.ids.Has(key) {
		return 0, false
	}
	return t.ids.Get(key), true
}

func (t *SignatureTable) BlobSize() int { return len(t.blob) }

func (t *SignatureTable) Write(w *RecordWriter) error {
	w.WriteBytes(t.blob)
	return nil
}

// Each yields (signature bytes, id) pairs in interning order.
func (t *SignatureTable) Each(f func(sig []byte, id uint16)) {
	for _, k := range t.ids.Sorted {
		f([]byte(k), t.ids.Get(k))
	}
}

// GetOrCreateFieldSig interns a field signature: the 0x06 lead byte
// followed by the field type. Big-endian.
func (t *SignatureTable) GetOrCreateFieldSig(field_type *metadata.TypeSig) (uint16, error) {
	w := newSigWriter(binary.BigEndian)
	w.WriteU8(FieldSigLead)
	if err := t.writeTypeInfo(w, field_type); err != nil {
		return 0, err
	}
	return t.GetOrCreate(w.Bytes())
}

// GetOrCreateMethodSig interns a method signature: has-this flag,
// parameter count, return type, parameter types. Little-endian.
func (t *SignatureTable) GetOrCreateMethodSig(sig *metadata.MethodSig) (uint16, error) {
	w := newSigWriter(binary.LittleEndian)
	flags := byte(0x00)
	if sig.HasThis {
		flags = MethodSigHasThis
	}
	w.WriteU8(flags)
	if len(sig.Params) > 0xFF {
		return 0, errors.Wrapf(ERR_UNSUPPORTED, "method has %d parameters", len(sig.Params))
	}
	w.WriteU8(uint8(len(sig.Params)))
	if err := t.writeTypeInfo(w, sig.Ret); err != nil {
		return 0, err
	}
	for _, p := range sig.Params {
		if err := t.writeTypeInfo(w, p); err != nil {
			return 0, err
		}
	}
	return t.GetOrCreate(w.Bytes())
}

// GetOrCreateLocalsSig interns a local-variable signature: the
// concatenated type of each local. Big-endian.
func (t *SignatureTable) GetOrCreateLocalsSig(locals []*metadata.TypeSig) (uint16, error) {
	w := newSigWriter(binary.BigEndian)
	for _, l := range locals {
		if err := t.writeTypeInfo(w, l); err != nil {
			return 0, err
		}
	}
	return t.GetOrCreate(w.Bytes())
}

// GetOrCreateInterfaceSig interns an implemented-interface list:
// count, then each interface. Big-endian.
func (t *SignatureTable) GetOrCreateInterfaceSig(interfaces []metadata.Type) (uint16, error) {
	w := newSigWriter(binary.BigEndian)
	if len(interfaces) > 0xFF {
		return 0, errors.Wrapf(ERR_UNSUPPORTED, "type implements %d interfaces", len(interfaces))
	}
	w.WriteU8(uint8(len(interfaces)))
	for _, iface := range interfaces {
		err := t.writeTypeInfo(w, &metadata.TypeSig{Elem: metadata.ElemClass, Target: iface})
		if err != nil {
			return 0, err
		}
	}
	return t.GetOrCreate(w.Bytes())
}

// GetOrCreateTypeSig interns a bare type description, as stored by the
// type-spec table. Big-endian.
func (t *SignatureTable) GetOrCreateTypeSig(sig *metadata.TypeSig) (uint16, error) {
	w := newSigWriter(binary.BigEndian)
	if err := t.writeTypeInfo(w, sig); err != nil {
		return 0, err
	}
	return t.GetOrCreate(w.Bytes())
}

// GetOrCreateDefaultValueSig interns a field default value: length,
// a zero marker byte, then the raw constant bytes. Big-endian.
func (t *SignatureTable) GetOrCreateDefaultValueSig(data []byte) (uint16, error) {
	if len(data) > int(EmptyId) {
		return 0, errors.Wrap(ERR_UNSUPPORTED, "default value too large")
	}
	w := newSigWriter(binary.BigEndian)
	w.WriteU16(uint16(len(data)))
	w.WriteU8(0x00)
	w.WriteBytes(data)
	return t.GetOrCreate(w.Bytes())
}

// GetOrCreateAttributeSig interns a custom attribute blob: the ordered
// fixed ctor arguments, a named-argument count, then the named field
// and property arguments sorted by name. Little-endian.
func (t *SignatureTable) GetOrCreateAttributeSig(a *metadata.Attribute) (uint16, error) {
	w := newSigWriter(binary.LittleEndian)
	for _, arg := range a.Fixed {
		if err := t.writeAttrValue(w, arg); err != nil {
			return 0, err
		}
	}
	named := make([]metadata.NamedAttrArg, len(a.Named))
	copy(named, a.Named)
	slices.SortStableFunc(named, func(x, y metadata.NamedAttrArg) int {
		switch {
		case x.Name < y.Name:
			return -1
		case x.Name > y.Name:
			return 1
		}
		return 0
	})
	w.WriteU16(uint16(len(named)))
	for _, n := range named {
		if n.IsField {
			w.WriteU8(byte(metadata.ElemAttrField))
		} else {
			w.WriteU8(byte(metadata.ElemAttrProperty))
		}
		id, err := t.ctx.Strings.GetOrCreate(n.Name, true)
		if err != nil {
			return 0, err
		}
		w.WriteU16(id)
		if err := t.writeAttrValue(w, n.Arg); err != nil {
			return 0, err
		}
	}
	return t.GetOrCreate(w.Bytes())
}

// writeAttrValue serializes one attribute argument as
// (element-type-tag, value-bytes).
func (t *SignatureTable) writeAttrValue(w *sigWriter, arg metadata.AttrArg) error {
	w.WriteU8(byte(arg.Elem))
	switch arg.Elem {
	case metadata.ElemBoolean:
		v := byte(0)
		if arg.Value.(bool) {
			v = 1
		}
		w.WriteU8(v)
	case metadata.ElemI1, metadata.ElemU1:
		w.WriteU8(uint8(toUint64(arg.Value)))
	case metadata.ElemChar, metadata.ElemI2, metadata.ElemU2:
		w.WriteU16(uint16(toUint64(arg.Value)))
	case metadata.ElemI4, metadata.ElemU4:
		w.WriteU32(uint32(toUint64(arg.Value)))
	case metadata.ElemI8, metadata.ElemU8:
		w.WriteU64(toUint64(arg.Value))
	case metadata.ElemR4:
		w.WriteU32(mathFloat32bits(arg.Value))
	case metadata.ElemR8:
		w.WriteU64(mathFloat64bits(arg.Value))
	case metadata.ElemString, metadata.ElemAttrType:
		id, err := t.ctx.Strings.GetOrCreate(arg.Value.(string), true)
		if err != nil {
			return err
		}
		w.WriteU16(id)
	case metadata.ElemSZArray:
		w.WriteU16(uint16(len(arg.Array)))
		for _, e := range arg.Array {
			if err := t.writeAttrValue(w, e); err != nil {
				return err
			}
		}
	default:
		return errors.Wrapf(ERR_UNSUPPORTED, "attribute argument element 0x%02X", byte(arg.Elem))
	}
	return nil
}

// writeTypeInfo encodes one type into a signature. Enums collapse to
// their underlying field's type when enum expansion is on.
func (t *SignatureTable) writeTypeInfo(w *sigWriter, sig *metadata.TypeSig) error {
	if sig == nil {
		return errors.Wrap(ERR_UNRESOLVED, "nil type in signature")
	}
	if dt, ok := elem_data_types[sig.Elem]; ok {
		w.WriteU8(byte(dt))
		return nil
	}
	switch sig.Elem {
	case metadata.ElemByRef:
		w.WriteU8(byte(DATATYPE_BYREF))
		return t.writeTypeInfo(w, sig.Inner)
	case metadata.ElemClass:
		if dt, ok := primitiveDataType(sig.Target); ok {
			w.WriteU8(byte(dt))
			return nil
		}
		w.WriteU8(byte(DATATYPE_CLASS))
		return t.writeSubTypeToken(w, sig.Target)
	case metadata.ElemValueType:
		if dt, ok := primitiveDataType(sig.Target); ok {
			w.WriteU8(byte(dt))
			return nil
		}
		if td, ok := sig.Target.(*metadata.TypeDef); ok && td.IsEnum() && t.ctx.opts.ExpandEnums {
			under := td.EnumUnderlyingField()
			if under == nil {
				return errors.Wrapf(ERR_UNRESOLVED, "enum %s has no underlying field", td.TypeFullName())
			}
			return t.writeTypeInfo(w, under.Sig)
		}
		w.WriteU8(byte(DATATYPE_VALUETYPE))
		return t.writeSubTypeToken(w, sig.Target)
	case metadata.ElemSZArray:
		w.WriteU8(byte(DATATYPE_SZARRAY))
		return t.writeTypeInfo(w, sig.Inner)
	case metadata.ElemVar:
		w.WriteU8(byte(DATATYPE_VAR))
		w.WriteU8(uint8(sig.Number))
		return nil
	case metadata.ElemMVar:
		w.WriteU8(byte(DATATYPE_MVAR))
		w.WriteU8(uint8(sig.Number))
		return nil
	case metadata.ElemGenericInst:
		w.WriteU8(byte(DATATYPE_GENERICINST))
		if err := t.writeSubTypeToken(w, sig.Target); err != nil {
			return err
		}
		w.WriteU8(uint8(len(sig.Args)))
		for _, a := range sig.Args {
			if err := t.writeTypeInfo(w, a); err != nil {
				return err
			}
		}
		return nil
	}
	// Anything else the nano runtime has no encoding for.
	w.WriteU8(0x00)
	return nil
}

// writeSubTypeToken writes a packed type token through the signature's
// byte order.
func (t *SignatureTable) writeSubTypeToken(w *sigWriter, target metadata.Type) error {
	tok, err := t.ctx.EncodeTypeToken(target)
	if err != nil {
		return err
	}
	w.WriteU16(tok)
	return nil
}

// primitiveDataType maps refs and defs of the well-known primitive
// types straight to a nano data type code.
func primitiveDataType(target metadata.Type) (DataType, bool) {
	if target == nil {
		return 0, false
	}
	dt, ok := primitive_types[target.TypeFullName()]
	return dt, ok
}
