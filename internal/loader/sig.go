package loader

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

// sigReader decodes CLI blob signatures into the object model.
// resolve maps a TypeDefOrRef coded token to a graph type.
type sigReader struct {
	data    []byte
	pos     int
	resolve func(table int, row uint32) (metadata.Type, error)
}

func (r *sigReader) eof() bool { return r.pos >= len(r.data) }

func (r *sigReader) byte() (byte, error) {
	if r.eof() {
		return 0, errors.Wrap(ERR_BAD_IMAGE, "signature underrun")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *sigReader) peek() (byte, error) {
	if r.eof() {
		return 0, errors.Wrap(ERR_BAD_IMAGE, "signature underrun")
	}
	return r.data[r.pos], nil
}

func (r *sigReader) compressed() (uint32, error) {
	if r.eof() {
		return 0, errors.Wrap(ERR_BAD_IMAGE, "signature underrun")
	}
	v, n := readCompressed(r.data[r.pos:])
	r.pos += n
	return v, nil
}

// typeDefOrRef reads a compressed TypeDefOrRef coded token.
func (r *sigReader) typeDefOrRef() (metadata.Type, error) {
	v, err := r.compressed()
	if err != nil {
		return nil, err
	}
	table, row := decodeCoded(codedTypeDefOrRef, v)
	return r.resolve(table, row)
}

func (r *sigReader) skipCustomMods() error {
	for !r.eof() {
		b, err := r.peek()
		if err != nil {
			return err
		}
		if metadata.ElementType(b) != metadata.ElemCModReqd && metadata.ElementType(b) != metadata.ElemCModOpt {
			return nil
		}
		r.pos++
		if _, err := r.compressed(); err != nil {
			return err
		}
	}
	return nil
}

func (r *sigReader) typeSig() (*metadata.TypeSig, error) {
	if err := r.skipCustomMods(); err != nil {
		return nil, err
	}
	b, err := r.byte()
	if err != nil {
		return nil, err
	}
	elem := metadata.ElementType(b)
	switch elem {
	case metadata.ElemVoid, metadata.ElemBoolean, metadata.ElemChar,
		metadata.ElemI1, metadata.ElemU1, metadata.ElemI2, metadata.ElemU2,
		metadata.ElemI4, metadata.ElemU4, metadata.ElemI8, metadata.ElemU8,
		metadata.ElemR4, metadata.ElemR8, metadata.ElemString,
		metadata.ElemObject, metadata.ElemI, metadata.ElemU,
		metadata.ElemTypedByRef:
		return &metadata.TypeSig{Elem: elem}, nil

	case metadata.ElemClass, metadata.ElemValueType:
		target, err := r.typeDefOrRef()
		if err != nil {
			return nil, err
		}
		return &metadata.TypeSig{Elem: elem, Target: target}, nil

	case metadata.ElemByRef, metadata.ElemPtr, metadata.ElemSZArray,
		metadata.ElemPinned:
		inner, err := r.typeSig()
		if err != nil {
			return nil, err
		}
		return &metadata.TypeSig{Elem: elem, Inner: inner}, nil

	case metadata.ElemVar, metadata.ElemMVar:
		n, err := r.compressed()
		if err != nil {
			return nil, err
		}
		return &metadata.TypeSig{Elem: elem, Number: int(n)}, nil

	case metadata.ElemGenericInst:
		kind, err := r.byte()
		if err != nil {
			return nil, err
		}
		_ = kind // CLASS or VALUETYPE of the open type
		target, err := r.typeDefOrRef()
		if err != nil {
			return nil, err
		}
		argc, err := r.compressed()
		if err != nil {
			return nil, err
		}
		sig := &metadata.TypeSig{Elem: elem, Target: target}
		for i := uint32(0); i < argc; i++ {
			a, err := r.typeSig()
			if err != nil {
				return nil, err
			}
			sig.Args = append(sig.Args, a)
		}
		return sig, nil

	case metadata.ElemArray:
		inner, err := r.typeSig()
		if err != nil {
			return nil, err
		}
		rank, err := r.compressed()
		if err != nil {
			return nil, err
		}
		sizes, err := r.compressed()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < sizes; i++ {
			if _, err := r.compressed(); err != nil {
				return nil, err
			}
		}
		bounds, err := r.compressed()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < bounds; i++ {
			if r.eof() {
				return nil, errors.Wrap(ERR_BAD_IMAGE, "signature underrun")
			}
			_, n := readCompressedSigned(r.data[r.pos:])
			r.pos += n
		}
		_ = rank
		return &metadata.TypeSig{Elem: elem, Inner: inner}, nil

	case metadata.ElemFnPtr:
		// Parse and discard the nested method signature.
		if _, err := r.methodSigBody(); err != nil {
			return nil, err
		}
		return &metadata.TypeSig{Elem: elem}, nil
	}
	return nil, errors.Wrapf(ERR_BAD_IMAGE, "signature element 0x%02X", b)
}

const (
	callconv_has_this = 0x20
	callconv_explicit = 0x40
	callconv_generic  = 0x10
	callconv_vararg   = 0x05
)

func (r *sigReader) methodSigBody() (*metadata.MethodSig, error) {
	conv, err := r.byte()
	if err != nil {
		return nil, err
	}
	sig := &metadata.MethodSig{
		HasThis:      conv&callconv_has_this != 0,
		ExplicitThis: conv&callconv_explicit != 0,
		CallConv:     conv & 0x0F,
	}
	if conv&callconv_generic != 0 {
		n, err := r.compressed()
		if err != nil {
			return nil, err
		}
		sig.GenericParamCount = int(n)
	}
	count, err := r.compressed()
	if err != nil {
		return nil, err
	}
	if sig.Ret, err = r.typeSig(); err != nil {
		return nil, err
	}
	for i := uint32(0); i < count; i++ {
		b, err := r.peek()
		if err != nil {
			return nil, err
		}
		if metadata.ElementType(b) == metadata.ElemSentinel {
			r.pos++
		}
		p, err := r.typeSig()
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, p)
	}
	return sig, nil
}

// methodSig decodes a MethodDef/MemberRef method signature blob.
func (r *sigReader) methodSig() (*metadata.MethodSig, error) {
	return r.methodSigBody()
}

// fieldSig decodes a field signature blob (0x06 lead).
func (r *sigReader) fieldSig() (*metadata.TypeSig, error) {
	lead, err := r.byte()
	if err != nil {
		return nil, err
	}
	if lead != 0x06 {
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "field signature lead 0x%02X", lead)
	}
	return r.typeSig()
}

// localsSig decodes a StandAloneSig locals blob (0x07 lead).
func (r *sigReader) localsSig() ([]*metadata.TypeSig, error) {
	lead, err := r.byte()
	if err != nil {
		return nil, err
	}
	if lead != 0x07 {
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "locals signature lead 0x%02X", lead)
	}
	count, err := r.compressed()
	if err != nil {
		return nil, err
	}
	locals := make([]*metadata.TypeSig, 0, count)
	for i := uint32(0); i < count; i++ {
		l, err := r.typeSig()
		if err != nil {
			return nil, err
		}
		locals = append(locals, l)
	}
	return locals, nil
}

// methodSpecSig decodes a MethodSpec instantiation blob (0x0A lead).
func (r *sigReader) methodSpecSig() ([]*metadata.TypeSig, error) {
	lead, err := r.byte()
	if err != nil {
		return nil, err
	}
	if lead != 0x0A {
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "method spec lead 0x%02X", lead)
	}
	count, err := r.compressed()
	if err != nil {
		return nil, err
	}
	args := make([]*metadata.TypeSig, 0, count)
	for i := uint32(0); i < count; i++ {
		a, err := r.typeSig()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}
