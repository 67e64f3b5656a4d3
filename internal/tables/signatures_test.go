package tables_test

import (
	"testing"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/internal/tables"
	"gotest.tools/assert"
)

func TestSignatureInterning(t *testing.T) {
	t.Run("get or create is idempotent", func(t *testing.T) {
		st := tables.NewSignatureTable(nil)
		a, err := st.GetOrCreate([]byte{1, 2, 3})
		assert.NilError(t, err)
		size := st.BlobSize()
		b, err := st.GetOrCreate([]byte{1, 2, 3})
		assert.NilError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, st.BlobSize(), size)
	})

	t.Run("contiguous sub-sequences reuse offsets", func(t *testing.T) {
		st := tables.NewSignatureTable(nil)
		_, err := st.GetOrCreate([]byte{0x20, 0x02, 0x01, 0x07, 0x07})
		assert.NilError(t, err)
		size := st.BlobSize()

		// A suffix of the first signature.
		id, err := st.GetOrCreate([]byte{0x01, 0x07, 0x07})
		assert.NilError(t, err)
		assert.Equal(t, id, uint16(2))
		assert.Equal(t, st.BlobSize(), size)

		// An interior run.
		id, err = st.GetOrCreate([]byte{0x02, 0x01})
		assert.NilError(t, err)
		assert.Equal(t, id, uint16(1))
		assert.Equal(t, st.BlobSize(), size)
	})

	t.Run("distinct signatures append", func(t *testing.T) {
		st := tables.NewSignatureTable(nil)
		a, err := st.GetOrCreate([]byte{9, 9})
		assert.NilError(t, err)
		b, err := st.GetOrCreate([]byte{8, 8})
		assert.NilError(t, err)
		assert.Equal(t, a, uint16(0))
		assert.Equal(t, b, uint16(2))
		assert.Equal(t, st.BlobSize(), 4)
	})
}

func TestSignatureEncoders(t *testing.T) {
	asm, _, _ := fooAssembly()
	ctx := mustContext(asm, tables.Options{})

	t.Run("method signature is little endian with void return", func(t *testing.T) {
		id, err := ctx.Signatures.GetOrCreateMethodSig(&metadata.MethodSig{Ret: voidSig()})
		assert.NilError(t, err)
		w := tables.NewRecordWriter()
		assert.NilError(t, ctx.Signatures.Write(w))
		blob := w.Bytes()
		assert.DeepEqual(t, blob[id:id+3], []byte{0x00, 0x00, byte(tables.DATATYPE_VOID)})
	})

	t.Run("instance methods carry the has-this flag", func(t *testing.T) {
		id, err := ctx.Signatures.GetOrCreateMethodSig(&metadata.MethodSig{
			HasThis: true,
			Ret:     intSig(),
			Params:  []*metadata.TypeSig{intSig()},
		})
		assert.NilError(t, err)
		w := tables.NewRecordWriter()
		assert.NilError(t, ctx.Signatures.Write(w))
		blob := w.Bytes()
		assert.DeepEqual(t, blob[id:id+4], []byte{
			0x20, 0x01,
			byte(tables.DATATYPE_I4), byte(tables.DATATYPE_I4),
		})
	})

	t.Run("field signatures lead with 0x06", func(t *testing.T) {
		id, err := ctx.Signatures.GetOrCreateFieldSig(intSig())
		assert.NilError(t, err)
		w := tables.NewRecordWriter()
		assert.NilError(t, ctx.Signatures.Write(w))
		blob := w.Bytes()
		assert.DeepEqual(t, blob[id:id+2], []byte{0x06, byte(tables.DATATYPE_I4)})
	})

	t.Run("class types write a big endian sub token", func(t *testing.T) {
		object := asm.TypeRefs[0]
		id, err := ctx.Signatures.GetOrCreateFieldSig(&metadata.TypeSig{
			Elem:   metadata.ElemClass,
			Target: object,
		})
		assert.NilError(t, err)
		tok, err := ctx.EncodeTypeToken(object)
		assert.NilError(t, err)
		w := tables.NewRecordWriter()
		assert.NilError(t, ctx.Signatures.Write(w))
		blob := w.Bytes()
		assert.DeepEqual(t, blob[id:id+4], []byte{
			0x06, byte(tables.DATATYPE_CLASS),
			byte(tok >> 8), byte(tok & 0xFF),
		})
	})

	t.Run("default values serialize as length, marker, bytes", func(t *testing.T) {
		id, err := ctx.Signatures.GetOrCreateDefaultValueSig([]byte{5, 0, 0, 0})
		assert.NilError(t, err)
		w := tables.NewRecordWriter()
		assert.NilError(t, ctx.Signatures.Write(w))
		blob := w.Bytes()
		assert.DeepEqual(t, blob[id:id+7], []byte{0x00, 0x04, 0x00, 5, 0, 0, 0})
	})

	t.Run("locals signatures concatenate big endian type info", func(t *testing.T) {
		id, err := ctx.Signatures.GetOrCreateLocalsSig([]*metadata.TypeSig{
			intSig(),
			{Elem: metadata.ElemSZArray, Inner: intSig()},
		})
		assert.NilError(t, err)
		w := tables.NewRecordWriter()
		assert.NilError(t, ctx.Signatures.Write(w))
		blob := w.Bytes()
		assert.DeepEqual(t, blob[id:id+3], []byte{
			byte(tables.DATATYPE_I4),
			byte(tables.DATATYPE_SZARRAY), byte(tables.DATATYPE_I4),
		})
	})
}

func TestAttributeSignature(t *testing.T) {
	asm, foo, bar := fooAssembly()
	attr_ctor := &metadata.MemberRef{
		Name:          ".ctor",
		DeclaringType: asm.TypeRefs[0],
		MethodSig:     &metadata.MethodSig{HasThis: true, Ret: voidSig()},
		Token:         0x0A000001,
	}
	asm.MemberRefs = append(asm.MemberRefs, attr_ctor)
	foo.Attributes = []*metadata.Attribute{{
		Ctor: attr_ctor,
		Named: []metadata.NamedAttrArg{
			{IsField: true, Name: "zeta", Arg: metadata.AttrArg{Elem: metadata.ElemI4, Value: int64(1)}},
			{IsField: true, Name: "alpha", Arg: metadata.AttrArg{Elem: metadata.ElemI4, Value: int64(2)}},
		},
	}}
	_ = bar

	ctx := mustContext(asm, tables.Options{})
	id, err := ctx.Signatures.GetOrCreateAttributeSig(foo.Attributes[0])
	assert.NilError(t, err)

	w := tables.NewRecordWriter()
	assert.NilError(t, ctx.Signatures.Write(w))
	blob := w.Bytes()

	// Named count, then arguments sorted by name: alpha before zeta.
	assert.DeepEqual(t, blob[id:id+2], []byte{0x02, 0x00})
	assert.Equal(t, blob[id+2], byte(metadata.ElemAttrField))
	alpha_id, ok := ctx.Strings.TryGetId("alpha")
	assert.Assert(t, ok)
	assert.Equal(t, uint16(blob[id+3])|uint16(blob[id+4])<<8, alpha_id)
	// Value of alpha is (I4 tag, 2).
	assert.DeepEqual(t, blob[id+5:id+10], []byte{byte(metadata.ElemI4), 2, 0, 0, 0})
}
