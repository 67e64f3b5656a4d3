package loader

import (
	"encoding/binary"
	"testing"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"gotest.tools/assert"
)

func TestCompressedIntegers(t *testing.T) {
	cases := []struct {
		bytes []byte
		value uint32
		size  int
	}{
		{[]byte{0x03}, 0x03, 1},
		{[]byte{0x7F}, 0x7F, 1},
		{[]byte{0x80, 0x80}, 0x80, 2},
		{[]byte{0xAE, 0x57}, 0x2E57, 2},
		{[]byte{0xC0, 0x00, 0x40, 0x00}, 0x4000, 4},
	}
	for _, c := range cases {
		v, n := readCompressed(c.bytes)
		assert.Equal(t, v, c.value)
		assert.Equal(t, n, c.size)
	}
}

func TestSigReader(t *testing.T) {
	object := &metadata.TypeRef{Name: "Object", Namespace: "System"}
	resolve := func(table int, row uint32) (metadata.Type, error) {
		return object, nil
	}

	t.Run("field signature", func(t *testing.T) {
		r := &sigReader{data: []byte{0x06, 0x08}, resolve: resolve}
		sig, err := r.fieldSig()
		assert.NilError(t, err)
		assert.Equal(t, sig.Elem, metadata.ElemI4)
	})

	t.Run("method signature with params", func(t *testing.T) {
		// instance int M(string, object)
		r := &sigReader{data: []byte{0x20, 0x02, 0x08, 0x0E, 0x1C}, resolve: resolve}
		sig, err := r.methodSig()
		assert.NilError(t, err)
		assert.Assert(t, sig.HasThis)
		assert.Equal(t, sig.Ret.Elem, metadata.ElemI4)
		assert.Equal(t, len(sig.Params), 2)
		assert.Equal(t, sig.Params[0].Elem, metadata.ElemString)
		assert.Equal(t, sig.Params[1].Elem, metadata.ElemObject)
	})

	t.Run("class element resolves its token", func(t *testing.T) {
		// CLASS, compressed TypeDefOrRef
		r := &sigReader{data: []byte{0x12, 0x05}, resolve: resolve}
		sig, err := r.typeSig()
		assert.NilError(t, err)
		assert.Equal(t, sig.Elem, metadata.ElemClass)
		assert.Equal(t, sig.Target.TypeFullName(), "System.Object")
	})

	t.Run("szarray of byref int", func(t *testing.T) {
		r := &sigReader{data: []byte{0x1D, 0x10, 0x08}, resolve: resolve}
		sig, err := r.typeSig()
		assert.NilError(t, err)
		assert.Equal(t, sig.Elem, metadata.ElemSZArray)
		assert.Equal(t, sig.Inner.Elem, metadata.ElemByRef)
		assert.Equal(t, sig.Inner.Inner.Elem, metadata.ElemI4)
	})

	t.Run("locals signature", func(t *testing.T) {
		r := &sigReader{data: []byte{0x07, 0x02, 0x08, 0x0E}, resolve: resolve}
		locals, err := r.localsSig()
		assert.NilError(t, err)
		assert.Equal(t, len(locals), 2)
	})

	t.Run("generic instantiation", func(t *testing.T) {
		r := &sigReader{data: []byte{0x15, 0x12, 0x05, 0x01, 0x08}, resolve: resolve}
		sig, err := r.typeSig()
		assert.NilError(t, err)
		assert.Equal(t, sig.Elem, metadata.ElemGenericInst)
		assert.Equal(t, len(sig.Args), 1)
		assert.Equal(t, sig.Args[0].Elem, metadata.ElemI4)
	})
}

func TestDecodeInstructions(t *testing.T) {
	b := &graphBuilder{md: &metadataRoot{}}

	t.Run("simple ops and a short branch", func(t *testing.T) {
		// ldc.i4.s 5; br.s +0; ret
		code := []byte{0x1F, 0x05, 0x2B, 0x00, 0x2A}
		instructions, err := b.decodeInstructions(code)
		assert.NilError(t, err)
		assert.Equal(t, len(instructions), 3)
		assert.Equal(t, instructions[0].Op.Name, "ldc.i4.s")
		assert.Equal(t, instructions[0].Operand.(int64), int64(5))
		assert.Equal(t, instructions[1].Operand.(int), 4) // falls through to ret
		assert.Equal(t, instructions[2].Op.Name, "ret")
	})

	t.Run("two byte opcodes", func(t *testing.T) {
		code := []byte{0xFE, 0x01, 0x2A} // ceq; ret
		instructions, err := b.decodeInstructions(code)
		assert.NilError(t, err)
		assert.Equal(t, instructions[0].Op.Name, "ceq")
		assert.Equal(t, instructions[1].Offset, 2)
	})

	t.Run("switch targets are absolute", func(t *testing.T) {
		code := make([]byte, 0, 16)
		code = append(code, 0x45, 0x02, 0x00, 0x00, 0x00) // switch, 2 targets
		rel := make([]byte, 8)
		binary.LittleEndian.PutUint32(rel[0:], 0x00000001)
		binary.LittleEndian.PutUint32(rel[4:], 0xFFFFFFFF) // -1
		code = append(code, rel...)
		code = append(code, 0x00, 0x2A) // nop; ret
		instructions, err := b.decodeInstructions(code)
		assert.NilError(t, err)
		targets := instructions[0].Operand.([]int)
		assert.DeepEqual(t, targets, []int{14, 12})
	})

	t.Run("unknown opcodes fail", func(t *testing.T) {
		_, err := b.decodeInstructions([]byte{0x24})
		assert.ErrorContains(t, err, "unknown opcode")
	})
}

func TestUserStringHeap(t *testing.T) {
	// One entry at offset 1: length 5 = two UTF-16 chars + kind byte.
	us := []byte{0x00, 0x05, 'H', 0x00, 'i', 0x00, 0x01}
	md := &metadataRoot{us: us}
	s, err := md.userString(1)
	assert.NilError(t, err)
	assert.Equal(t, s, "Hi")
}

func TestAttrReaderSerString(t *testing.T) {
	r := &attrReader{data: []byte{0x05, 'h', 'e', 'l', 'l', 'o'}}
	s, err := r.serString()
	assert.NilError(t, err)
	assert.Equal(t, s, "hello")

	r = &attrReader{data: []byte{0xFF}}
	s, err = r.serString()
	assert.NilError(t, err)
	assert.Equal(t, s, "")
}
