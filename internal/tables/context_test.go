package tables_test

import (
	"bytes"
	"testing"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/internal/tables"
	"gotest.tools/assert"
)

func TestEmptyModule(t *testing.T) {
	ctx := mustContext(emptyAssembly(), tables.Options{})
	ctx.CompleteMinimization()

	type_defs, err := ctx.BuildSection(tables.TBL_TypeDef)
	assert.NilError(t, err)
	assert.Equal(t, len(type_defs), 0)

	method_defs, err := ctx.BuildSection(tables.TBL_MethodDef)
	assert.NilError(t, err)
	assert.Equal(t, len(method_defs), 0)

	strings, err := ctx.BuildSection(tables.TBL_Strings)
	assert.NilError(t, err)
	assert.DeepEqual(t, strings, []byte{0x00})

	sigs, err := ctx.BuildSection(tables.TBL_Signatures)
	assert.NilError(t, err)
	assert.Equal(t, len(sigs), 0)
}

func TestFooBarLowering(t *testing.T) {
	asm, foo, bar := fooAssembly()
	ctx := mustContext(asm, tables.Options{})
	ctx.CompleteMinimization()

	t.Run("extends token tags the type ref table", func(t *testing.T) {
		object := asm.TypeRefs[0]
		ref_id, ok := ctx.TypeRefs.TryGetId(object)
		assert.Assert(t, ok)

		tok, err := ctx.EncodeTypeToken(object)
		assert.NilError(t, err)
		assert.Equal(t, tok, ref_id<<2|tables.TypeTokenRef)

		id, tag := tables.UnpackTypeToken(tok)
		assert.Equal(t, id, ref_id)
		assert.Equal(t, tag, tables.TypeTokenRef)
	})

	t.Run("type def tokens tag the def table", func(t *testing.T) {
		foo_id, ok := ctx.TypeDefs.TryGetId(foo)
		assert.Assert(t, ok)
		tok, err := ctx.EncodeTypeToken(foo)
		assert.NilError(t, err)
		assert.Equal(t, tok, foo_id<<2|tables.TypeTokenDef)
	})

	t.Run("method def records are sixteen bytes", func(t *testing.T) {
		section, err := ctx.BuildSection(tables.TBL_MethodDef)
		assert.NilError(t, err)
		assert.Equal(t, len(section), tables.METHOD_DEF_RECORD_SIZE*ctx.MethodDefs.Len())
		assert.Equal(t, ctx.MethodDefs.Len(), 1)
	})

	t.Run("method signature bytes", func(t *testing.T) {
		sig_id, err := ctx.Signatures.GetOrCreateMethodSig(bar.Sig)
		assert.NilError(t, err)
		w := tables.NewRecordWriter()
		assert.NilError(t, ctx.Signatures.Write(w))
		assert.DeepEqual(t, w.Bytes()[sig_id:sig_id+3],
			[]byte{0x00, 0x00, byte(tables.DATATYPE_VOID)})
	})

	t.Run("fixed width reference records", func(t *testing.T) {
		section, err := ctx.BuildSection(tables.TBL_AssemblyRef)
		assert.NilError(t, err)
		assert.Equal(t, len(section), tables.ASSEMBLY_REF_RECORD_SIZE)

		section, err = ctx.BuildSection(tables.TBL_TypeRef)
		assert.NilError(t, err)
		assert.Equal(t, len(section), tables.TYPE_REF_RECORD_SIZE)
	})
}

func TestConstantFieldsStayOut(t *testing.T) {
	asm, foo, _ := fooAssembly()
	foo.Fields = []*metadata.FieldDef{
		{
			Name:          "x",
			DeclaringType: foo,
			Flags:         metadata.FieldFlagStatic | metadata.FieldFlagLiteral | metadata.FieldFlagHasDefault,
			Sig:           intSig(),
			DefaultValue:  []byte{5, 0, 0, 0},
			Token:         0x04000001,
		},
		{
			Name:          "y",
			DeclaringType: foo,
			Sig:           intSig(),
			Token:         0x04000002,
		},
	}
	ctx := mustContext(asm, tables.Options{})
	ctx.CompleteMinimization()

	assert.Equal(t, ctx.FieldDefs.Len(), 1)
	_, ok := ctx.FieldDefs.TryGetId(foo.Fields[0])
	assert.Assert(t, !ok)

	section, err := ctx.BuildSection(tables.TBL_FieldDef)
	assert.NilError(t, err)
	assert.Equal(t, len(section), tables.FIELD_DEF_RECORD_SIZE)

	// The literal's default value never reaches the blob.
	sigs, err := ctx.BuildSection(tables.TBL_Signatures)
	assert.NilError(t, err)
	assert.Assert(t, !bytes.Contains(sigs, []byte{0x00, 0x04, 0x00, 5, 0, 0, 0}))
}

func TestMinimizationGate(t *testing.T) {
	asm, _, _ := fooAssembly()
	ctx := mustContext(asm, tables.Options{})

	for _, tag := range []tables.TableTag{
		tables.TBL_AssemblyRef, tables.TBL_TypeRef, tables.TBL_FieldRef,
		tables.TBL_MethodRef, tables.TBL_TypeDef, tables.TBL_FieldDef,
		tables.TBL_MethodDef,
	} {
		section, err := ctx.BuildSection(tag)
		assert.NilError(t, err)
		assert.Equal(t, len(section), 0, "section %s written before the latch", tag)
	}

	var buf bytes.Buffer
	assert.ErrorContains(t, ctx.WriteImage(&buf), "minimization")

	ctx.CompleteMinimization()
	section, err := ctx.BuildSection(tables.TBL_TypeDef)
	assert.NilError(t, err)
	assert.Equal(t, len(section), tables.TYPE_DEF_RECORD_SIZE)
}

func TestMemberOrdering(t *testing.T) {
	asm, foo, _ := fooAssembly()
	virt := &metadata.MethodDef{Name: "V", DeclaringType: foo, Flags: metadata.MethodFlagVirtual, Sig: &metadata.MethodSig{HasThis: true, Ret: voidSig()}}
	inst := &metadata.MethodDef{Name: "I", DeclaringType: foo, Sig: &metadata.MethodSig{HasThis: true, Ret: voidSig()}}
	stat := &metadata.MethodDef{Name: "S", DeclaringType: foo, Flags: metadata.MethodFlagStatic, Sig: &metadata.MethodSig{Ret: voidSig()}}
	foo.Methods = []*metadata.MethodDef{stat, inst, virt}

	static_field := &metadata.FieldDef{Name: "sf", DeclaringType: foo, Flags: metadata.FieldFlagStatic, Sig: intSig()}
	inst_field := &metadata.FieldDef{Name: "if", DeclaringType: foo, Sig: intSig()}
	foo.Fields = []*metadata.FieldDef{inst_field, static_field}

	nested := &metadata.TypeDef{
		Name:          "Inner",
		Flags:         metadata.TypeFlagNestedPublic,
		DeclaringType: foo,
		Extends:       asm.TypeRefs[0],
		Token:         0x02000003,
	}
	foo.NestedTypes = []*metadata.TypeDef{nested}
	asm.Types = append(asm.Types, nested)

	ctx := mustContext(asm, tables.Options{})
	ctx.CompleteMinimization()

	t.Run("methods go virtual, instance, static", func(t *testing.T) {
		v_id, _ := ctx.MethodDefs.TryGetId(virt)
		i_id, _ := ctx.MethodDefs.TryGetId(inst)
		s_id, _ := ctx.MethodDefs.TryGetId(stat)
		assert.Assert(t, v_id < i_id)
		assert.Assert(t, i_id < s_id)
	})

	t.Run("fields go static then instance", func(t *testing.T) {
		s_id, _ := ctx.FieldDefs.TryGetId(static_field)
		i_id, _ := ctx.FieldDefs.TryGetId(inst_field)
		assert.Assert(t, s_id < i_id)
	})

	t.Run("nested types come after their declaring type", func(t *testing.T) {
		foo_id, _ := ctx.TypeDefs.TryGetId(foo)
		nested_id, _ := ctx.TypeDefs.TryGetId(nested)
		assert.Assert(t, nested_id > foo_id)
	})
}

func TestExternalCallOperand(t *testing.T) {
	asm, foo, bar := fooAssembly()
	write_line := &metadata.MemberRef{
		Name:          "WriteLine",
		DeclaringType: asm.TypeRefs[0],
		MethodSig:     &metadata.MethodSig{Ret: voidSig()},
		Token:         0x0A000001,
	}
	asm.MemberRefs = append(asm.MemberRefs, write_line)
	bar.Body = &metadata.MethodBody{
		MaxStack: 1,
		Instructions: []*metadata.Instruction{
			{Offset: 0, Op: metadata.OpcodeByValue[0x28], Operand: write_line},
			{Offset: 5, Op: metadata.OpcodeByValue[0x2A]},
		},
	}
	_ = foo

	ctx := mustContext(asm, tables.Options{})
	ctx.CompleteMinimization()

	ref_id, ok := ctx.MethodRefs.TryGetId(write_line)
	assert.Assert(t, ok)

	stream, err := ctx.BuildSection(tables.TBL_ByteCode)
	assert.NilError(t, err)
	assert.Equal(t, stream[0], byte(0x28))
	operand := uint16(stream[1]) | uint16(stream[2])<<8
	assert.Equal(t, operand, ref_id|tables.ExternalBit)
	assert.Equal(t, stream[3], byte(0x2A))
}

func TestDeterministicOutput(t *testing.T) {
	build := func() []byte {
		asm, foo, bar := fooAssembly()
		foo.Fields = []*metadata.FieldDef{
			{Name: "f", DeclaringType: foo, Sig: intSig()},
		}
		bar.Body = &metadata.MethodBody{
			MaxStack: 1,
			Instructions: []*metadata.Instruction{
				{Offset: 0, Op: metadata.OpcodeByValue[0x72], Operand: "hello"},
				{Offset: 5, Op: metadata.OpcodeByValue[0x26]},
				{Offset: 6, Op: metadata.OpcodeByValue[0x2A]},
			},
		}
		ctx := mustContext(asm, tables.Options{})
		ctx.CompleteMinimization()
		var buf bytes.Buffer
		if err := ctx.WriteImage(&buf); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	first := build()
	second := build()
	assert.DeepEqual(t, first, second)
	assert.Assert(t, len(first) > 0)
}

func TestResolveMethodReference(t *testing.T) {
	asm, _, bar := fooAssembly()
	external := &metadata.MemberRef{
		Name:          "Ext",
		DeclaringType: asm.TypeRefs[0],
		MethodSig:     &metadata.MethodSig{Ret: voidSig()},
		Token:         0x0A000002,
	}
	asm.MemberRefs = append(asm.MemberRefs, external)
	ctx := mustContext(asm, tables.Options{})

	ext_id, err := ctx.GetMethodReferenceId(external)
	assert.NilError(t, err)
	assert.Assert(t, ext_id&tables.ExternalBit != 0)

	def_id, err := ctx.GetMethodReferenceId(bar)
	assert.NilError(t, err)
	assert.Assert(t, def_id&tables.ExternalBit == 0)

	unknown := &metadata.MemberRef{
		Name:          "Nope",
		DeclaringType: asm.TypeRefs[0],
		MethodSig:     &metadata.MethodSig{Ret: voidSig()},
	}
	_, err = ctx.GetMethodReferenceId(unknown)
	assert.ErrorContains(t, err, "unresolved")
}
