package tables_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/internal/tables"
	"gotest.tools/assert"
)

func TestImageLayout(t *testing.T) {
	asm, _, _ := fooAssembly()
	ctx := mustContext(asm, tables.Options{})
	ctx.CompleteMinimization()

	var buf bytes.Buffer
	assert.NilError(t, ctx.WriteImage(&buf))
	image := buf.Bytes()

	assert.Equal(t, binary.LittleEndian.Uint32(image), tables.ImageMagic)
	assert.Equal(t, binary.LittleEndian.Uint16(image[4:]), tables.ImageVersion)

	// The directory starts after magic, version, flags, name, pad,
	// assembly version and entry point.
	dir := 24
	for tag := 0; tag < tables.TableCount; tag++ {
		offset := binary.LittleEndian.Uint32(image[dir+tag*8:])
		length := binary.LittleEndian.Uint32(image[dir+tag*8+4:])
		assert.Equal(t, offset%4, uint32(0), "section %d misaligned", tag)
		assert.Assert(t, int(offset)+int(length) <= len(image))

		section, err := ctx.BuildSection(tables.TableTag(tag))
		assert.NilError(t, err)
		assert.Equal(t, length, uint32(len(section)))
		assert.Assert(t, bytes.Equal(image[offset:offset+length], section))
	}
}

func TestEnumExpansion(t *testing.T) {
	asm, foo, _ := fooAssembly()
	system_enum := &metadata.TypeRef{
		Name:      "Enum",
		Namespace: "System",
		Scope:     asm.Refs[0],
		Token:     0x01000002,
	}
	asm.TypeRefs = append(asm.TypeRefs, system_enum)

	color := &metadata.TypeDef{
		Name:    "Color",
		Flags:   metadata.TypeFlagPublic,
		Extends: system_enum,
		Token:   0x02000003,
	}
	color.Fields = []*metadata.FieldDef{{
		Name:          "value__",
		DeclaringType: color,
		Sig:           &metadata.TypeSig{Elem: metadata.ElemU2},
	}}
	asm.Types = append(asm.Types, color)

	foo.Fields = []*metadata.FieldDef{{
		Name:          "c",
		DeclaringType: foo,
		Sig:           &metadata.TypeSig{Elem: metadata.ElemValueType, Target: color},
	}}

	t.Run("expanded enums collapse to the underlying type", func(t *testing.T) {
		ctx := mustContext(asm, tables.Options{ExpandEnums: true})
		id, err := ctx.Signatures.GetOrCreateFieldSig(foo.Fields[0].Sig)
		assert.NilError(t, err)
		w := tables.NewRecordWriter()
		assert.NilError(t, ctx.Signatures.Write(w))
		assert.DeepEqual(t, w.Bytes()[id:id+2], []byte{0x06, byte(tables.DATATYPE_U2)})
	})

	t.Run("unexpanded enums stay value types", func(t *testing.T) {
		ctx := mustContext(asm, tables.Options{})
		id, err := ctx.Signatures.GetOrCreateFieldSig(foo.Fields[0].Sig)
		assert.NilError(t, err)
		tok, err := ctx.EncodeTypeToken(color)
		assert.NilError(t, err)
		w := tables.NewRecordWriter()
		assert.NilError(t, ctx.Signatures.Write(w))
		assert.DeepEqual(t, w.Bytes()[id:id+4], []byte{
			0x06, byte(tables.DATATYPE_VALUETYPE),
			byte(tok >> 8), byte(tok & 0xFF),
		})
	})
}

func TestTypeSpecTable(t *testing.T) {
	asm, foo, _ := fooAssembly()
	spec := &metadata.TypeSpec{
		Sig:   &metadata.TypeSig{Elem: metadata.ElemSZArray, Inner: intSig()},
		Token: 0x1B000001,
	}
	asm.TypeSpecs = append(asm.TypeSpecs, spec)
	_ = foo

	ctx := mustContext(asm, tables.Options{})
	ctx.CompleteMinimization()

	tok, err := ctx.EncodeTypeToken(spec)
	assert.NilError(t, err)
	id, tag := tables.UnpackTypeToken(tok)
	assert.Equal(t, tag, tables.TypeTokenSpec)
	assert.Equal(t, id, uint16(0))

	section, err := ctx.BuildSection(tables.TBL_TypeSpec)
	assert.NilError(t, err)
	assert.Equal(t, len(section), tables.TYPE_SPEC_RECORD_SIZE)

	// Identical structure, one entry.
	again, err := ctx.EncodeTypeToken(&metadata.TypeSpec{
		Sig: &metadata.TypeSig{Elem: metadata.ElemSZArray, Inner: intSig()},
	})
	assert.NilError(t, err)
	assert.Equal(t, again, tok)
}

func TestAttributeCompressionOrder(t *testing.T) {
	asm, foo, _ := fooAssembly()
	object := asm.TypeRefs[0]
	zeta_ref := &metadata.TypeRef{Name: "ZetaAttribute", Namespace: "N", Scope: asm.Refs[0], Token: 0x01000003}
	alpha_ref := &metadata.TypeRef{Name: "AlphaAttribute", Namespace: "N", Scope: asm.Refs[0], Token: 0x01000004}
	asm.TypeRefs = append(asm.TypeRefs, zeta_ref, alpha_ref)
	_ = object

	ctor := func(owner *metadata.TypeRef, tok uint32) *metadata.MemberRef {
		m := &metadata.MemberRef{
			Name:          ".ctor",
			DeclaringType: owner,
			MethodSig:     &metadata.MethodSig{HasThis: true, Ret: voidSig()},
			Token:         tok,
		}
		asm.MemberRefs = append(asm.MemberRefs, m)
		return m
	}
	alpha_ctor := ctor(alpha_ref, 0x0A000001)
	zeta_ctor := ctor(zeta_ref, 0x0A000002)
	foo.Attributes = []*metadata.Attribute{
		{Ctor: alpha_ctor},
		{Ctor: zeta_ctor},
	}

	ctx := mustContext(asm, tables.Options{CompressAttributes: true})
	order := []string{}
	ctx.Attributes.Each(func(_ tables.TableTag, _ uint16, a *metadata.Attribute) {
		order = append(order, a.TypeFullName())
	})
	// Descending by full name when compression is on.
	assert.DeepEqual(t, order, []string{"N.ZetaAttribute", "N.AlphaAttribute"})
}
