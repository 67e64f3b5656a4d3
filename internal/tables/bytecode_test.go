package tables_test

import (
	"testing"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/internal/tables"
	"gotest.tools/assert"
)

// A branch over a call: token shrinkage moves the target closer, so
// the rewritten relative offset must shrink with it.
func TestBranchRewrite(t *testing.T) {
	asm, _, bar := fooAssembly()
	ext := &metadata.MemberRef{
		Name:          "Ext",
		DeclaringType: asm.TypeRefs[0],
		MethodSig:     &metadata.MethodSig{Ret: voidSig()},
		Token:         0x0A000001,
	}
	asm.MemberRefs = append(asm.MemberRefs, ext)

	// IL: br.s IL_0007; call Ext; ret
	bar.Body = &metadata.MethodBody{
		MaxStack: 1,
		Instructions: []*metadata.Instruction{
			{Offset: 0, Op: metadata.OpcodeByValue[0x2B], Operand: 7},
			{Offset: 2, Op: metadata.OpcodeByValue[0x28], Operand: ext},
			{Offset: 7, Op: metadata.OpcodeByValue[0x2A]},
		},
	}

	ctx := mustContext(asm, tables.Options{})
	ctx.CompleteMinimization()
	stream, err := ctx.BuildSection(tables.TBL_ByteCode)
	assert.NilError(t, err)

	// Rewritten layout: br.s(2) call+u16(3) ret(1).
	assert.Equal(t, stream[0], byte(0x2B))
	assert.Equal(t, int(int8(stream[1])), 3) // skips the shrunken call
	assert.Equal(t, stream[2], byte(0x28))
	assert.Equal(t, stream[5], byte(0x2A))
}

func TestExceptionHandlerRecords(t *testing.T) {
	asm, _, bar := fooAssembly()
	object := asm.TypeRefs[0]

	// IL: nop (try); leave.s IL_0004; nop (handler); ret
	bar.Body = &metadata.MethodBody{
		MaxStack: 1,
		Instructions: []*metadata.Instruction{
			{Offset: 0, Op: metadata.OpcodeByValue[0x00]},
			{Offset: 1, Op: metadata.OpcodeByValue[0xDE], Operand: 4},
			{Offset: 3, Op: metadata.OpcodeByValue[0x00]},
			{Offset: 4, Op: metadata.OpcodeByValue[0x2A]},
		},
		Handlers: []*metadata.ExceptionHandler{{
			Kind:         metadata.HandlerCatch,
			TryStart:     0,
			TryEnd:       3,
			HandlerStart: 3,
			HandlerEnd:   4,
			CatchType:    object,
		}},
	}

	ctx := mustContext(asm, tables.Options{})
	ctx.CompleteMinimization()
	stream, err := ctx.BuildSection(tables.TBL_ByteCode)
	assert.NilError(t, err)

	// Body is nop, leave.s, nop, ret = 5 bytes, then the handler
	// block: count byte plus one 12-byte record.
	assert.Equal(t, len(stream), 5+1+12)
	assert.Equal(t, stream[5], byte(1))
	record := stream[6:]
	assert.Equal(t, uint16(record[0])|uint16(record[1])<<8, metadata.HandlerCatch)

	tok, err := ctx.EncodeTypeToken(object)
	assert.NilError(t, err)
	assert.Equal(t, uint16(record[10])|uint16(record[11])<<8, tok)
}

func TestInlineTypeOperand(t *testing.T) {
	asm, foo, bar := fooAssembly()
	bar.Body = &metadata.MethodBody{
		MaxStack: 1,
		Instructions: []*metadata.Instruction{
			{Offset: 0, Op: metadata.OpcodeByValue[0x8D], Operand: metadata.Type(foo)}, // newarr
			{Offset: 5, Op: metadata.OpcodeByValue[0x26]},
			{Offset: 6, Op: metadata.OpcodeByValue[0x2A]},
		},
	}
	ctx := mustContext(asm, tables.Options{})
	ctx.CompleteMinimization()

	stream, err := ctx.BuildSection(tables.TBL_ByteCode)
	assert.NilError(t, err)

	tok, err := ctx.EncodeTypeToken(foo)
	assert.NilError(t, err)
	assert.Equal(t, uint16(stream[1])|uint16(stream[2])<<8, tok)
}

func TestMethodRVAs(t *testing.T) {
	asm, foo, bar := fooAssembly()
	second := &metadata.MethodDef{
		Name:          "Baz",
		DeclaringType: foo,
		Sig:           &metadata.MethodSig{Ret: voidSig()},
		Token:         0x06000002,
	}
	ret := func() *metadata.MethodBody {
		return &metadata.MethodBody{Instructions: []*metadata.Instruction{
			{Offset: 0, Op: metadata.OpcodeByValue[0x2A]},
		}}
	}
	bar.Body = ret()
	second.Body = ret()
	foo.Methods = append(foo.Methods, second)

	ctx := mustContext(asm, tables.Options{})
	ctx.CompleteMinimization()

	first_rva, ok := ctx.ByteCode.TryGetRVA(bar)
	assert.Assert(t, ok)
	second_rva, ok := ctx.ByteCode.TryGetRVA(second)
	assert.Assert(t, ok)
	assert.Equal(t, first_rva, uint16(0))
	assert.Equal(t, second_rva, uint16(1))
	assert.Equal(t, ctx.ByteCode.StreamSize(), 2)
}
