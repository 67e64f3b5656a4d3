package dump_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nanomdp/nanomdp/internal/dump"
	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/internal/tables"
	"gotest.tools/assert"
)

func testAssembly() *metadata.Assembly {
	scope := &metadata.AssemblyRef{Name: "mscorlib", Version: metadata.Version{Major: 4}, Token: 0x23000001}
	object := &metadata.TypeRef{Name: "Object", Namespace: "System", Scope: scope, Token: 0x01000001}
	foo := &metadata.TypeDef{
		Name:    "Foo",
		Flags:   metadata.TypeFlagPublic,
		Extends: object,
		Token:   0x02000002,
	}
	bar := &metadata.MethodDef{
		Name:          "Bar",
		DeclaringType: foo,
		Sig:           &metadata.MethodSig{Ret: &metadata.TypeSig{Elem: metadata.ElemVoid}},
		Token:         0x06000001,
	}
	bar.Body = &metadata.MethodBody{Instructions: []*metadata.Instruction{
		{Offset: 0, Op: metadata.OpcodeByValue[0x72], Operand: "greetings"},
		{Offset: 5, Op: metadata.OpcodeByValue[0x26]},
		{Offset: 6, Op: metadata.OpcodeByValue[0x2A]},
	}}
	foo.Methods = []*metadata.MethodDef{bar}
	return &metadata.Assembly{
		Name:     "dumpme",
		Version:  metadata.Version{Major: 1, Minor: 2},
		Refs:     []*metadata.AssemblyRef{scope},
		TypeRefs: []*metadata.TypeRef{object},
		Types:    []*metadata.TypeDef{{Name: "<Module>", Token: 0x02000001}, foo},
	}
}

func TestDump(t *testing.T) {
	ctx, err := tables.NewContext(testAssembly(), tables.Options{})
	assert.NilError(t, err)
	ctx.CompleteMinimization()

	var buf bytes.Buffer
	assert.NilError(t, dump.New(ctx).Write(&buf))
	text := buf.String()

	assert.Assert(t, strings.Contains(text, "Assembly: dumpme (1.2.0.0)"))
	assert.Assert(t, strings.Contains(text, "Name: mscorlib"))
	assert.Assert(t, strings.Contains(text, "Name: System.Object"))
	assert.Assert(t, strings.Contains(text, "Name: Foo"))

	// Tokens render as new id plus the original token.
	assert.Assert(t, strings.Contains(text, "[0000] /*23000001*/"))
	assert.Assert(t, strings.Contains(text, "/*06000001*/"))

	// The IL listing and the user string section both show ldstr.
	assert.Assert(t, strings.Contains(text, "ldstr"))
	assert.Assert(t, strings.Contains(text, `"greetings"`))
}
