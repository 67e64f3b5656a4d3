package tables_test

import (
	"testing"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/internal/tables"
	"gotest.tools/assert"
)

func TestMinimizeAssembly(t *testing.T) {
	t.Run("unreferenced internal types disappear", func(t *testing.T) {
		asm, _, _ := fooAssembly()
		orphan := &metadata.TypeDef{Name: "Orphan", Token: 0x02000003}
		asm.Types = append(asm.Types, orphan)

		removed := tables.MinimizeAssembly(asm)
		assert.Equal(t, removed, 1)
		for _, td := range asm.Types {
			assert.Assert(t, td.Name != "Orphan")
		}
	})

	t.Run("types reachable from public code survive", func(t *testing.T) {
		asm, foo, bar := fooAssembly()
		helper := &metadata.TypeDef{Name: "Helper", Token: 0x02000003}
		asm.Types = append(asm.Types, helper)
		bar.Body = &metadata.MethodBody{Instructions: []*metadata.Instruction{
			{Op: metadata.OpcodeByValue[0x8D], Operand: helper},
			{Op: metadata.OpcodeByValue[0x2A]},
		}}
		_ = foo

		removed := tables.MinimizeAssembly(asm)
		assert.Equal(t, removed, 0)
	})

	t.Run("field types keep their defs alive", func(t *testing.T) {
		asm, foo, _ := fooAssembly()
		held := &metadata.TypeDef{Name: "Held", Token: 0x02000003}
		asm.Types = append(asm.Types, held)
		foo.Fields = []*metadata.FieldDef{{
			Name:          "h",
			DeclaringType: foo,
			Sig:           &metadata.TypeSig{Elem: metadata.ElemClass, Target: held},
		}}

		removed := tables.MinimizeAssembly(asm)
		assert.Equal(t, removed, 0)
	})

	t.Run("entry point roots its type", func(t *testing.T) {
		main_type := &metadata.TypeDef{Name: "Program", Token: 0x02000002}
		main := &metadata.MethodDef{
			Name:          "Main",
			DeclaringType: main_type,
			Flags:         metadata.MethodFlagStatic,
			Sig:           &metadata.MethodSig{Ret: voidSig()},
		}
		main_type.Methods = []*metadata.MethodDef{main}
		asm := &metadata.Assembly{
			Name:       "app",
			EntryPoint: main,
			Types: []*metadata.TypeDef{
				{Name: "<Module>", Token: 0x02000001},
				main_type,
			},
		}
		removed := tables.MinimizeAssembly(asm)
		assert.Equal(t, removed, 0)
	})
}

func TestApplyExcludes(t *testing.T) {
	asm, foo, _ := fooAssembly()
	nested := &metadata.TypeDef{
		Name:          "Inner",
		DeclaringType: foo,
		Token:         0x02000003,
	}
	asm.Types = append(asm.Types, nested)

	tables.ApplyExcludes(asm, map[string]bool{"Foo": true})
	for _, td := range asm.Types {
		assert.Assert(t, td.Name != "Foo")
		assert.Assert(t, td.Name != "Inner")
	}
	assert.Equal(t, len(asm.Types), 1) // only <Module> left
}
