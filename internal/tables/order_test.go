package tables_test

import (
	"testing"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/internal/tables"
	"gotest.tools/assert"
)

func names(ordered []*metadata.TypeDef) []string {
	out := make([]string, len(ordered))
	for i, td := range ordered {
		out[i] = td.TypeFullName()
	}
	return out
}

func TestOrderTypes(t *testing.T) {
	t.Run("module type is excluded", func(t *testing.T) {
		ordered := tables.OrderTypes(emptyAssembly().Types, nil)
		assert.Equal(t, len(ordered), 0)
	})

	t.Run("interfaces precede implementors", func(t *testing.T) {
		iface := &metadata.TypeDef{Name: "ZIface", Flags: metadata.TypeFlagInterface}
		impl := &metadata.TypeDef{Name: "AImpl", Interfaces: []metadata.Type{iface}}
		ordered := tables.OrderTypes([]*metadata.TypeDef{impl, iface}, nil)
		assert.DeepEqual(t, names(ordered), []string{"ZIface", "AImpl"})
	})

	t.Run("operand types precede their users", func(t *testing.T) {
		used := &metadata.TypeDef{Name: "ZUsed"}
		user := &metadata.TypeDef{Name: "AUser"}
		user.Methods = []*metadata.MethodDef{{
			Name:          "M",
			DeclaringType: user,
			Sig:           &metadata.MethodSig{Ret: &metadata.TypeSig{Elem: metadata.ElemVoid}},
			Body: &metadata.MethodBody{Instructions: []*metadata.Instruction{
				{Op: metadata.OpcodeByValue[0x8D], Operand: used}, // newarr
			}},
		}}
		ordered := tables.OrderTypes([]*metadata.TypeDef{user, used}, nil)
		assert.DeepEqual(t, names(ordered), []string{"ZUsed", "AUser"})
	})

	t.Run("cycles collapse to visit order", func(t *testing.T) {
		a := &metadata.TypeDef{Name: "A"}
		b := &metadata.TypeDef{Name: "B"}
		a.Interfaces = []metadata.Type{b}
		b.Interfaces = []metadata.Type{a}
		ordered := tables.OrderTypes([]*metadata.TypeDef{a, b}, nil)
		assert.Equal(t, len(ordered), 2)
	})

	t.Run("deterministic seed order", func(t *testing.T) {
		list := []*metadata.TypeDef{
			{Name: "Gamma"}, {Name: "Alpha"}, {Name: "Beta"},
		}
		ordered := tables.OrderTypes(list, nil)
		assert.DeepEqual(t, names(ordered), []string{"Alpha", "Beta", "Gamma"})
	})

	t.Run("explicit order wins and drops misses", func(t *testing.T) {
		list := []*metadata.TypeDef{
			{Name: "Gamma"}, {Name: "Alpha"}, {Name: "Beta"},
		}
		ordered := tables.OrderTypes(list, []string{"Beta", "Missing", "Gamma"})
		assert.DeepEqual(t, names(ordered), []string{"Beta", "Gamma"})
	})
}
