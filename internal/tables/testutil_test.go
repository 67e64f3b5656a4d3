package tables_test

import (
	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/internal/tables"
)

// Shared fixtures: a hand-built object graph standing in for the
// loader.

func mscorlibRef() *metadata.AssemblyRef {
	return &metadata.AssemblyRef{
		Name:    "mscorlib",
		Version: metadata.Version{Major: 4},
		Token:   0x23000001,
	}
}

func objectRef(scope *metadata.AssemblyRef) *metadata.TypeRef {
	return &metadata.TypeRef{
		Name:      "Object",
		Namespace: "System",
		Scope:     scope,
		Token:     0x01000001,
	}
}

func voidSig() *metadata.TypeSig {
	return &metadata.TypeSig{Elem: metadata.ElemVoid}
}

func intSig() *metadata.TypeSig {
	return &metadata.TypeSig{Elem: metadata.ElemI4}
}

// emptyAssembly is a module with nothing but <Module>.
func emptyAssembly() *metadata.Assembly {
	return &metadata.Assembly{
		Name:    "empty",
		Version: metadata.Version{Major: 1},
		Types: []*metadata.TypeDef{
			{Name: "<Module>", Token: 0x02000001},
		},
	}
}

// fooAssembly is one public class Foo : System.Object with one
// instance method void Bar().
func fooAssembly() (*metadata.Assembly, *metadata.TypeDef, *metadata.MethodDef) {
	scope := mscorlibRef()
	object := objectRef(scope)
	foo := &metadata.TypeDef{
		Name:    "Foo",
		Flags:   metadata.TypeFlagPublic,
		Extends: object,
		Token:   0x02000002,
	}
	bar := &metadata.MethodDef{
		Name:          "Bar",
		DeclaringType: foo,
		Sig:           &metadata.MethodSig{Ret: voidSig()},
		Token:         0x06000001,
	}
	foo.Methods = []*metadata.MethodDef{bar}
	asm := &metadata.Assembly{
		Name:     "foolib",
		Version:  metadata.Version{Major: 1},
		Refs:     []*metadata.AssemblyRef{scope},
		TypeRefs: []*metadata.TypeRef{object},
		Types: []*metadata.TypeDef{
			{Name: "<Module>", Token: 0x02000001},
			foo,
		},
	}
	return asm, foo, bar
}

func mustContext(asm *metadata.Assembly, opts tables.Options) *tables.Context {
	ctx, err := tables.NewContext(asm, opts)
	if err != nil {
		panic(err)
	}
	return ctx
}
