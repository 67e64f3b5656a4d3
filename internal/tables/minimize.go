package tables

import (
	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/pkg"
)

// ApplyExcludes drops user-listed types (and types nested inside them)
// from the assembly before lowering starts.
func ApplyExcludes(asm *metadata.Assembly, excluded map[string]bool) {
	if len(excluded) == 0 {
		return
	}
	is_excluded := func(td *metadata.TypeDef) bool {
		for t := td; t != nil; t = t.DeclaringType {
			if excluded[t.TypeFullName()] {
				return true
			}
		}
		return false
	}
	asm.Types = pkg.Filter(asm.Types, func(td *metadata.TypeDef) bool {
		return !is_excluded(td)
	})
}

// MinimizeAssembly removes type definitions unreachable from the
// roots: <Module>, the entry point's type and every public type. The worklist
// runs to a fixpoint; what is left is exactly what the emitted tables
// carry. Returns the number of definitions removed.
func MinimizeAssembly(asm *metadata.Assembly) int {
	in_module := map[*metadata.TypeDef]bool{}
	for _, td := range asm.Types {
		in_module[td] = true
	}

	reachable := map[*metadata.TypeDef]bool{}
	worklist := []*metadata.TypeDef{}
	mark := func(td *metadata.TypeDef) {
		if td == nil || !in_module[td] || reachable[td] {
			return
		}
		reachable[td] = true
		worklist = append(worklist, td)
	}
	markType := func(t metadata.Type) {
		if td, ok := t.(*metadata.TypeDef); ok {
			mark(td)
		}
	}

	for _, td := range asm.Types {
		if td.IsModuleType() || td.IsPublic() {
			mark(td)
		}
	}
	if asm.EntryPoint != nil {
		mark(asm.EntryPoint.DeclaringType)
	}

	for len(worklist) > 0 {
		td := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		markType(td.Extends)
		mark(td.DeclaringType)
		for _, iface := range td.Interfaces {
			markType(iface)
		}
		for _, f := range td.Fields {
			markSigTypes(f.Sig, markType)
		}
		for _, a := range td.Attributes {
			markAttribute(a, markType)
		}
		for _, m := range td.Methods {
			markSigTypes(m.Sig.Ret, markType)
			for _, p := range m.Sig.Params {
				markSigTypes(p, markType)
			}
			for _, l := range m.Locals {
				markSigTypes(l, markType)
			}
			for _, a := range m.Attributes {
				markAttribute(a, markType)
			}
			if m.Body == nil {
				continue
			}
			for _, h := range m.Body.Handlers {
				if h.CatchType != nil {
					markOperandType(h.CatchType, markType)
				}
			}
			for _, ins := range m.Body.Instructions {
				markOperand(ins.Operand, markType)
			}
		}
	}

	before := len(asm.Types)
	asm.Types = pkg.Filter(asm.Types, func(td *metadata.TypeDef) bool {
		return reachable[td]
	})
	return before - len(asm.Types)
}

func markSigTypes(sig *metadata.TypeSig, markType func(metadata.Type)) {
	for s := sig; s != nil; s = s.Inner {
		if s.Target != nil {
			markType(s.Target)
		}
		for _, a := range s.Args {
			markSigTypes(a, markType)
		}
	}
}

func markOperandType(t metadata.Type, markType func(metadata.Type)) {
	if spec, ok := t.(*metadata.TypeSpec); ok {
		markSigTypes(spec.Sig, markType)
		return
	}
	markType(t)
}

func markOperand(operand any, markType func(metadata.Type)) {
	switch v := operand.(type) {
	case metadata.Type:
		markOperandType(v, markType)
	case *metadata.MethodDef:
		markType(v.DeclaringType)
	case *metadata.FieldDef:
		markType(v.DeclaringType)
	case *metadata.MemberRef:
		markOperandType(v.DeclaringType, markType)
	case *metadata.MethodSpec:
		for _, a := range v.Instantiation {
			markSigTypes(a, markType)
		}
		markOperand(v.Method, markType)
	}
}

func markAttribute(a *metadata.Attribute, markType func(metadata.Type)) {
	if ctor, ok := a.Ctor.(*metadata.MethodDef); ok {
		markType(ctor.DeclaringType)
	}
}
