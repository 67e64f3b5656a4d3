package tables

import (
	"github.com/oleiade/lane"
	"golang.org/x/exp/slices"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

// OrderTypes produces the deterministic emission order of type
// definitions: a nested type after its declaring type, a type after
// the same-module interfaces it implements and after same-module types
// its instruction operands name. The synthetic <Module> type never
// appears.
//
// With an explicit order the list is matched by fully-qualified name;
// names with no match are dropped. Otherwise the order is a depth-first
// traversal seeded by name-sorted types; a dependency cycle collapses
// to the visit order.
func OrderTypes(types []*metadata.TypeDef, explicit []string) []*metadata.TypeDef {
	if len(explicit) > 0 {
		by_name := map[string]*metadata.TypeDef{}
		for _, td := range types {
			by_name[td.TypeFullName()] = td
		}
		ordered := []*metadata.TypeDef{}
		for _, name := range explicit {
			if td, ok := by_name[name]; ok && !td.IsModuleType() {
				ordered = append(ordered, td)
			}
		}
		return ordered
	}

	in_module := map[*metadata.TypeDef]bool{}
	seeds := []*metadata.TypeDef{}
	for _, td := range types {
		if td.IsModuleType() {
			continue
		}
		in_module[td] = true
		seeds = append(seeds, td)
	}
	slices.SortFunc(seeds, func(a, b *metadata.TypeDef) int {
		switch {
		case a.TypeFullName() < b.TypeFullName():
			return -1
		case a.TypeFullName() > b.TypeFullName():
			return 1
		}
		return 0
	})

	const (
		unvisited = 0
		expanded  = 1
		emitted   = 2
	)
	state := map[*metadata.TypeDef]int{}
	ordered := []*metadata.TypeDef{}
	stack := lane.NewStack()

	for _, seed := range seeds {
		if state[seed] != unvisited {
			continue
		}
		stack.Push(seed)
		for !stack.Empty() {
			cur := stack.Head().(*metadata.TypeDef)
			switch state[cur] {
			case unvisited:
				state[cur] = expanded
				deps := typeDependencies(cur, in_module)
				// Reversed so the first dependency is expanded first.
				for i := len(deps) - 1; i >= 0; i-- {
					if state[deps[i]] == unvisited {
						stack.Push(deps[i])
					}
				}
			case expanded:
				stack.Pop()
				state[cur] = emitted
				ordered = append(ordered, cur)
			default:
				stack.Pop()
			}
		}
	}
	return ordered
}

// typeDependencies lists the same-module types that must precede t:
// its declaring type, implemented interfaces, and types named by its
// methods' instruction operands.
func typeDependencies(t *metadata.TypeDef, in_module map[*metadata.TypeDef]bool) []*metadata.TypeDef {
	deps := []*metadata.TypeDef{}
	seen := map[*metadata.TypeDef]bool{}
	push := func(d *metadata.TypeDef) {
		if d != nil && d != t && in_module[d] && !seen[d] {
			seen[d] = true
			deps = append(deps, d)
		}
	}

	push(t.DeclaringType)
	for _, iface := range t.Interfaces {
		if td, ok := iface.(*metadata.TypeDef); ok {
			push(td)
		}
	}
	for _, m := range t.Methods {
		if m.Body == nil {
			continue
		}
		for _, ins := range m.Body.Instructions {
			if ins.Op.Operand != metadata.OperandType {
				continue
			}
			if td, ok := ins.Operand.(*metadata.TypeDef); ok {
				push(td)
			}
		}
	}
	return deps
}
