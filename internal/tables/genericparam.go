package tables

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

const GENERIC_PARAM_RECORD_SIZE = 6

// GenericParamTable holds generic parameter declarations of this
// module's types and methods. The owner field carries a method-def id
// with the external bit for method owners, a type-def id otherwise.
type GenericParamTable struct {
	ctx *Context
	itemTable[*metadata.GenericParam, *metadata.GenericParam]
}

func NewGenericParamTable(ctx *Context) *GenericParamTable {
	return &GenericParamTable{ctx: ctx, itemTable: newItemTable[*metadata.GenericParam, *metadata.GenericParam]()}
}

func (t *GenericParamTable) Populate(ordered []*metadata.TypeDef) {
	for _, td := range ordered {
		for _, g := range td.GenericParams {
			t.add(g, g)
		}
		for _, m := range OrderedMethods(td) {
			for _, g := range m.GenericParams {
				t.add(g, g)
			}
		}
	}
}

func (t *GenericParamTable) TryGetId(g *metadata.GenericParam) (uint16, bool) {
	return t.tryGetId(g)
}

func (t *GenericParamTable) PreAllocateStrings() error {
	for i := 0; i < t.Len(); i++ {
		if _, err := t.ctx.Strings.GetOrCreate(t.At(i).Name, true); err != nil {
			return err
		}
	}
	return nil
}

func (t *GenericParamTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		g := t.At(i)
		owner := EmptyId
		switch {
		case g.OwnerMethod != nil:
			id, ok := t.ctx.MethodDefs.TryGetId(g.OwnerMethod)
			if !ok {
				return errors.Wrapf(ERR_UNRESOLVED, "generic param owner %s", g.OwnerMethod.FullName())
			}
			owner = id | ExternalBit
		case g.OwnerType != nil:
			id, ok := t.ctx.TypeDefs.TryGetId(g.OwnerType)
			if !ok {
				return errors.Wrapf(ERR_UNRESOLVED, "generic param owner %s", g.OwnerType.TypeFullName())
			}
			owner = id
		}
		name_id, ok := t.ctx.Strings.TryGetId(g.Name)
		if !ok {
			return errors.Wrapf(ERR_UNRESOLVED, "generic param name %q", g.Name)
		}
		start := w.BeginRecord()
		w.WriteU16(uint16(g.Number))
		w.WriteU16(owner)
		w.WriteU16(name_id)
		if err := w.EndRecord(start, GENERIC_PARAM_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}
