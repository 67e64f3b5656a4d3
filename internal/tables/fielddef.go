package tables

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

const FIELD_DEF_RECORD_SIZE = 8

// FieldDefTable holds this module's field definitions, grouped by type
// in type-def order, statics before instance fields. Fields with a
// compile-time constant are not in the table; their values live in the
// signature blob of whoever reads them.
type FieldDefTable struct {
	ctx *Context
	itemTable[*metadata.FieldDef, *metadata.FieldDef]
}

func NewFieldDefTable(ctx *Context) *FieldDefTable {
	return &FieldDefTable{ctx: ctx, itemTable: newItemTable[*metadata.FieldDef, *metadata.FieldDef]()}
}

// Populate walks types in table order and fixes each type's first
// field id on the type-def table as it goes.
func (t *FieldDefTable) Populate() {
	types := t.ctx.TypeDefs
	for i := 0; i < types.Len(); i++ {
		td := types.At(i)
		types.first_field[td] = uint16(t.Len())
		for _, f := range OrderedFields(td) {
			t.add(f, f)
		}
	}
}

func (t *FieldDefTable) TryGetId(f *metadata.FieldDef) (uint16, bool) {
	return t.tryGetId(f)
}

func (t *FieldDefTable) PreAllocateStrings() error {
	for i := 0; i < t.Len(); i++ {
		f := t.At(i)
		if _, err := t.ctx.Strings.GetOrCreate(f.Name, true); err != nil {
			return err
		}
		if _, err := t.ctx.Signatures.GetOrCreateFieldSig(f.Sig); err != nil {
			return errors.Wrapf(err, "field %s", f.FullName())
		}
		if f.DefaultValue != nil {
			if _, err := t.ctx.Signatures.GetOrCreateDefaultValueSig(f.DefaultValue); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *FieldDefTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		f := t.At(i)
		name_id, ok := t.ctx.Strings.TryGetId(f.Name)
		if !ok {
			return errors.Wrapf(ERR_UNRESOLVED, "field name %q", f.Name)
		}
		sig_id, err := t.ctx.Signatures.GetOrCreateFieldSig(f.Sig)
		if err != nil {
			return err
		}
		default_sig := EmptyId
		if f.DefaultValue != nil {
			id, err := t.ctx.Signatures.GetOrCreateDefaultValueSig(f.DefaultValue)
			if err != nil {
				return err
			}
			default_sig = id
		}
		start := w.BeginRecord()
		w.WriteU16(name_id)
		w.WriteU16(sig_id)
		w.WriteU16(f.Flags)
		w.WriteU16(default_sig)
		if err := w.EndRecord(start, FIELD_DEF_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}
