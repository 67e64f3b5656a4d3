package tables

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

const ASSEMBLY_REF_RECORD_SIZE = 12

// AssemblyRefTable uniques referenced assemblies by name.
type AssemblyRefTable struct {
	ctx *Context
	itemTable[string, *metadata.AssemblyRef]
}

func NewAssemblyRefTable(ctx *Context) *AssemblyRefTable {
	return &AssemblyRefTable{ctx: ctx, itemTable: newItemTable[string, *metadata.AssemblyRef]()}
}

func (t *AssemblyRefTable) Populate(refs []*metadata.AssemblyRef) {
	for _, r := range refs {
		t.add(r.Name, r)
	}
}

func (t *AssemblyRefTable) TryGetId(r *metadata.AssemblyRef) (uint16, bool) {
	return t.tryGetId(r.Name)
}

// PreAllocateStrings interns every referenced assembly name.
func (t *AssemblyRefTable) PreAllocateStrings() error {
	for _, name := range t.items.Sorted {
		if _, err := t.ctx.Strings.GetOrCreate(name, true); err != nil {
			return err
		}
	}
	return nil
}

func (t *AssemblyRefTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		r := t.At(i)
		name_id, ok := t.ctx.Strings.TryGetId(r.Name)
		if !ok {
			return errors.Wrapf(ERR_UNRESOLVED, "assembly ref name %q", r.Name)
		}
		start := w.BeginRecord()
		w.WriteU16(name_id)
		w.WriteU16(0)
		w.WriteU16(r.Version.Major)
		w.WriteU16(r.Version.Minor)
		w.WriteU16(r.Version.Build)
		w.WriteU16(r.Version.Revision)
		if err := w.EndRecord(start, ASSEMBLY_REF_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}
