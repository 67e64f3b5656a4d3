package tables

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

const METHOD_DEF_RECORD_SIZE = 16

// Flag bit the processor adds on top of the source method attributes
// to mark a body followed by exception handler records.
const MethodDefFlagHasExceptionHandlers uint32 = 0x00010000

// MethodDefTable holds this module's method definitions, grouped by
// type in type-def order: virtual, then instance, then static.
type MethodDefTable struct {
	ctx *Context
	itemTable[*metadata.MethodDef, *metadata.MethodDef]
}

func NewMethodDefTable(ctx *Context) *MethodDefTable {
	return &MethodDefTable{ctx: ctx, itemTable: newItemTable[*metadata.MethodDef, *metadata.MethodDef]()}
}

// Populate walks types in table order and fixes each type's first
// method id on the type-def table as it goes.
func (t *MethodDefTable) Populate() {
	types := t.ctx.TypeDefs
	for i := 0; i < types.Len(); i++ {
		td := types.At(i)
		types.first_method[td] = uint16(t.Len())
		for _, m := range OrderedMethods(td) {
			t.add(m, m)
		}
	}
}

func (t *MethodDefTable) TryGetId(m *metadata.MethodDef) (uint16, bool) {
	return t.tryGetId(m)
}

func (t *MethodDefTable) PreAllocateStrings() error {
	for i := 0; i < t.Len(); i++ {
		m := t.At(i)
		if _, err := t.ctx.Strings.GetOrCreate(m.Name, true); err != nil {
			return err
		}
		if _, err := t.ctx.Signatures.GetOrCreateMethodSig(m.Sig); err != nil {
			return errors.Wrapf(err, "method %s", m.FullName())
		}
		if len(m.Locals) > 0 {
			if _, err := t.ctx.Signatures.GetOrCreateLocalsSig(m.Locals); err != nil {
				return errors.Wrapf(err, "locals of %s", m.FullName())
			}
		}
	}
	return nil
}

func (t *MethodDefTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		m := t.At(i)
		name_id, ok := t.ctx.Strings.TryGetId(m.Name)
		if !ok {
			return errors.Wrapf(ERR_UNRESOLVED, "method name %q", m.Name)
		}
		sig_id, err := t.ctx.Signatures.GetOrCreateMethodSig(m.Sig)
		if err != nil {
			return err
		}

		locals_sig := EmptyId
		if len(m.Locals) > 0 {
			id, err := t.ctx.Signatures.GetOrCreateLocalsSig(m.Locals)
			if err != nil {
				return err
			}
			locals_sig = id
		}

		rva := EmptyId
		flags := m.Flags
		if m.Body != nil {
			r, ok := t.ctx.ByteCode.TryGetRVA(m)
			if !ok {
				return errors.Wrapf(ERR_UNRESOLVED, "byte code of %s", m.FullName())
			}
			rva = r
			if len(m.Body.Handlers) > 0 {
				flags |= MethodDefFlagHasExceptionHandlers
			}
		}

		retval := 0
		if m.Sig.Ret != nil && m.Sig.Ret.Elem != metadata.ElemVoid {
			retval = 1
		}
		args := len(m.Sig.Params)
		if m.Sig.HasThis {
			args++
		}
		if args > 0xFF || len(m.Locals) > 0xFF {
			return errors.Wrapf(ERR_UNSUPPORTED, "method %s exceeds count limits", m.FullName())
		}
		max_stack := 0
		if m.Body != nil {
			max_stack = m.Body.MaxStack
		}
		if max_stack > 0xFF {
			return errors.Wrapf(ERR_UNSUPPORTED, "method %s eval stack depth %d", m.FullName(), max_stack)
		}

		start := w.BeginRecord()
		w.WriteU16(name_id)
		w.WriteU16(rva)
		w.WriteU32(flags)
		w.WriteU8(uint8(retval))
		w.WriteU8(uint8(args))
		w.WriteU8(uint8(len(m.Locals)))
		w.WriteU8(uint8(max_stack))
		w.WriteU16(locals_sig)
		w.WriteU16(sig_id)
		if err := w.EndRecord(start, METHOD_DEF_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}
