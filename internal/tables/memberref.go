package tables

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

const (
	FIELD_REF_RECORD_SIZE  = 6
	METHOD_REF_RECORD_SIZE = 6
)

// Member refs are keyed by fully-qualified name plus signature so
// overloads stay distinct.
func memberRefKey(m *metadata.MemberRef) string {
	key := m.FullName()
	if m.IsField() {
		return key + ":" + m.FieldSig.String()
	}
	return key + ":" + m.MethodSig.String()
}

// FieldRefTable holds fields defined outside the current assembly.
type FieldRefTable struct {
	ctx *Context
	itemTable[string, *metadata.MemberRef]
}

func NewFieldRefTable(ctx *Context) *FieldRefTable {
	return &FieldRefTable{ctx: ctx, itemTable: newItemTable[string, *metadata.MemberRef]()}
}

func (t *FieldRefTable) Populate(refs []*metadata.MemberRef) {
	for _, m := range refs {
		if m.IsField() {
			t.add(memberRefKey(m), m)
		}
	}
}

func (t *FieldRefTable) TryGetId(m *metadata.MemberRef) (uint16, bool) {
	return t.tryGetId(memberRefKey(m))
}

// PreAllocateStrings interns names and signatures for every field ref
// so definition tables can assume they resolve.
func (t *FieldRefTable) PreAllocateStrings() error {
	for i := 0; i < t.Len(); i++ {
		m := t.At(i)
		if _, err := t.ctx.Strings.GetOrCreate(m.Name, true); err != nil {
			return err
		}
		if _, err := t.ctx.Signatures.GetOrCreateFieldSig(m.FieldSig); err != nil {
			return errors.Wrapf(err, "field ref %s", m.FullName())
		}
	}
	return nil
}

func (t *FieldRefTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		m := t.At(i)
		name_id, ok := t.ctx.Strings.TryGetId(m.Name)
		if !ok {
			return errors.Wrapf(ERR_UNRESOLVED, "field ref name %q", m.Name)
		}
		container, err := t.ctx.EncodeTypeToken(m.DeclaringType)
		if err != nil {
			return errors.Wrapf(err, "field ref %s", m.FullName())
		}
		sig_id, err := t.ctx.Signatures.GetOrCreateFieldSig(m.FieldSig)
		if err != nil {
			return err
		}
		start := w.BeginRecord()
		w.WriteU16(name_id)
		w.WriteU16(container)
		w.WriteU16(sig_id)
		if err := w.EndRecord(start, FIELD_REF_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}

// MethodRefTable holds methods defined outside the current assembly.
type MethodRefTable struct {
	ctx *Context
	itemTable[string, *metadata.MemberRef]
}

func NewMethodRefTable(ctx *Context) *MethodRefTable {
	return &MethodRefTable{ctx: ctx, itemTable: newItemTable[string, *metadata.MemberRef]()}
}

func (t *MethodRefTable) Populate(refs []*metadata.MemberRef) {
	for _, m := range refs {
		if !m.IsField() {
			t.add(memberRefKey(m), m)
		}
	}
}

func (t *MethodRefTable) TryGetId(m *metadata.MemberRef) (uint16, bool) {
	return t.tryGetId(memberRefKey(m))
}

func (t *MethodRefTable) PreAllocateStrings() error {
	for i := 0; i < t.Len(); i++ {
		m := t.At(i)
		if _, err := t.ctx.Strings.GetOrCreate(m.Name, true); err != nil {
			return err
		}
		if _, err := t.ctx.Signatures.GetOrCreateMethodSig(m.MethodSig); err != nil {
			return errors.Wrapf(err, "method ref %s", m.FullName())
		}
	}
	return nil
}

func (t *MethodRefTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		m := t.At(i)
		name_id, ok := t.ctx.Strings.TryGetId(m.Name)
		if !ok {
			return errors.Wrapf(ERR_UNRESOLVED, "method ref name %q", m.Name)
		}
		// The container packs the declaring type's table into the low
		// bits of the type token.
		container, err := t.ctx.EncodeTypeToken(m.DeclaringType)
		if err != nil {
			return errors.Wrapf(err, "method ref %s", m.FullName())
		}
		sig_id, err := t.ctx.Signatures.GetOrCreateMethodSig(m.MethodSig)
		if err != nil {
			return err
		}
		start := w.BeginRecord()
		w.WriteU16(name_id)
		w.WriteU16(container)
		w.WriteU16(sig_id)
		if err := w.EndRecord(start, METHOD_REF_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}
