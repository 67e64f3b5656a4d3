package tables

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

const TYPE_REF_RECORD_SIZE = 6

// TypeRefTable uniques external types by fully-qualified name within
// their resolution scope.
type TypeRefTable struct {
	ctx *Context
	itemTable[string, *metadata.TypeRef]
}

func typeRefKey(r *metadata.TypeRef) string {
	key := r.TypeFullName()
	if r.Scope != nil {
		key += "," + r.Scope.Name
	}
	return key
}

func NewTypeRefTable(ctx *Context) *TypeRefTable {
	return &TypeRefTable{ctx: ctx, itemTable: newItemTable[string, *metadata.TypeRef]()}
}

// Populate adds every type ref whose name survives the exclude list.
// Enclosing refs of nested externals come first so scope lookups
// resolve at write time.
func (t *TypeRefTable) Populate(refs []*metadata.TypeRef, excluded map[string]bool) {
	for _, r := range refs {
		if excluded[r.TypeFullName()] {
			continue
		}
		if r.Enclosing != nil && !excluded[r.Enclosing.TypeFullName()] {
			t.add(typeRefKey(r.Enclosing), r.Enclosing)
		}
		t.add(typeRefKey(r), r)
	}
}

func (t *TypeRefTable) TryGetId(r *metadata.TypeRef) (uint16, bool) {
	return t.tryGetId(typeRefKey(r))
}

func (t *TypeRefTable) PreAllocateStrings() error {
	for i := 0; i < t.Len(); i++ {
		r := t.At(i)
		if _, err := t.ctx.Strings.GetOrCreate(r.Name, true); err != nil {
			return err
		}
		if _, err := t.ctx.Strings.GetOrCreate(r.Namespace, true); err != nil {
			return err
		}
	}
	return nil
}

// scopeId resolves a type ref's scope: an assembly-ref id, or for
// nested externals the enclosing type-ref id with the external bit.
func (t *TypeRefTable) scopeId(r *metadata.TypeRef) (uint16, error) {
	if r.Enclosing != nil {
		id, ok := t.TryGetId(r.Enclosing)
		if !ok {
			return 0, errors.Wrapf(ERR_UNRESOLVED, "enclosing type ref %s", r.Enclosing.TypeFullName())
		}
		return id | ExternalBit, nil
	}
	if r.Scope == nil {
		return 0, errors.Wrapf(ERR_UNRESOLVED, "type ref %s has no scope", r.TypeFullName())
	}
	id, ok := t.ctx.AssemblyRefs.TryGetId(r.Scope)
	if !ok {
		return 0, errors.Wrapf(ERR_UNRESOLVED, "assembly ref %s", r.Scope.Name)
	}
	return id, nil
}

func (t *TypeRefTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		r := t.At(i)
		name_id, ok := t.ctx.Strings.TryGetId(r.Name)
		if !ok {
			return errors.Wrapf(ERR_UNRESOLVED, "type ref name %q", r.Name)
		}
		ns_id, ok := t.ctx.Strings.TryGetId(r.Namespace)
		if !ok {
			return errors.Wrapf(ERR_UNRESOLVED, "type ref namespace %q", r.Namespace)
		}
		scope, err := t.scopeId(r)
		if err != nil {
			return err
		}
		start := w.BeginRecord()
		w.WriteU16(name_id)
		w.WriteU16(ns_id)
		w.WriteU16(scope)
		if err := w.EndRecord(start, TYPE_REF_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}
