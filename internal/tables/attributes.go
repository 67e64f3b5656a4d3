package tables

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/pkg"
)

const ATTRIBUTE_RECORD_SIZE = 8

type attrEntry struct {
	owner_tag TableTag
	owner_id  uint16
	attr      *metadata.Attribute
}

// AttributeTable emits every non-ignored custom attribute attached to
// a surviving type, field or method, in owner enumeration order.
type AttributeTable struct {
	ctx     *Context
	entries []attrEntry
}

func NewAttributeTable(ctx *Context) *AttributeTable {
	return &AttributeTable{ctx: ctx}
}

// Populate walks the type-def table in order and collects attributes
// of each type, then of its fields, then of its methods. With
// attribute compression on, each owner's attributes are pre-sorted by
// full name descending so the runtime can fold them.
func (t *AttributeTable) Populate() {
	types := t.ctx.TypeDefs
	for i := 0; i < types.Len(); i++ {
		td := types.At(i)
		t.addOwner(TBL_TypeDef, uint16(i), td.Attributes)
		for _, f := range OrderedFields(td) {
			if id, ok := t.ctx.FieldDefs.TryGetId(f); ok {
				t.addOwner(TBL_FieldDef, id, f.Attributes)
			}
		}
		for _, m := range OrderedMethods(td) {
			if id, ok := t.ctx.MethodDefs.TryGetId(m); ok {
				t.addOwner(TBL_MethodDef, id, m.Attributes)
			}
		}
	}
}

func (t *AttributeTable) addOwner(tag TableTag, owner uint16, attrs []*metadata.Attribute) {
	kept := pkg.Filter(attrs, func(a *metadata.Attribute) bool {
		return !t.ctx.IsIgnoredAttribute(a.TypeFullName())
	})
	if len(kept) == 0 {
		return
	}
	if t.ctx.opts.CompressAttributes {
		kept = append([]*metadata.Attribute{}, kept...)
		slices.SortStableFunc(kept, func(x, y *metadata.Attribute) int {
			switch {
			case x.TypeFullName() > y.TypeFullName():
				return -1
			case x.TypeFullName() < y.TypeFullName():
				return 1
			}
			return 0
		})
	}
	for _, a := range kept {
		t.entries = append(t.entries, attrEntry{tag, owner, a})
	}
}

func (t *AttributeTable) Len() int { return len(t.entries) }

// PreAllocateSignatures interns every attribute blob. Attributes whose
// constructor cannot be resolved are dropped here with a warning; the
// nano runtime has no use for attribute types it cannot load.
func (t *AttributeTable) PreAllocateSignatures() error {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if _, err := t.ctx.GetMethodReferenceId(e.attr.Ctor); err != nil {
			pkg.WarnLog("skipping attribute", e.attr.TypeFullName(), "with unresolved constructor")
			continue
		}
		if _, err := t.ctx.Signatures.GetOrCreateAttributeSig(e.attr); err != nil {
			if errors.Is(err, ERR_UNSUPPORTED) {
				pkg.WarnLog("skipping attribute", e.attr.TypeFullName(), err)
				continue
			}
			return err
		}
		kept = append(kept, e)
	}
	t.entries = kept
	return nil
}

func (t *AttributeTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for _, e := range t.entries {
		ctor, err := t.ctx.GetMethodReferenceId(e.attr.Ctor)
		if err != nil {
			return errors.Wrapf(err, "attribute %s", e.attr.TypeFullName())
		}
		sig_id, err := t.ctx.Signatures.GetOrCreateAttributeSig(e.attr)
		if err != nil {
			return err
		}
		start := w.BeginRecord()
		w.WriteU16(uint16(e.owner_tag))
		w.WriteU16(e.owner_id)
		w.WriteU16(ctor)
		w.WriteU16(sig_id)
		if err := w.EndRecord(start, ATTRIBUTE_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}

// Each yields entries for the dump.
func (t *AttributeTable) Each(f func(owner_tag TableTag, owner_id uint16, a *metadata.Attribute)) {
	for _, e := range t.entries {
		f(e.owner_tag, e.owner_id, e.attr)
	}
}
