package tables

import (
	"github.com/nanomdp/nanomdp/pkg"
	"github.com/pkg/errors"
)

// StringTable is the content-addressed string heap. Ids are byte
// offsets into the serialized UTF-8 heap, one trailing NUL per entry.
// The empty string is interned at construction, so its id is always 0.
type StringTable struct {
	ctx         *Context
	items       *pkg.InsertSortMap[string, uint16]
	next_offset uint16
}

func NewStringTable(ctx *Context) *StringTable {
	t := &StringTable{ctx: ctx, items: pkg.NewInsertSortMap[string, uint16]()}
	t.items.Push("", 0)
	t.next_offset = 1
	return t
}

// GetOrCreate interns s and returns its id. With use_constants set the
// well-known constants table is consulted first; constant hits never
// touch the heap.
func (t *StringTable) GetOrCreate(s string, use_constants bool) (uint16, error) {
	if use_constants {
		if id, ok := LookupStringConstant(s); ok {
			return id, nil
		}
	}
	if t.items.Has(s) {
		return t.items.Get(s), nil
	}
	if t.ctx != nil && t.ctx.IsMinimizeComplete() {
		return 0, errors.Wrapf(ERR_INVARIANT, "string table frozen, cannot intern %q", s)
	}
	id := t.next_offset
	end := int(id) + len(s) + 1
	if end > int(StringConstantsBase) {
		return 0, errors.Wrapf(ERR_UNSUPPORTED, "string heap overflow interning %q", s)
	}
	t.items.Push(s, id)
	t.next_offset = uint16(end)
	return id, nil
}

// TryGetId reports whether s is already interned, consulting the
// constants table first.
func (t *StringTable) TryGetId(s string) (uint16, bool) {
	if id, ok := LookupStringConstant(s); ok {
		return id, true
	}
	if t.items.Has(s) {
		return t.items.Get(s), true
	}
	return 0, false
}

// TryGetString is the reverse lookup. The scan is linear; the forward
// map stays the single source of truth.
func (t *StringTable) TryGetString(id uint16) (string, bool) {
	if id >= StringConstantsBase {
		return StringConstantById(id)
	}
	for _, s := range t.items.Sorted {
		if t.items.Get(s) == id {
			return s, true
		}
	}
	return "", false
}

func (t *StringTable) Len() int { return t.items.Len() }

// HeapSize is the byte size of the serialized heap.
func (t *StringTable) HeapSize() int { return int(t.next_offset) }

// RemoveUnused drops every interned string the keep set does not name
// and re-packs the heap. Ids of surviving strings are reassigned; the
// empty string keeps id 0. Relative order is preserved so the heap
// stays contiguous.
func (t *StringTable) RemoveUnused(keep map[string]bool) {
	survivors := pkg.Filter(t.items.Sorted, func(s string) bool {
		return s == "" || keep[s]
	})
	t.items = pkg.NewInsertSortMap[string, uint16]()
	t.items.Push("", 0)
	t.next_offset = 1
	for _, s := range survivors {
		if s == "" {
			continue
		}
		t.items.Push(s, t.next_offset)
		t.next_offset += uint16(len(s) + 1)
	}
}

// Write emits the heap: entries in ascending id order, raw UTF-8, one
// NUL each. Constants never appear here.
func (t *StringTable) Write(w *RecordWriter) error {
	for _, s := range t.items.Sorted {
		w.WriteBytes([]byte(s))
		w.WriteU8(0)
	}
	return nil
}

// Each returns (string, id) pairs in ascending id order for dumping.
func (t *StringTable) Each(f func(s string, id uint16)) {
	for _, s := range t.items.Sorted {
		f(s, t.items.Get(s))
	}
}
