package tables

import (
	"hash/fnv"

	"github.com/pkg/errors"
	sorted "github.com/tobshub/go-sortedmap"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

const (
	RESOURCE_RECORD_SIZE      = 8
	RESOURCE_FILE_RECORD_SIZE = 8
)

// Resource kinds as stored on the record.
const (
	ResourceKindBinary uint8 = 0x01
)

type resourceItem struct {
	Id     uint16
	Kind   uint8
	Flags  uint8
	Offset uint32
	Name   string
}

type resourceFile struct {
	Name   string
	Count  uint16
	Offset uint32
}

// ResourcesTable owns the resource directory, the raw resource data
// blob and the per-file records. Items are held sorted by id so the
// runtime can binary-search the emitted directory.
type ResourcesTable struct {
	ctx   *Context
	items *sorted.SortedMap[uint16, *resourceItem]
	files []*resourceFile
	data  []byte
}

func NewResourcesTable(ctx *Context) *ResourcesTable {
	return &ResourcesTable{
		ctx: ctx,
		items: sorted.New[uint16, *resourceItem](0, func(a, b *resourceItem) bool {
			return a.Id < b.Id
		}),
	}
}

// resourceId derives a stable 16-bit id from the resource name,
// probing past hash collisions.
func (t *ResourcesTable) resourceId(name string) uint16 {
	h := fnv.New32a()
	h.Write([]byte(name))
	id := uint16(h.Sum32())
	for {
		if id == EmptyId {
			id = 0
		}
		if _, ok := t.items.Get(id); !ok {
			return id
		}
		id++
	}
}

func (t *ResourcesTable) Populate(resources []*metadata.Resource) error {
	for _, r := range resources {
		offset := uint32(len(t.data))
		item := &resourceItem{
			Id:     t.resourceId(r.Name),
			Kind:   ResourceKindBinary,
			Offset: offset,
			Name:   r.Name,
		}
		if !t.items.Insert(item.Id, item) {
			return errors.Wrapf(ERR_INVARIANT, "duplicate resource id 0x%04X", item.Id)
		}
		t.data = append(t.data, r.Data...)
		t.files = append(t.files, &resourceFile{
			Name:   r.Name,
			Count:  1,
			Offset: offset,
		})
	}
	return nil
}

func (t *ResourcesTable) PreAllocateStrings() error {
	for _, f := range t.files {
		if _, err := t.ctx.Strings.GetOrCreate(f.Name, true); err != nil {
			return err
		}
	}
	return nil
}

func (t *ResourcesTable) Len() int { return t.items.Len() }

func (t *ResourcesTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() || t.items.Len() == 0 {
		return nil
	}
	iter, err := t.items.IterCh()
	if err != nil {
		return err
	}
	for rec := range iter.Records() {
		item := rec.Val
		start := w.BeginRecord()
		w.WriteU16(item.Id)
		w.WriteU8(item.Kind)
		w.WriteU8(item.Flags)
		w.WriteU32(item.Offset)
		if err := w.EndRecord(start, RESOURCE_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}

func (t *ResourcesTable) WriteData(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	w.WriteBytes(t.data)
	return nil
}

func (t *ResourcesTable) WriteFiles(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for _, f := range t.files {
		name_id, ok := t.ctx.Strings.TryGetId(f.Name)
		if !ok {
			return errors.Wrapf(ERR_UNRESOLVED, "resource file name %q", f.Name)
		}
		start := w.BeginRecord()
		w.WriteU16(name_id)
		w.WriteU16(f.Count)
		w.WriteU32(f.Offset)
		if err := w.EndRecord(start, RESOURCE_FILE_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}
