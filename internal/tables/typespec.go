package tables

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

const TYPE_SPEC_RECORD_SIZE = 4

// TypeSpecTable uniques structural types by their encoded signature
// bytes. Generic instantiations, arrays and by-refs that cannot be a
// plain ref or def land here.
type TypeSpecTable struct {
	ctx *Context
	itemTable[string, uint16] // sig bytes -> signature id
}

func NewTypeSpecTable(ctx *Context) *TypeSpecTable {
	return &TypeSpecTable{ctx: ctx, itemTable: newItemTable[string, uint16]()}
}

// GetOrCreate interns the spec's signature and assigns the spec id on
// first sight.
func (t *TypeSpecTable) GetOrCreate(sig *metadata.TypeSig) (uint16, error) {
	// Encode first: the signature bytes are the identity.
	w := newSigWriterForSpec()
	if err := t.ctx.Signatures.writeTypeInfo(w, sig); err != nil {
		return 0, err
	}
	key := string(w.Bytes())
	if id, ok := t.tryGetId(key); ok {
		return id, nil
	}
	if t.ctx.IsMinimizeComplete() {
		return 0, errors.Wrap(ERR_INVARIANT, "type spec table frozen")
	}
	sig_id, err := t.ctx.Signatures.GetOrCreate(w.Bytes())
	if err != nil {
		return 0, err
	}
	return t.add(key, sig_id), nil
}

func (t *TypeSpecTable) TryGetId(sig *metadata.TypeSig) (uint16, bool) {
	w := newSigWriterForSpec()
	if err := t.ctx.Signatures.writeTypeInfo(w, sig); err != nil {
		return 0, false
	}
	return t.tryGetId(string(w.Bytes()))
}

func (t *TypeSpecTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		sig_id := t.At(i)
		start := w.BeginRecord()
		w.WriteU16(sig_id)
		w.WriteU16(0)
		if err := w.EndRecord(start, TYPE_SPEC_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}
