package tables

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

const METHOD_SPEC_RECORD_SIZE = 6

// MethodSpecTable holds generic method instantiations.
type MethodSpecTable struct {
	ctx *Context
	itemTable[string, *metadata.MethodSpec]
}

func methodSpecKey(s *metadata.MethodSpec) string {
	key := ""
	switch m := s.Method.(type) {
	case *metadata.MethodDef:
		key = m.FullName()
	case *metadata.MemberRef:
		key = m.FullName() + ":" + m.MethodSig.String()
	}
	for _, a := range s.Instantiation {
		key += "<" + a.String() + ">"
	}
	return key
}

func NewMethodSpecTable(ctx *Context) *MethodSpecTable {
	return &MethodSpecTable{ctx: ctx, itemTable: newItemTable[string, *metadata.MethodSpec]()}
}

func (t *MethodSpecTable) Populate(specs []*metadata.MethodSpec) {
	for _, s := range specs {
		t.add(methodSpecKey(s), s)
	}
}

func (t *MethodSpecTable) TryGetId(s *metadata.MethodSpec) (uint16, bool) {
	return t.tryGetId(methodSpecKey(s))
}

// instantiationSig encodes the instantiation as a counted type list.
func (t *MethodSpecTable) instantiationSig(s *metadata.MethodSpec) (uint16, error) {
	w := newSigWriterForSpec()
	w.WriteU8(uint8(len(s.Instantiation)))
	for _, a := range s.Instantiation {
		if err := t.ctx.Signatures.writeTypeInfo(w, a); err != nil {
			return 0, err
		}
	}
	return t.ctx.Signatures.GetOrCreate(w.Bytes())
}

// PreAllocateSignatures interns every instantiation signature before
// the tables freeze.
func (t *MethodSpecTable) PreAllocateSignatures() error {
	for i := 0; i < t.Len(); i++ {
		if _, err := t.instantiationSig(t.At(i)); err != nil {
			return err
		}
	}
	return nil
}

func (t *MethodSpecTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		s := t.At(i)
		method, err := t.ctx.GetMethodReferenceId(s.Method)
		if err != nil {
			return errors.Wrapf(err, "method spec %s", methodSpecKey(s))
		}
		sig_id, err := t.instantiationSig(s)
		if err != nil {
			return err
		}
		container := EmptyId
		if m, ok := s.Method.(*metadata.MemberRef); ok {
			tok, err := t.ctx.EncodeTypeToken(m.DeclaringType)
			if err != nil {
				return errors.Wrap(err, "method spec container")
			}
			container = tok
		}
		start := w.BeginRecord()
		w.WriteU16(method)
		w.WriteU16(container)
		w.WriteU16(sig_id)
		if err := w.EndRecord(start, METHOD_SPEC_RECORD_SIZE); err != nil {
			return err
		}
	}
	return nil
}
