package tables

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/pkg"
)

// ByteCodeTable is the contiguous stream of rewritten method bodies.
// Every metadata operand is renumbered to the 16-bit nano ids; branch
// offsets are recomputed against the rewritten layout.
type ByteCodeTable struct {
	ctx    *Context
	stream []byte
	rvas   map[*metadata.MethodDef]uint16

	// ldstr operands, for the dump's user-string listing.
	user_strings *pkg.InsertSortMap[string, uint16]
}

func NewByteCodeTable(ctx *Context) *ByteCodeTable {
	return &ByteCodeTable{
		ctx:          ctx,
		rvas:         map[*metadata.MethodDef]uint16{},
		user_strings: pkg.NewInsertSortMap[string, uint16](),
	}
}

func (t *ByteCodeTable) TryGetRVA(m *metadata.MethodDef) (uint16, bool) {
	rva, ok := t.rvas[m]
	return rva, ok
}

func (t *ByteCodeTable) StreamSize() int { return len(t.stream) }

// PopulateBodies encodes every method body in method-def table order,
// recording each method's RVA into the stream.
func (t *ByteCodeTable) PopulateBodies() error {
	defs := t.ctx.MethodDefs
	for i := 0; i < defs.Len(); i++ {
		m := defs.At(i)
		if m.Body == nil {
			continue
		}
		if len(t.stream) > int(EmptyId)-1 {
			return errors.Wrap(ERR_UNSUPPORTED, "byte code stream overflow")
		}
		rva := uint16(len(t.stream))
		body, err := t.EncodeBody(m)
		if err != nil {
			return errors.Wrapf(err, "encoding %s", m.FullName())
		}
		t.stream = append(t.stream, body...)
		t.rvas[m] = rva
	}
	return nil
}

// operand sizes in the source IL stream.
func sourceOperandSize(ins *metadata.Instruction) int {
	switch ins.Op.Operand {
	case metadata.OperandNone:
		return 0
	case metadata.OperandInt8, metadata.OperandBranch8, metadata.OperandVar8:
		return 1
	case metadata.OperandVar16:
		return 2
	case metadata.OperandInt32, metadata.OperandFloat32, metadata.OperandBranch32,
		metadata.OperandMethod, metadata.OperandField, metadata.OperandType,
		metadata.OperandString, metadata.OperandSig, metadata.OperandToken:
		return 4
	case metadata.OperandInt64, metadata.OperandFloat64:
		return 8
	case metadata.OperandSwitch:
		return 4 + 4*len(ins.Operand.([]int))
	}
	return 0
}

// operand sizes after rewriting: metadata operands shrink to 16 bits,
// inline tokens stay 32, branches keep the source width.
func rewrittenOperandSize(ins *metadata.Instruction) int {
	switch ins.Op.Operand {
	case metadata.OperandNone:
		return 0
	case metadata.OperandInt8, metadata.OperandBranch8, metadata.OperandVar8:
		return 1
	case metadata.OperandVar16:
		return 2
	case metadata.OperandMethod, metadata.OperandField, metadata.OperandType,
		metadata.OperandString, metadata.OperandSig:
		return 2
	case metadata.OperandInt32, metadata.OperandFloat32, metadata.OperandBranch32,
		metadata.OperandToken:
		return 4
	case metadata.OperandInt64, metadata.OperandFloat64:
		return 8
	case metadata.OperandSwitch:
		return 4 + 4*len(ins.Operand.([]int))
	}
	return 0
}

// EncodeBody rewrites one method body and appends its exception
// handler records, offsets remapped into the rewritten layout.
func (t *ByteCodeTable) EncodeBody(m *metadata.MethodDef) ([]byte, error) {
	body := m.Body

	// Pass one fixes the new offset of every source boundary.
	offsets := map[int]int{}
	pos := 0
	src_end := 0
	for _, ins := range body.Instructions {
		offsets[ins.Offset] = pos
		pos += ins.Op.EncodedSize() + rewrittenOperandSize(ins)
		src_end = ins.Offset + ins.Op.EncodedSize() + sourceOperandSize(ins)
		offsets[src_end] = pos
	}
	if pos > int(EmptyId) {
		return nil, errors.Wrapf(ERR_UNSUPPORTED, "method body is %d bytes", pos)
	}

	w := NewRecordWriter()
	for _, ins := range body.Instructions {
		if ins.Op.IsPrefix() {
			w.WriteU8(0xFE)
			w.WriteU8(uint8(ins.Op.Value & 0xFF))
		} else {
			w.WriteU8(uint8(ins.Op.Value))
		}
		if err := t.writeOperand(w, ins, offsets); err != nil {
			return nil, errors.Wrapf(err, "at IL_%04x (%s)", ins.Offset, ins.Op.Name)
		}
	}

	if len(body.Handlers) > 0 {
		if len(body.Handlers) > 0xFF {
			return nil, errors.Wrap(ERR_UNSUPPORTED, "too many exception handlers")
		}
		w.WriteU8(uint8(len(body.Handlers)))
		for _, h := range body.Handlers {
			if err := t.writeHandler(w, h, offsets); err != nil {
				return nil, err
			}
		}
	}
	return w.Bytes(), nil
}

func mapOffset(offsets map[int]int, src int) (int, error) {
	n, ok := offsets[src]
	if !ok {
		return 0, errors.Wrapf(ERR_INVARIANT, "no instruction at IL_%04x", src)
	}
	return n, nil
}

func (t *ByteCodeTable) writeOperand(w *RecordWriter, ins *metadata.Instruction, offsets map[int]int) error {
	switch ins.Op.Operand {
	case metadata.OperandNone:
		return nil

	case metadata.OperandInt8:
		w.WriteU8(uint8(ins.Operand.(int64)))
	case metadata.OperandInt32:
		w.WriteU32(uint32(ins.Operand.(int64)))
	case metadata.OperandInt64:
		v := uint64(ins.Operand.(int64))
		w.WriteU32(uint32(v))
		w.WriteU32(uint32(v >> 32))
	case metadata.OperandFloat32:
		w.WriteU32(mathFloat32bits(ins.Operand))
	case metadata.OperandFloat64:
		v := mathFloat64bits(ins.Operand)
		w.WriteU32(uint32(v))
		w.WriteU32(uint32(v >> 32))
	case metadata.OperandVar8:
		w.WriteU8(uint8(ins.Operand.(int)))
	case metadata.OperandVar16:
		w.WriteU16(uint16(ins.Operand.(int)))

	case metadata.OperandBranch8, metadata.OperandBranch32:
		target, err := mapOffset(offsets, ins.Operand.(int))
		if err != nil {
			return err
		}
		here, err := mapOffset(offsets, ins.Offset)
		if err != nil {
			return err
		}
		next := here + ins.Op.EncodedSize() + rewrittenOperandSize(ins)
		rel := target - next
		if ins.Op.Operand == metadata.OperandBranch8 {
			if rel < -128 || rel > 127 {
				return errors.Wrapf(ERR_INVARIANT, "short branch distance %d", rel)
			}
			w.WriteU8(uint8(int8(rel)))
		} else {
			w.WriteU32(uint32(int32(rel)))
		}

	case metadata.OperandSwitch:
		targets := ins.Operand.([]int)
		here, err := mapOffset(offsets, ins.Offset)
		if err != nil {
			return err
		}
		next := here + ins.Op.EncodedSize() + rewrittenOperandSize(ins)
		w.WriteU32(uint32(len(targets)))
		for _, src := range targets {
			target, err := mapOffset(offsets, src)
			if err != nil {
				return err
			}
			w.WriteU32(uint32(int32(target - next)))
		}

	case metadata.OperandMethod:
		id, err := t.ctx.GetMethodReferenceId(ins.Operand)
		if err != nil {
			return err
		}
		w.WriteU16(id)
	case metadata.OperandField:
		id, err := t.ctx.GetFieldReferenceId(ins.Operand)
		if err != nil {
			return err
		}
		w.WriteU16(id)
	case metadata.OperandType:
		tok, err := t.ctx.EncodeTypeToken(ins.Operand.(metadata.Type))
		if err != nil {
			return err
		}
		w.WriteU16(tok)
	case metadata.OperandString:
		s := ins.Operand.(string)
		id, err := t.ctx.Strings.GetOrCreate(s, true)
		if err != nil {
			return err
		}
		if !t.user_strings.Has(s) {
			t.user_strings.Push(s, id)
		}
		w.WriteU16(id)
	case metadata.OperandSig:
		sig, ok := ins.Operand.(*metadata.MethodSig)
		if !ok {
			return errors.Wrap(ERR_UNSUPPORTED, "inline signature operand")
		}
		id, err := t.ctx.Signatures.GetOrCreateMethodSig(sig)
		if err != nil {
			return err
		}
		w.WriteU16(id)
	case metadata.OperandToken:
		tok, err := t.ctx.NanoMetadataToken(ins.Operand)
		if err != nil {
			return err
		}
		w.WriteU32(tok)

	default:
		return errors.Wrapf(ERR_UNSUPPORTED, "operand kind %d", ins.Op.Operand)
	}
	return nil
}

func (t *ByteCodeTable) writeHandler(w *RecordWriter, h *metadata.ExceptionHandler, offsets map[int]int) error {
	try_start, err := mapOffset(offsets, h.TryStart)
	if err != nil {
		return err
	}
	try_end, err := mapOffset(offsets, h.TryEnd)
	if err != nil {
		return err
	}
	handler_start, err := mapOffset(offsets, h.HandlerStart)
	if err != nil {
		return err
	}
	handler_end, err := mapOffset(offsets, h.HandlerEnd)
	if err != nil {
		return err
	}

	class_or_filter := EmptyId
	switch h.Kind {
	case metadata.HandlerCatch:
		if h.CatchType != nil {
			tok, err := t.ctx.EncodeTypeToken(h.CatchType)
			if err != nil {
				return err
			}
			class_or_filter = tok
		}
	case metadata.HandlerFilter:
		f, err := mapOffset(offsets, h.FilterStart)
		if err != nil {
			return err
		}
		class_or_filter = uint16(f)
	}

	w.WriteU16(h.Kind)
	w.WriteU16(uint16(try_start))
	w.WriteU16(uint16(try_end))
	w.WriteU16(uint16(handler_start))
	w.WriteU16(uint16(handler_end))
	w.WriteU16(class_or_filter)
	return nil
}

func (t *ByteCodeTable) Write(w *RecordWriter) error {
	if !t.ctx.IsMinimizeComplete() {
		return nil
	}
	w.WriteBytes(t.stream)
	return nil
}

// EachUserString yields ldstr strings with their heap ids, in first
// occurrence order.
func (t *ByteCodeTable) EachUserString(f func(s string, id uint16)) {
	for _, s := range t.user_strings.Sorted {
		f(s, t.user_strings.Get(s))
	}
}
