package loader

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/pkg"
)

// readBody decodes a method body at the given RVA: header, IL stream,
// locals signature and exception clauses.
func (b *graphBuilder) readBody(rva uint32) (*metadata.MethodBody, []*metadata.TypeSig, error) {
	off, err := b.pe.rvaToOffset(rva)
	if err != nil {
		return nil, nil, err
	}
	data := b.pe.data

	var code []byte
	var locals []*metadata.TypeSig
	body := &metadata.MethodBody{}
	eh_off := 0

	head := data[off]
	switch head & 0x03 {
	case 0x02: // tiny
		size := int(head >> 2)
		code = data[off+1 : off+1+uint32(size)]
		body.MaxStack = 8
	case 0x03: // fat
		flags := binary.LittleEndian.Uint16(data[off:])
		header_size := uint32(flags>>12) * 4
		body.MaxStack = int(binary.LittleEndian.Uint16(data[off+2:]))
		code_size := binary.LittleEndian.Uint32(data[off+4:])
		locals_tok := binary.LittleEndian.Uint32(data[off+8:])
		code = data[off+header_size : off+header_size+code_size]
		if locals_tok != 0 {
			locals, err = b.standAloneLocals(locals_tok)
			if err != nil {
				return nil, nil, err
			}
		}
		if flags&0x08 != 0 { // more sections
			eh_off = pkg.AlignUp(int(off+header_size+code_size), 4)
		}
	default:
		return nil, nil, errors.Wrapf(ERR_BAD_IMAGE, "method header kind 0x%02X", head&0x03)
	}

	body.Instructions, err = b.decodeInstructions(code)
	if err != nil {
		return nil, nil, err
	}

	if eh_off != 0 {
		body.Handlers, err = b.decodeHandlers(data, eh_off)
		if err != nil {
			return nil, nil, err
		}
	}
	return body, locals, nil
}

func (b *graphBuilder) standAloneLocals(tok uint32) ([]*metadata.TypeSig, error) {
	if tok>>24 != tblStandAloneSig {
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "locals token 0x%08X", tok)
	}
	row := tok & 0xFFFFFF
	if row == 0 || row > b.raw.counts[tblStandAloneSig] {
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "locals row %d", row)
	}
	blob, err := b.md.blobAt(b.raw.rows[tblStandAloneSig][row-1][0])
	if err != nil {
		return nil, err
	}
	r := b.newSigReader(blob)
	return r.localsSig()
}

func (b *graphBuilder) decodeInstructions(code []byte) ([]*metadata.Instruction, error) {
	instructions := []*metadata.Instruction{}
	pos := 0
	for pos < len(code) {
		off := pos
		val := uint16(code[pos])
		pos++
		if val == 0xFE {
			if pos >= len(code) {
				return nil, errors.Wrap(ERR_BAD_IMAGE, "truncated two-byte opcode")
			}
			val = 0xFE00 | uint16(code[pos])
			pos++
		}
		op, ok := metadata.OpcodeByValue[val]
		if !ok {
			return nil, errors.Wrapf(ERR_BAD_IMAGE, "unknown opcode 0x%04X at IL_%04x", val, off)
		}

		ins := &metadata.Instruction{Offset: off, Op: op}
		switch op.Operand {
		case metadata.OperandNone:

		case metadata.OperandInt8:
			ins.Operand = int64(int8(code[pos]))
			pos++
		case metadata.OperandVar8:
			ins.Operand = int(code[pos])
			pos++
		case metadata.OperandVar16:
			ins.Operand = int(binary.LittleEndian.Uint16(code[pos:]))
			pos += 2
		case metadata.OperandInt32:
			ins.Operand = int64(int32(binary.LittleEndian.Uint32(code[pos:])))
			pos += 4
		case metadata.OperandInt64:
			ins.Operand = int64(binary.LittleEndian.Uint64(code[pos:]))
			pos += 8
		case metadata.OperandFloat32:
			ins.Operand = float64(math.Float32frombits(binary.LittleEndian.Uint32(code[pos:])))
			pos += 4
		case metadata.OperandFloat64:
			ins.Operand = math.Float64frombits(binary.LittleEndian.Uint64(code[pos:]))
			pos += 8

		case metadata.OperandBranch8:
			rel := int(int8(code[pos]))
			pos++
			ins.Operand = pos + rel
		case metadata.OperandBranch32:
			rel := int(int32(binary.LittleEndian.Uint32(code[pos:])))
			pos += 4
			ins.Operand = pos + rel
		case metadata.OperandSwitch:
			n := int(binary.LittleEndian.Uint32(code[pos:]))
			pos += 4
			end := pos + 4*n
			targets := make([]int, n)
			for i := 0; i < n; i++ {
				rel := int(int32(binary.LittleEndian.Uint32(code[pos:])))
				pos += 4
				targets[i] = end + rel
			}
			ins.Operand = targets

		case metadata.OperandString:
			tok := binary.LittleEndian.Uint32(code[pos:])
			pos += 4
			if tok>>24 != 0x70 {
				return nil, errors.Wrapf(ERR_BAD_IMAGE, "string token 0x%08X", tok)
			}
			s, err := b.md.userString(tok & 0xFFFFFF)
			if err != nil {
				return nil, err
			}
			ins.Operand = s

		case metadata.OperandMethod, metadata.OperandField,
			metadata.OperandType, metadata.OperandToken, metadata.OperandSig:
			tok := binary.LittleEndian.Uint32(code[pos:])
			pos += 4
			operand, err := b.resolveToken(tok)
			if err != nil {
				return nil, errors.Wrapf(err, "operand of %s at IL_%04x", op.Name, off)
			}
			ins.Operand = operand

		default:
			return nil, errors.Wrapf(ERR_BAD_IMAGE, "operand kind %d", op.Operand)
		}
		instructions = append(instructions, ins)
	}
	return instructions, nil
}

func (b *graphBuilder) decodeHandlers(data []byte, off int) ([]*metadata.ExceptionHandler, error) {
	handlers := []*metadata.ExceptionHandler{}
	for {
		kind := data[off]
		if kind&0x01 == 0 {
			return nil, errors.Wrapf(ERR_BAD_IMAGE, "method section kind 0x%02X", kind)
		}
		fat := kind&0x40 != 0

		var clauses []*metadata.ExceptionHandler
		var next int
		if fat {
			size := int(binary.LittleEndian.Uint32(data[off:]) >> 8)
			n := (size - 4) / 24
			pos := off + 4
			for i := 0; i < n; i++ {
				h, err := b.readClause(data, pos, true)
				if err != nil {
					return nil, err
				}
				clauses = append(clauses, h)
				pos += 24
			}
			next = off + size
		} else {
			size := int(data[off+1])
			n := (size - 4) / 12
			pos := off + 4
			for i := 0; i < n; i++ {
				h, err := b.readClause(data, pos, false)
				if err != nil {
					return nil, err
				}
				clauses = append(clauses, h)
				pos += 12
			}
			next = off + size
		}
		handlers = append(handlers, clauses...)

		if kind&0x80 == 0 { // no more sections
			return handlers, nil
		}
		off = pkg.AlignUp(next, 4)
	}
}

func (b *graphBuilder) readClause(data []byte, pos int, fat bool) (*metadata.ExceptionHandler, error) {
	h := &metadata.ExceptionHandler{}
	var class_or_filter uint32
	if fat {
		h.Kind = uint16(binary.LittleEndian.Uint32(data[pos:]))
		h.TryStart = int(binary.LittleEndian.Uint32(data[pos+4:]))
		h.TryEnd = h.TryStart + int(binary.LittleEndian.Uint32(data[pos+8:]))
		h.HandlerStart = int(binary.LittleEndian.Uint32(data[pos+12:]))
		h.HandlerEnd = h.HandlerStart + int(binary.LittleEndian.Uint32(data[pos+16:]))
		class_or_filter = binary.LittleEndian.Uint32(data[pos+20:])
	} else {
		h.Kind = binary.LittleEndian.Uint16(data[pos:])
		h.TryStart = int(binary.LittleEndian.Uint16(data[pos+2:]))
		h.TryEnd = h.TryStart + int(data[pos+4])
		h.HandlerStart = int(binary.LittleEndian.Uint16(data[pos+5:]))
		h.HandlerEnd = h.HandlerStart + int(data[pos+7])
		class_or_filter = binary.LittleEndian.Uint32(data[pos+8:])
	}

	switch h.Kind {
	case metadata.HandlerCatch:
		if class_or_filter != 0 {
			t, err := b.resolveToken(class_or_filter)
			if err != nil {
				return nil, err
			}
			catch, ok := t.(metadata.Type)
			if !ok {
				return nil, errors.Wrapf(ERR_BAD_IMAGE, "catch type token 0x%08X", class_or_filter)
			}
			h.CatchType = catch
		}
	case metadata.HandlerFilter:
		h.FilterStart = int(class_or_filter)
	}
	return h, nil
}
