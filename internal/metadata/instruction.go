package metadata

// OperandKind tells the byte-code rewriter how to decode and re-encode
// an instruction operand.
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandInt8
	OperandInt32
	OperandInt64
	OperandFloat32
	OperandFloat64
	OperandBranch8
	OperandBranch32
	OperandMethod
	OperandField
	OperandType
	OperandString
	OperandSig
	OperandToken
	OperandVar8
	OperandVar16
	OperandSwitch
)

type Opcode struct {
	Value   uint16 // one-byte opcodes 0x00..0xE0; two-byte 0xFE00..0xFE1E
	Name    string
	Operand OperandKind
}

// IsPrefix reports the 0xFE-prefixed form, encoded as two bytes.
func (o Opcode) IsPrefix() bool { return o.Value > 0xFF }

// EncodedSize is the size of the opcode itself, without operand.
func (o Opcode) EncodedSize() int {
	if o.IsPrefix() {
		return 2
	}
	return 1
}

var Opcodes = []Opcode{
	{0x00, "nop", OperandNone},
	{0x01, "break", OperandNone},
	{0x02, "ldarg.0", OperandNone},
	{0x03, "ldarg.1", OperandNone},
	{0x04, "ldarg.2", OperandNone},
	{0x05, "ldarg.3", OperandNone},
	{0x06, "ldloc.0", OperandNone},
	{0x07, "ldloc.1", OperandNone},
	{0x08, "ldloc.2", OperandNone},
	{0x09, "ldloc.3", OperandNone},
	{0x0A, "stloc.0", OperandNone},
	{0x0B, "stloc.1", OperandNone},
	{0x0C, "stloc.2", OperandNone},
	{0x0D, "stloc.3", OperandNone},
	{0x0E, "ldarg.s", OperandVar8},
	{0x0F, "ldarga.s", OperandVar8},
	{0x10, "starg.s", OperandVar8},
	{0x11, "ldloc.s", OperandVar8},
	{0x12, "ldloca.s", OperandVar8},
	{0x13, "stloc.s", OperandVar8},
	{0x14, "ldnull", OperandNone},
	{0x15, "ldc.i4.m1", OperandNone},
	{0x16, "ldc.i4.0", OperandNone},
	{0x17, "ldc.i4.1", OperandNone},
	{0x18, "ldc.i4.2", OperandNone},
	{0x19, "ldc.i4.3", OperandNone},
	{0x1A, "ldc.i4.4", OperandNone},
	{0x1B, "ldc.i4.5", OperandNone},
	{0x1C, "ldc.i4.6", OperandNone},
	{0x1D, "ldc.i4.7", OperandNone},
	{0x1E, "ldc.i4.8", OperandNone},
	{0x1F, "ldc.i4.s", OperandInt8},
	{0x20, "ldc.i4", OperandInt32},
	{0x21, "ldc.i8", OperandInt64},
	{0x22, "ldc.r4", OperandFloat32},
	{0x23, "ldc.r8", OperandFloat64},
	{0x25, "dup", OperandNone},
	{0x26, "pop", OperandNone},
	{0x27, "jmp", OperandMethod},
	{0x28, "call", OperandMethod},
	{0x29, "calli", OperandSig},
	{0x2A, "ret", OperandNone},
	{0x2B, "br.s", OperandBranch8},
	{0x2C, "brfalse.s", OperandBranch8},
	{0x2D, "brtrue.s", OperandBranch8},
	{0x2E, "beq.s", OperandBranch8},
	{0x2F, "bge.s", OperandBranch8},
	{0x30, "bgt.s", OperandBranch8},
	{0x31, "ble.s", OperandBranch8},
	{0x32, "blt.s", OperandBranch8},
	{0x33, "bne.un.s", OperandBranch8},
	{0x34, "bge.un.s", OperandBranch8},
	{0x35, "bgt.un.s", OperandBranch8},
	{0x36, "ble.un.s", OperandBranch8},
	{0x37, "blt.un.s", OperandBranch8},
	{0x38, "br", OperandBranch32},
	{0x39, "brfalse", OperandBranch32},
	{0x3A, "brtrue", OperandBranch32},
	{0x3B, "beq", OperandBranch32},
	{0x3C, "bge", OperandBranch32},
	{0x3D, "bgt", OperandBranch32},
	{0x3E, "ble", OperandBranch32},
	{0x3F, "blt", OperandBranch32},
	{0x40, "bne.un", OperandBranch32},
	{0x41, "bge.un", OperandBranch32},
	{0x42, "bgt.un", OperandBranch32},
	{0x43, "ble.un", OperandBranch32},
	{0x44, "blt.un", OperandBranch32},
	{0x45, "switch", OperandSwitch},
	{0x46, "ldind.i1", OperandNone},
	{0x47, "ldind.u1", OperandNone},
	{0x48, "ldind.i2", OperandNone},
	{0x49, "ldind.u2", OperandNone},
	{0x4A, "ldind.i4", OperandNone},
	{0x4B, "ldind.u4", OperandNone},
	{0x4C, "ldind.i8", OperandNone},
	{0x4D, "ldind.i", OperandNone},
	{0x4E, "ldind.r4", OperandNone},
	{0x4F, "ldind.r8", OperandNone},
	{0x50, "ldind.ref", OperandNone},
	{0x51, "stind.ref", OperandNone},
	{0x52, "stind.i1", OperandNone},
	{0x53, "stind.i2", OperandNone},
	{0x54, "stind.i4", OperandNone},
	{0x55, "stind.i8", OperandNone},
	{0x56, "stind.r4", OperandNone},
	{0x57, "stind.r8", OperandNone},
	{0x58, "add", OperandNone},
	{0x59, "sub", OperandNone},
	{0x5A, "mul", OperandNone},
	{0x5B, "div", OperandNone},
	{0x5C, "div.un", OperandNone},
	{0x5D, "rem", OperandNone},
	{0x5E, "rem.un", OperandNone},
	{0x5F, "and", OperandNone},
	{0x60, "or", OperandNone},
	{0x61, "xor", OperandNone},
	{0x62, "shl", OperandNone},
	{0x63, "shr", OperandNone},
	{0x64, "shr.un", OperandNone},
	{0x65, "neg", OperandNone},
	{0x66, "not", OperandNone},
	{0x67, "conv.i1", OperandNone},
	{0x68, "conv.i2", OperandNone},
	{0x69, "conv.i4", OperandNone},
	{0x6A, "conv.i8", OperandNone},
	{0x6B, "conv.r4", OperandNone},
	{0x6C, "conv.r8", OperandNone},
	{0x6D, "conv.u4", OperandNone},
	{0x6E, "conv.u8", OperandNone},
	{0x6F, "callvirt", OperandMethod},
	{0x70, "cpobj", OperandType},
	{0x71, "ldobj", OperandType},
	{0x72, "ldstr", OperandString},
	{0x73, "newobj", OperandMethod},
	{0x74, "castclass", OperandType},
	{0x75, "isinst", OperandType},
	{0x76, "conv.r.un", OperandNone},
	{0x79, "unbox", OperandType},
	{0x7A, "throw", OperandNone},
	{0x7B, "ldfld", OperandField},
	{0x7C, "ldflda", OperandField},
	{0x7D, "stfld", OperandField},
	{0x7E, "ldsfld", OperandField},
	{0x7F, "ldsflda", OperandField},
	{0x80, "stsfld", OperandField},
	{0x81, "stobj", OperandType},
	{0x82, "conv.ovf.i1.un", OperandNone},
	{0x83, "conv.ovf.i2.un", OperandNone},
	{0x84, "conv.ovf.i4.un", OperandNone},
	{0x85, "conv.ovf.i8.un", OperandNone},
	{0x86, "conv.ovf.u1.un", OperandNone},
	{0x87, "conv.ovf.u2.un", OperandNone},
	{0x88, "conv.ovf.u4.un", OperandNone},
	{0x89, "conv.ovf.u8.un", OperandNone},
	{0x8A, "conv.ovf.i.un", OperandNone},
	{0x8B, "conv.ovf.u.un", OperandNone},
	{0x8C, "box", OperandType},
	{0x8D, "newarr", OperandType},
	{0x8E, "ldlen", OperandNone},
	{0x8F, "ldelema", OperandType},
	{0x90, "ldelem.i1", OperandNone},
	{0x91, "ldelem.u1", OperandNone},
	{0x92, "ldelem.i2", OperandNone},
	{0x93, "ldelem.u2", OperandNone},
	{0x94, "ldelem.i4", OperandNone},
	{0x95, "ldelem.u4", OperandNone},
	{0x96, "ldelem.i8", OperandNone},
	{0x97, "ldelem.i", OperandNone},
	{0x98, "ldelem.r4", OperandNone},
	{0x99, "ldelem.r8", OperandNone},
	{0x9A, "ldelem.ref", OperandNone},
	{0x9B, "stelem.i", OperandNone},
	{0x9C, "stelem.i1", OperandNone},
	{0x9D, "stelem.i2", OperandNone},
	{0x9E, "stelem.i4", OperandNone},
	{0x9F, "stelem.i8", OperandNone},
	{0xA0, "stelem.r4", OperandNone},
	{0xA1, "stelem.r8", OperandNone},
	{0xA2, "stelem.ref", OperandNone},
	{0xA3, "ldelem", OperandType},
	{0xA4, "stelem", OperandType},
	{0xA5, "unbox.any", OperandType},
	{0xB3, "conv.ovf.i1", OperandNone},
	{0xB4, "conv.ovf.u1", OperandNone},
	{0xB5, "conv.ovf.i2", OperandNone},
	{0xB6, "conv.ovf.u2", OperandNone},
	{0xB7, "conv.ovf.i4", OperandNone},
	{0xB8, "conv.ovf.u4", OperandNone},
	{0xB9, "conv.ovf.i8", OperandNone},
	{0xBA, "conv.ovf.u8", OperandNone},
	{0xC2, "refanyval", OperandType},
	{0xC3, "ckfinite", OperandNone},
	{0xC6, "mkrefany", OperandType},
	{0xD0, "ldtoken", OperandToken},
	{0xD1, "conv.u2", OperandNone},
	{0xD2, "conv.u1", OperandNone},
	{0xD3, "conv.i", OperandNone},
	{0xD4, "conv.ovf.i", OperandNone},
	{0xD5, "conv.ovf.u", OperandNone},
	{0xD6, "add.ovf", OperandNone},
	{0xD7, "add.ovf.un", OperandNone},
	{0xD8, "mul.ovf", OperandNone},
	{0xD9, "mul.ovf.un", OperandNone},
	{0xDA, "sub.ovf", OperandNone},
	{0xDB, "sub.ovf.un", OperandNone},
	{0xDC, "endfinally", OperandNone},
	{0xDD, "leave", OperandBranch32},
	{0xDE, "leave.s", OperandBranch8},
	{0xDF, "stind.i", OperandNone},
	{0xE0, "conv.u", OperandNone},

	{0xFE00, "arglist", OperandNone},
	{0xFE01, "ceq", OperandNone},
	{0xFE02, "cgt", OperandNone},
	{0xFE03, "cgt.un", OperandNone},
	{0xFE04, "clt", OperandNone},
	{0xFE05, "clt.un", OperandNone},
	{0xFE06, "ldftn", OperandMethod},
	{0xFE07, "ldvirtftn", OperandMethod},
	{0xFE09, "ldarg", OperandVar16},
	{0xFE0A, "ldarga", OperandVar16},
	{0xFE0B, "starg", OperandVar16},
	{0xFE0C, "ldloc", OperandVar16},
	{0xFE0D, "ldloca", OperandVar16},
	{0xFE0E, "stloc", OperandVar16},
	{0xFE0F, "localloc", OperandNone},
	{0xFE11, "endfilter", OperandNone},
	{0xFE12, "unaligned.", OperandInt8},
	{0xFE13, "volatile.", OperandNone},
	{0xFE14, "tail.", OperandNone},
	{0xFE15, "initobj", OperandType},
	{0xFE16, "constrained.", OperandType},
	{0xFE17, "cpblk", OperandNone},
	{0xFE18, "initblk", OperandNone},
	{0xFE1A, "rethrow", OperandNone},
	{0xFE1C, "sizeof", OperandType},
	{0xFE1D, "refanytype", OperandNone},
	{0xFE1E, "readonly.", OperandNone},
}

var OpcodeByValue = func() map[uint16]Opcode {
	m := make(map[uint16]Opcode, len(Opcodes))
	for _, op := range Opcodes {
		m[op.Value] = op
	}
	return m
}()

// Instruction is a decoded IL instruction. Operand holds the decoded
// value per the opcode's OperandKind:
//
//	OperandMethod      *MethodDef, *MemberRef or *MethodSpec
//	OperandField       *FieldDef or *MemberRef
//	OperandType        a metadata.Type
//	OperandString      string
//	OperandToken       a metadata.Type, *MethodDef, *FieldDef or *MemberRef
//	OperandSig         *MethodSig
//	OperandBranch*     int (absolute IL offset of the target)
//	OperandSwitch      []int (absolute IL offsets)
//	numeric operands   int64 / float64
//	OperandVar*        int
type Instruction struct {
	Offset  int
	Op      Opcode
	Operand any
}

type MethodBody struct {
	MaxStack     int
	Instructions []*Instruction
	Handlers     []*ExceptionHandler
}

// Exception handler kinds, matching the CLI clause flags.
const (
	HandlerCatch   uint16 = 0x0000
	HandlerFilter  uint16 = 0x0001
	HandlerFinally uint16 = 0x0002
	HandlerFault   uint16 = 0x0004
)

// ExceptionHandler offsets are byte offsets into the source IL body.
type ExceptionHandler struct {
	Kind         uint16
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
	CatchType    Type
	FilterStart  int
}
