package tables

import "github.com/nanomdp/nanomdp/internal/metadata"

// TableTag identifies a table in nano metadata tokens and in the image
// header's section directory.
type TableTag byte

const (
	TBL_AssemblyRef  TableTag = 0x00
	TBL_TypeRef      TableTag = 0x01
	TBL_FieldRef     TableTag = 0x02
	TBL_MethodRef    TableTag = 0x03
	TBL_TypeDef      TableTag = 0x04
	TBL_FieldDef     TableTag = 0x05
	TBL_MethodDef    TableTag = 0x06
	TBL_Attributes   TableTag = 0x07
	TBL_TypeSpec     TableTag = 0x08
	TBL_Resources    TableTag = 0x09
	TBL_ResourceData TableTag = 0x0A
	TBL_Signatures   TableTag = 0x0B
	TBL_Strings      TableTag = 0x0C
	TBL_ByteCode     TableTag = 0x0D
	TBL_ResourceFile TableTag = 0x0E
	TBL_GenericParam TableTag = 0x0F
	TBL_MethodSpec   TableTag = 0x10

	TableCount = 0x11
)

var tableNames = map[TableTag]string{
	TBL_AssemblyRef: "AssemblyRef", TBL_TypeRef: "TypeRef",
	TBL_FieldRef: "FieldRef", TBL_MethodRef: "MethodRef",
	TBL_TypeDef: "TypeDef", TBL_FieldDef: "FieldDef",
	TBL_MethodDef: "MethodDef", TBL_Attributes: "Attributes",
	TBL_TypeSpec: "TypeSpec", TBL_Resources: "Resources",
	TBL_ResourceData: "ResourceData", TBL_Signatures: "Signatures",
	TBL_Strings: "Strings", TBL_ByteCode: "ByteCode",
	TBL_ResourceFile: "ResourceFile", TBL_GenericParam: "GenericParam",
	TBL_MethodSpec: "MethodSpec",
}

func (t TableTag) String() string { return tableNames[t] }

// EmptyId is the reserved sentinel meaning absent.
const EmptyId uint16 = 0xFFFF

// ExternalBit marks a reference id resolved through a ref table
// instead of a def table.
const ExternalBit uint16 = 0x8000

// NanoToken packs a 32-bit on-the-wire metadata token:
// table tag in the high 8 bits, id in the low 24.
func NanoToken(tag TableTag, id uint16) uint32 {
	return uint32(tag)<<24 | uint32(id)
}

// Two-bit table tags carried in the low bits of packed type tokens.
const (
	TypeTokenDef          uint16 = 0x0
	TypeTokenRef          uint16 = 0x1
	TypeTokenSpec         uint16 = 0x2
	TypeTokenGenericParam uint16 = 0x3
)

// MaxPackedTypeId is the largest id a packed type token can carry.
const MaxPackedTypeId uint16 = 0x3FFF

func packTypeToken(id uint16, tag uint16) uint16 {
	return id<<2 | tag
}

// UnpackTypeToken splits a packed type token into its id and table tag.
func UnpackTypeToken(tok uint16) (id uint16, tag uint16) {
	return tok >> 2, tok & 0x3
}

// DataType is the nano runtime's type code used inside signatures and
// type-def records.
type DataType byte

const (
	DATATYPE_VOID        DataType = 0x00
	DATATYPE_BOOLEAN     DataType = 0x01
	DATATYPE_I1          DataType = 0x02
	DATATYPE_U1          DataType = 0x03
	DATATYPE_CHAR        DataType = 0x04
	DATATYPE_I2          DataType = 0x05
	DATATYPE_U2          DataType = 0x06
	DATATYPE_I4          DataType = 0x07
	DATATYPE_U4          DataType = 0x08
	DATATYPE_R4          DataType = 0x09
	DATATYPE_I8          DataType = 0x0A
	DATATYPE_U8          DataType = 0x0B
	DATATYPE_R8          DataType = 0x0C
	DATATYPE_DATETIME    DataType = 0x0D
	DATATYPE_TIMESPAN    DataType = 0x0E
	DATATYPE_STRING      DataType = 0x0F
	DATATYPE_OBJECT      DataType = 0x10
	DATATYPE_CLASS       DataType = 0x11
	DATATYPE_VALUETYPE   DataType = 0x12
	DATATYPE_SZARRAY     DataType = 0x13
	DATATYPE_BYREF       DataType = 0x14
	DATATYPE_VAR         DataType = 0x15
	DATATYPE_MVAR        DataType = 0x16
	DATATYPE_GENERICINST DataType = 0x17
)

// Primitive type names as the nano runtime accepts them. Process-wide,
// read-only.
var primitive_types = map[string]DataType{
	"System.Void":     DATATYPE_VOID,
	"System.Boolean":  DATATYPE_BOOLEAN,
	"System.SByte":    DATATYPE_I1,
	"System.Byte":     DATATYPE_U1,
	"System.Char":     DATATYPE_CHAR,
	"System.Int16":    DATATYPE_I2,
	"System.UInt16":   DATATYPE_U2,
	"System.Int32":    DATATYPE_I4,
	"System.UInt32":   DATATYPE_U4,
	"System.Single":   DATATYPE_R4,
	"System.Int64":    DATATYPE_I8,
	"System.UInt64":   DATATYPE_U8,
	"System.Double":   DATATYPE_R8,
	"System.DateTime": DATATYPE_DATETIME,
	"System.TimeSpan": DATATYPE_TIMESPAN,
	"System.String":   DATATYPE_STRING,
	"System.Object":   DATATYPE_OBJECT,
	"System.IntPtr":   DATATYPE_I4,
	"System.UIntPtr":  DATATYPE_U4,
}

// Signature element codes that map straight to a nano data type.
var elem_data_types = map[metadata.ElementType]DataType{
	metadata.ElemVoid:    DATATYPE_VOID,
	metadata.ElemBoolean: DATATYPE_BOOLEAN,
	metadata.ElemChar:    DATATYPE_CHAR,
	metadata.ElemI1:      DATATYPE_I1,
	metadata.ElemU1:      DATATYPE_U1,
	metadata.ElemI2:      DATATYPE_I2,
	metadata.ElemU2:      DATATYPE_U2,
	metadata.ElemI4:      DATATYPE_I4,
	metadata.ElemU4:      DATATYPE_U4,
	metadata.ElemI8:      DATATYPE_I8,
	metadata.ElemU8:      DATATYPE_U8,
	metadata.ElemR4:      DATATYPE_R4,
	metadata.ElemR8:      DATATYPE_R8,
	metadata.ElemString:  DATATYPE_STRING,
	metadata.ElemObject:  DATATYPE_OBJECT,
	metadata.ElemI:       DATATYPE_I4,
	metadata.ElemU:       DATATYPE_U4,
}
