package loader

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Physical table numbers (ECMA-335 II.22).
const (
	tblModule                 = 0x00
	tblTypeRef                = 0x01
	tblTypeDef                = 0x02
	tblFieldPtr               = 0x03
	tblField                  = 0x04
	tblMethodPtr              = 0x05
	tblMethodDef              = 0x06
	tblParamPtr               = 0x07
	tblParam                  = 0x08
	tblInterfaceImpl          = 0x09
	tblMemberRef              = 0x0A
	tblConstant               = 0x0B
	tblCustomAttribute        = 0x0C
	tblFieldMarshal           = 0x0D
	tblDeclSecurity           = 0x0E
	tblClassLayout            = 0x0F
	tblFieldLayout            = 0x10
	tblStandAloneSig          = 0x11
	tblEventMap               = 0x12
	tblEventPtr               = 0x13
	tblEvent                  = 0x14
	tblPropertyMap            = 0x15
	tblPropertyPtr            = 0x16
	tblProperty               = 0x17
	tblMethodSemantics        = 0x18
	tblMethodImpl             = 0x19
	tblModuleRef              = 0x1A
	tblTypeSpec               = 0x1B
	tblImplMap                = 0x1C
	tblFieldRVA               = 0x1D
	tblEncLog                 = 0x1E
	tblEncMap                 = 0x1F
	tblAssembly               = 0x20
	tblAssemblyProcessor      = 0x21
	tblAssemblyOS             = 0x22
	tblAssemblyRef            = 0x23
	tblAssemblyRefProcessor   = 0x24
	tblAssemblyRefOS          = 0x25
	tblFile                   = 0x26
	tblExportedType           = 0x27
	tblManifestResource       = 0x28
	tblNestedClass            = 0x29
	tblGenericParam           = 0x2A
	tblMethodSpec             = 0x2B
	tblGenericParamConstraint = 0x2C

	tableMax = 0x2D
)

type columnKind int

const (
	colU16 columnKind = iota
	colU32
	colString
	colGuid
	colBlob
	colIndex // simple table index; the table number is in the arg
	colCoded // coded index; the coded kind is in the arg
)

type column struct {
	kind columnKind
	arg  int
}

type codedIndex struct {
	bits   int
	tables []int
}

const (
	codedTypeDefOrRef = iota
	codedHasConstant
	codedHasCustomAttribute
	codedHasFieldMarshal
	codedHasDeclSecurity
	codedMemberRefParent
	codedHasSemantics
	codedMethodDefOrRef
	codedMemberForwarded
	codedImplementation
	codedCustomAttributeType
	codedResolutionScope
	codedTypeOrMethodDef
)

// -1 marks an unused tag slot.
var coded_indexes = map[int]codedIndex{
	codedTypeDefOrRef:        {2, []int{tblTypeDef, tblTypeRef, tblTypeSpec}},
	codedHasConstant:         {2, []int{tblField, tblParam, tblProperty}},
	codedHasCustomAttribute:  {5, []int{tblMethodDef, tblField, tblTypeRef, tblTypeDef, tblParam, tblInterfaceImpl, tblMemberRef, tblModule, tblDeclSecurity, tblProperty, tblEvent, tblStandAloneSig, tblModuleRef, tblTypeSpec, tblAssembly, tblAssemblyRef, tblFile, tblExportedType, tblManifestResource, tblGenericParam, tblGenericParamConstraint, tblMethodSpec}},
	codedHasFieldMarshal:     {1, []int{tblField, tblParam}},
	codedHasDeclSecurity:     {2, []int{tblTypeDef, tblMethodDef, tblAssembly}},
	codedMemberRefParent:     {3, []int{tblTypeDef, tblTypeRef, tblModuleRef, tblMethodDef, tblTypeSpec}},
	codedHasSemantics:        {1, []int{tblEvent, tblProperty}},
	codedMethodDefOrRef:      {1, []int{tblMethodDef, tblMemberRef}},
	codedMemberForwarded:     {1, []int{tblField, tblMethodDef}},
	codedImplementation:      {2, []int{tblFile, tblAssemblyRef, tblExportedType}},
	codedCustomAttributeType: {3, []int{-1, -1, tblMethodDef, tblMemberRef, -1}},
	codedResolutionScope:     {2, []int{tblModule, tblModuleRef, tblAssemblyRef, tblTypeRef}},
	codedTypeOrMethodDef:     {1, []int{tblTypeDef, tblMethodDef}},
}

var table_schemas = map[int][]column{
	tblModule:                 {{colU16, 0}, {colString, 0}, {colGuid, 0}, {colGuid, 0}, {colGuid, 0}},
	tblTypeRef:                {{colCoded, codedResolutionScope}, {colString, 0}, {colString, 0}},
	tblTypeDef:                {{colU32, 0}, {colString, 0}, {colString, 0}, {colCoded, codedTypeDefOrRef}, {colIndex, tblField}, {colIndex, tblMethodDef}},
	tblFieldPtr:               {{colIndex, tblField}},
	tblField:                  {{colU16, 0}, {colString, 0}, {colBlob, 0}},
	tblMethodPtr:              {{colIndex, tblMethodDef}},
	tblMethodDef:              {{colU32, 0}, {colU16, 0}, {colU16, 0}, {colString, 0}, {colBlob, 0}, {colIndex, tblParam}},
	tblParamPtr:               {{colIndex, tblParam}},
	tblParam:                  {{colU16, 0}, {colU16, 0}, {colString, 0}},
	tblInterfaceImpl:          {{colIndex, tblTypeDef}, {colCoded, codedTypeDefOrRef}},
	tblMemberRef:              {{colCoded, codedMemberRefParent}, {colString, 0}, {colBlob, 0}},
	tblConstant:               {{colU16, 0}, {colCoded, codedHasConstant}, {colBlob, 0}},
	tblCustomAttribute:        {{colCoded, codedHasCustomAttribute}, {colCoded, codedCustomAttributeType}, {colBlob, 0}},
	tblFieldMarshal:           {{colCoded, codedHasFieldMarshal}, {colBlob, 0}},
	tblDeclSecurity:           {{colU16, 0}, {colCoded, codedHasDeclSecurity}, {colBlob, 0}},
	tblClassLayout:            {{colU16, 0}, {colU32, 0}, {colIndex, tblTypeDef}},
	tblFieldLayout:            {{colU32, 0}, {colIndex, tblField}},
	tblStandAloneSig:          {{colBlob, 0}},
	tblEventMap:               {{colIndex, tblTypeDef}, {colIndex, tblEvent}},
	tblEventPtr:               {{colIndex, tblEvent}},
	tblEvent:                  {{colU16, 0}, {colString, 0}, {colCoded, codedTypeDefOrRef}},
	tblPropertyMap:            {{colIndex, tblTypeDef}, {colIndex, tblProperty}},
	tblPropertyPtr:            {{colIndex, tblProperty}},
	tblProperty:               {{colU16, 0}, {colString, 0}, {colBlob, 0}},
	tblMethodSemantics:        {{colU16, 0}, {colIndex, tblMethodDef}, {colCoded, codedHasSemantics}},
	tblMethodImpl:             {{colIndex, tblTypeDef}, {colCoded, codedMethodDefOrRef}, {colCoded, codedMethodDefOrRef}},
	tblModuleRef:              {{colString, 0}},
	tblTypeSpec:               {{colBlob, 0}},
	tblImplMap:                {{colU16, 0}, {colCoded, codedMemberForwarded}, {colString, 0}, {colIndex, tblModuleRef}},
	tblFieldRVA:               {{colU32, 0}, {colIndex, tblField}},
	tblEncLog:                 {{colU32, 0}, {colU32, 0}},
	tblEncMap:                 {{colU32, 0}},
	tblAssembly:               {{colU32, 0}, {colU16, 0}, {colU16, 0}, {colU16, 0}, {colU16, 0}, {colU32, 0}, {colBlob, 0}, {colString, 0}, {colString, 0}},
	tblAssemblyProcessor:      {{colU32, 0}},
	tblAssemblyOS:             {{colU32, 0}, {colU32, 0}, {colU32, 0}},
	tblAssemblyRef:            {{colU16, 0}, {colU16, 0}, {colU16, 0}, {colU16, 0}, {colU32, 0}, {colBlob, 0}, {colString, 0}, {colString, 0}, {colBlob, 0}},
	tblAssemblyRefProcessor:   {{colU32, 0}, {colIndex, tblAssemblyRef}},
	tblAssemblyRefOS:          {{colU32, 0}, {colU32, 0}, {colU32, 0}, {colIndex, tblAssemblyRef}},
	tblFile:                   {{colU32, 0}, {colString, 0}, {colBlob, 0}},
	tblExportedType:           {{colU32, 0}, {colU32, 0}, {colString, 0}, {colString, 0}, {colCoded, codedImplementation}},
	tblManifestResource:       {{colU32, 0}, {colU32, 0}, {colString, 0}, {colCoded, codedImplementation}},
	tblNestedClass:            {{colIndex, tblTypeDef}, {colIndex, tblTypeDef}},
	tblGenericParam:           {{colU16, 0}, {colU16, 0}, {colCoded, codedTypeOrMethodDef}, {colString, 0}},
	tblMethodSpec:             {{colCoded, codedMethodDefOrRef}, {colBlob, 0}},
	tblGenericParamConstraint: {{colIndex, tblGenericParam}, {colCoded, codedTypeDefOrRef}},
}

// rawTables is the parsed #~ stream: row counts and column values.
// Heap-index columns keep their heap indices; resolution happens in
// the graph builder.
type rawTables struct {
	counts [tableMax]uint32
	rows   [tableMax][][]uint32

	wide_string bool
	wide_guid   bool
	wide_blob   bool
}

func parseTables(stream []byte) (*rawTables, error) {
	if len(stream) < 24 {
		return nil, errors.Wrap(ERR_BAD_IMAGE, "truncated table stream")
	}
	heap_sizes := stream[6]
	valid := binary.LittleEndian.Uint64(stream[8:])

	t := &rawTables{
		wide_string: heap_sizes&0x01 != 0,
		wide_guid:   heap_sizes&0x02 != 0,
		wide_blob:   heap_sizes&0x04 != 0,
	}

	pos := 24
	for i := 0; i < 64; i++ {
		if valid&(1<<uint(i)) == 0 {
			continue
		}
		count := binary.LittleEndian.Uint32(stream[pos:])
		pos += 4
		if i < tableMax {
			t.counts[i] = count
		} else {
			return nil, errors.Wrapf(ERR_BAD_IMAGE, "unknown table 0x%02X present", i)
		}
	}

	for i := 0; i < tableMax; i++ {
		if t.counts[i] == 0 {
			continue
		}
		schema, ok := table_schemas[i]
		if !ok {
			return nil, errors.Wrapf(ERR_BAD_IMAGE, "no schema for table 0x%02X", i)
		}
		for r := uint32(0); r < t.counts[i]; r++ {
			row := make([]uint32, len(schema))
			for c, col := range schema {
				size := t.columnSize(col)
				if pos+size > len(stream) {
					return nil, errors.Wrapf(ERR_BAD_IMAGE, "table 0x%02X overruns stream", i)
				}
				if size == 2 {
					row[c] = uint32(binary.LittleEndian.Uint16(stream[pos:]))
				} else {
					row[c] = binary.LittleEndian.Uint32(stream[pos:])
				}
				pos += size
			}
			t.rows[i] = append(t.rows[i], row)
		}
	}
	return t, nil
}

func (t *rawTables) columnSize(col column) int {
	switch col.kind {
	case colU16:
		return 2
	case colU32:
		return 4
	case colString:
		if t.wide_string {
			return 4
		}
		return 2
	case colGuid:
		if t.wide_guid {
			return 4
		}
		return 2
	case colBlob:
		if t.wide_blob {
			return 4
		}
		return 2
	case colIndex:
		if t.counts[col.arg] >= 0x10000 {
			return 4
		}
		return 2
	case colCoded:
		ci := coded_indexes[col.arg]
		max := uint32(0)
		for _, tbl := range ci.tables {
			if tbl >= 0 && t.counts[tbl] > max {
				max = t.counts[tbl]
			}
		}
		if max<<uint(ci.bits) >= 0x10000 {
			return 4
		}
		return 2
	}
	return 0
}

// decodeCoded splits a coded index into (table, one-based row).
func decodeCoded(kind int, v uint32) (int, uint32) {
	ci := coded_indexes[kind]
	tag := int(v & ((1 << uint(ci.bits)) - 1))
	row := v >> uint(ci.bits)
	if tag >= len(ci.tables) {
		return -1, 0
	}
	return ci.tables[tag], row
}
