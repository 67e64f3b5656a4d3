package tables

// Well-known strings the nano runtime carries in its firmware. They
// get ids at and above StringConstantsBase and are never written to
// the image's string heap. The list is append-only: runtime and
// processor must agree on it.
var string_constants = []string{
	"mscorlib",
	"System",
	"System.Collections",
	"System.Diagnostics",
	"System.Reflection",
	"Object",
	"ValueType",
	"Enum",
	"String",
	"Boolean",
	"Char",
	"SByte",
	"Byte",
	"Int16",
	"UInt16",
	"Int32",
	"UInt32",
	"Int64",
	"UInt64",
	"Single",
	"Double",
	"Void",
	"DateTime",
	"TimeSpan",
	"Guid",
	"Array",
	"Delegate",
	"MulticastDelegate",
	"Attribute",
	"Exception",
	"IDisposable",
	"ICloneable",
	"IList",
	"IEnumerable",
	"IEnumerator",
	"ArrayList",
	"EventArgs",
	"EventHandler",
	".ctor",
	".cctor",
	"value__",
	"ToString",
	"Equals",
	"GetHashCode",
	"GetType",
	"Finalize",
	"Dispose",
	"MoveNext",
	"Current",
	"Reset",
	"Length",
	"Count",
	"Value",
	"Main",
}

// StringConstantsBase is the documented threshold: real heap offsets
// stay strictly below it, constant-table ids sit at and above it.
// Constant ids are byte offsets into the virtual constant heap, offset
// by the base, mirroring how real heap ids work.
var StringConstantsBase uint16

var (
	string_constant_ids     map[string]uint16
	string_constant_by_id   map[uint16]string
	string_constants_length int
)

func init() {
	string_constants_length = 0
	for _, s := range string_constants {
		string_constants_length += len(s) + 1
	}
	StringConstantsBase = uint16(0x10000 - string_constants_length)

	string_constant_ids = make(map[string]uint16, len(string_constants))
	string_constant_by_id = make(map[uint16]string, len(string_constants))
	offset := StringConstantsBase
	for _, s := range string_constants {
		string_constant_ids[s] = offset
		string_constant_by_id[offset] = s
		offset += uint16(len(s) + 1)
	}
}

// LookupStringConstant returns the constant id of s if it is a
// well-known string.
func LookupStringConstant(s string) (uint16, bool) {
	id, ok := string_constant_ids[s]
	return id, ok
}

// StringConstantById is the reverse lookup for dump rendering.
func StringConstantById(id uint16) (string, bool) {
	s, ok := string_constant_by_id[id]
	return s, ok
}
