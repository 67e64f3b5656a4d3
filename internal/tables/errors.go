package tables

import "errors"

// The three failure kinds the lowering layer reports. The CLI maps
// each to its own exit code with errors.Is.
var (
	ERR_UNRESOLVED  = errors.New("unresolved reference")
	ERR_UNSUPPORTED = errors.New("unsupported construct")
	ERR_INVARIANT   = errors.New("record invariant violation")
)
