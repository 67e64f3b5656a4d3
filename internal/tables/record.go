package tables

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// RecordWriter accumulates fixed-width little-endian records for one
// table section and asserts every record occupies exactly its declared
// width.
type RecordWriter struct {
	buf bytes.Buffer
}

func NewRecordWriter() *RecordWriter { return &RecordWriter{} }

func (w *RecordWriter) WriteU8(v uint8) { w.buf.WriteByte(v) }

func (w *RecordWriter) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *RecordWriter) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *RecordWriter) WriteBytes(b []byte) { w.buf.Write(b) }

func (w *RecordWriter) Len() int { return w.buf.Len() }

func (w *RecordWriter) Bytes() []byte { return w.buf.Bytes() }

// BeginRecord marks the start of a record; pass the result to
// EndRecord together with the table's declared record width.
func (w *RecordWriter) BeginRecord() int { return w.buf.Len() }

func (w *RecordWriter) EndRecord(start, width int) error {
	got := w.buf.Len() - start
	if got != width {
		return errors.Wrapf(ERR_INVARIANT, "record is %d bytes, declared width %d", got, width)
	}
	return nil
}
