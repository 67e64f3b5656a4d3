package loader

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/pkg/errors"
)

// metadataRoot holds the physical metadata streams.
type metadataRoot struct {
	strings []byte // #Strings
	us      []byte // #US
	blob    []byte // #Blob
	guid    []byte // #GUID
	tables  []byte // #~ or #-
}

func parseMetadata(f *peFile) (*metadataRoot, error) {
	off, err := f.rvaToOffset(f.metadata_rva)
	if err != nil {
		return nil, err
	}
	md := f.data[off : off+f.metadata_size]
	if len(md) < 20 || binary.LittleEndian.Uint32(md) != 0x424A5342 { // "BSJB"
		return nil, errors.Wrap(ERR_BAD_IMAGE, "missing metadata signature")
	}
	version_len := binary.LittleEndian.Uint32(md[12:])
	pos := 16 + int(version_len)
	pos += 2 // flags
	stream_count := int(binary.LittleEndian.Uint16(md[pos:]))
	pos += 2

	root := &metadataRoot{}
	for i := 0; i < stream_count; i++ {
		stream_off := binary.LittleEndian.Uint32(md[pos:])
		stream_size := binary.LittleEndian.Uint32(md[pos+4:])
		pos += 8
		name_start := pos
		for md[pos] != 0 {
			pos++
		}
		name := string(md[name_start:pos])
		// Stream names pad to 4-byte boundaries.
		pos = (pos + 4) & ^3

		body := md[stream_off : stream_off+stream_size]
		switch name {
		case "#Strings":
			root.strings = body
		case "#US":
			root.us = body
		case "#Blob":
			root.blob = body
		case "#GUID":
			root.guid = body
		case "#~", "#-":
			root.tables = body
		}
	}
	if root.tables == nil {
		return nil, errors.Wrap(ERR_BAD_IMAGE, "no table stream")
	}
	return root, nil
}

func (r *metadataRoot) string(idx uint32) (string, error) {
	if int(idx) >= len(r.strings) {
		return "", errors.Wrapf(ERR_BAD_IMAGE, "string index 0x%X out of range", idx)
	}
	end := idx
	for int(end) < len(r.strings) && r.strings[end] != 0 {
		end++
	}
	return string(r.strings[idx:end]), nil
}

// blobAt reads a length-prefixed blob.
func (r *metadataRoot) blobAt(idx uint32) ([]byte, error) {
	if int(idx) >= len(r.blob) {
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "blob index 0x%X out of range", idx)
	}
	length, n := readCompressed(r.blob[idx:])
	start := int(idx) + n
	if start+int(length) > len(r.blob) {
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "blob at 0x%X overruns heap", idx)
	}
	return r.blob[start : start+int(length)], nil
}

// userString reads a #US entry (UTF-16, trailing kind byte).
func (r *metadataRoot) userString(idx uint32) (string, error) {
	if int(idx) >= len(r.us) {
		return "", errors.Wrapf(ERR_BAD_IMAGE, "user string 0x%X out of range", idx)
	}
	length, n := readCompressed(r.us[idx:])
	start := int(idx) + n
	end := start + int(length)
	if end > len(r.us) {
		return "", errors.Wrapf(ERR_BAD_IMAGE, "user string at 0x%X overruns heap", idx)
	}
	raw := r.us[start:end]
	if len(raw)%2 == 1 {
		raw = raw[:len(raw)-1] // drop the kind byte
	}
	u16s := make([]uint16, len(raw)/2)
	for i := range u16s {
		u16s[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return string(utf16.Decode(u16s)), nil
}

// readCompressed decodes the CLI compressed unsigned integer format.
func readCompressed(b []byte) (uint32, int) {
	if len(b) == 0 {
		return 0, 0
	}
	switch {
	case b[0]&0x80 == 0:
		return uint32(b[0]), 1
	case b[0]&0xC0 == 0x80:
		return uint32(b[0]&0x3F)<<8 | uint32(b[1]), 2
	default:
		return uint32(b[0]&0x1F)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), 4
	}
}

// readCompressedSigned decodes the signed variant used by array bounds.
func readCompressedSigned(b []byte) (int32, int) {
	u, n := readCompressed(b)
	if u&1 == 0 {
		return int32(u >> 1), n
	}
	switch n {
	case 1:
		return int32(u>>1) - 0x40, n
	case 2:
		return int32(u>>1) - 0x2000, n
	default:
		return int32(u>>1) - 0x10000000, n
	}
}
