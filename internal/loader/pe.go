// Package loader reads a compiled managed assembly in PE/CLI format
// and builds the object graph the lowering layer consumes. The graph
// is handed out read-only; the loader keeps no ids of its own.
package loader

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var ERR_BAD_IMAGE = errors.New("bad PE/CLI image")

type peSection struct {
	virtual_address uint32
	virtual_size    uint32
	raw_offset      uint32
	raw_size        uint32
}

// peFile gives RVA-addressed access to the raw image.
type peFile struct {
	data     []byte
	sections []peSection

	cli_header_rva    uint32
	entry_point_token uint32
	metadata_rva      uint32
	metadata_size     uint32
	resources_rva     uint32
	resources_size    uint32
}

func (f *peFile) u16(off uint32) uint16 { return binary.LittleEndian.Uint16(f.data[off:]) }
func (f *peFile) u32(off uint32) uint32 { return binary.LittleEndian.Uint32(f.data[off:]) }

// rvaToOffset maps a virtual address into the raw file.
func (f *peFile) rvaToOffset(rva uint32) (uint32, error) {
	for _, s := range f.sections {
		if rva >= s.virtual_address && rva < s.virtual_address+s.virtual_size {
			return s.raw_offset + (rva - s.virtual_address), nil
		}
	}
	return 0, errors.Wrapf(ERR_BAD_IMAGE, "rva 0x%08X maps to no section", rva)
}

func parsePE(data []byte) (*peFile, error) {
	f := &peFile{data: data}
	if len(data) < 0x40 || data[0] != 'M' || data[1] != 'Z' {
		return nil, errors.Wrap(ERR_BAD_IMAGE, "missing MZ header")
	}
	pe_off := f.u32(0x3C)
	if int(pe_off)+24 > len(data) || f.u32(pe_off) != 0x00004550 { // "PE\0\0"
		return nil, errors.Wrap(ERR_BAD_IMAGE, "missing PE signature")
	}

	coff := pe_off + 4
	num_sections := uint32(f.u16(coff + 2))
	opt_size := uint32(f.u16(coff + 16))
	opt := coff + 20

	magic := f.u16(opt)
	var dir_base uint32
	switch magic {
	case 0x10B: // PE32
		dir_base = opt + 96
	case 0x20B: // PE32+
		dir_base = opt + 112
	default:
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "optional header magic 0x%04X", magic)
	}
	num_dirs := f.u32(dir_base - 4)
	if num_dirs < 15 {
		return nil, errors.Wrap(ERR_BAD_IMAGE, "no CLI data directory")
	}
	// Directory 14 is the CLI header.
	f.cli_header_rva = f.u32(dir_base + 14*8)
	if f.cli_header_rva == 0 {
		return nil, errors.Wrap(ERR_BAD_IMAGE, "not a managed assembly")
	}

	sec_off := opt + opt_size
	for i := uint32(0); i < num_sections; i++ {
		s := sec_off + i*40
		if int(s)+40 > len(data) {
			return nil, errors.Wrap(ERR_BAD_IMAGE, "truncated section table")
		}
		f.sections = append(f.sections, peSection{
			virtual_size:    f.u32(s + 8),
			virtual_address: f.u32(s + 12),
			raw_size:        f.u32(s + 16),
			raw_offset:      f.u32(s + 20),
		})
	}

	cli, err := f.rvaToOffset(f.cli_header_rva)
	if err != nil {
		return nil, err
	}
	if int(cli)+72 > len(data) {
		return nil, errors.Wrap(ERR_BAD_IMAGE, "truncated CLI header")
	}
	f.metadata_rva = f.u32(cli + 8)
	f.metadata_size = f.u32(cli + 12)
	flags := f.u32(cli + 16)
	const native_entry_point = 0x10
	if flags&native_entry_point == 0 {
		f.entry_point_token = f.u32(cli + 20)
	}
	f.resources_rva = f.u32(cli + 24)
	f.resources_size = f.u32(cli + 28)
	return f, nil
}
