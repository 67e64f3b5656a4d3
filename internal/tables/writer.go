package tables

import (
	"bufio"
	"io"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/pkg"
)

// Image header: magic, format version, flags, assembly name string id,
// assembly version, entry point token, then one (offset, length) pair
// per table section. Every section is padded to 4-byte alignment.
const (
	ImageMagic   uint32 = 0x5044_4D4E // "NMDP"
	ImageVersion uint16 = 0x0001

	section_align    = 4
	image_headerSize = 4 + 2 + 2 + 2 + 2 + 8 + 4 + TableCount*8
)

type sectionEntry struct {
	Offset uint32
	Length uint32
}

// Sections are written in the fixed wire order; generic params and
// method specs trail the resource files. The header directory is
// indexed by table tag, so readers never depend on the body order.
var section_order = []TableTag{
	TBL_AssemblyRef,
	TBL_TypeRef,
	TBL_FieldRef,
	TBL_MethodRef,
	TBL_TypeDef,
	TBL_FieldDef,
	TBL_MethodDef,
	TBL_Attributes,
	TBL_TypeSpec,
	TBL_Resources,
	TBL_ResourceData,
	TBL_Signatures,
	TBL_Strings,
	TBL_ByteCode,
	TBL_ResourceFile,
	TBL_GenericParam,
	TBL_MethodSpec,
}

// BuildSection renders one table section.
func (c *Context) BuildSection(tag TableTag) ([]byte, error) {
	w := NewRecordWriter()
	var err error
	switch tag {
	case TBL_AssemblyRef:
		err = c.AssemblyRefs.Write(w)
	case TBL_TypeRef:
		err = c.TypeRefs.Write(w)
	case TBL_FieldRef:
		err = c.FieldRefs.Write(w)
	case TBL_MethodRef:
		err = c.MethodRefs.Write(w)
	case TBL_TypeDef:
		err = c.TypeDefs.Write(w)
	case TBL_FieldDef:
		err = c.FieldDefs.Write(w)
	case TBL_MethodDef:
		err = c.MethodDefs.Write(w)
	case TBL_Attributes:
		err = c.Attributes.Write(w)
	case TBL_TypeSpec:
		err = c.TypeSpecs.Write(w)
	case TBL_Resources:
		err = c.Resources.Write(w)
	case TBL_ResourceData:
		err = c.Resources.WriteData(w)
	case TBL_Signatures:
		err = c.Signatures.Write(w)
	case TBL_Strings:
		err = c.Strings.Write(w)
	case TBL_ByteCode:
		err = c.ByteCode.Write(w)
	case TBL_ResourceFile:
		err = c.Resources.WriteFiles(w)
	case TBL_GenericParam:
		err = c.GenericParams.Write(w)
	case TBL_MethodSpec:
		err = c.MethodSpecs.Write(w)
	default:
		err = errors.Wrapf(ERR_INVARIANT, "unknown section 0x%02X", byte(tag))
	}
	if err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// WriteImage emits the complete image. Refuses to run before the
// minimize-complete latch.
func (c *Context) WriteImage(out io.Writer) error {
	if !c.IsMinimizeComplete() {
		return errors.Wrap(ERR_INVARIANT, "write before minimization completed")
	}

	sections := make(map[TableTag][]byte, TableCount)
	directory := make(map[TableTag]sectionEntry, TableCount)
	offset := pkg.AlignUp(image_headerSize, section_align)
	for _, tag := range section_order {
		body, err := c.BuildSection(tag)
		if err != nil {
			return errors.Wrapf(err, "section %s", tag)
		}
		directory[tag] = sectionEntry{Offset: uint32(offset), Length: uint32(len(body))}
		sections[tag] = pkg.PadTo(body, section_align)
		offset += len(sections[tag])
	}

	w := bufio.NewWriter(out)
	header := NewRecordWriter()
	header.WriteU32(ImageMagic)
	header.WriteU16(ImageVersion)
	header.WriteU16(0) // flags
	name_id, ok := c.Strings.TryGetId(c.Assembly.Name)
	if !ok {
		// The assembly name is only in the heap when something
		// references it; intern-on-miss is not possible here.
		name_id = EmptyId
	}
	header.WriteU16(name_id)
	header.WriteU16(0)
	header.WriteU16(c.Assembly.Version.Major)
	header.WriteU16(c.Assembly.Version.Minor)
	header.WriteU16(c.Assembly.Version.Build)
	header.WriteU16(c.Assembly.Version.Revision)
	entry := uint32(0xFFFFFFFF)
	if c.Assembly.EntryPoint != nil {
		if id, ok := c.MethodDefs.TryGetId(c.Assembly.EntryPoint); ok {
			entry = NanoToken(TBL_MethodDef, id)
		}
	}
	header.WriteU32(entry)
	for tag := TableTag(0); tag < TableCount; tag++ {
		header.WriteU32(directory[tag].Offset)
		header.WriteU32(directory[tag].Length)
	}
	if header.Len() != image_headerSize {
		return errors.Wrapf(ERR_INVARIANT, "header is %d bytes, expected %d", header.Len(), image_headerSize)
	}
	if _, err := w.Write(pkg.PadTo(header.Bytes(), section_align)); err != nil {
		return err
	}
	for _, tag := range section_order {
		if _, err := w.Write(sections[tag]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteImageFile writes the image through a temp file in the target
// directory and renames it into place, so a failed run never leaves a
// partial image behind.
func WriteImageFile(c *Context, out_path string) error {
	tmp := path.Join(path.Dir(out_path), "."+path.Base(out_path)+"."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := c.WriteImage(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, out_path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
