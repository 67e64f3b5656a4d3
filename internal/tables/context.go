package tables

import (
	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
)

// Options carries the lowering knobs the CLI exposes.
type Options struct {
	ExcludedTypes      map[string]bool
	ExplicitOrder      []string
	CompressAttributes bool
	ExpandEnums        bool
}

// Context owns every table and orchestrates lowering. Tables hold
// borrowed references into the loader's object graph and mutable
// ownership of their own id maps; nothing else may create table ids.
type Context struct {
	Assembly *metadata.Assembly
	opts     Options

	ignored_attributes map[string]bool

	AssemblyRefs  *AssemblyRefTable
	TypeRefs      *TypeRefTable
	FieldRefs     *FieldRefTable
	MethodRefs    *MethodRefTable
	TypeDefs      *TypeDefTable
	FieldDefs     *FieldDefTable
	MethodDefs    *MethodDefTable
	Attributes    *AttributeTable
	TypeSpecs     *TypeSpecTable
	GenericParams *GenericParamTable
	MethodSpecs   *MethodSpecTable
	Resources     *ResourcesTable
	Signatures    *SignatureTable
	Strings       *StringTable
	ByteCode      *ByteCodeTable

	TypesOrdered []*metadata.TypeDef

	minimize_complete bool
}

// NewContext builds every table from the (already minimized) assembly.
// Population order is fixed: later tables look ids up in earlier ones.
// After population the context pre-allocates string and signature ids
// for everything the definition tables will reference, so writing is
// pure lookup.
func NewContext(asm *metadata.Assembly, opts Options) (*Context, error) {
	c := &Context{Assembly: asm, opts: opts}
	c.ignored_attributes = buildIgnoredAttributeSet()

	c.AssemblyRefs = NewAssemblyRefTable(c)
	c.TypeRefs = NewTypeRefTable(c)
	c.FieldRefs = NewFieldRefTable(c)
	c.MethodRefs = NewMethodRefTable(c)
	c.TypeDefs = NewTypeDefTable(c)
	c.FieldDefs = NewFieldDefTable(c)
	c.MethodDefs = NewMethodDefTable(c)
	c.Attributes = NewAttributeTable(c)
	c.TypeSpecs = NewTypeSpecTable(c)
	c.GenericParams = NewGenericParamTable(c)
	c.MethodSpecs = NewMethodSpecTable(c)
	c.Resources = NewResourcesTable(c)
	c.Signatures = NewSignatureTable(c)
	c.Strings = NewStringTable(c)
	c.ByteCode = NewByteCodeTable(c)

	c.AssemblyRefs.Populate(asm.Refs)
	c.TypeRefs.Populate(asm.TypeRefs, opts.ExcludedTypes)
	c.FieldRefs.Populate(asm.MemberRefs)
	c.MethodRefs.Populate(asm.MemberRefs)

	c.TypesOrdered = OrderTypes(asm.Types, opts.ExplicitOrder)
	c.TypeDefs.Populate(c.TypesOrdered)
	c.FieldDefs.Populate()
	c.MethodDefs.Populate()
	c.Attributes.Populate()
	c.GenericParams.Populate(c.TypesOrdered)
	c.MethodSpecs.Populate(asm.MethodSpecs)
	if err := c.Resources.Populate(asm.Resources); err != nil {
		return nil, err
	}

	if err := c.preAllocate(); err != nil {
		return nil, err
	}
	return c, nil
}

// preAllocate interns the strings and signatures every record needs.
// The string heap is re-packed once before anything embeds string ids
// into encoded bytes; from then on ids only append.
func (c *Context) preAllocate() error {
	steps := []func() error{
		c.AssemblyRefs.PreAllocateStrings,
		c.TypeRefs.PreAllocateStrings,
		c.FieldRefs.PreAllocateStrings,
		c.MethodRefs.PreAllocateStrings,
		c.TypeDefs.PreAllocateStrings,
		c.FieldDefs.PreAllocateStrings,
		c.MethodDefs.PreAllocateStrings,
		c.GenericParams.PreAllocateStrings,
		c.Resources.PreAllocateStrings,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	c.Strings.RemoveUnused(c.collectUsedStrings())

	// These embed string ids into signature and byte-code bytes, so
	// they run strictly after the heap is re-packed.
	if err := c.Attributes.PreAllocateSignatures(); err != nil {
		return err
	}
	if err := c.MethodSpecs.PreAllocateSignatures(); err != nil {
		return err
	}

	// Type specs carried over from the loader.
	for _, spec := range c.Assembly.TypeSpecs {
		if _, err := c.TypeSpecs.GetOrCreate(spec.Sig); err != nil {
			return err
		}
	}

	return c.ByteCode.PopulateBodies()
}

// collectUsedStrings names every string a surviving record refers to.
func (c *Context) collectUsedStrings() map[string]bool {
	used := map[string]bool{}
	for i := 0; i < c.AssemblyRefs.Len(); i++ {
		used[c.AssemblyRefs.At(i).Name] = true
	}
	for i := 0; i < c.TypeRefs.Len(); i++ {
		r := c.TypeRefs.At(i)
		used[r.Name] = true
		used[r.Namespace] = true
	}
	for i := 0; i < c.FieldRefs.Len(); i++ {
		used[c.FieldRefs.At(i).Name] = true
	}
	for i := 0; i < c.MethodRefs.Len(); i++ {
		used[c.MethodRefs.At(i).Name] = true
	}
	for i := 0; i < c.TypeDefs.Len(); i++ {
		td := c.TypeDefs.At(i)
		used[td.Name] = true
		used[td.Namespace] = true
	}
	for i := 0; i < c.FieldDefs.Len(); i++ {
		used[c.FieldDefs.At(i).Name] = true
	}
	for i := 0; i < c.MethodDefs.Len(); i++ {
		used[c.MethodDefs.At(i).Name] = true
	}
	for i := 0; i < c.GenericParams.Len(); i++ {
		used[c.GenericParams.At(i).Name] = true
	}
	for _, f := range c.Resources.files {
		used[f.Name] = true
	}
	return used
}

func (c *Context) IsIgnoredAttribute(full_name string) bool {
	return c.ignored_attributes[full_name]
}

// CompleteMinimization latches the context: tables freeze and writing
// unlocks. One-way.
func (c *Context) CompleteMinimization() {
	c.minimize_complete = true
}

func (c *Context) IsMinimizeComplete() bool { return c.minimize_complete }

// EncodeTypeToken packs a type into a 16-bit token: the table id in
// the high bits, the resolving table in the low two.
func (c *Context) EncodeTypeToken(t metadata.Type) (uint16, error) {
	var id uint16
	var tag uint16
	switch v := t.(type) {
	case *metadata.TypeSpec:
		spec_id, err := c.TypeSpecs.GetOrCreate(v.Sig)
		if err != nil {
			return 0, err
		}
		id, tag = spec_id, TypeTokenSpec
	case *metadata.TypeRef:
		ref_id, ok := c.TypeRefs.TryGetId(v)
		if !ok {
			return 0, errors.Wrapf(ERR_UNRESOLVED, "type ref %s", v.TypeFullName())
		}
		id, tag = ref_id, TypeTokenRef
	case *metadata.TypeDef:
		def_id, ok := c.TypeDefs.TryGetId(v)
		if !ok {
			return 0, errors.Wrapf(ERR_UNRESOLVED, "type def %s", v.TypeFullName())
		}
		id, tag = def_id, TypeTokenDef
	case *metadata.GenericParam:
		gp_id, ok := c.GenericParams.TryGetId(v)
		if !ok {
			return 0, errors.Wrapf(ERR_UNRESOLVED, "generic param %s", v.TypeFullName())
		}
		id, tag = gp_id, TypeTokenGenericParam
	default:
		return 0, errors.Wrapf(ERR_UNRESOLVED, "type %s fits no table", t.TypeFullName())
	}
	if id > MaxPackedTypeId {
		return 0, errors.Wrapf(ERR_UNSUPPORTED, "type id 0x%04X exceeds packed range", id)
	}
	return packTypeToken(id, tag), nil
}

// GetMethodReferenceId renumbers a method handle: method refs resolve
// first and carry the external bit, definitions come back unmodified.
func (c *Context) GetMethodReferenceId(m any) (uint16, error) {
	switch v := m.(type) {
	case *metadata.MemberRef:
		if v.IsField() {
			return 0, errors.Wrapf(ERR_UNRESOLVED, "%s is a field", v.FullName())
		}
		if id, ok := c.MethodRefs.TryGetId(v); ok {
			return id | ExternalBit, nil
		}
		return 0, errors.Wrapf(ERR_UNRESOLVED, "method ref %s", v.FullName())
	case *metadata.MethodDef:
		if id, ok := c.MethodDefs.TryGetId(v); ok {
			return id, nil
		}
		return 0, errors.Wrapf(ERR_UNRESOLVED, "method def %s", v.FullName())
	case *metadata.MethodSpec:
		return 0, errors.Wrap(ERR_UNSUPPORTED, "generic method instantiation call")
	}
	return 0, errors.Wrap(ERR_UNRESOLVED, "not a method handle")
}

// GetFieldReferenceId renumbers a field handle the same way.
func (c *Context) GetFieldReferenceId(f any) (uint16, error) {
	switch v := f.(type) {
	case *metadata.MemberRef:
		if !v.IsField() {
			return 0, errors.Wrapf(ERR_UNRESOLVED, "%s is a method", v.FullName())
		}
		if id, ok := c.FieldRefs.TryGetId(v); ok {
			return id | ExternalBit, nil
		}
		return 0, errors.Wrapf(ERR_UNRESOLVED, "field ref %s", v.FullName())
	case *metadata.FieldDef:
		if id, ok := c.FieldDefs.TryGetId(v); ok {
			return id, nil
		}
		return 0, errors.Wrapf(ERR_UNRESOLVED, "field def %s (constant?)", v.FullName())
	}
	return 0, errors.Wrap(ERR_UNRESOLVED, "not a field handle")
}

// NanoMetadataToken builds the 32-bit on-the-wire token for inline
// token operands.
func (c *Context) NanoMetadataToken(v any) (uint32, error) {
	switch h := v.(type) {
	case *metadata.TypeDef:
		if id, ok := c.TypeDefs.TryGetId(h); ok {
			return NanoToken(TBL_TypeDef, id), nil
		}
	case *metadata.TypeRef:
		if id, ok := c.TypeRefs.TryGetId(h); ok {
			return NanoToken(TBL_TypeRef, id), nil
		}
	case *metadata.TypeSpec:
		id, err := c.TypeSpecs.GetOrCreate(h.Sig)
		if err != nil {
			return 0, err
		}
		return NanoToken(TBL_TypeSpec, id), nil
	case *metadata.GenericParam:
		if id, ok := c.GenericParams.TryGetId(h); ok {
			return NanoToken(TBL_GenericParam, id), nil
		}
	case *metadata.FieldDef:
		if id, ok := c.FieldDefs.TryGetId(h); ok {
			return NanoToken(TBL_FieldDef, id), nil
		}
	case *metadata.MethodDef:
		if id, ok := c.MethodDefs.TryGetId(h); ok {
			return NanoToken(TBL_MethodDef, id), nil
		}
	case *metadata.MemberRef:
		if h.IsField() {
			if id, ok := c.FieldRefs.TryGetId(h); ok {
				return NanoToken(TBL_FieldRef, id), nil
			}
		} else {
			if id, ok := c.MethodRefs.TryGetId(h); ok {
				return NanoToken(TBL_MethodRef, id), nil
			}
		}
	}
	return 0, errors.Wrap(ERR_UNRESOLVED, "inline token operand")
}
