package loader

import (
	"os"

	"github.com/pkg/errors"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/pkg"
)

// Load reads a managed assembly from disk and builds its object graph.
func Load(file_path string) (*metadata.Assembly, error) {
	data, err := os.ReadFile(file_path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(data)
}

// LoadBytes builds the object graph from an in-memory image.
func LoadBytes(data []byte) (*metadata.Assembly, error) {
	pe, err := parsePE(data)
	if err != nil {
		return nil, err
	}
	md, err := parseMetadata(pe)
	if err != nil {
		return nil, err
	}
	raw, err := parseTables(md.tables)
	if err != nil {
		return nil, err
	}
	b := &graphBuilder{
		pe:          pe,
		md:          md,
		raw:         raw,
		asm:         &metadata.Assembly{},
		typespecs:   map[uint32]*metadata.TypeSpec{},
		methodspecs: map[uint32]*metadata.MethodSpec{},
	}
	if err := b.build(); err != nil {
		return nil, err
	}
	return b.asm, nil
}

type graphBuilder struct {
	pe  *peFile
	md  *metadataRoot
	raw *rawTables
	asm *metadata.Assembly

	asmrefs  []*metadata.AssemblyRef
	typerefs []metadata.Type // one *TypeRef per row, module-scoped rows included
	typedefs []*metadata.TypeDef
	fields   []*metadata.FieldDef
	methods  []*metadata.MethodDef

	memberrefs  []any // *MemberRef, *FieldDef or *MethodDef, lazily resolved
	typespecs   map[uint32]*metadata.TypeSpec
	methodspecs map[uint32]*metadata.MethodSpec
}

func (b *graphBuilder) newSigReader(blob []byte) *sigReader {
	return &sigReader{data: blob, resolve: b.resolveTypeDefOrRef}
}

func (b *graphBuilder) build() error {
	if err := b.buildAssembly(); err != nil {
		return err
	}
	if err := b.buildAssemblyRefs(); err != nil {
		return err
	}
	if err := b.buildTypeRefs(); err != nil {
		return err
	}
	if err := b.buildTypeDefSkeletons(); err != nil {
		return err
	}
	if err := b.buildNesting(); err != nil {
		return err
	}
	if err := b.buildExtendsAndInterfaces(); err != nil {
		return err
	}
	if err := b.buildFields(); err != nil {
		return err
	}
	if err := b.buildMethods(); err != nil {
		return err
	}
	if err := b.buildGenericParams(); err != nil {
		return err
	}
	b.memberrefs = make([]any, b.raw.counts[tblMemberRef])
	if err := b.buildBodies(); err != nil {
		return err
	}
	if err := b.buildConstants(); err != nil {
		return err
	}
	if err := b.buildMethodSpecRows(); err != nil {
		return err
	}
	if err := b.buildResources(); err != nil {
		return err
	}
	if err := b.buildAttributes(); err != nil {
		return err
	}
	b.resolveEntryPoint()
	b.collectMemberRefs()
	return nil
}

func (b *graphBuilder) buildAssembly() error {
	if b.raw.counts[tblAssembly] == 0 {
		return errors.Wrap(ERR_BAD_IMAGE, "no assembly row")
	}
	row := b.raw.rows[tblAssembly][0]
	name, err := b.md.string(row[7])
	if err != nil {
		return err
	}
	b.asm.Name = name
	b.asm.Version = metadata.Version{
		Major:    uint16(row[1]),
		Minor:    uint16(row[2]),
		Build:    uint16(row[3]),
		Revision: uint16(row[4]),
	}
	b.asm.Flags = row[5]
	return nil
}

func (b *graphBuilder) buildAssemblyRefs() error {
	for i, row := range b.raw.rows[tblAssemblyRef] {
		name, err := b.md.string(row[6])
		if err != nil {
			return err
		}
		r := &metadata.AssemblyRef{
			Name: name,
			Version: metadata.Version{
				Major:    uint16(row[0]),
				Minor:    uint16(row[1]),
				Build:    uint16(row[2]),
				Revision: uint16(row[3]),
			},
			Flags: row[4],
			Token: uint32(tblAssemblyRef)<<24 | uint32(i+1),
		}
		b.asmrefs = append(b.asmrefs, r)
		b.asm.Refs = append(b.asm.Refs, r)
	}
	return nil
}

func (b *graphBuilder) buildTypeRefs() error {
	rows := b.raw.rows[tblTypeRef]
	refs := make([]*metadata.TypeRef, len(rows))
	b.typerefs = make([]metadata.Type, len(rows))
	for i, row := range rows {
		name, err := b.md.string(row[1])
		if err != nil {
			return err
		}
		ns, err := b.md.string(row[2])
		if err != nil {
			return err
		}
		refs[i] = &metadata.TypeRef{
			Name:      name,
			Namespace: ns,
			Token:     uint32(tblTypeRef)<<24 | uint32(i+1),
		}
		b.typerefs[i] = refs[i]
	}
	// Scopes second, so nested refs can point at any row.
	for i, row := range rows {
		table, scope_row := decodeCoded(codedResolutionScope, row[0])
		switch table {
		case tblAssemblyRef:
			if scope_row == 0 || int(scope_row) > len(b.asmrefs) {
				return errors.Wrapf(ERR_BAD_IMAGE, "type ref %s scope", refs[i].Name)
			}
			refs[i].Scope = b.asmrefs[scope_row-1]
		case tblTypeRef:
			if scope_row == 0 || int(scope_row) > len(refs) {
				return errors.Wrapf(ERR_BAD_IMAGE, "type ref %s enclosing", refs[i].Name)
			}
			refs[i].Enclosing = refs[scope_row-1]
		case tblModule:
			// A ref into this module; it stays a TypeRef with no scope.
		default:
			pkg.WarnLog("type ref", refs[i].TypeFullName(), "has module-ref scope")
		}
		b.asm.TypeRefs = append(b.asm.TypeRefs, refs[i])
	}
	return nil
}

func (b *graphBuilder) buildTypeDefSkeletons() error {
	rows := b.raw.rows[tblTypeDef]
	b.typedefs = make([]*metadata.TypeDef, len(rows))
	for i, row := range rows {
		name, err := b.md.string(row[1])
		if err != nil {
			return err
		}
		ns, err := b.md.string(row[2])
		if err != nil {
			return err
		}
		b.typedefs[i] = &metadata.TypeDef{
			Name:      name,
			Namespace: ns,
			Flags:     row[0],
			Token:     uint32(tblTypeDef)<<24 | uint32(i+1),
		}
	}
	b.asm.Types = b.typedefs
	return nil
}

func (b *graphBuilder) buildNesting() error {
	for _, row := range b.raw.rows[tblNestedClass] {
		nested_row, enclosing_row := row[0], row[1]
		if nested_row == 0 || int(nested_row) > len(b.typedefs) ||
			enclosing_row == 0 || int(enclosing_row) > len(b.typedefs) {
			return errors.Wrap(ERR_BAD_IMAGE, "nested class row out of range")
		}
		nested := b.typedefs[nested_row-1]
		enclosing := b.typedefs[enclosing_row-1]
		nested.DeclaringType = enclosing
		enclosing.NestedTypes = append(enclosing.NestedTypes, nested)
	}
	return nil
}

func (b *graphBuilder) buildExtendsAndInterfaces() error {
	for i, row := range b.raw.rows[tblTypeDef] {
		table, r := decodeCoded(codedTypeDefOrRef, row[3])
		if r != 0 {
			extends, err := b.resolveTypeDefOrRef(table, r)
			if err != nil {
				return errors.Wrapf(err, "extends of %s", b.typedefs[i].TypeFullName())
			}
			b.typedefs[i].Extends = extends
		}
	}
	for _, row := range b.raw.rows[tblInterfaceImpl] {
		if row[0] == 0 || int(row[0]) > len(b.typedefs) {
			return errors.Wrap(ERR_BAD_IMAGE, "interface impl row out of range")
		}
		td := b.typedefs[row[0]-1]
		table, r := decodeCoded(codedTypeDefOrRef, row[1])
		iface, err := b.resolveTypeDefOrRef(table, r)
		if err != nil {
			return errors.Wrapf(err, "interface of %s", td.TypeFullName())
		}
		td.Interfaces = append(td.Interfaces, iface)
	}
	return nil
}

// memberRange returns the [start, end) rows of a member run column.
func (b *graphBuilder) memberRange(rows [][]uint32, i int, col int, owned_count uint32) (uint32, uint32) {
	start := rows[i][col]
	end := owned_count + 1
	if i+1 < len(rows) {
		end = rows[i+1][col]
	}
	return start, end
}

func (b *graphBuilder) buildFields() error {
	field_rows := b.raw.rows[tblField]
	b.fields = make([]*metadata.FieldDef, len(field_rows))
	type_rows := b.raw.rows[tblTypeDef]
	for i := range type_rows {
		td := b.typedefs[i]
		start, end := b.memberRange(type_rows, i, 4, b.raw.counts[tblField])
		for r := start; r < end && r <= b.raw.counts[tblField]; r++ {
			row := field_rows[r-1]
			name, err := b.md.string(row[1])
			if err != nil {
				return err
			}
			blob, err := b.md.blobAt(row[2])
			if err != nil {
				return err
			}
			sig, err := b.newSigReader(blob).fieldSig()
			if err != nil {
				return errors.Wrapf(err, "field %s.%s", td.TypeFullName(), name)
			}
			f := &metadata.FieldDef{
				Name:          name,
				DeclaringType: td,
				Flags:         uint16(row[0]),
				Sig:           sig,
				Token:         uint32(tblField)<<24 | r,
			}
			b.fields[r-1] = f
			td.Fields = append(td.Fields, f)
		}
	}
	return nil
}

func (b *graphBuilder) buildMethods() error {
	method_rows := b.raw.rows[tblMethodDef]
	b.methods = make([]*metadata.MethodDef, len(method_rows))
	type_rows := b.raw.rows[tblTypeDef]
	for i := range type_rows {
		td := b.typedefs[i]
		start, end := b.memberRange(type_rows, i, 5, b.raw.counts[tblMethodDef])
		for r := start; r < end && r <= b.raw.counts[tblMethodDef]; r++ {
			row := method_rows[r-1]
			name, err := b.md.string(row[3])
			if err != nil {
				return err
			}
			blob, err := b.md.blobAt(row[4])
			if err != nil {
				return err
			}
			sig, err := b.newSigReader(blob).methodSig()
			if err != nil {
				return errors.Wrapf(err, "method %s.%s", td.TypeFullName(), name)
			}
			m := &metadata.MethodDef{
				Name:          name,
				DeclaringType: td,
				Flags:         row[2],
				ImplFlags:     uint16(row[1]),
				Sig:           sig,
				Token:         uint32(tblMethodDef)<<24 | r,
			}
			b.methods[r-1] = m
			td.Methods = append(td.Methods, m)
		}
	}
	return nil
}

// buildBodies runs after every def exists so operand tokens resolve.
func (b *graphBuilder) buildBodies() error {
	for r, row := range b.raw.rows[tblMethodDef] {
		m := b.methods[r]
		if m == nil {
			continue
		}
		rva := row[0]
		if rva == 0 || m.IsAbstract() {
			continue
		}
		body, locals, err := b.readBody(rva)
		if err != nil {
			return errors.Wrapf(err, "body of %s", m.FullName())
		}
		m.Body = body
		m.Locals = locals
	}
	return nil
}

func (b *graphBuilder) buildConstants() error {
	for _, row := range b.raw.rows[tblConstant] {
		table, r := decodeCoded(codedHasConstant, row[1])
		if table != tblField || r == 0 || int(r) > len(b.fields) {
			continue
		}
		f := b.fields[r-1]
		if f == nil {
			continue
		}
		blob, err := b.md.blobAt(row[2])
		if err != nil {
			return err
		}
		f.DefaultValue = blob
	}
	return nil
}

func (b *graphBuilder) buildGenericParams() error {
	for i, row := range b.raw.rows[tblGenericParam] {
		name, err := b.md.string(row[3])
		if err != nil {
			return err
		}
		g := &metadata.GenericParam{
			Number: int(row[0]),
			Name:   name,
			Token:  uint32(tblGenericParam)<<24 | uint32(i+1),
		}
		table, r := decodeCoded(codedTypeOrMethodDef, row[2])
		switch {
		case table == tblTypeDef && r > 0 && int(r) <= len(b.typedefs):
			g.OwnerType = b.typedefs[r-1]
			g.OwnerType.GenericParams = append(g.OwnerType.GenericParams, g)
		case table == tblMethodDef && r > 0 && int(r) <= len(b.methods):
			g.OwnerMethod = b.methods[r-1]
			g.OwnerMethod.GenericParams = append(g.OwnerMethod.GenericParams, g)
		default:
			return errors.Wrapf(ERR_BAD_IMAGE, "generic param %s owner", name)
		}
	}
	return nil
}

func (b *graphBuilder) buildMethodSpecRows() error {
	for r := uint32(1); r <= b.raw.counts[tblMethodSpec]; r++ {
		if _, err := b.methodSpec(r); err != nil {
			return err
		}
	}
	return nil
}

func (b *graphBuilder) buildResources() error {
	for _, row := range b.raw.rows[tblManifestResource] {
		if row[3] != 0 {
			// Linked resources live in satellite files the nano
			// runtime cannot load.
			continue
		}
		name, err := b.md.string(row[2])
		if err != nil {
			return err
		}
		off, err := b.pe.rvaToOffset(b.pe.resources_rva + row[0])
		if err != nil {
			return errors.Wrapf(err, "resource %s", name)
		}
		size := b.pe.u32(off)
		data := b.pe.data[off+4 : off+4+size]
		b.asm.Resources = append(b.asm.Resources, &metadata.Resource{
			Name:  name,
			Flags: row[1],
			Data:  data,
		})
	}
	return nil
}

func (b *graphBuilder) resolveEntryPoint() {
	tok := b.pe.entry_point_token
	if tok>>24 != tblMethodDef {
		return
	}
	row := tok & 0xFFFFFF
	if row > 0 && int(row) <= len(b.methods) {
		b.asm.EntryPoint = b.methods[row-1]
	}
}

// collectMemberRefs publishes every resolved external member ref.
func (b *graphBuilder) collectMemberRefs() {
	for r := uint32(1); r <= b.raw.counts[tblMemberRef]; r++ {
		resolved, err := b.memberRef(r)
		if err != nil {
			pkg.WarnLog("unresolvable member ref row", r, err)
			continue
		}
		if ref, ok := resolved.(*metadata.MemberRef); ok {
			b.asm.MemberRefs = append(b.asm.MemberRefs, ref)
		}
	}
}

// resolveTypeDefOrRef maps a decoded TypeDefOrRef to a graph type.
func (b *graphBuilder) resolveTypeDefOrRef(table int, row uint32) (metadata.Type, error) {
	switch table {
	case tblTypeDef:
		if row == 0 || int(row) > len(b.typedefs) {
			return nil, errors.Wrapf(ERR_BAD_IMAGE, "type def row %d", row)
		}
		return b.typedefs[row-1], nil
	case tblTypeRef:
		if row == 0 || int(row) > len(b.typerefs) {
			return nil, errors.Wrapf(ERR_BAD_IMAGE, "type ref row %d", row)
		}
		return b.typerefs[row-1], nil
	case tblTypeSpec:
		return b.typeSpec(row)
	}
	return nil, errors.Wrapf(ERR_BAD_IMAGE, "type token table 0x%02X", table)
}

func (b *graphBuilder) typeSpec(row uint32) (*metadata.TypeSpec, error) {
	if spec, ok := b.typespecs[row]; ok {
		return spec, nil
	}
	if row == 0 || row > b.raw.counts[tblTypeSpec] {
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "type spec row %d", row)
	}
	blob, err := b.md.blobAt(b.raw.rows[tblTypeSpec][row-1][0])
	if err != nil {
		return nil, err
	}
	sig, err := b.newSigReader(blob).typeSig()
	if err != nil {
		return nil, err
	}
	spec := &metadata.TypeSpec{
		Sig:   sig,
		Token: uint32(tblTypeSpec)<<24 | row,
	}
	b.typespecs[row] = spec
	b.asm.TypeSpecs = append(b.asm.TypeSpecs, spec)
	return spec, nil
}

func (b *graphBuilder) methodSpec(row uint32) (*metadata.MethodSpec, error) {
	if spec, ok := b.methodspecs[row]; ok {
		return spec, nil
	}
	if row == 0 || row > b.raw.counts[tblMethodSpec] {
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "method spec row %d", row)
	}
	raw := b.raw.rows[tblMethodSpec][row-1]
	table, method_row := decodeCoded(codedMethodDefOrRef, raw[0])
	var method any
	switch table {
	case tblMethodDef:
		if method_row == 0 || int(method_row) > len(b.methods) {
			return nil, errors.Wrap(ERR_BAD_IMAGE, "method spec method row")
		}
		method = b.methods[method_row-1]
	case tblMemberRef:
		m, err := b.memberRef(method_row)
		if err != nil {
			return nil, err
		}
		method = m
	default:
		return nil, errors.Wrap(ERR_BAD_IMAGE, "method spec method table")
	}
	blob, err := b.md.blobAt(raw[1])
	if err != nil {
		return nil, err
	}
	inst, err := b.newSigReader(blob).methodSpecSig()
	if err != nil {
		return nil, err
	}
	spec := &metadata.MethodSpec{
		Method:        method,
		Instantiation: inst,
		Token:         uint32(tblMethodSpec)<<24 | row,
	}
	b.methodspecs[row] = spec
	b.asm.MethodSpecs = append(b.asm.MethodSpecs, spec)
	return spec, nil
}

// memberRef resolves a MemberRef row: refs into other assemblies stay
// refs, refs into this module collapse to the definition.
func (b *graphBuilder) memberRef(row uint32) (any, error) {
	if row == 0 || row > b.raw.counts[tblMemberRef] {
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "member ref row %d", row)
	}
	if b.memberrefs[row-1] != nil {
		return b.memberrefs[row-1], nil
	}
	raw := b.raw.rows[tblMemberRef][row-1]
	name, err := b.md.string(raw[1])
	if err != nil {
		return nil, err
	}
	blob, err := b.md.blobAt(raw[2])
	if err != nil {
		return nil, err
	}

	var field_sig *metadata.TypeSig
	var method_sig *metadata.MethodSig
	if len(blob) > 0 && blob[0] == 0x06 {
		field_sig, err = b.newSigReader(blob).fieldSig()
	} else {
		method_sig, err = b.newSigReader(blob).methodSig()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "member ref %s", name)
	}

	table, parent_row := decodeCoded(codedMemberRefParent, raw[0])
	var declaring metadata.Type
	switch table {
	case tblTypeRef, tblTypeSpec:
		declaring, err = b.resolveTypeDefOrRef(table, parent_row)
		if err != nil {
			return nil, err
		}
		// A module-scoped type ref stays a ref; only a TypeDef
		// parent collapses to a def below.
	case tblTypeDef:
		declaring, err = b.resolveTypeDefOrRef(table, parent_row)
		if err != nil {
			return nil, err
		}
	case tblMethodDef:
		if parent_row == 0 || int(parent_row) > len(b.methods) {
			return nil, errors.Wrap(ERR_BAD_IMAGE, "member ref method parent")
		}
		b.memberrefs[row-1] = b.methods[parent_row-1]
		return b.methods[parent_row-1], nil
	default:
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "member ref parent table 0x%02X", table)
	}

	if td, ok := declaring.(*metadata.TypeDef); ok {
		def, err := b.findDefMember(td, name, field_sig, method_sig)
		if err != nil {
			return nil, err
		}
		b.memberrefs[row-1] = def
		return def, nil
	}

	ref := &metadata.MemberRef{
		Name:          name,
		DeclaringType: declaring,
		FieldSig:      field_sig,
		MethodSig:     method_sig,
		Token:         uint32(tblMemberRef)<<24 | row,
	}
	b.memberrefs[row-1] = ref
	return ref, nil
}

// findDefMember matches a module-internal member ref to its def by
// name and signature shape.
func (b *graphBuilder) findDefMember(td *metadata.TypeDef, name string, field_sig *metadata.TypeSig, method_sig *metadata.MethodSig) (any, error) {
	if field_sig != nil {
		for _, f := range td.Fields {
			if f.Name == name && f.Sig.String() == field_sig.String() {
				return f, nil
			}
		}
		return nil, errors.Wrapf(ERR_BAD_IMAGE, "no field %s::%s", td.TypeFullName(), name)
	}
	for _, m := range td.Methods {
		if m.Name == name && m.Sig.String() == method_sig.String() {
			return m, nil
		}
	}
	return nil, errors.Wrapf(ERR_BAD_IMAGE, "no method %s::%s", td.TypeFullName(), name)
}

// resolveToken maps a 32-bit metadata token to a graph handle.
func (b *graphBuilder) resolveToken(tok uint32) (any, error) {
	table := int(tok >> 24)
	row := tok & 0xFFFFFF
	switch table {
	case tblTypeDef, tblTypeRef, tblTypeSpec:
		return b.resolveTypeDefOrRef(table, row)
	case tblField:
		if row == 0 || int(row) > len(b.fields) {
			return nil, errors.Wrapf(ERR_BAD_IMAGE, "field row %d", row)
		}
		return b.fields[row-1], nil
	case tblMethodDef:
		if row == 0 || int(row) > len(b.methods) {
			return nil, errors.Wrapf(ERR_BAD_IMAGE, "method row %d", row)
		}
		return b.methods[row-1], nil
	case tblMemberRef:
		return b.memberRef(row)
	case tblMethodSpec:
		return b.methodSpec(row)
	case tblStandAloneSig:
		blob, err := b.md.blobAt(b.raw.rows[tblStandAloneSig][row-1][0])
		if err != nil {
			return nil, err
		}
		return b.newSigReader(blob).methodSig()
	}
	return nil, errors.Wrapf(ERR_BAD_IMAGE, "token 0x%08X", tok)
}
