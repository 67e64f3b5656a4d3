// Package dump renders the lowered tables as a human-readable report.
// Every token prints as [<new-id>] /*<original-token>*/ so images can
// be diffed against their source assemblies.
package dump

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/internal/tables"
)

const dump_template = `Assembly: {{.AssemblyName}} ({{.Version}})
{{range .AssemblyRefs}}
AssemblyRef {{.Token}}
    Name: {{.Name}}
    Version: {{.Version}}
{{end}}{{range .TypeRefs}}
TypeRef {{.Token}}
    Name: {{.Name}}
{{- range .Members}}
    {{.Kind}} {{.Token}}
        Name: {{.Name}} [{{.Sig}}]
{{- end}}
{{end}}{{range .TypeDefs}}
TypeDef {{.Token}}
    Name: {{.Name}}
    Flags: {{.Flags}}
    Extends: {{.Extends}}
    Enclosed: {{.Enclosing}}
{{- range .GenericParams}}
    GenericParam: {{.}}
{{- end}}
{{- range .Interfaces}}
    ImplementInterface: {{.}}
{{- end}}
{{- range .Fields}}
    Field {{.Token}}
        Name: {{.Name}} [{{.Sig}}]
{{- end}}
{{- range .Methods}}
    Method {{.Token}}
        Name: {{.Name}} [{{.Sig}}] RVA: {{.RVA}}
{{- range .Locals}}
        Local: {{.}}
{{- end}}
{{- range .Handlers}}
        EH: {{.}}
{{- end}}
{{- range .IL}}
        {{.}}
{{- end}}
{{- end}}
{{end}}{{if .TypeSpecs}}
TypeSpecs:
{{- range .TypeSpecs}}
    TypeSpec {{.Token}}: {{.Name}}
{{- end}}
{{end}}{{if .Attributes}}
Attributes:
{{- range .Attributes}}
    Attribute {{.Owner}} -> {{.Name}} ctor {{.Ctor}}
{{- end}}
{{end}}
Strings:
{{- range .Strings}}
    {{.Id}}: {{.Value}}
{{- end}}
{{if .UserStrings}}
UserStrings:
{{- range .UserStrings}}
    {{.Token}} : ({{.Length}}) "{{.Value}}"
{{- end}}
{{end}}`

type memberLine struct {
	Kind  string
	Token string
	Name  string
	Sig   string
}

type typeRefLine struct {
	Token   string
	Name    string
	Members []memberLine
}

type fieldLine struct {
	Token string
	Name  string
	Sig   string
}

type methodLine struct {
	Token    string
	Name     string
	Sig      string
	RVA      string
	Locals   []string
	Handlers []string
	IL       []string
}

type typeDefLine struct {
	Token         string
	Name          string
	Flags         string
	Extends       string
	Enclosing     string
	GenericParams []string
	Interfaces    []string
	Fields        []fieldLine
	Methods       []methodLine
}

type namedLine struct {
	Token string
	Name  string
}

type attrLine struct {
	Owner string
	Name  string
	Ctor  string
}

type stringLine struct {
	Id    string
	Value string
}

type userStringLine struct {
	Token  string
	Length string
	Value  string
}

type dumpModel struct {
	AssemblyName string
	Version      string
	AssemblyRefs []namedLineWithVersion
	TypeRefs     []typeRefLine
	TypeDefs     []typeDefLine
	TypeSpecs    []namedLine
	Attributes   []attrLine
	Strings      []stringLine
	UserStrings  []userStringLine
}

type namedLineWithVersion struct {
	Token   string
	Name    string
	Version string
}

type Dumper struct {
	ctx *tables.Context
}

func New(ctx *tables.Context) *Dumper { return &Dumper{ctx: ctx} }

func token(new_id uint16, original uint32) string {
	return fmt.Sprintf("[%04x] /*%08x*/", new_id, original)
}

func (d *Dumper) Write(w io.Writer) error {
	model, err := d.build()
	if err != nil {
		return err
	}
	t := template.Must(template.New("dump").Parse(dump_template))
	return t.Execute(w, model)
}

// WriteFile renders the dump to a file.
func WriteFile(ctx *tables.Context, out_path string) error {
	f, err := os.Create(out_path)
	if err != nil {
		return err
	}
	defer f.Close()
	return New(ctx).Write(f)
}

func (d *Dumper) build() (*dumpModel, error) {
	c := d.ctx
	m := &dumpModel{
		AssemblyName: c.Assembly.Name,
		Version:      c.Assembly.Version.String(),
	}

	for i := 0; i < c.AssemblyRefs.Len(); i++ {
		r := c.AssemblyRefs.At(i)
		m.AssemblyRefs = append(m.AssemblyRefs, namedLineWithVersion{
			Token:   token(uint16(i), r.Token),
			Name:    r.Name,
			Version: r.Version.String(),
		})
	}

	members := map[*metadata.TypeRef][]memberLine{}
	for i := 0; i < c.FieldRefs.Len(); i++ {
		f := c.FieldRefs.At(i)
		if owner, ok := f.DeclaringType.(*metadata.TypeRef); ok {
			members[owner] = append(members[owner], memberLine{
				Kind:  "FieldRef",
				Token: token(uint16(i)|tables.ExternalBit, f.Token),
				Name:  f.Name,
				Sig:   f.FieldSig.String(),
			})
		}
	}
	for i := 0; i < c.MethodRefs.Len(); i++ {
		r := c.MethodRefs.At(i)
		if owner, ok := r.DeclaringType.(*metadata.TypeRef); ok {
			members[owner] = append(members[owner], memberLine{
				Kind:  "MethodRef",
				Token: token(uint16(i)|tables.ExternalBit, r.Token),
				Name:  r.Name,
				Sig:   r.MethodSig.String(),
			})
		}
	}
	for i := 0; i < c.TypeRefs.Len(); i++ {
		r := c.TypeRefs.At(i)
		m.TypeRefs = append(m.TypeRefs, typeRefLine{
			Token:   token(uint16(i), r.Token),
			Name:    r.TypeFullName(),
			Members: members[r],
		})
	}

	for i := 0; i < c.TypeDefs.Len(); i++ {
		td := c.TypeDefs.At(i)
		line := typeDefLine{
			Token:     token(uint16(i), td.Token),
			Name:      td.TypeFullName(),
			Flags:     fmt.Sprintf("%08x", td.Flags),
			Extends:   d.typeName(td.Extends),
			Enclosing: d.typeName(typeOrNil(td.DeclaringType)),
		}
		for _, g := range td.GenericParams {
			line.GenericParams = append(line.GenericParams, g.Name)
		}
		for _, iface := range td.Interfaces {
			line.Interfaces = append(line.Interfaces, iface.TypeFullName())
		}
		for _, f := range tables.OrderedFields(td) {
			id, _ := c.FieldDefs.TryGetId(f)
			line.Fields = append(line.Fields, fieldLine{
				Token: token(id, f.Token),
				Name:  f.Name,
				Sig:   f.Sig.String(),
			})
		}
		for _, mm := range tables.OrderedMethods(td) {
			line.Methods = append(line.Methods, d.methodLine(mm))
		}
		m.TypeDefs = append(m.TypeDefs, line)
	}

	for idx, spec := range c.Assembly.TypeSpecs {
		m.TypeSpecs = append(m.TypeSpecs, namedLine{
			Token: token(uint16(idx), spec.Token),
			Name:  spec.Sig.String(),
		})
	}

	c.Attributes.Each(func(owner_tag tables.TableTag, owner_id uint16, a *metadata.Attribute) {
		ctor := ""
		if id, err := c.GetMethodReferenceId(a.Ctor); err == nil {
			ctor = fmt.Sprintf("[%04x]", id)
		}
		m.Attributes = append(m.Attributes, attrLine{
			Owner: fmt.Sprintf("%s[%04x]", owner_tag, owner_id),
			Name:  a.TypeFullName(),
			Ctor:  ctor,
		})
	})

	c.Strings.Each(func(s string, id uint16) {
		m.Strings = append(m.Strings, stringLine{
			Id:    fmt.Sprintf("%04x", id),
			Value: s,
		})
	})

	c.ByteCode.EachUserString(func(s string, id uint16) {
		m.UserStrings = append(m.UserStrings, userStringLine{
			Token:  fmt.Sprintf("%04x", id),
			Length: fmt.Sprintf("%02x", len(s)),
			Value:  s,
		})
	})

	return m, nil
}

func typeOrNil(td *metadata.TypeDef) metadata.Type {
	if td == nil {
		return nil
	}
	return td
}

func (d *Dumper) typeName(t metadata.Type) string {
	if t == nil {
		return "(none)"
	}
	if tok, err := d.ctx.EncodeTypeToken(t); err == nil {
		return fmt.Sprintf("[%04x] %s", tok, t.TypeFullName())
	}
	return t.TypeFullName()
}

func (d *Dumper) methodLine(m *metadata.MethodDef) methodLine {
	c := d.ctx
	id, _ := c.MethodDefs.TryGetId(m)
	line := methodLine{
		Token: token(id, m.Token),
		Name:  m.Name,
		Sig:   m.Sig.String(),
		RVA:   "(none)",
	}
	if rva, ok := c.ByteCode.TryGetRVA(m); ok {
		line.RVA = fmt.Sprintf("%04x", rva)
	}
	for _, l := range m.Locals {
		line.Locals = append(line.Locals, l.String())
	}
	if m.Body == nil {
		return line
	}
	for _, h := range m.Body.Handlers {
		kind := "catch"
		switch h.Kind {
		case metadata.HandlerFilter:
			kind = "filter"
		case metadata.HandlerFinally:
			kind = "finally"
		case metadata.HandlerFault:
			kind = "fault"
		}
		catch := ""
		if h.CatchType != nil {
			catch = " " + h.CatchType.TypeFullName()
		}
		line.Handlers = append(line.Handlers, fmt.Sprintf(
			"%s try IL_%04x..IL_%04x handler IL_%04x..IL_%04x%s",
			kind, h.TryStart, h.TryEnd, h.HandlerStart, h.HandlerEnd, catch))
	}
	for _, ins := range m.Body.Instructions {
		line.IL = append(line.IL, d.instructionLine(ins))
	}
	return line
}

func (d *Dumper) instructionLine(ins *metadata.Instruction) string {
	c := d.ctx
	text := fmt.Sprintf("IL_%04x: %-12s", ins.Offset, ins.Op.Name)
	switch ins.Op.Operand {
	case metadata.OperandNone:
	case metadata.OperandBranch8, metadata.OperandBranch32:
		text += fmt.Sprintf(" IL_%04x", ins.Operand.(int))
	case metadata.OperandSwitch:
		targets := []string{}
		for _, t := range ins.Operand.([]int) {
			targets = append(targets, fmt.Sprintf("IL_%04x", t))
		}
		text += " (" + strings.Join(targets, ", ") + ")"
	case metadata.OperandString:
		s := ins.Operand.(string)
		if id, ok := c.Strings.TryGetId(s); ok {
			text += fmt.Sprintf(" [%04x] %q", id, s)
		} else {
			text += fmt.Sprintf(" %q", s)
		}
	case metadata.OperandMethod:
		text += " " + d.handleName(ins.Operand)
	case metadata.OperandField:
		text += " " + d.fieldName(ins.Operand)
	case metadata.OperandType:
		text += " " + d.typeName(ins.Operand.(metadata.Type))
	case metadata.OperandToken:
		if tok, err := c.NanoMetadataToken(ins.Operand); err == nil {
			text += fmt.Sprintf(" [%08x]", tok)
		}
	default:
		text += fmt.Sprintf(" %v", ins.Operand)
	}
	return text
}

func (d *Dumper) handleName(m any) string {
	c := d.ctx
	name := ""
	orig := uint32(0)
	switch v := m.(type) {
	case *metadata.MethodDef:
		name, orig = v.FullName(), v.Token
	case *metadata.MemberRef:
		name, orig = v.FullName(), v.Token
	}
	if id, err := c.GetMethodReferenceId(m); err == nil {
		return token(id, orig) + " " + name
	}
	return name
}

func (d *Dumper) fieldName(f any) string {
	c := d.ctx
	name := ""
	orig := uint32(0)
	switch v := f.(type) {
	case *metadata.FieldDef:
		name, orig = v.FullName(), v.Token
	case *metadata.MemberRef:
		name, orig = v.FullName(), v.Token
	}
	if id, err := c.GetFieldReferenceId(f); err == nil {
		return token(id, orig) + " " + name
	}
	return name
}
