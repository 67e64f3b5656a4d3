// Package stubs generates C header skeletons for methods that carry
// no IL body: the entry points firmware must provide.
package stubs

import (
	"fmt"
	"os"
	"path"
	"strings"
	"text/template"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/pkg"
)

const header_template = `// Native stubs for {{.TypeName}}.
// Provide these entry points in the firmware build.

#ifndef {{.Guard}}
#define {{.Guard}}

{{range .Methods}}void {{.}}(void* stack);
{{end}}
#endif // {{.Guard}}
`

type headerModel struct {
	TypeName string
	Guard    string
	Methods  []string
}

func flatten(name string) string {
	r := strings.NewReplacer(".", "_", "+", "_", "<", "_", ">", "_", "`", "_")
	return r.Replace(name)
}

// Generate writes one header per type that has native methods and
// returns the number of headers written.
func Generate(asm *metadata.Assembly, out_dir string) (int, error) {
	if err := os.MkdirAll(out_dir, 0755); err != nil {
		return 0, err
	}
	t := template.Must(template.New("stubs").Parse(header_template))

	written := 0
	for _, td := range asm.Types {
		if td.IsModuleType() || td.IsInterface() {
			continue
		}
		native := pkg.Filter(td.Methods, func(m *metadata.MethodDef) bool {
			return m.HasNativeImpl()
		})
		if len(native) == 0 {
			continue
		}

		base := flatten(asm.Name) + "_" + flatten(td.TypeFullName())
		model := headerModel{
			TypeName: td.TypeFullName(),
			Guard:    strings.ToUpper(base) + "_H",
		}
		for _, m := range native {
			model.Methods = append(model.Methods, base+"_"+flatten(m.Name))
		}

		file_path := path.Join(out_dir, base+".h")
		f, err := os.Create(file_path)
		if err != nil {
			return written, err
		}
		if err := t.Execute(f, model); err != nil {
			f.Close()
			return written, fmt.Errorf("writing %s: %w", file_path, err)
		}
		if err := f.Close(); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
