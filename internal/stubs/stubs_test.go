package stubs_test

import (
	"os"
	"path"
	"strings"
	"testing"

	"github.com/nanomdp/nanomdp/internal/metadata"
	"github.com/nanomdp/nanomdp/internal/stubs"
	"gotest.tools/assert"
)

func TestGenerate(t *testing.T) {
	native_type := &metadata.TypeDef{
		Name:      "Gpio",
		Namespace: "Device",
		Token:     0x02000002,
	}
	native_type.Methods = []*metadata.MethodDef{
		{
			Name:          "Read",
			DeclaringType: native_type,
			Sig:           &metadata.MethodSig{Ret: &metadata.TypeSig{Elem: metadata.ElemI4}},
		},
		{
			Name:          "Managed",
			DeclaringType: native_type,
			Sig:           &metadata.MethodSig{Ret: &metadata.TypeSig{Elem: metadata.ElemVoid}},
			Body:          &metadata.MethodBody{},
		},
	}
	asm := &metadata.Assembly{
		Name:  "devlib",
		Types: []*metadata.TypeDef{native_type},
	}

	dir := t.TempDir()
	n, err := stubs.Generate(asm, dir)
	assert.NilError(t, err)
	assert.Equal(t, n, 1)

	content, err := os.ReadFile(path.Join(dir, "devlib_Device_Gpio.h"))
	assert.NilError(t, err)
	text := string(content)
	assert.Assert(t, strings.Contains(text, "DEVLIB_DEVICE_GPIO_H"))
	assert.Assert(t, strings.Contains(text, "devlib_Device_Gpio_Read"))
	assert.Assert(t, !strings.Contains(text, "Managed"))
}
