package options_test

import (
	"os"
	"path"
	"testing"

	"github.com/nanomdp/nanomdp/internal/options"
	"gotest.tools/assert"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	file_path := path.Join(t.TempDir(), "list.txt")
	assert.NilError(t, os.WriteFile(file_path, []byte(content), 0644))
	return file_path
}

func TestReadTypeOrder(t *testing.T) {
	file_path := writeTemp(t, `
// fixed emission order
My.Namespace.First
My.Namespace.Second

My.Namespace.Third
`)
	order, err := options.ReadTypeOrder(file_path)
	assert.NilError(t, err)
	assert.DeepEqual(t, order, []string{
		"My.Namespace.First",
		"My.Namespace.Second",
		"My.Namespace.Third",
	})
}

func TestReadExcludeSet(t *testing.T) {
	t.Run("duplicates are absorbed", func(t *testing.T) {
		file_path := writeTemp(t, "A.B\nA.B\nC.D\n")
		set, err := options.ReadExcludeSet(file_path)
		assert.NilError(t, err)
		assert.Equal(t, len(set), 2)
		assert.Assert(t, set["A.B"])
		assert.Assert(t, set["C.D"])
	})

	t.Run("spaces are rejected", func(t *testing.T) {
		file_path := writeTemp(t, "A B\n")
		_, err := options.ReadExcludeSet(file_path)
		assert.ErrorContains(t, err, "cannot include space")
	})
}
