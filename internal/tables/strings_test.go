package tables_test

import (
	"testing"

	"github.com/nanomdp/nanomdp/internal/tables"
	"gotest.tools/assert"
)

func TestStringTable(t *testing.T) {
	t.Run("empty string is id zero", func(t *testing.T) {
		st := tables.NewStringTable(nil)
		id, err := st.GetOrCreate("", false)
		assert.NilError(t, err)
		assert.Equal(t, id, uint16(0))
	})

	t.Run("ids are byte offsets", func(t *testing.T) {
		st := tables.NewStringTable(nil)

		a, err := st.GetOrCreate("A", false)
		assert.NilError(t, err)
		ab, err := st.GetOrCreate("AB", false)
		assert.NilError(t, err)

		assert.Equal(t, a, uint16(1))
		assert.Equal(t, ab, uint16(3))

		w := tables.NewRecordWriter()
		assert.NilError(t, st.Write(w))
		assert.DeepEqual(t, w.Bytes(), []byte{0x00, 'A', 0x00, 'A', 'B', 0x00})
	})

	t.Run("identical strings share one id", func(t *testing.T) {
		st := tables.NewStringTable(nil)
		a, _ := st.GetOrCreate("same", false)
		b, _ := st.GetOrCreate("same", false)
		assert.Equal(t, a, b)
		assert.Equal(t, st.Len(), 2) // "" plus "same"
	})

	t.Run("distinct ids hold distinct strings", func(t *testing.T) {
		st := tables.NewStringTable(nil)
		for _, s := range []string{"x", "y", "zz", "x", "y"} {
			_, err := st.GetOrCreate(s, false)
			assert.NilError(t, err)
		}
		seen := map[uint16]string{}
		st.Each(func(s string, id uint16) {
			prev, dup := seen[id]
			assert.Assert(t, !dup, "id %d held %q and %q", id, prev, s)
			seen[id] = s
		})
		assert.Equal(t, len(seen), 4)
	})

	t.Run("round trip through the heap", func(t *testing.T) {
		st := tables.NewStringTable(nil)
		words := []string{"alpha", "beta", "gamma"}
		ids := map[string]uint16{}
		for _, s := range words {
			id, err := st.GetOrCreate(s, false)
			assert.NilError(t, err)
			ids[s] = id
		}
		w := tables.NewRecordWriter()
		assert.NilError(t, st.Write(w))
		heap := w.Bytes()
		for _, s := range words {
			id := ids[s]
			got := heap[id : int(id)+len(s)]
			assert.Equal(t, string(got), s)
			assert.Equal(t, heap[int(id)+len(s)], byte(0))
		}
	})

	t.Run("constants table wins when asked", func(t *testing.T) {
		st := tables.NewStringTable(nil)
		id, err := st.GetOrCreate(".ctor", true)
		assert.NilError(t, err)
		assert.Assert(t, id >= tables.StringConstantsBase)

		s, ok := st.TryGetString(id)
		assert.Assert(t, ok)
		assert.Equal(t, s, ".ctor")

		// Without the flag the string goes to the heap.
		heap_id, err := st.GetOrCreate(".ctor", false)
		assert.NilError(t, err)
		assert.Assert(t, heap_id < tables.StringConstantsBase)
	})

	t.Run("remove unused repacks the heap", func(t *testing.T) {
		st := tables.NewStringTable(nil)
		st.GetOrCreate("keep1", false)
		st.GetOrCreate("drop", false)
		st.GetOrCreate("keep2", false)

		st.RemoveUnused(map[string]bool{"keep1": true, "keep2": true})

		id1, ok := st.TryGetId("keep1")
		assert.Assert(t, ok)
		assert.Equal(t, id1, uint16(1))
		id2, ok := st.TryGetId("keep2")
		assert.Assert(t, ok)
		assert.Equal(t, id2, uint16(7)) // right after "keep1\0"
		_, ok = st.TryGetId("drop")
		assert.Assert(t, !ok)

		w := tables.NewRecordWriter()
		assert.NilError(t, st.Write(w))
		assert.Equal(t, len(w.Bytes()), st.HeapSize())
	})
}
