package tables

import "github.com/nanomdp/nanomdp/pkg"

// itemTable is the shape every ref/def table shares: an
// insertion-ordered item list whose position is the item's 16-bit id.
// Reference tables key items by fully-qualified name, definition
// tables by identity; either way the key is K.
type itemTable[K comparable, V any] struct {
	items *pkg.InsertSortMap[K, V]
	ids   pkg.Map[K, uint16]
}

func newItemTable[K comparable, V any]() itemTable[K, V] {
	return itemTable[K, V]{
		items: pkg.NewInsertSortMap[K, V](),
		ids:   pkg.Map[K, uint16]{},
	}
}

// add assigns the next id on first sight and is a lookup afterwards.
func (t *itemTable[K, V]) add(key K, value V) uint16 {
	if t.ids.Has(key) {
		return t.ids.Get(key)
	}
	id := uint16(t.items.Len())
	t.items.Push(key, value)
	t.ids.Set(key, id)
	return id
}

func (t *itemTable[K, V]) tryGetId(key K) (uint16, bool) {
	if !t.ids.Has(key) {
		return 0, false
	}
	return t.ids.Get(key), true
}

func (t *itemTable[K, V]) Len() int { return t.items.Len() }

func (t *itemTable[K, V]) At(i int) V { return t.items.At(i) }
