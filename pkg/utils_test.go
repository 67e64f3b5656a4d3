package pkg_test

import (
	"testing"

	. "github.com/nanomdp/nanomdp/pkg"
)

func TestFilter(t *testing.T) {
	res := Filter([]int{1, 2, 3, 4, 5, 6}, func(i int) bool {
		return i%2 == 0
	})

	if len(res) != 3 {
		t.Errorf("Expected 3, got %d", len(res))
	}

	if res[0] != 2 || res[1] != 4 || res[2] != 6 {
		t.Errorf("Expected 2, 4, 6, got %d, %d, %d", res[0], res[1], res[2])
	}
}

func TestAlignUp(t *testing.T) {
	if AlignUp(0, 4) != 0 {
		t.Errorf("Expected 0, got %d", AlignUp(0, 4))
	}

	if AlignUp(1, 4) != 4 {
		t.Errorf("Expected 4, got %d", AlignUp(1, 4))
	}

	if AlignUp(8, 4) != 8 {
		t.Errorf("Expected 8, got %d", AlignUp(8, 4))
	}
}

func TestPadTo(t *testing.T) {
	buf := PadTo([]byte{1, 2, 3}, 4)

	if len(buf) != 4 {
		t.Errorf("Expected 4, got %d", len(buf))
	}

	if buf[3] != 0 {
		t.Errorf("Expected 0, got %d", buf[3])
	}
}
