//go:build linux

package affinity_test

import (
	"errors"
	"testing"

	"github.com/momentics/hioload-exec/affinity"
	"github.com/momentics/hioload-exec/api"
)

func TestPinAndRestore(t *testing.T) {
	before, err := affinity.Current()
	if err != nil {
		t.Fatal(err)
	}
	restore, err := affinity.Pin(before[0])
	if err != nil {
		t.Fatal(err)
	}
	pinned, err := affinity.Current()
	if err != nil {
		t.Fatal(err)
	}
	if len(pinned) != 1 || pinned[0] != before[0] {
		t.Fatalf("pinned mask = %v", pinned)
	}
	if err := restore(); err != nil {
		t.Fatal(err)
	}
}

func TestPinRejectsOutOfRange(t *testing.T) {
	if _, err := affinity.Pin(-1); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}
