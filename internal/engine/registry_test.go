package engine

import (
	"reflect"
	"testing"
)

type stubCore struct {
	Core
	version Version
	options map[string]string
}

func TestRegistry_Factory(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", func(options map[string]string, v Version) (Core, error) {
		return &stubCore{version: v, options: options}, nil
	})

	f, err := r.Factory("stub", map[string]string{"endpoint": "localhost:1"})
	if err != nil {
		t.Fatal(err)
	}
	c, err := f(V2_1_1)
	if err != nil {
		t.Fatal(err)
	}
	s := c.(*stubCore)
	if s.version != V2_1_1 || s.options["endpoint"] != "localhost:1" {
		t.Errorf("got %+v", s)
	}

	if _, err := r.Factory("missing", nil); err == nil {
		t.Error("expected error for unknown backend")
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"stub"}) {
		t.Errorf("List() = %v", got)
	}
}

func TestVersion_Valid(t *testing.T) {
	for _, v := range Versions {
		if !v.Valid() {
			t.Errorf("%q should be valid", v)
		}
	}
	for _, v := range []Version{"", "2.3", "2.1.0"} {
		if v.Valid() {
			t.Errorf("%q should be invalid", v)
		}
	}
}
