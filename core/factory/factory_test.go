package factory

import (
	"testing"
	"time"
)

type sample struct{ A int }

type sampleConf struct {
	A int `json:"a"`
}

// Test registry registration and instantiation using Decode.
func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry[*sample]()
	if err := reg.Register("s", func(conf map[string]any) (*sample, error) {
		var c sampleConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &sample{A: c.A}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	inst, err := reg.Create(ModuleConfig{Type: "s", Conf: map[string]any{"a": 3}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.A != 3 {
		t.Fatalf("expected 3 got %d", inst.A)
	}
}

// Test duplicate registration and unknown type errors.
func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry[int]()
	if err := reg.Register("x", func(map[string]any) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("x", nil); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := reg.Create(ModuleConfig{Type: "y"}); err == nil {
		t.Fatal("expected unknown type error")
	}
}

type timedConf struct {
	Timeout time.Duration `json:"timeout"`
	Port    int           `json:"port"`
}

// Test weakly typed input and duration strings as produced by env overrides.
func TestDecode_WeakTypes(t *testing.T) {
	var c timedConf
	if err := Decode(map[string]any{"timeout": "250ms", "port": "9090"}, &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Timeout != 250*time.Millisecond || c.Port != 9090 {
		t.Fatalf("unexpected %+v", c)
	}
}
