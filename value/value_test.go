package value

import "testing"

func TestRoundTripPrimitives(t *testing.T) {
	cases := []Value{
		Null(),
		Bool(true),
		Bool(false),
		Int(42),
		Int(-7),
		Float(3.5),
		String("hello world"),
	}

	for _, v := range cases {
		data, err := v.Bytes()
		if err != nil {
			t.Fatalf("Bytes() failed for %v: %v", v, err)
		}
		got, err := FromBytes(data)
		if err != nil {
			t.Fatalf("FromBytes(%q) failed: %v", data, err)
		}
		if !v.Equal(got) {
			t.Errorf("round trip mismatch: want %v got %v (json %q)", v, got, data)
		}
	}
}

func TestRoundTripArrayAndMap(t *testing.T) {
	arr := Array([]Value{Int(1), String("two"), Bool(true), Null()})
	m := Map(map[string]Value{
		"provider": String("microsoft"),
		"count":    Int(3),
		"nested":   arr,
	})

	data, err := m.Bytes()
	if err != nil {
		t.Fatalf("Bytes() failed: %v", err)
	}
	got, err := FromBytes(data)
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}
	if !m.Equal(got) {
		t.Errorf("round trip mismatch: want %v got %v", m, got)
	}
}

func TestFromBytesEmptyIsNull(t *testing.T) {
	v, err := FromBytes(nil)
	if err != nil {
		t.Fatalf("FromBytes(nil) failed: %v", err)
	}
	if !v.IsNull() {
		t.Errorf("expected Null for empty bytes, got %v", v)
	}
}

func TestAccessorsReportWrongKind(t *testing.T) {
	v := String("x")
	if _, ok := v.AsInt(); ok {
		t.Errorf("AsInt() should report false for a String value")
	}
	if s, ok := v.AsString(); !ok || s != "x" {
		t.Errorf("AsString() = %q, %v; want \"x\", true", s, ok)
	}
}

func TestDisplayForm(t *testing.T) {
	v := Map(map[string]Value{"a": Int(1)})
	if got := v.String(); got != `{"a":1}` {
		t.Errorf("String() = %q, want %q", got, `{"a":1}`)
	}
}
