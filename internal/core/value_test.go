package core

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValue_Text(t *testing.T) {
	obj := NewRecord()
	obj.Set("b", Int(1))
	obj.Set("a", String("x"))

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null(), ""},
		{"true", Bool(true), "true"},
		{"false", Bool(false), "false"},
		{"int", Int(-42), "-42"},
		{"float", Float(9.99), "9.99"},
		{"integral float keeps fraction", Float(3), "3.0"},
		{"zero float", Float(0), "0.0"},
		{"small float", Float(0.00001), "1e-05"},
		{"large float", Float(1e20), "1e+20"},
		{"infinity", Float(math.Inf(1)), "inf"},
		{"string", String("Widget"), "Widget"},
		{"object in key order", Object(obj), `{"b":1,"a":"x"}`},
		{"array", Array(Int(1), Null(), String("z")), `[1,null,"z"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Value
	}{
		{"integer", `12`, Int(12)},
		{"negative integer", `-7`, Int(-7)},
		{"fraction", `1.5`, Float(1.5)},
		{"exponent", `1e3`, Float(1000)},
		{"integer beyond int64", `92233720368547758070`, Float(92233720368547758070)},
		{"string", `"abc"`, String("abc")},
		{"bool", `false`, Bool(false)},
		{"null", `null`, Null()},
		{"array", `[1,"a",true]`, Array(Int(1), String("a"), Bool(true))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Value
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("Unmarshal(%s) error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Unmarshal(%s) = %v (%s), want %v (%s)", tt.in, got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestRecord_PreservesKeyOrder(t *testing.T) {
	in := `{"zeta":1,"alpha":{"y":2,"x":[3]},"mid":null}`

	var rec Record
	if err := json.Unmarshal([]byte(in), &rec); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	keys := rec.Keys()
	wantKeys := []string{"zeta", "alpha", "mid"}
	if len(keys) != len(wantKeys) {
		t.Fatalf("Keys() = %v, want %v", keys, wantKeys)
	}
	for i := range keys {
		if keys[i] != wantKeys[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], wantKeys[i])
		}
	}

	out, err := json.Marshal(&rec)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(out) != in {
		t.Errorf("Marshal() = %s, want %s", out, in)
	}
}

func TestRecord_SetKeepsPosition(t *testing.T) {
	rec := NewRecord()
	rec.Set("a", Int(1))
	rec.Set("b", Int(2))
	rec.Set("a", Int(3))

	if got := rec.String(); got != `{"a":3,"b":2}` {
		t.Errorf("String() = %s, want {\"a\":3,\"b\":2}", got)
	}
	if rec.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rec.Len())
	}
}

func TestValue_MarshalNonFinite(t *testing.T) {
	b, err := json.Marshal(Array(Float(math.NaN()), Float(2)))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(b) != "[null,2.0]" {
		t.Errorf("Marshal() = %s, want [null,2.0]", b)
	}
}

func TestValue_Equal(t *testing.T) {
	if Int(1).Equal(Float(1)) {
		t.Error("Int(1).Equal(Float(1)) = true, want false")
	}
	if !Float(math.NaN()).Equal(Float(math.NaN())) {
		t.Error("NaN.Equal(NaN) = false, want true")
	}
	if !Null().Equal(Value{}) {
		t.Error("Null().Equal(zero Value) = false, want true")
	}
}
