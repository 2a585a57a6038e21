package ast

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

// sampleExpressions returns one node per operator so that adding a variant
// without codec support fails this test.
func sampleExpressions() []Expression {
	return []Expression{
		Equal{Field: "region", Value: String("US")},
		NotEqual{Field: "region", Value: String("EU")},
		GreaterThan{Field: "key_size", Value: Integer(1024)},
		GreaterThanOrEqual{Field: "key_size", Value: Integer(2048)},
		LessThan{Field: "ratio", Value: Float(0.75)},
		LessThanOrEqual{Field: "validity_days", Value: Integer(365)},
		And{Children: []Expression{Exists{Field: "a"}, Exists{Field: "b"}}},
		Or{Children: []Expression{Exists{Field: "a"}}},
		Not{Child: Exists{Field: "a"}},
		In{Field: "algorithm", Values: []Value{String("RSA"), String("ECDSA")}},
		NotIn{Field: "algorithm", Values: []Value{String("DSA")}},
		Contains{Field: "tags", Value: String("pci")},
		Matches{Field: "cn", Pattern: `^.*\.example\.com$`},
		StartsWith{Field: "path", Prefix: "/secure"},
		EndsWith{Field: "host", Suffix: ".internal"},
		Exists{Field: "owner"},
		NotExists{Field: "legacy"},
		Custom{Predicate: "business_hours", Args: Map{"tz": String("UTC"), "start": Integer(9)}},
	}
}

func TestExpressionCodecCoversEveryOp(t *testing.T) {
	samples := sampleExpressions()
	covered := make(map[Op]bool)

	for _, expr := range samples {
		t.Run(string(expr.Op()), func(t *testing.T) {
			data, err := json.Marshal(expr)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			decoded, err := UnmarshalExpression(data)
			if err != nil {
				t.Fatalf("UnmarshalExpression failed: %v (data %s)", err, data)
			}
			if !reflect.DeepEqual(decoded, expr) {
				t.Errorf("decoded = %#v, want %#v", decoded, expr)
			}
		})
		covered[expr.Op()] = true
	}

	for _, op := range Ops {
		if !covered[op] {
			t.Errorf("operator %q has no sample expression", op)
		}
	}
}

func TestUnmarshalValue_Nested(t *testing.T) {
	ts := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	original := Map{
		"when":  NewDateTime(ts),
		"items": List{Integer(1), Float(2.5), Bool(false), Null{}, String("")},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	decoded, err := UnmarshalValue(data)
	if err != nil {
		t.Fatalf("UnmarshalValue failed: %v", err)
	}
	if !ValuesEqual(decoded, original) {
		t.Errorf("decoded = %v, want %v", decoded, original)
	}
}

func TestUnmarshalExpression_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown op", `{"op":"between","field":"x"}`},
		{"missing value", `{"op":"eq","field":"x"}`},
		{"bad value kind", `{"op":"eq","field":"x","value":{"kind":"tuple"}}`},
		{"custom args not a map", `{"op":"custom","predicate":"p","args":{"kind":"integer","value":1}}`},
		{"malformed json", `{"op":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalExpression([]byte(tt.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
