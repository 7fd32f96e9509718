package engine

import "testing"

func TestValidateExtraEmptySchemaAcceptsAnything(t *testing.T) {
	if err := ValidateExtra(ParameterSchema{}, map[string]string{"whatever": "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateExtra(ParameterSchema{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateExtraMissingRequired(t *testing.T) {
	schema := ParameterSchema{Required: map[string]ParamRule{"speaker_id": {Type: "string"}}}
	if err := ValidateExtra(schema, map[string]string{}); err == nil {
		t.Fatal("expected error for missing required parameter")
	}
}

func TestValidateExtraFloatRange(t *testing.T) {
	schema := ParameterSchema{Optional: map[string]ParamRule{"alpha": {Type: "float", Min: 0, Max: 1}}}
	if err := ValidateExtra(schema, map[string]string{"alpha": "0.5"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateExtra(schema, map[string]string{"alpha": "1.5"}); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if err := ValidateExtra(schema, map[string]string{"alpha": "not-a-float"}); err == nil {
		t.Fatal("expected type error")
	}
}

func TestValidateExtraEnum(t *testing.T) {
	schema := ParameterSchema{Optional: map[string]ParamRule{
		"voice_style": {Type: "enum", Options: []string{"default", "cheerful"}},
	}}
	if err := ValidateExtra(schema, map[string]string{"voice_style": "cheerful"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateExtra(schema, map[string]string{"voice_style": "furious"}); err == nil {
		t.Fatal("expected enum validation error")
	}
}

func TestValidateExtraUnknownKeyRejected(t *testing.T) {
	schema := ParameterSchema{Optional: map[string]ParamRule{"alpha": {Type: "float", Min: 0, Max: 1}}}
	if err := ValidateExtra(schema, map[string]string{"beta": "1"}); err == nil {
		t.Fatal("expected error for a key outside the schema")
	}
}
