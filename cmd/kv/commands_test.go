package kv

import (
	"reflect"
	"testing"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"42", float64(42)},
		{"true", true},
		{`"quoted"`, "quoted"},
		{`{"a":1}`, map[string]any{"a": float64(1)}},
		{"[1,2]", []any{float64(1), float64(2)}},
		{"null", nil},
		{"plain text", "plain text"},
		{"{broken", "{broken"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := parseValue(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseValue(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	if got := formatValue(nil, false); got != "<none>" {
		t.Errorf("expected <none> for absent values, got %q", got)
	}
	if got := formatValue(map[string]any{"a": 1}, true); got != `{"a":1}` {
		t.Errorf("unexpected JSON %q", got)
	}
	if got := formatValue("x", true); got != `"x"` {
		t.Errorf("unexpected JSON %q", got)
	}
}
