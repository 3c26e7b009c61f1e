package vectorstore

import "testing"

func TestPayloadInt(t *testing.T) {
	meta := map[string]any{
		"int":     3,
		"int64":   int64(4),
		"float64": float64(5),
		"string":  "6",
	}

	tests := []struct {
		key  string
		want int
	}{
		{key: "int", want: 3},
		{key: "int64", want: 4},
		{key: "float64", want: 5},
		{key: "string", want: -1},
		{key: "missing", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := PayloadInt(meta, tt.key, -1); got != tt.want {
				t.Errorf("PayloadInt(%s) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}

func TestPayloadString(t *testing.T) {
	meta := map[string]any{"name": "a.txt", "n": int64(7)}

	if got := PayloadString(meta, "name"); got != "a.txt" {
		t.Errorf("PayloadString(name) = %q", got)
	}
	if got := PayloadString(meta, "n"); got != "7" {
		t.Errorf("PayloadString(n) = %q", got)
	}
	if got := PayloadString(meta, "missing"); got != "" {
		t.Errorf("PayloadString(missing) = %q", got)
	}
}
