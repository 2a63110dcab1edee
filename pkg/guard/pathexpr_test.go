package guard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(t *testing.T, raw string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestResolve(t *testing.T) {
	d := doc(t, `{
		"order": {
			"status": "open",
			"total": 42.5,
			"items": [
				{"sku": "a-1", "qty": 2},
				{"sku": "b-2", "qty": 1}
			]
		},
		"matrix": [[1, 2], [3, 4]]
	}`)

	tests := []struct {
		path string
		want interface{}
		ok   bool
	}{
		{"order.status", "open", true},
		{"order.total", 42.5, true},
		{"order.items[0].sku", "a-1", true},
		{"order.items[1].qty", float64(1), true},
		{"matrix[1][0]", float64(3), true},
		{"order.missing", nil, false},
		{"order.items[5].sku", nil, false},
		{"order.items[-1]", nil, false},
		{"order.status.deeper", nil, false},
		{"", nil, false},
		{"order..status", nil, false},
		{"order.items[x]", nil, false},
		{"order.items[0", nil, false},
	}

	for _, tt := range tests {
		got, ok := Resolve(d, tt.path)
		assert.Equal(t, tt.ok, ok, "path %q", tt.path)
		if tt.ok {
			assert.Equal(t, tt.want, got, "path %q", tt.path)
		}
	}
}

func TestResolve_NeverPanics(t *testing.T) {
	paths := []string{"a", "a[0]", "a.b.c", "[0]", "a[0][1].b", "...", "[", "]"}
	docs := []interface{}{nil, "scalar", 42.0, []interface{}{}, map[string]interface{}{}}

	for _, d := range docs {
		for _, p := range paths {
			assert.NotPanics(t, func() { Resolve(d, p) })
		}
	}
}
