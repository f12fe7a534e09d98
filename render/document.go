package render

import (
	"fmt"
	"strconv"
)

// Doc wraps a crew output document with lenient typed accessors. Model
// output drifts; every accessor tolerates a missing or mistyped value.
type Doc map[string]any

// Str returns the string at key, or def when absent or not a string.
// Numbers are formatted rather than dropped.
func (d Doc) Str(key, def string) string {
	switch v := d[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return formatNumber(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return def
}

// List returns the slice at key, or nil.
func (d Doc) List(key string) []any {
	v, _ := d[key].([]any)
	return v
}

// Docs returns the slice of objects at key, skipping non-objects.
func (d Doc) Docs(key string) []Doc {
	var out []Doc
	for _, item := range d.List(key) {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Doc(m))
		}
	}
	return out
}

// Strs returns the slice of strings at key, formatting scalars and
// skipping anything else.
func (d Doc) Strs(key string) []string {
	var out []string
	for _, item := range d.List(key) {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, formatNumber(v))
		}
	}
	return out
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return fmt.Sprintf("%.2f", v)
}

const missing = "—" // placeholder for absent values
