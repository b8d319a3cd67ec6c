package template

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Extract evaluates a JSONPath expression against a raw JSON document and
// returns the extracted value as Go data (map[string]any, []any, float64,
// string, bool, or nil). The second return is false when the path matches
// nothing.
func Extract(doc []byte, path string) (any, bool) {
	res := gjson.GetBytes(doc, toGJSONPath(path))
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// Exists reports whether the JSONPath matches anything in the document.
func Exists(doc []byte, path string) bool {
	return gjson.GetBytes(doc, toGJSONPath(path)).Exists()
}

// toGJSONPath converts the `$.a.b[0].c` JSONPath dialect used by scenario
// response mappings into gjson syntax (`a.b.0.c`).
func toGJSONPath(path string) string {
	p := strings.TrimSpace(path)
	p = strings.TrimPrefix(p, "$")
	p = strings.TrimPrefix(p, ".")
	p = strings.ReplaceAll(p, "[", ".")
	p = strings.ReplaceAll(p, "]", "")
	p = strings.ReplaceAll(p, "..", ".")
	p = strings.ReplaceAll(p, "'", "")
	p = strings.ReplaceAll(p, `"`, "")
	return strings.Trim(p, ".")
}
