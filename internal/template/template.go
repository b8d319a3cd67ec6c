// Package template implements placeholder substitution and JSONPath
// extraction for webhook and API-call definitions.
//
// Two placeholder spellings are accepted, `{$key}` and `{{key}}`, both
// resolving against session memory. Unresolved placeholders render empty so
// that rendering is idempotent: rendering already-rendered output is a
// no-op.
package template

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/haasonsaas/stateflow/pkg/models"
)

var (
	doubleBraceRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	dollarBraceRe = regexp.MustCompile(`\{\$\s*([^{}]+?)\s*\}`)

	memorySlotRe = regexp.MustCompile(`^memorySlots\.([^.]+)\.value\.?\[?(\d+)\]?$`)
	indexedRe    = regexp.MustCompile(`^([A-Za-z0-9_:]+)\.\[?(\d+)\]?$`)
)

// Render substitutes every placeholder in s against memory. Missing keys
// render as the empty string. When the template references requestId and
// memory has none, a fresh `req-<8 hex>` id is generated and stored.
func Render(s string, memory models.Memory) string {
	replace := func(expr string) string {
		return resolve(expr, memory)
	}
	out := doubleBraceRe.ReplaceAllStringFunc(s, func(m string) string {
		return replace(doubleBraceRe.FindStringSubmatch(m)[1])
	})
	out = dollarBraceRe.ReplaceAllStringFunc(out, func(m string) string {
		return replace(dollarBraceRe.FindStringSubmatch(m)[1])
	})
	return out
}

// RenderMap renders every value of a string map, leaving keys untouched.
func RenderMap(in map[string]string, memory models.Memory) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = Render(v, memory)
	}
	return out
}

func resolve(expr string, memory models.Memory) string {
	if memory == nil {
		return ""
	}
	if expr == "requestId" {
		return requestID(memory)
	}
	if m := memorySlotRe.FindStringSubmatch(expr); m != nil {
		return indexInto(memory[m[1]], m[2])
	}
	if m := indexedRe.FindStringSubmatch(expr); m != nil {
		return indexInto(memory[m[1]], m[2])
	}
	return Stringify(memory[expr])
}

func indexInto(v any, idx string) string {
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 {
		return ""
	}
	switch seq := v.(type) {
	case []any:
		if i < len(seq) {
			return Stringify(seq[i])
		}
	case []string:
		if i < len(seq) {
			return seq[i]
		}
	}
	return ""
}

func requestID(memory models.Memory) string {
	if v, ok := memory["requestId"]; ok {
		if s := Stringify(v); s != "" {
			return s
		}
	}
	id := NewRequestID()
	memory["requestId"] = id
	return id
}

// NewRequestID returns a short request correlation id of the form
// `req-<8 hex>`.
func NewRequestID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "req-00000000"
	}
	return "req-" + hex.EncodeToString(b[:])
}

// Stringify renders a memory value for substitution into a template.
// Numbers print without a trailing ".0" when integral; composites print as
// compact JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

// IsBlank reports whether a memory value counts as unfilled for slot
// checks: nil, empty string, or an empty sequence.
func IsBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	default:
		return false
	}
}
