// Package condition evaluates handler condition statements against session
// memory. Evaluation is side-effect free; malformed statements evaluate to
// false with a logged warning rather than failing the turn.
package condition

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/haasonsaas/stateflow/internal/memory"
	"github.com/haasonsaas/stateflow/internal/template"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// slotFillingCompleted is a named condition: true iff the slot-complete
// marker exists in memory, regardless of its value.
const slotFillingCompleted = "SLOT_FILLING_COMPLETED"

var (
	dollarRefRe = regexp.MustCompile(`\{\$([A-Za-z0-9_:.]+)\}`)
	bracedRefRe = regexp.MustCompile(`\$\{([A-Za-z0-9_:.]+)\}`)
	plainRefRe  = regexp.MustCompile(`\{([A-Za-z0-9_:.]+)\}`)

	equalityRe = regexp.MustCompile(`^"((?:[^"\\]|\\.)*)"\s*==\s*"((?:[^"\\]|\\.)*)"$`)
)

// Evaluator resolves condition statements. The zero value is usable; a
// logger enables diagnostics for unsupported statements.
type Evaluator struct {
	logger *slog.Logger
}

// New creates an evaluator with the given logger.
func New(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate resolves one condition statement against memory.
func (e *Evaluator) Evaluate(statement string, mem models.Memory) bool {
	stmt := strings.TrimSpace(statement)
	switch stmt {
	case "True", `"True"`:
		return true
	case "", "False", `"False"`:
		return false
	case slotFillingCompleted:
		_, ok := mem[memory.KeySlotFillingCompleted]
		return ok
	}

	substituted := substitute(stmt, mem)
	if m := equalityRe.FindStringSubmatch(substituted); m != nil {
		return unescape(m[1]) == unescape(m[2])
	}

	if e.logger != nil {
		e.logger.Warn("unsupported condition statement",
			"statement", statement, "substituted", substituted)
	}
	return false
}

// substitute replaces {key}, {$key}, and ${key} references with the quoted
// string form of the memory value. NLU_INTENT resolves through its envelope
// when not set directly.
func substitute(stmt string, mem models.Memory) string {
	resolve := func(key string) string {
		return quote(lookup(key, mem))
	}
	out := dollarRefRe.ReplaceAllStringFunc(stmt, func(m string) string {
		return resolve(dollarRefRe.FindStringSubmatch(m)[1])
	})
	out = bracedRefRe.ReplaceAllStringFunc(out, func(m string) string {
		return resolve(bracedRefRe.FindStringSubmatch(m)[1])
	})
	out = plainRefRe.ReplaceAllStringFunc(out, func(m string) string {
		return resolve(plainRefRe.FindStringSubmatch(m)[1])
	})
	return out
}

func lookup(key string, mem models.Memory) string {
	if key == memory.KeyNLUIntent {
		return memory.ResolvedIntent(mem)
	}
	return template.Stringify(mem[key])
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\\`, `\`)
}
