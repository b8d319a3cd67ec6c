package external

import (
	"log/slog"

	"github.com/haasonsaas/stateflow/internal/memory"
	"github.com/haasonsaas/stateflow/internal/scenario"
	"github.com/haasonsaas/stateflow/internal/template"
	"github.com/haasonsaas/stateflow/pkg/models"
)

// standardEnvelopeProbe detects the conventional webhook response shape
// that gets a default mapping when the definition declares none.
const standardEnvelopeProbe = "$.memorySlots.NLU_INTENT.value"

// defaultEnvelopeMappings projects the standard webhook envelope.
func defaultEnvelopeMappings() []scenario.MappingGroup {
	return []scenario.MappingGroup{{
		ExpressionType: "JSON_PATH",
		TargetType:     scenario.TargetMemory,
		Mappings: map[string]string{
			memory.KeyNLUIntent:     "$.memorySlots.NLU_INTENT.value[0]",
			memory.KeySTSConfidence: "$.memorySlots.STS_CONFIDENCE.value[0]",
			memory.KeyUserTextInput: "$.memorySlots.USER_TEXT_INPUT.value",
		},
	}}
}

// ApplyMappings extracts values from a response document into memory and
// the directive queue. When groups is empty and the document matches the
// standard webhook envelope, the default NLU projection applies. A failed
// individual mapping is logged and skipped; it never aborts the turn.
// Returned directives carry source as their origin marker.
func ApplyMappings(doc []byte, groups []scenario.MappingGroup, mem models.Memory, source string, logger *slog.Logger) []models.Directive {
	if len(doc) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(groups) == 0 {
		if !template.Exists(doc, standardEnvelopeProbe) {
			return nil
		}
		groups = defaultEnvelopeMappings()
	}

	var directives []models.Directive
	for _, group := range groups {
		if group.ExpressionType != "" && group.ExpressionType != "JSON_PATH" {
			logger.Warn("unsupported mapping expression type",
				"expressionType", group.ExpressionType, "source", source)
			continue
		}
		for name, path := range group.Mappings {
			raw, ok := template.Extract(doc, path)
			if !ok {
				logger.Warn("response mapping path matched nothing",
					"name", name, "path", path, "source", source)
				continue
			}
			value := template.Normalize(raw)
			switch group.TargetType {
			case scenario.TargetDirective:
				directives = append(directives, models.Directive{
					Key:    name,
					Value:  value,
					Source: source,
				})
			case scenario.TargetMemory, "":
				mem[name] = value
			default:
				logger.Warn("unsupported mapping target type",
					"targetType", group.TargetType, "name", name, "source", source)
			}
		}
	}
	return directives
}
