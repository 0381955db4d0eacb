package prompts

import (
	"fmt"
	"sort"
	"strings"
)

// XMLExampleProvider is an optional interface that tools can implement
// to provide custom XML usage examples
type XMLExampleProvider interface {
	XMLExample() string
}

// GenerateXMLExample creates a concrete XML example from a JSON Schema.
// Only required fields appear in the example, in sorted order so the
// rendered prompt is stable across runs.
func GenerateXMLExample(schema map[string]interface{}, toolName string) string {
	var builder strings.Builder

	builder.WriteString("<tool>\n")
	builder.WriteString(fmt.Sprintf("<tool_name>%s</tool_name>\n", toolName))
	builder.WriteString("<arguments>\n")

	properties, ok := schema["properties"].(map[string]interface{})
	if ok && len(properties) > 0 {
		requiredFields := make(map[string]bool)
		if req, ok := schema["required"].([]string); ok {
			for _, field := range req {
				requiredFields[field] = true
			}
		}

		names := make([]string, 0, len(properties))
		for name := range properties {
			if requiredFields[name] {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		for _, name := range names {
			propMap, ok := properties[name].(map[string]interface{})
			if !ok {
				continue
			}
			builder.WriteString(generatePropertyExample(name, propMap, "  "))
		}
	}

	builder.WriteString("</arguments>\n")
	builder.WriteString("</tool>")

	return builder.String()
}

func generatePropertyExample(name string, propSchema map[string]interface{}, indent string) string {
	propType, _ := propSchema["type"].(string) //nolint:errcheck

	switch propType {
	case "integer":
		return fmt.Sprintf("%s<%s>42</%s>\n", indent, name, name)
	case "number":
		return fmt.Sprintf("%s<%s>3.14</%s>\n", indent, name, name)
	case "boolean":
		return fmt.Sprintf("%s<%s>true</%s>\n", indent, name, name)
	default:
		exampleValue := "value"
		if enum, ok := propSchema["enum"].([]interface{}); ok && len(enum) > 0 {
			if str, ok := enum[0].(string); ok {
				exampleValue = str
			}
		}
		return fmt.Sprintf("%s<%s>%s</%s>\n", indent, name, exampleValue, name)
	}
}
