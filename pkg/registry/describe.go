package registry

import (
	"fmt"
	"log/slog"
)

const describeLogPrefix = "registry:describe"

// Describe returns the full description of one operation, including a JSON Schema
// for its arguments and its result. name may carry a version range.
func (r *Registry) Describe(name string) (*DescribeOutput, error) {
	slog.Debug(fmt.Sprintf("%s - operation=%s", describeLogPrefix, name))

	d, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	params := make([]ParameterView, len(d.Parameters))
	for i, p := range d.Parameters {
		params[i] = ParameterView{
			Name:        p.Name,
			Type:        p.Type,
			Description: p.Description,
			Required:    p.Required,
			Default:     p.Default,
		}
	}

	return &DescribeOutput{
		Operation:    d.FullName(),
		Group:        d.Group,
		Name:         d.Name,
		Version:      r.groups[d.Group].Version,
		Description:  d.Description,
		Parameters:   params,
		Returns:      d.Returns,
		InputSchema:  InputSchema(d),
		OutputSchema: d.Returns.JSONSchema(),
	}, nil
}

// InputSchema builds a JSON Schema object describing the argument bag of d.
// Extra properties are allowed because the binder ignores unknown keys.
func InputSchema(d OperationDescriptor) map[string]interface{} {
	properties := make(map[string]interface{}, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		prop := p.Type.InputSchema()
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
