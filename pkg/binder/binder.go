// Package binder maps a loosely typed argument bag onto an operation's declared parameters.
package binder

import (
	"fmt"
	"log/slog"

	"github.com/morezero/plugin-registry/pkg/registry"
	"github.com/morezero/plugin-registry/pkg/semtype"
)

const logPrefix = "binder:binder"

// Bind validates bag against the parameters of d and returns normalized arguments.
//
// Parameters are checked in declaration order and the first failure is returned.
// A present value must have the exact shape of its declared type, a nil value
// counts as absent, absent optional parameters take their default (or the zero
// value of the type), and keys that match no parameter are ignored.
func Bind(d registry.OperationDescriptor, bag map[string]any) (*registry.Arguments, error) {
	values := make(map[string]any, len(d.Parameters))

	for _, p := range d.Parameters {
		raw, present := bag[p.Name]
		if !present || raw == nil {
			if p.Required {
				return nil, &registry.RegistryError{
					Code:    registry.KindMissingArgument,
					Message: fmt.Sprintf("%s: missing required argument %q", d.FullName(), p.Name),
					Details: registry.MissingArgumentDetails{Parameter: p.Name},
				}
			}
			values[p.Name] = defaultFor(p)
			continue
		}

		v, ok := semtype.Normalize(p.Type, raw)
		if !ok {
			actual := semtype.ShapeOf(raw)
			slog.Debug(fmt.Sprintf("%s - %s: %s is %s, want %s", logPrefix, d.FullName(), p.Name, actual, p.Type))
			return nil, &registry.RegistryError{
				Code:    registry.KindTypeMismatch,
				Message: fmt.Sprintf("%s: argument %q must be %s, got %s", d.FullName(), p.Name, p.Type, actual),
				Details: registry.TypeMismatchDetails{Parameter: p.Name, Expected: string(p.Type), Actual: actual},
			}
		}
		values[p.Name] = v
	}

	return registry.NewArguments(values), nil
}

// defaultFor returns a private copy of the parameter default so implementations
// may mutate their arguments freely.
func defaultFor(p registry.ParameterSpec) any {
	if p.Default == nil {
		return semtype.Zero(p.Type)
	}
	v, ok := semtype.Normalize(p.Type, p.Default)
	if !ok {
		return semtype.Zero(p.Type)
	}
	return v
}
