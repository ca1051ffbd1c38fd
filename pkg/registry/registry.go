package registry

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/morezero/plugin-registry/pkg/semver"
)

const logPrefix = "registry:registry"

// Registry is the frozen operation table. It is never mutated after Builder.Freeze,
// so concurrent readers need no synchronization.
type Registry struct {
	ops        map[string]OperationDescriptor
	order      []string
	groups     map[string]GroupInfo
	groupOrder []string
}

// Lookup returns the descriptor registered under name. The returned descriptor has
// its own Parameters slice; parameter defaults are shared and must be treated as read-only.
func (r *Registry) Lookup(name string) (OperationDescriptor, error) {
	d, ok := r.ops[name]
	if !ok {
		return OperationDescriptor{}, &RegistryError{
			Code:    KindOperationNotFound,
			Message: fmt.Sprintf("Operation not found: %s", name),
			Details: map[string]string{"operation": name},
		}
	}
	return cloneDescriptor(d), nil
}

// Resolve looks up an operation reference, optionally carrying a group version
// range ("collections.take@^1"). A range the group version does not satisfy is
// reported as OPERATION_NOT_FOUND.
func (r *Registry) Resolve(ref string) (OperationDescriptor, error) {
	parsed, err := semver.ParseOperationRef(ref)
	if err != nil {
		return OperationDescriptor{}, &RegistryError{Code: KindInvalidArgument, Message: err.Error()}
	}
	if err := semver.ValidateRange(parsed.Range); err != nil {
		return OperationDescriptor{}, &RegistryError{Code: KindInvalidArgument, Message: err.Error()}
	}

	d, err := r.Lookup(parsed.Name)
	if err != nil {
		return OperationDescriptor{}, err
	}
	if parsed.Range != "" {
		version := r.groups[parsed.Group].Version
		if !semver.SatisfiesRange(version, parsed.Range) {
			slog.Debug(fmt.Sprintf("%s - %s version %s does not satisfy %s", logPrefix, parsed.Group, version, parsed.Range))
			return OperationDescriptor{}, &RegistryError{
				Code:    KindOperationNotFound,
				Message: fmt.Sprintf("Operation %s has no version satisfying %s (registered %s)", parsed.Name, parsed.Range, version),
				Details: map[string]string{"operation": parsed.Name, "range": parsed.Range, "version": version},
			}
		}
	}
	return d, nil
}

// List yields every descriptor in registration order. The sequence is lazy and
// may be ranged over any number of times.
func (r *Registry) List() iter.Seq[OperationDescriptor] {
	return func(yield func(OperationDescriptor) bool) {
		for _, name := range r.order {
			if !yield(cloneDescriptor(r.ops[name])) {
				return
			}
		}
	}
}

// Groups returns registered group metadata in registration order.
func (r *Registry) Groups() []GroupInfo {
	out := make([]GroupInfo, 0, len(r.groupOrder))
	for _, name := range r.groupOrder {
		g, _ := r.Group(name)
		out = append(out, g)
	}
	return out
}

// Group returns metadata for one group.
func (r *Registry) Group(name string) (GroupInfo, bool) {
	g, ok := r.groups[name]
	if !ok {
		return GroupInfo{}, false
	}
	g.Operations = append([]string(nil), g.Operations...)
	return g, true
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	return len(r.order)
}

// Health reports whether the registry has anything to dispatch to.
func (r *Registry) Health(_ context.Context) *HealthOutput {
	ok := r.Len() > 0
	status := "healthy"
	if !ok {
		status = "unhealthy"
	}
	return &HealthOutput{
		Status:     status,
		Checks:     HealthChecks{Registry: ok},
		Operations: r.Len(),
		Groups:     len(r.groupOrder),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

func cloneDescriptor(d OperationDescriptor) OperationDescriptor {
	d.Parameters = append([]ParameterSpec(nil), d.Parameters...)
	return d
}
