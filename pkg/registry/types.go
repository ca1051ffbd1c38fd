// Package registry holds the build-once, read-only table of invocable operations
// that plugins register at startup.
package registry

import (
	"context"

	"github.com/morezero/plugin-registry/pkg/semtype"
)

// Func is the implementation of an operation. It receives arguments already bound
// and shape-checked against the descriptor's parameters, and should observe ctx at
// each of its own suspension points (before every I/O step).
type Func func(ctx context.Context, args *Arguments) (any, error)

// ParameterSpec describes one declared parameter of an operation.
type ParameterSpec struct {
	Name        string       `json:"name"`
	Type        semtype.Type `json:"type"`
	Description string       `json:"description,omitempty"`
	Required    bool         `json:"required"`
	// Default applies when an optional parameter is absent. Required parameters never carry one.
	Default any `json:"default,omitempty"`
}

// OperationDescriptor is the static description of one invocable operation.
type OperationDescriptor struct {
	// Name is the operation name within its group (e.g., "take").
	Name string `json:"name"`
	// Group is filled in by the registry at registration time.
	Group       string          `json:"group"`
	Description string          `json:"description,omitempty"`
	Parameters  []ParameterSpec `json:"parameters"`
	Returns     semtype.Type    `json:"returns"`
	Impl        Func            `json:"-"`
}

// FullName returns the composed registry name "<group>.<name>".
func (d OperationDescriptor) FullName() string {
	return d.Group + "." + d.Name
}

// Parameter returns the spec of the named parameter.
func (d OperationDescriptor) Parameter(name string) (ParameterSpec, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// Group is a bundle of related operations registered together.
type Group struct {
	Name        string
	Version     string
	Description string
	Operations  []OperationDescriptor
}

// GroupInfo is the registered metadata of a group.
type GroupInfo struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Operations  []string `json:"operations"`
}

// ParameterView is the JSON view of a parameter in describe output.
type ParameterView struct {
	Name        string       `json:"name"`
	Type        semtype.Type `json:"type"`
	Description string       `json:"description,omitempty"`
	Required    bool         `json:"required"`
	Default     any          `json:"default,omitempty"`
}

// DescribeOutput holds full details for one operation.
type DescribeOutput struct {
	Operation    string                 `json:"operation"`
	Group        string                 `json:"group"`
	Name         string                 `json:"name"`
	Version      string                 `json:"version"`
	Description  string                 `json:"description,omitempty"`
	Parameters   []ParameterView        `json:"parameters"`
	Returns      semtype.Type           `json:"returns"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
}

// DiscoverInput holds filters for Discover.
type DiscoverInput struct {
	Group   string       `json:"group,omitempty"`
	Query   string       `json:"query,omitempty"`
	Returns semtype.Type `json:"returns,omitempty"`
	Page    int          `json:"page,omitempty"`
	Limit   int          `json:"limit,omitempty"`
}

// DiscoverOutput holds the result of Discover.
type DiscoverOutput struct {
	Operations []OperationSummary `json:"operations"`
	Pagination Pagination         `json:"pagination"`
}

// OperationSummary holds discovery information for a single operation.
type OperationSummary struct {
	Operation   string       `json:"operation"`
	Group       string       `json:"group"`
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Description string       `json:"description,omitempty"`
	Parameters  []string     `json:"parameters"`
	Returns     semtype.Type `json:"returns"`
}

// Pagination holds pagination information.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// HealthOutput holds the result of Health.
type HealthOutput struct {
	Status     string       `json:"status"`
	Checks     HealthChecks `json:"checks"`
	Operations int          `json:"operations"`
	Groups     int          `json:"groups"`
	Timestamp  string       `json:"timestamp"`
}

// HealthChecks holds individual health check results. COMMS and Database are nil
// when the process runs without them.
type HealthChecks struct {
	Registry bool  `json:"registry"`
	COMMS    *bool `json:"comms,omitempty"`
	Database *bool `json:"database,omitempty"`
}
