package registry

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
)

const (
	discoverLogPrefix    = "registry:discover"
	discoverDefaultLimit = 50
	discoverMaxLimit     = 500
)

// Discover lists operations matching filters, in registration order.
func (r *Registry) Discover(input *DiscoverInput) *DiscoverOutput {
	if input == nil {
		input = &DiscoverInput{}
	}
	slog.Debug(fmt.Sprintf("%s - group=%s query=%s", discoverLogPrefix, input.Group, input.Query))

	page := input.Page
	if page < 1 {
		page = 1
	}
	limit := input.Limit
	if limit < 1 {
		limit = discoverDefaultLimit
	}
	if limit > discoverMaxLimit {
		limit = discoverMaxLimit
	}
	query := strings.ToLower(strings.TrimSpace(input.Query))

	var matched []OperationSummary
	for d := range r.List() {
		if input.Group != "" && d.Group != input.Group {
			continue
		}
		if input.Returns != "" && d.Returns != input.Returns {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(d.FullName()), query) &&
			!strings.Contains(strings.ToLower(d.Description), query) {
			continue
		}
		params := make([]string, len(d.Parameters))
		for i, p := range d.Parameters {
			params[i] = p.Name
		}
		matched = append(matched, OperationSummary{
			Operation:   d.FullName(),
			Group:       d.Group,
			Name:        d.Name,
			Version:     r.groups[d.Group].Version,
			Description: d.Description,
			Parameters:  params,
			Returns:     d.Returns,
		})
	}

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	operations := make([]OperationSummary, 0, end-start)
	operations = append(operations, matched[start:end]...)

	return &DiscoverOutput{
		Operations: operations,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}
}
