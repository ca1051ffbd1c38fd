package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/plugin-registry/pkg/semtype"
	"github.com/morezero/plugin-registry/pkg/semver"
)

const (
	builderLogPrefix    = "registry:builder"
	defaultGroupVersion = "0.0.0"
)

// Builder collects plugin groups during the startup phase. Freeze turns it into
// an immutable Registry; after that every registration attempt fails.
type Builder struct {
	mu         sync.Mutex
	frozen     *Registry
	ops        map[string]OperationDescriptor
	order      []string
	groups     map[string]*GroupInfo
	groupOrder []string
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		ops:    make(map[string]OperationDescriptor),
		groups: make(map[string]*GroupInfo),
	}
}

// Register adds each descriptor under "<groupName>.<descriptor.Name>".
func (b *Builder) Register(groupName string, descriptors []OperationDescriptor) error {
	return b.RegisterGroup(Group{Name: groupName, Operations: descriptors})
}

// RegisterGroup adds a whole group. Every descriptor is validated before any is
// committed, so a failed call leaves the builder unchanged.
func (b *Builder) RegisterGroup(g Group) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen != nil {
		return Errorf(KindRegistryFrozen, "registry is frozen, cannot register group %s", g.Name)
	}
	if !semver.ValidateGroupName(g.Name) {
		return Errorf(KindInvalidDescriptor, "invalid group name %q: must be lowercase alphanumeric with hyphens", g.Name)
	}

	existing := b.groups[g.Name]
	version, err := b.groupVersion(g, existing)
	if err != nil {
		return err
	}

	prepared := make([]OperationDescriptor, 0, len(g.Operations))
	seen := make(map[string]bool, len(g.Operations))
	for _, d := range g.Operations {
		clean, err := prepareDescriptor(g.Name, d)
		if err != nil {
			return err
		}
		full := clean.FullName()
		if _, dup := b.ops[full]; dup || seen[full] {
			return &RegistryError{
				Code:    KindDuplicateOperation,
				Message: fmt.Sprintf("operation already registered: %s", full),
				Details: map[string]string{"operation": full},
			}
		}
		seen[full] = true
		prepared = append(prepared, clean)
	}

	if existing == nil {
		existing = &GroupInfo{Name: g.Name, Operations: []string{}}
		b.groups[g.Name] = existing
		b.groupOrder = append(b.groupOrder, g.Name)
	}
	existing.Version = version
	if g.Description != "" {
		existing.Description = g.Description
	}
	for _, d := range prepared {
		full := d.FullName()
		b.ops[full] = d
		b.order = append(b.order, full)
		existing.Operations = append(existing.Operations, full)
	}

	slog.Info(fmt.Sprintf("%s - Registered group %s@%s (%d operations)", builderLogPrefix, g.Name, version, len(prepared)))
	return nil
}

// Freeze returns the immutable Registry. Calling it again returns the same Registry.
func (b *Builder) Freeze() *Registry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen != nil {
		return b.frozen
	}

	ops := make(map[string]OperationDescriptor, len(b.ops))
	for name, d := range b.ops {
		ops[name] = d
	}
	groups := make(map[string]GroupInfo, len(b.groups))
	for name, g := range b.groups {
		info := *g
		info.Operations = append([]string(nil), g.Operations...)
		groups[name] = info
	}

	b.frozen = &Registry{
		ops:        ops,
		order:      append([]string(nil), b.order...),
		groups:     groups,
		groupOrder: append([]string(nil), b.groupOrder...),
	}
	slog.Info(fmt.Sprintf("%s - Registry frozen with %d operations in %d groups", builderLogPrefix, len(ops), len(groups)))
	return b.frozen
}

func (b *Builder) groupVersion(g Group, existing *GroupInfo) (string, error) {
	if g.Version == "" {
		if existing != nil {
			return existing.Version, nil
		}
		return defaultGroupVersion, nil
	}
	version, err := semver.ValidateVersion(g.Version)
	if err != nil {
		return "", Errorf(KindInvalidDescriptor, "group %s: %v", g.Name, err)
	}
	if existing != nil && existing.Version != version {
		return "", Errorf(KindInvalidDescriptor, "group %s already registered at version %s, got %s", g.Name, existing.Version, version)
	}
	return version, nil
}

// prepareDescriptor validates d and returns a private copy bound to group.
func prepareDescriptor(group string, d OperationDescriptor) (OperationDescriptor, error) {
	if !semver.ValidateOperationName(d.Name) {
		return OperationDescriptor{}, Errorf(KindInvalidDescriptor, "group %s: invalid operation name %q", group, d.Name)
	}
	full := semver.BuildOperationName(group, d.Name)
	if d.Impl == nil {
		return OperationDescriptor{}, Errorf(KindInvalidDescriptor, "%s: implementation is nil", full)
	}
	if !d.Returns.Valid() {
		return OperationDescriptor{}, Errorf(KindInvalidDescriptor, "%s: invalid return type %q", full, d.Returns)
	}

	params := make([]ParameterSpec, 0, len(d.Parameters))
	names := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		if !semver.ValidateOperationName(p.Name) {
			return OperationDescriptor{}, Errorf(KindInvalidDescriptor, "%s: invalid parameter name %q", full, p.Name)
		}
		if names[p.Name] {
			return OperationDescriptor{}, Errorf(KindInvalidDescriptor, "%s: duplicate parameter %q", full, p.Name)
		}
		names[p.Name] = true
		if !p.Type.IsParameterType() {
			return OperationDescriptor{}, Errorf(KindInvalidDescriptor, "%s: parameter %q has invalid type %q", full, p.Name, p.Type)
		}
		if p.Default != nil {
			if p.Required {
				return OperationDescriptor{}, Errorf(KindInvalidDescriptor, "%s: required parameter %q must not carry a default", full, p.Name)
			}
			def, ok := semtype.Normalize(p.Type, p.Default)
			if !ok {
				return OperationDescriptor{}, Errorf(KindInvalidDescriptor, "%s: default of parameter %q is %s, want %s",
					full, p.Name, semtype.ShapeOf(p.Default), p.Type)
			}
			p.Default = def
		}
		params = append(params, p)
	}

	d.Group = group
	d.Parameters = params
	return d, nil
}
