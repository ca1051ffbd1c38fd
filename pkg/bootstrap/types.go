// Package bootstrap loads the plugin manifest: which plugin groups are enabled,
// operation aliases, per-operation timeouts and the operations that must exist.
package bootstrap

import (
	"fmt"
	"sort"
	"time"

	"github.com/morezero/plugin-registry/pkg/registry"
)

// PluginSettings configures one plugin group in the manifest.
type PluginSettings struct {
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Timeouts maps an operation name within the group to a Go duration string ("5s", "2m").
	// "0" disables the dispatcher default for that operation.
	Timeouts map[string]string `json:"timeouts,omitempty" yaml:"timeouts,omitempty"`
}

// IsEnabled reports whether the group should be registered.
func (s PluginSettings) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// PluginManifest is the root manifest document.
type PluginManifest struct {
	Name              string                    `json:"name" yaml:"name"`
	Version           string                    `json:"version" yaml:"version"`
	Description       string                    `json:"description,omitempty" yaml:"description,omitempty"`
	MinimumOperations []string                  `json:"minimum_operations,omitempty" yaml:"minimum_operations,omitempty"`
	Plugins           map[string]PluginSettings `json:"plugins" yaml:"plugins"`
	Aliases           map[string]string         `json:"aliases" yaml:"aliases"`
	InvokedEvents     InvokedEventSubjects      `json:"invokedEventSubjects" yaml:"invokedEventSubjects"`
}

// InvokedEventSubjects defines event subject patterns.
type InvokedEventSubjects struct {
	Global  string `json:"global" yaml:"global"`
	Pattern string `json:"pattern" yaml:"pattern"`
}

// ResolvedManifest provides fast lookup of manifest settings.
type ResolvedManifest struct {
	name          string
	version       string
	minOps        []string
	plugins       map[string]PluginSettings
	aliases       map[string]string
	timeouts      map[string]time.Duration
	invokedEvents InvokedEventSubjects
}

// IsEnabled reports whether a plugin group is enabled. Groups the manifest does
// not mention are enabled.
func (rm *ResolvedManifest) IsEnabled(group string) bool {
	settings, ok := rm.plugins[group]
	return !ok || settings.IsEnabled()
}

// ResolveAlias resolves an alias to the full operation name.
func (rm *ResolvedManifest) ResolveAlias(alias string) string {
	if resolved, ok := rm.aliases[alias]; ok {
		return resolved
	}
	return alias
}

// Aliases returns a copy of the alias table.
func (rm *ResolvedManifest) Aliases() map[string]string {
	out := make(map[string]string, len(rm.aliases))
	for k, v := range rm.aliases {
		out[k] = v
	}
	return out
}

// Timeout returns the configured timeout for a full operation name.
func (rm *ResolvedManifest) Timeout(operation string) (time.Duration, bool) {
	d, ok := rm.timeouts[operation]
	return d, ok
}

// GlobalInvokedSubject returns the global invocation event subject.
func (rm *ResolvedManifest) GlobalInvokedSubject() string {
	return rm.invokedEvents.Global
}

// Name returns the manifest name.
func (rm *ResolvedManifest) Name() string {
	return rm.name
}

// Version returns the manifest version.
func (rm *ResolvedManifest) Version() string {
	return rm.version
}

// MinimumOperations returns the operation names that must always be registered.
func (rm *ResolvedManifest) MinimumOperations() []string {
	return rm.minOps
}

// VerifyRegistry checks that every minimum operation and every alias target is registered.
func (rm *ResolvedManifest) VerifyRegistry(reg *registry.Registry) error {
	var missing []string
	for _, op := range rm.minOps {
		if _, err := reg.Lookup(op); err != nil {
			missing = append(missing, op)
		}
	}
	aliases := make([]string, 0, len(rm.aliases))
	for alias := range rm.aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if _, err := reg.Resolve(rm.aliases[alias]); err != nil {
			missing = append(missing, fmt.Sprintf("%s (alias %s)", rm.aliases[alias], alias))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s - manifest %s references unregistered operations: %v", logPrefix, rm.name, missing)
	}
	return nil
}
