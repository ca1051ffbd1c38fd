package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/morezero/plugin-registry/pkg/commsutil"
	"github.com/morezero/plugin-registry/pkg/semver"
	"gopkg.in/yaml.v3"
)

const logPrefix = "bootstrap:loader"

// LoadManifest loads the plugin manifest from file paths or environment.
// It tries paths in order: first any paths passed in, then PLUGIN_MANIFEST_FILE env, then defaults.
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
// Unreadable or unparsable files are skipped; when none loads, the default manifest is used.
func LoadManifest(paths ...string) (*PluginManifest, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("PLUGIN_MANIFEST_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/plugins.json", "plugins.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		m, err := ParseManifest(data, isYAML(p))
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse manifest file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded plugin manifest from %s", logPrefix, p))
		return m, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default plugin manifest", logPrefix))
	return GetDefaultManifest(), nil
}

// ParseManifest decodes a manifest document in JSON or YAML form.
func ParseManifest(data []byte, asYAML bool) (*PluginManifest, error) {
	var m PluginManifest
	if asYAML {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s - decode yaml manifest: %w", logPrefix, err)
		}
		return &m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s - decode json manifest: %w", logPrefix, err)
	}
	return &m, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// GetDefaultManifest returns the built-in manifest: every bundled plugin enabled.
func GetDefaultManifest() *PluginManifest {
	return &PluginManifest{
		Name:              "plugind-default",
		Version:           "1.0.0",
		Description:       "Default plugin manifest",
		MinimumOperations: []string{"collections.take", "opsys.getEnvironmentVariable"},
		Plugins: map[string]PluginSettings{
			"collections": {},
			"opsys": {
				Timeouts: map[string]string{
					"copyDirectory": "5m",
				},
			},
		},
		Aliases: map[string]string{
			"env":  "opsys.getEnvironmentVariable",
			"ls":   "opsys.listDirectory",
			"cp":   "opsys.copyFile",
			"head": "collections.first",
		},
		InvokedEvents: InvokedEventSubjects{
			Global:  commsutil.SubjectInvokedEvent,
			Pattern: commsutil.SubjectInvokedEvent + ".{group}.{operation}",
		},
	}
}

// CreateResolvedManifest validates m and builds a ResolvedManifest for fast lookups.
func CreateResolvedManifest(m *PluginManifest) (*ResolvedManifest, error) {
	plugins := make(map[string]PluginSettings, len(m.Plugins))
	timeouts := make(map[string]time.Duration)
	for group, settings := range m.Plugins {
		if !semver.ValidateGroupName(group) {
			return nil, fmt.Errorf("%s - invalid plugin group name %q", logPrefix, group)
		}
		plugins[group] = settings
		for op, raw := range settings.Timeouts {
			if !semver.ValidateOperationName(op) {
				return nil, fmt.Errorf("%s - invalid operation name %q in timeouts of %s", logPrefix, op, group)
			}
			d, err := parseTimeout(raw)
			if err != nil {
				return nil, fmt.Errorf("%s - timeout for %s.%s: %w", logPrefix, group, op, err)
			}
			timeouts[semver.BuildOperationName(group, op)] = d
		}
	}

	aliases := make(map[string]string, len(m.Aliases))
	for alias, target := range m.Aliases {
		if _, err := semver.ParseOperationRef(target); err != nil {
			return nil, fmt.Errorf("%s - alias %q: %w", logPrefix, alias, err)
		}
		aliases[alias] = target
	}

	minOps := make([]string, len(m.MinimumOperations))
	copy(minOps, m.MinimumOperations)

	invoked := m.InvokedEvents
	if invoked.Global == "" {
		invoked.Global = commsutil.SubjectInvokedEvent
	}

	return &ResolvedManifest{
		name:          m.Name,
		version:       m.Version,
		minOps:        minOps,
		plugins:       plugins,
		aliases:       aliases,
		timeouts:      timeouts,
		invokedEvents: invoked,
	}, nil
}

// MergeManifests merges an override manifest into a copy of base.
func MergeManifests(base, override *PluginManifest) *PluginManifest {
	merged := *base

	merged.Plugins = make(map[string]PluginSettings, len(base.Plugins)+len(override.Plugins))
	for group, settings := range base.Plugins {
		merged.Plugins[group] = settings
	}
	for group, settings := range override.Plugins {
		merged.Plugins[group] = settings
	}

	merged.Aliases = make(map[string]string, len(base.Aliases)+len(override.Aliases))
	for alias, target := range base.Aliases {
		merged.Aliases[alias] = target
	}
	for alias, target := range override.Aliases {
		merged.Aliases[alias] = target
	}

	if len(override.MinimumOperations) > 0 {
		merged.MinimumOperations = append([]string(nil), override.MinimumOperations...)
	}
	if override.InvokedEvents.Global != "" {
		merged.InvokedEvents.Global = override.InvokedEvents.Global
	}
	if override.InvokedEvents.Pattern != "" {
		merged.InvokedEvents.Pattern = override.InvokedEvents.Pattern
	}

	return &merged
}

func parseTimeout(raw string) (time.Duration, error) {
	if raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", raw)
	}
	return d, nil
}
