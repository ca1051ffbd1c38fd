package server

import (
	"fmt"
	"log/slog"

	"github.com/morezero/plugin-registry/internal/config"
	"github.com/morezero/plugin-registry/pkg/bootstrap"
	"github.com/morezero/plugin-registry/pkg/dispatcher"
	"github.com/morezero/plugin-registry/pkg/events"
	"github.com/morezero/plugin-registry/pkg/plugins/collections"
	"github.com/morezero/plugin-registry/pkg/plugins/opsys"
	"github.com/morezero/plugin-registry/pkg/registry"
)

const pluginsLogPrefix = "server:plugins"

type plugin struct {
	name     string
	register func(b *registry.Builder) error
}

// bundledPlugins lists every plugin group compiled into plugind, in registration order.
var bundledPlugins = []plugin{
	{name: collections.GroupName, register: collections.Register},
	{name: opsys.GroupName, register: opsys.Register},
}

// LoadManifest loads and validates the plugin manifest named by cfg, falling back
// to the usual search paths and then the built-in default.
func LoadManifest(cfg *config.Config) (*bootstrap.ResolvedManifest, error) {
	m, err := bootstrap.LoadManifest(cfg.ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load plugin manifest: %w", pluginsLogPrefix, err)
	}
	resolved, err := bootstrap.CreateResolvedManifest(m)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid plugin manifest: %w", pluginsLogPrefix, err)
	}
	return resolved, nil
}

// BuildRegistry registers every bundled plugin the manifest enables, freezes the
// registry and checks the manifest's minimum operations and aliases against it.
// Any registration failure is returned; the caller must not start serving.
func BuildRegistry(manifest *bootstrap.ResolvedManifest) (*registry.Registry, error) {
	b := registry.NewBuilder()
	for _, p := range bundledPlugins {
		if manifest != nil && !manifest.IsEnabled(p.name) {
			slog.Info(fmt.Sprintf("%s - Plugin %s disabled by manifest", pluginsLogPrefix, p.name))
			continue
		}
		if err := p.register(b); err != nil {
			return nil, fmt.Errorf("%s - failed to register plugin %s: %w", pluginsLogPrefix, p.name, err)
		}
	}
	reg := b.Freeze()
	slog.Info(fmt.Sprintf("%s - Registry frozen with %d operations in %d groups", pluginsLogPrefix, reg.Len(), len(reg.Groups())))

	if manifest != nil {
		if err := manifest.VerifyRegistry(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// NewDispatcher wires a dispatcher with the configured timeouts. A nil publisher disables events.
func NewDispatcher(cfg *config.Config, reg *registry.Registry, manifest *bootstrap.ResolvedManifest, publisher events.EventPublisher) *dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(reg, &dispatcher.Options{
		DefaultTimeout: cfg.DefaultInvokeTimeout,
		CancelGrace:    cfg.CancelGrace,
		Manifest:       manifest,
		Publisher:      publisher,
		PublishTimeout: cfg.EventPublishTimeout,
	})
}
