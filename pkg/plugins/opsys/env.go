package opsys

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/morezero/plugin-registry/pkg/registry"
)

// appendToEnvironmentVariable appends values to the current value using the OS
// path list separator and returns the new value.
func appendToEnvironmentVariable(ctx context.Context, args *registry.Arguments) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := args.String("name")
	parts := make([]string, 0, len(args.Strings("values"))+1)
	if current := os.Getenv(name); current != "" {
		parts = append(parts, current)
	}
	parts = append(parts, args.Strings("values")...)

	value := strings.Join(parts, string(os.PathListSeparator))
	if err := os.Setenv(name, value); err != nil {
		return nil, fmt.Errorf("set %s: %w", name, err)
	}
	slog.Debug(fmt.Sprintf("%s - %s extended by %d values", logPrefix, name, len(args.Strings("values"))))
	return value, nil
}

func getEnvironmentVariable(ctx context.Context, args *registry.Arguments) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if value, ok := os.LookupEnv(args.String("name")); ok {
		return value, nil
	}
	return args.String("defaultValue"), nil
}

func getEnvironmentVariables(ctx context.Context, _ *registry.Arguments) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env := os.Environ()
	out := make(map[string]any, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// removeEnvironmentVariable stops between names once ctx is done; names already
// removed stay removed.
func removeEnvironmentVariable(ctx context.Context, args *registry.Arguments) (any, error) {
	for _, name := range args.Strings("names") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := os.Unsetenv(name); err != nil {
			return nil, fmt.Errorf("unset %s: %w", name, err)
		}
	}
	return nil, nil
}
