package registry

import (
	"context"
	"testing"

	"github.com/morezero/plugin-registry/pkg/semtype"
)

func noop(_ context.Context, _ *Arguments) (any, error) {
	return nil, nil
}

func takeDescriptor() OperationDescriptor {
	return OperationDescriptor{
		Name:        "take",
		Description: "Returns the first items of a collection.",
		Parameters: []ParameterSpec{
			{Name: "collection", Type: semtype.StringArray, Required: true},
			{Name: "count", Type: semtype.Integer, Required: true},
		},
		Returns: semtype.StringArray,
		Impl:    noop,
	}
}

func reverseDescriptor() OperationDescriptor {
	return OperationDescriptor{
		Name:        "reverse",
		Description: "Inverts the order of a collection.",
		Parameters: []ParameterSpec{
			{Name: "collection", Type: semtype.StringArray, Required: true},
		},
		Returns: semtype.StringArray,
		Impl:    noop,
	}
}

func envDescriptor() OperationDescriptor {
	return OperationDescriptor{
		Name:        "getEnvironmentVariable",
		Description: "Returns the value of an environment variable.",
		Parameters: []ParameterSpec{
			{Name: "name", Type: semtype.String, Required: true},
			{Name: "defaultValue", Type: semtype.String, Default: ""},
		},
		Returns: semtype.String,
		Impl:    noop,
	}
}

// newTestRegistry registers a small collections group at 1.2.0 and an opsys group at 2.0.0.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	b := NewBuilder()
	if err := b.RegisterGroup(Group{
		Name:        "collections",
		Version:     "1.2.0",
		Description: "String collection helpers",
		Operations:  []OperationDescriptor{takeDescriptor(), reverseDescriptor()},
	}); err != nil {
		t.Fatalf("registry:helpers_test - register collections: %v", err)
	}
	if err := b.RegisterGroup(Group{
		Name:       "opsys",
		Version:    "2.0.0",
		Operations: []OperationDescriptor{envDescriptor()},
	}); err != nil {
		t.Fatalf("registry:helpers_test - register opsys: %v", err)
	}
	return b.Freeze()
}

func assertKind(t *testing.T, prefix string, err error, want ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s - expected %s, got nil", prefix, want)
	}
	regErr, ok := AsRegistryError(err)
	if !ok {
		t.Fatalf("%s - expected *RegistryError, got %T: %v", prefix, err, err)
	}
	if regErr.Code != want {
		t.Fatalf("%s - Code = %s, want %s (%s)", prefix, regErr.Code, want, regErr.Message)
	}
}
