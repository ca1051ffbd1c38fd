package opsys

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/morezero/plugin-registry/pkg/binder"
	"github.com/morezero/plugin-registry/pkg/registry"
)

const opsysTestPrefix = "opsys:opsys_test"

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	b := registry.NewBuilder()
	if err := Register(b); err != nil {
		t.Fatalf("%s - Register: %v", opsysTestPrefix, err)
	}
	return b.Freeze()
}

func call(t *testing.T, op string, bag map[string]any) (any, error) {
	t.Helper()
	return callWithContext(t, context.Background(), op, bag)
}

func callWithContext(t *testing.T, ctx context.Context, op string, bag map[string]any) (any, error) {
	t.Helper()
	d, err := newRegistry(t).Lookup(GroupName + "." + op)
	if err != nil {
		t.Fatalf("%s - Lookup(%s): %v", opsysTestPrefix, op, err)
	}
	args, err := binder.Bind(d, bag)
	if err != nil {
		t.Fatalf("%s - Bind(%s): %v", opsysTestPrefix, op, err)
	}
	return d.Impl(ctx, args)
}

func mustCall(t *testing.T, op string, bag map[string]any) any {
	t.Helper()
	v, err := call(t, op, bag)
	if err != nil {
		t.Fatalf("%s - %s: %v", opsysTestPrefix, op, err)
	}
	return v
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("%s - mkdir: %v", opsysTestPrefix, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("%s - write %s: %v", opsysTestPrefix, path, err)
	}
}

func TestRegister(t *testing.T) {
	reg := newRegistry(t)
	if reg.Len() != 9 {
		t.Errorf("%s - Len = %d, want 9", opsysTestPrefix, reg.Len())
	}
	d, _ := reg.Lookup("opsys.listDirectory")
	if p, _ := d.Parameter("pattern"); p.Default != "*" {
		t.Errorf("%s - pattern default = %#v", opsysTestPrefix, p.Default)
	}
}

func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("PLUGIND_TEST_VAR", "base")
	t.Setenv("PLUGIND_TEST_GONE", "x")

	got := mustCall(t, "getEnvironmentVariable", map[string]any{"name": "PLUGIND_TEST_VAR"})
	if got != "base" {
		t.Errorf("%s - get = %v", opsysTestPrefix, got)
	}
	got = mustCall(t, "getEnvironmentVariable", map[string]any{"name": "PLUGIND_TEST_MISSING", "defaultValue": "fallback"})
	if got != "fallback" {
		t.Errorf("%s - default = %v", opsysTestPrefix, got)
	}
	got = mustCall(t, "getEnvironmentVariable", map[string]any{"name": "PLUGIND_TEST_MISSING"})
	if got != "" {
		t.Errorf("%s - implicit default = %v", opsysTestPrefix, got)
	}

	sep := string(os.PathListSeparator)
	got = mustCall(t, "appendToEnvironmentVariable", map[string]any{"name": "PLUGIND_TEST_VAR", "values": []any{"a", "b"}})
	if want := "base" + sep + "a" + sep + "b"; got != want || os.Getenv("PLUGIND_TEST_VAR") != want {
		t.Errorf("%s - append = %v, env = %q, want %q", opsysTestPrefix, got, os.Getenv("PLUGIND_TEST_VAR"), want)
	}

	vars := mustCall(t, "getEnvironmentVariables", nil).(map[string]any)
	if vars["PLUGIND_TEST_GONE"] != "x" {
		t.Errorf("%s - getEnvironmentVariables missing PLUGIND_TEST_GONE", opsysTestPrefix)
	}

	mustCall(t, "removeEnvironmentVariable", map[string]any{"names": []any{"PLUGIND_TEST_GONE"}})
	if _, ok := os.LookupEnv("PLUGIND_TEST_GONE"); ok {
		t.Errorf("%s - PLUGIND_TEST_GONE still set", opsysTestPrefix)
	}
}

func TestAppendToEnvironmentVariable_Unset(t *testing.T) {
	t.Setenv("PLUGIND_TEST_NEW", "")
	os.Unsetenv("PLUGIND_TEST_NEW")

	got := mustCall(t, "appendToEnvironmentVariable", map[string]any{"name": "PLUGIND_TEST_NEW", "values": []any{"only"}})
	if got != "only" {
		t.Errorf("%s - append to unset = %q, want only", opsysTestPrefix, got)
	}
}

func TestCopyDirectory(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "A")
	writeFile(t, filepath.Join(src, "nested", "b.txt"), "B")

	flat := filepath.Join(t.TempDir(), "flat")
	mustCall(t, "copyDirectory", map[string]any{"sourceDirectory": src, "destinationDirectory": flat})
	if data, err := os.ReadFile(filepath.Join(flat, "a.txt")); err != nil || string(data) != "A" {
		t.Errorf("%s - flat copy a.txt = %q, %v", opsysTestPrefix, data, err)
	}
	if _, err := os.Stat(filepath.Join(flat, "nested")); !os.IsNotExist(err) {
		t.Errorf("%s - non-recursive copy descended into nested", opsysTestPrefix)
	}

	deep := filepath.Join(t.TempDir(), "deep")
	mustCall(t, "copyDirectory", map[string]any{"sourceDirectory": src, "destinationDirectory": deep, "recursive": true})
	if data, err := os.ReadFile(filepath.Join(deep, "nested", "b.txt")); err != nil || string(data) != "B" {
		t.Errorf("%s - recursive copy b.txt = %q, %v", opsysTestPrefix, data, err)
	}

	// Existing files are not overwritten.
	if _, err := call(t, "copyDirectory", map[string]any{"sourceDirectory": src, "destinationDirectory": flat}); err == nil {
		t.Errorf("%s - expected error copying over existing files", opsysTestPrefix)
	}
	if _, err := call(t, "copyDirectory", map[string]any{"sourceDirectory": filepath.Join(src, "missing"), "destinationDirectory": deep}); err == nil {
		t.Errorf("%s - expected error for missing source", opsysTestPrefix)
	}
}

func TestCopyDirectory_StopsWhenCancelled(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "A")
	dst := filepath.Join(t.TempDir(), "out")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	args := registry.NewArguments(map[string]any{"sourceDirectory": src, "destinationDirectory": dst, "recursive": false})
	if _, err := copyDirectory(ctx, args); err == nil {
		t.Errorf("%s - expected cancellation error", opsysTestPrefix)
	}
	if _, err := os.Stat(filepath.Join(dst, "a.txt")); !os.IsNotExist(err) {
		t.Errorf("%s - file copied after cancellation", opsysTestPrefix)
	}
}

func TestOperations_CancelledContextHasNoEffect(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	writeFile(t, src, "payload")
	const envName = "PLUGIND_OPSYS_CANCEL_TEST"
	t.Setenv(envName, "kept")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		op        string
		bag       map[string]any
		untouched func() bool
	}{
		{"copyFile", map[string]any{"sourcePath": src, "destinationPath": filepath.Join(dir, "copy.txt")}, func() bool {
			_, err := os.Stat(filepath.Join(dir, "copy.txt"))
			return os.IsNotExist(err)
		}},
		{"createBinaryFile", map[string]any{"path": filepath.Join(dir, "new.bin"), "content": []byte{1}}, func() bool {
			_, err := os.Stat(filepath.Join(dir, "new.bin"))
			return os.IsNotExist(err)
		}},
		{"getBinaryFile", map[string]any{"path": src}, func() bool { return true }},
		{"listDirectory", map[string]any{"searchDirectory": dir}, func() bool { return true }},
		{"getEnvironmentVariable", map[string]any{"name": envName}, func() bool { return true }},
		{"getEnvironmentVariables", map[string]any{}, func() bool { return true }},
		{"appendToEnvironmentVariable", map[string]any{"name": envName, "values": []any{"extra"}}, func() bool {
			return os.Getenv(envName) == "kept"
		}},
		{"removeEnvironmentVariable", map[string]any{"names": []any{envName}}, func() bool {
			return os.Getenv(envName) == "kept"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			v, err := callWithContext(t, ctx, tt.op, tt.bag)
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("%s - %s err = %v, want context.Canceled", opsysTestPrefix, tt.op, err)
			}
			if v != nil {
				t.Errorf("%s - %s returned %v on a cancelled context", opsysTestPrefix, tt.op, v)
			}
			if !tt.untouched() {
				t.Errorf("%s - %s had a side effect after cancellation", opsysTestPrefix, tt.op)
			}
		})
	}
}

// countdownContext reports cancellation once Err has been called more than allowed times.
type countdownContext struct {
	context.Context
	allowed int
}

func (c *countdownContext) Err() error {
	if c.allowed <= 0 {
		return context.Canceled
	}
	c.allowed--
	return nil
}

func TestCopyRegularFile_CancelledMidCopyRemovesPartial(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.bin")
	if err := os.WriteFile(src, make([]byte, 1<<20), 0o644); err != nil {
		t.Fatalf("%s - write: %v", opsysTestPrefix, err)
	}
	dst := filepath.Join(dir, "big.copy")

	// One check before opening, then two chunks of the copy.
	ctx := &countdownContext{Context: context.Background(), allowed: 3}
	err := copyRegularFile(ctx, src, dst)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("%s - err = %v, want context.Canceled", opsysTestPrefix, err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("%s - partial destination left behind", opsysTestPrefix)
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	writeFile(t, src, "payload")
	dst := filepath.Join(dir, "dst.bin")

	mustCall(t, "copyFile", map[string]any{"sourcePath": src, "destinationPath": dst})
	if data, _ := os.ReadFile(dst); string(data) != "payload" {
		t.Errorf("%s - copy = %q", opsysTestPrefix, data)
	}
	if _, err := call(t, "copyFile", map[string]any{"sourcePath": src, "destinationPath": dst}); err == nil {
		t.Errorf("%s - expected error when destination exists", opsysTestPrefix)
	}
	if _, err := call(t, "copyFile", map[string]any{"sourcePath": filepath.Join(dir, "nope"), "destinationPath": filepath.Join(dir, "x")}); err == nil {
		t.Errorf("%s - expected error for missing source", opsysTestPrefix)
	}
}

func TestBinaryFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")

	// JSON callers wrap bytes as {"base64": ...}.
	mustCall(t, "createBinaryFile", map[string]any{"path": path, "content": map[string]any{"base64": "AAEC/w=="}})
	got := mustCall(t, "getBinaryFile", map[string]any{"path": path})
	if !reflect.DeepEqual(got, []byte{0, 1, 2, 255}) {
		t.Errorf("%s - read back %v", opsysTestPrefix, got)
	}

	d, err := newRegistry(t).Lookup(GroupName + ".createBinaryFile")
	if err != nil {
		t.Fatalf("%s - Lookup: %v", opsysTestPrefix, err)
	}
	_, err = binder.Bind(d, map[string]any{"path": path, "content": "abcd"})
	if regErr, ok := registry.AsRegistryError(err); !ok || regErr.Code != registry.KindTypeMismatch {
		t.Errorf("%s - plain string content: err = %v, want TYPE_MISMATCH", opsysTestPrefix, err)
	}

	mustCall(t, "createBinaryFile", map[string]any{"path": path, "content": []byte{9}})
	if got := mustCall(t, "getBinaryFile", map[string]any{"path": path}); !reflect.DeepEqual(got, []byte{9}) {
		t.Errorf("%s - overwrite left %v", opsysTestPrefix, got)
	}

	if err := os.Chmod(path, 0o444); err != nil {
		t.Fatalf("%s - chmod: %v", opsysTestPrefix, err)
	}
	if _, err := call(t, "createBinaryFile", map[string]any{"path": path, "content": []byte{1}}); err == nil {
		t.Errorf("%s - expected error writing a read-only file", opsysTestPrefix)
	}
	if _, err := call(t, "getBinaryFile", map[string]any{"path": path + ".missing"}); err == nil {
		t.Errorf("%s - expected error reading a missing file", opsysTestPrefix)
	}
}

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "")
	writeFile(t, filepath.Join(dir, "b.md"), "")
	writeFile(t, filepath.Join(dir, "sub", "c.txt"), "")

	tests := []struct {
		pattern any
		want    []string
	}{
		{nil, []string{"a.txt", "b.md"}},
		{"*.txt", []string{"a.txt"}},
		{"**/*.txt", []string{"a.txt", filepath.Join("sub", "c.txt")}},
		{"*.go", []string{}},
	}
	for _, tt := range tests {
		bag := map[string]any{"searchDirectory": dir, "pattern": tt.pattern}
		got := mustCall(t, "listDirectory", bag).([]string)
		want := make([]string, len(tt.want))
		for i, rel := range tt.want {
			want[i] = filepath.Join(dir, rel)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s - listDirectory(%v) = %v, want %v", opsysTestPrefix, tt.pattern, got, want)
		}
	}

	if _, err := call(t, "listDirectory", map[string]any{"searchDirectory": filepath.Join(dir, "missing")}); err == nil {
		t.Errorf("%s - expected error for missing directory", opsysTestPrefix)
	}
	if _, err := call(t, "listDirectory", map[string]any{"searchDirectory": dir, "pattern": "[unclosed"}); err == nil {
		t.Errorf("%s - expected error for invalid pattern", opsysTestPrefix)
	}
}
