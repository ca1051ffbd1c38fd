package opsys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/morezero/plugin-registry/pkg/registry"
)

const filesLogPrefix = "opsys:files"

// copyDirectory copies the files of the source directory into the destination,
// creating it if needed. Existing destination files are never overwritten.
func copyDirectory(ctx context.Context, args *registry.Arguments) (any, error) {
	return nil, copyTree(ctx, args.String("sourceDirectory"), args.String("destinationDirectory"), args.Bool("recursive"))
}

func copyTree(ctx context.Context, src, dst string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("source directory not found: %s", src)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", src)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()|0o700); err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	var subdirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			subdirs = append(subdirs, entry.Name())
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyRegularFile(ctx, filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}

	if recursive {
		for _, name := range subdirs {
			if err := copyTree(ctx, filepath.Join(src, name), filepath.Join(dst, name), true); err != nil {
				return err
			}
		}
	}
	slog.Debug(fmt.Sprintf("%s - copied %s to %s (recursive=%v)", filesLogPrefix, src, dst, recursive))
	return nil
}

func copyFile(ctx context.Context, args *registry.Arguments) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := args.String("sourcePath")
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("source file not found: %s", src)
	}
	return nil, copyRegularFile(ctx, src, args.String("destinationPath"))
}

// ctxReader fails the next Read once ctx is done, so io.Copy stops between chunks.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// copyRegularFile fails when dst already exists. A copy interrupted by ctx
// removes the partial destination.
func copyRegularFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, ctxReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		if rmErr := os.Remove(dst); rmErr != nil {
			slog.Warn(fmt.Sprintf("%s - remove partial %s: %v", filesLogPrefix, dst, rmErr))
		}
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// createBinaryFile writes content to path, replacing any previous content.
// A target without write permission is reported even when the process could
// write it anyway (e.g. running as root).
func createBinaryFile(ctx context.Context, args *registry.Arguments) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := args.String("path")
	if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0o222 == 0 {
		return nil, fmt.Errorf("file is read-only: %s", path)
	}
	if err := os.WriteFile(path, args.Bytes("content"), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return nil, nil
}

func getBinaryFile(ctx context.Context, args *registry.Arguments) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := args.String("path")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// listDirectory returns the absolute paths of regular files under searchDirectory
// matching pattern, sorted.
func listDirectory(ctx context.Context, args *registry.Arguments) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(args.String("searchDirectory"))
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("search directory not found: %s", dir)
	}

	pattern := args.String("pattern")
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	matches := []string{}
	err = doublestar.GlobWalk(os.DirFS(dir), filepath.ToSlash(pattern), func(path string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		matches = append(matches, filepath.Join(dir, filepath.FromSlash(path)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}
