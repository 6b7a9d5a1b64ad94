// Package relocate moves processed files out of the watch directory.
//
// Two collision policies are supported:
//
//   - suffix: when dir/name is taken, the first free "<stem>_<n><ext>" with
//     n counting up from 0 is used (archive and duplicate moves)
//   - replace: a stale dir/name is deleted before the move (failure moves)
//
// Moves across filesystems fall back to copy, fsync, rename and remove.
package relocate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// FreeName returns the path in dir a file called name would be moved to under
// the suffix policy. It does not reserve the path; the watch directory is
// assumed to have a single writer.
func FreeName(dir, name string) (string, error) {
	dest := filepath.Join(dir, name)
	taken, err := exists(dest)
	if err != nil {
		return "", err
	}
	if !taken {
		return dest, nil
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for n := 0; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// MoveWithSuffix moves src into dir under the suffix policy and returns the
// final path.
func MoveWithSuffix(src, dir string) (string, error) {
	dest, err := FreeName(dir, filepath.Base(src))
	if err != nil {
		return "", fmt.Errorf("failed to resolve destination in %s: %w", dir, err)
	}
	if err := Move(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// MoveReplacing moves src to dir/<base name>, deleting whatever was there.
func MoveReplacing(src, dir string) (string, error) {
	dest := filepath.Join(dir, filepath.Base(src))

	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to remove stale %s: %w", dest, err)
	}
	if err := Move(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Move renames src to dest, copying when they are on different filesystems.
func Move(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}

	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("failed to move %s to %s: %w", src, dest, err)
	}

	if err := copyAtomic(src, dest); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dest, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("copied %s but failed to remove source: %w", src, err)
	}
	return nil
}

func copyAtomic(src, dst string) error {
	tmp := dst + ".tmp"

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(out, in)
	syncErr := out.Sync()
	closeErr := out.Close()

	if copyErr != nil {
		_ = os.Remove(tmp)
		return copyErr
	}
	if syncErr != nil {
		_ = os.Remove(tmp)
		return syncErr
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return closeErr
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tmp->final: %w", err)
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
