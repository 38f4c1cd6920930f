package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileRemover deletes enrolled photos stored under a directory.
type FileRemover struct {
	Dir string
}

// Remove deletes the file ref resolves to. Refs may be bare file names or
// "/uploads/<name>" paths; anything escaping Dir is rejected. A missing file
// is not an error.
func (f FileRemover) Remove(_ context.Context, ref string) error {
	if f.Dir == "" {
		return nil
	}
	name := filepath.Base(filepath.Clean("/" + strings.TrimPrefix(ref, "/uploads/")))
	if name == "/" || name == "." || name == ".." {
		return fmt.Errorf("invalid photo reference %q", ref)
	}
	err := os.Remove(filepath.Join(f.Dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing photo: %w", err)
	}
	return nil
}
