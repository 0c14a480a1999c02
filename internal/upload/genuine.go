package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IsGenuine reports whether file was spooled by this form: its path must be
// a regular file inside the form's spool directory. Anything else (a path
// handed in from outside, a file from another request, a symlink out of the
// directory) is refused as a possible upload attack.
func (f *Form) IsGenuine(file *UploadedFile) bool {
	if f.dir == "" || file.TempPath == "" {
		return false
	}
	if err := validatePathWithinDirectory(file.TempPath, f.dir); err != nil {
		return false
	}
	info, err := os.Lstat(file.TempPath)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// validatePathWithinDirectory checks that filePath resolves inside safeDir,
// following symlinks on both sides.
func validatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path symlinks: %w", err)
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}

	if relPath == "." || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, safeDir)
	}

	return nil
}
