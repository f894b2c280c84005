// Package validation checks user-supplied paths before the CLI reads or
// writes them. Unit filenames recorded in an archive are untrusted input:
// extracting them must never write outside the target directory.
package validation

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	// MaxFilenameLength is the maximum allowed length of one path element.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
)

// SanitizePath validates and sanitizes a user-supplied path to prevent path traversal attacks.
// It ensures the path does not escape the provided base directory.
// Returns the cleaned path relative to the base directory, or an error if invalid.
func SanitizePath(baseDir, userPath string) (string, error) {
	if err := ValidatePath(userPath); err != nil {
		return "", err
	}

	cleanPath := filepath.Clean(userPath)
	if filepath.IsAbs(cleanPath) || filepath.VolumeName(cleanPath) != "" {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(baseDir, cleanPath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	relPath, err := filepath.Rel(absBase, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleanPath, nil
}

// UnitPath maps the filename recorded on a unit to a path under baseDir.
// Recorded names use forward slashes. Leading slashes and drive letters are
// dropped so absolute names extract relative to baseDir; names that climb
// out of it with ".." are rejected. An empty name falls back to
// unit-NNNNNN with ext appended.
func UnitPath(baseDir, filename string, position int, ext string) (string, error) {
	name := strings.ReplaceAll(filename, "\\", "/")
	if len(name) >= 2 && name[1] == ':' && unicode.IsLetter(rune(name[0])) {
		name = name[2:]
	}
	name = strings.TrimLeft(name, "/")
	if name == "" || path.Clean(name) == "." {
		name = fmt.Sprintf("unit-%06d%s", position, ext)
	}

	for _, elem := range strings.Split(name, "/") {
		if len(elem) > MaxFilenameLength {
			return "", ErrFilenameTooLong
		}
	}
	rel, err := SanitizePath(baseDir, filepath.FromSlash(name))
	if err != nil {
		return "", fmt.Errorf("unit %d (%s): %w", position, filename, err)
	}
	return filepath.Join(baseDir, rel), nil
}

// ValidatePath performs path validation without requiring a base directory.
// It checks length limits and rejects control characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// ValidateExtension checks an extension given to --register-ext. A leading
// dot is allowed and removed.
func ValidateExtension(ext string) (string, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return "", ErrInvalidFilename
	}
	if len(ext) > MaxFilenameLength {
		return "", ErrFilenameTooLong
	}
	if strings.ContainsAny(ext, "/\\.") {
		return "", fmt.Errorf("%w: extension %q", ErrInvalidFilename, ext)
	}
	for _, r := range ext {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", fmt.Errorf("%w: extension %q", ErrInvalidCharacter, ext)
		}
	}
	return ext, nil
}
