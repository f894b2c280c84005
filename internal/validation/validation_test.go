package validation

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizePath(t *testing.T) {
	baseDir := "/tmp/test"

	tests := []struct {
		name      string
		userPath  string
		want      string
		wantError error
	}{
		{
			name:     "simple valid path",
			userPath: "file.c",
			want:     "file.c",
		},
		{
			name:     "nested valid path",
			userPath: "src/file.c",
			want:     filepath.Join("src", "file.c"),
		},
		{
			name:     "path with redundant separators",
			userPath: "src//file.c",
			want:     filepath.Join("src", "file.c"),
		},
		{
			name:     "dots inside a name",
			userPath: "a..b.c",
			want:     "a..b.c",
		},
		{
			name:      "path traversal with dotdot",
			userPath:  "../etc/passwd",
			wantError: ErrPathTraversal,
		},
		{
			name:      "path traversal in middle",
			userPath:  "src/../../etc/passwd",
			wantError: ErrPathTraversal,
		},
		{
			name:      "absolute path",
			userPath:  "/etc/passwd",
			wantError: ErrPathTraversal,
		},
		{
			name:      "empty path",
			userPath:  "",
			wantError: ErrEmptyPath,
		},
		{
			name:      "control character",
			userPath:  "file\x07.c",
			wantError: ErrInvalidCharacter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePath(baseDir, tt.userPath)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Errorf("SanitizePath() error = %v, want %v", err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizePath() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("SanitizePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnitPath(t *testing.T) {
	baseDir := t.TempDir()

	tests := []struct {
		name      string
		filename  string
		position  int
		want      string
		wantError error
	}{
		{name: "relative", filename: "src/main.c", position: 1, want: "src/main.c"},
		{name: "absolute", filename: "/usr/include/stdio.h", position: 2, want: "usr/include/stdio.h"},
		{name: "drive letter", filename: `C:\proj\a.cs`, position: 3, want: "proj/a.cs"},
		{name: "empty", filename: "", position: 4, want: "unit-000004.c"},
		{name: "dot", filename: "./", position: 5, want: "unit-000005.c"},
		{name: "traversal", filename: "../../outside.c", position: 6, wantError: ErrPathTraversal},
		{name: "hidden traversal", filename: "a/../../outside.c", position: 7, wantError: ErrPathTraversal},
		{name: "long element", filename: strings.Repeat("x", MaxFilenameLength+1), position: 8, wantError: ErrFilenameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnitPath(baseDir, tt.filename, tt.position, ".c")
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Errorf("UnitPath() error = %v, want %v", err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("UnitPath() unexpected error: %v", err)
			}
			if want := filepath.Join(baseDir, filepath.FromSlash(tt.want)); got != want {
				t.Errorf("UnitPath() = %q, want %q", got, want)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantError error
	}{
		{"valid", "archive.tar.xz", nil},
		{"empty", "", ErrEmptyPath},
		{"too long", strings.Repeat("a", MaxPathLength+1), ErrPathTooLong},
		{"null byte", "a\x00b", ErrInvalidCharacter},
		{"newline", "a\nb", ErrInvalidCharacter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantError == nil && err != nil {
				t.Errorf("ValidatePath() unexpected error: %v", err)
			}
			if tt.wantError != nil && !errors.Is(err, tt.wantError) {
				t.Errorf("ValidatePath() error = %v, want %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateExtension(t *testing.T) {
	tests := []struct {
		name      string
		ext       string
		want      string
		wantError error
	}{
		{"plain", "inl", "inl", nil},
		{"leading dot", ".ino", "ino", nil},
		{"empty", ".", "", ErrInvalidFilename},
		{"separator", "a/b", "", ErrInvalidFilename},
		{"inner dot", "tar.gz", "", ErrInvalidFilename},
		{"space", "c c", "", ErrInvalidCharacter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateExtension(tt.ext)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Errorf("ValidateExtension() error = %v, want %v", err, tt.wantError)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ValidateExtension() = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}
