package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

// ErrExportDir marks a rejected export directory.
var ErrExportDir = errors.New("invalid export directory")

// SanitizeName makes s safe for EDL titles and file names: control runes are
// dropped, punctuation outside ` -_.,()` becomes '_', and the result is cut
// to maxLen runes (no limit when maxLen <= 0).
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.,()", r):
			return r
		}
		return '_'
	}, s))
	if runes := []rune(cleaned); maxLen > 0 && len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return cleaned
}

// ValidateOutputDir accepts only a clean path to an existing directory with
// no ".." element. Errors wrap ErrExportDir.
func ValidateOutputDir(dir string) error {
	switch {
	case strings.TrimSpace(dir) == "":
		return fmt.Errorf("%w: path is required", ErrExportDir)
	case slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), ".."):
		return fmt.Errorf("%w: %s contains path traversal", ErrExportDir, dir)
	case filepath.Clean(dir) != dir:
		return fmt.Errorf("%w: %s is not a clean path", ErrExportDir, dir)
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s does not exist", ErrExportDir, dir)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrExportDir, err)
	case !info.IsDir():
		return fmt.Errorf("%w: %s is not a directory", ErrExportDir, dir)
	}
	return nil
}
