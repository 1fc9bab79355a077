package intake

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// safeFilenameRegex allows alphanumeric, dots, hyphens, underscores, spaces, and parentheses.
var safeFilenameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._ ()-]{0,200}$`)

// cleanFilename strips directory components and rejects names that are
// unsafe as object keys.
func cleanFilename(name string) (string, error) {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("%w: filename is required", ErrInvalidUpload)
	}
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: filename contains invalid characters", ErrInvalidUpload)
	}
	if !safeFilenameRegex.MatchString(name) {
		return "", fmt.Errorf("%w: filename contains invalid characters; only alphanumeric, dots, hyphens, underscores, spaces, and parentheses allowed", ErrInvalidUpload)
	}
	return name, nil
}
