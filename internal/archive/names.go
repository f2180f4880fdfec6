package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const macOSMetadataDir = "__MACOSX/"

// extractable reports whether a zip entry is a first-level CSV and returns the
// bare file name to write it under.
func extractable(entry string) (string, bool) {
	if strings.HasPrefix(entry, macOSMetadataDir) {
		return "", false
	}
	name := strings.Trim(entry, "/")
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		return "", false
	}
	return name, true
}

// createUnique opens name in dir for writing, falling back to stem_1.ext,
// stem_2.ext, ... when the name is already taken.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", candidate, err)
		}
	}
}
