package fleet

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ManifestFilename is the per-session record of newly captured files. It is
// written before any download is attempted so an operator can fetch files by
// hand from a camera whose automated transfer failed.
const ManifestFilename = "recordedFiles.txt"

const manifestPerm = 0o600

// WriteManifest writes the manifest into dir and returns its path. Cameras
// with no new files are omitted. The file is created even when nothing was
// recorded, so its absence always means the session never ended cleanly.
func WriteManifest(dir string, newFiles map[string][]string) (string, error) {
	var b strings.Builder

	for _, id := range slices.Sorted(maps.Keys(newFiles)) {
		files := newFiles[id]
		if len(files) == 0 {
			continue
		}

		b.WriteString(id)
		b.WriteString(":\n")

		for _, f := range files {
			b.WriteString("\t")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}

	path := filepath.Join(dir, ManifestFilename)

	if err := os.WriteFile(path, []byte(b.String()), manifestPerm); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}

	return path, nil
}
