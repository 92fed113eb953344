// Package installer implements the identity pack Installer: content
// signature computation, conflict classification, and the
// plan/dry-run/install/verify/rollback subcommand set. Grounded on the
// original identity_installer.py's signature function and conflict table,
// wired to the teacher's atomic-write and glob-evidence-discovery
// conventions (internal/docstore's atomic saves, internal/locator.Latest)
// rather than the python script's ad hoc file walking.
package installer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Signature computes SHA256(sorted "<relpath>:<sha256(file bytes)>" lines)
// over every regular file under root. Equal signatures imply byte-identical
// trees.
func Signature(root string) (string, error) {
	var lines []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		sum := sha256.Sum256(data)
		lines = append(lines, fmt.Sprintf("%s:%s", filepath.ToSlash(rel), hex.EncodeToString(sum[:])))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(lines)
	joined := strings.Join(lines, "\n")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:]), nil
}
