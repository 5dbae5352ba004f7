package bootstrap

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// legacyEventScripts are linked individually under events/legacy.
var legacyEventScripts = []string{"00.ctdb.script"}

// EnsureEtcFiles populates the daemon's etc directory with symlinks to the
// support files shipped in srcDir. All links are re-pointed idempotently.
func EnsureEtcFiles(etcDir, srcDir string) error {
	if err := os.MkdirAll(etcDir, 0o755); err != nil {
		return err
	}
	for _, name := range []string{"functions", "notify.sh"} {
		if err := relink(filepath.Join(srcDir, name), filepath.Join(etcDir, name)); err != nil {
			return err
		}
	}
	legacyDst := filepath.Join(etcDir, "events", "legacy")
	if err := os.MkdirAll(legacyDst, 0o755); err != nil {
		return err
	}
	legacySrc := filepath.Join(srcDir, "events", "legacy")
	for _, name := range legacyEventScripts {
		if err := relink(filepath.Join(legacySrc, name), filepath.Join(legacyDst, name)); err != nil {
			return err
		}
	}
	return nil
}

func relink(src, dst string) error {
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Symlink(src, dst)
}
