package daemonctl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Legacy database files the one-shot migration looks for, and the
// directories they may live in.
var (
	legacyDBFiles = []string{
		"account_policy.tdb",
		"group_mapping.tdb",
		"passdb.tdb",
		"registry.tdb",
		"secrets.tdb",
		"share_info.tdb",
		"winbindd_idmap.tdb",
	}
	legacyDBDirs = []string{
		"/var/lib/samba",
		"/var/lib/samba/private",
	}
)

// MigrateOptions configures a legacy database migration.
type MigrateOptions struct {
	// DestDir receives the converted databases.
	DestDir string
	// PNN suffixes each converted file name.
	PNN int
	// SourceDirs overrides the default search directories (tests).
	SourceDirs []string
	Logger     *zap.Logger
}

// MigrateDatabases converts every known legacy database found under the
// source directories into DestDir, naming each output <file>.<pnn>. It is a
// one-shot operation: the first conversion failure aborts and nothing is
// retried.
func MigrateDatabases(ctx context.Context, r Runner, opts MigrateOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dirs := opts.SourceDirs
	if len(dirs) == 0 {
		dirs = legacyDBDirs
	}
	for _, name := range legacyDBFiles {
		for _, dir := range dirs {
			src := filepath.Join(dir, name)
			st, err := os.Stat(src)
			if err != nil || st.IsDir() {
				continue
			}
			dst := filepath.Join(opts.DestDir, fmt.Sprintf("%s.%d", name, opts.PNN))
			logger.Info("converting legacy database",
				zap.String("src", src), zap.String("dst", dst))
			if err := r.ConvertDatabase(ctx, src, dst); err != nil {
				return fmt.Errorf("daemonctl: convert %s: %w", src, err)
			}
		}
	}
	return nil
}
