package clustermeta

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// lockRetryDelay paces lock acquisition attempts. The wait itself is
// unbounded; only ctx cancellation ends it.
const lockRetryDelay = 100 * time.Millisecond

// JSONFile stores the membership document as a JSON file guarded by an
// advisory lock on a sidecar <path>.lock file. The advisory lock is the
// fleet's only cross-process coordination point: the nodes file itself is
// never touched outside this store's critical section.
type JSONFile struct {
	path   string
	logger *zap.Logger
}

// NewJSONFile returns a file-backed store for the document at path.
func NewJSONFile(path string, logger *zap.Logger) *JSONFile {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONFile{path: path, logger: logger}
}

// Path returns the document's filesystem path.
func (s *JSONFile) Path() string { return s.path }

// Load reads the document without locking.
func (s *JSONFile) Load(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// Update implements Store. The sidecar lock outlives the critical section
// file handle, so a concurrent Update blocks until persist and fsync have
// completed.
func (s *JSONFile) Update(ctx context.Context, fn UpdateFunc) error {
	lock := flock.New(s.path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("clustermeta: acquire lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("clustermeta: lock %s not acquired", lock.Path())
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			s.logger.Warn("failed to release document lock",
				zap.String("path", lock.Path()), zap.Error(uerr))
		}
	}()

	doc := &Document{}
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// first writer creates the document
	case err != nil:
		return err
	default:
		if doc, err = decode(data); err != nil {
			return err
		}
	}
	dirty, err := fn(doc)
	if err != nil || !dirty {
		return err
	}
	return s.persist(doc)
}

func (s *JSONFile) persist(doc *Document) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var _ Store = (*JSONFile)(nil)
