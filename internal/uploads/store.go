package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned when a file exceeds the configured size ceiling.
	ErrTooLarge = errors.New("uploads: file exceeds size limit")
	// ErrInvalidHandle is returned for handles that were not issued by the store.
	ErrInvalidHandle = errors.New("uploads: invalid handle")
	// ErrNotFound is returned when the handle no longer refers to a stored file.
	ErrNotFound = errors.New("uploads: file not found")
)

const partialPrefix = ".partial-"

var extensionPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// Stored describes a file written to the store.
type Stored struct {
	Handle      string
	Size        int64
	ContentType string
}

// Store keeps uploaded files on disk under generated names until they are
// consumed or swept.
type Store struct {
	dir      string
	maxBytes int64
	now      func() time.Time
	logger   *slog.Logger
}

// NewStore creates the directory if needed and returns a store enforcing maxBytes per file.
func NewStore(dir string, maxBytes int64, logger *slog.Logger) (*Store, error) {
	return NewStoreWithClock(dir, maxBytes, time.Now, logger)
}

// NewStoreWithClock is NewStore with an injected clock for sweeping.
func NewStoreWithClock(dir string, maxBytes int64, now func() time.Time, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("upload size limit must be positive")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:      dir,
		maxBytes: maxBytes,
		now:      now,
		logger:   logger.With(slog.String("component", "uploads")),
	}, nil
}

// MaxBytes reports the per-file size ceiling.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Store copies r to a new file named after a random UUID and the extension of
// originalName. Content beyond the size ceiling aborts the write and nothing is kept.
func (s *Store) Store(ctx context.Context, r io.Reader, originalName string) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}

	tmp, err := os.CreateTemp(s.dir, partialPrefix+"*")
	if err != nil {
		return Stored{}, fmt.Errorf("create upload file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	written, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		cleanup()
		return Stored{}, fmt.Errorf("write upload file: %w", err)
	}
	if written > s.maxBytes {
		cleanup()
		return Stored{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxBytes)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return Stored{}, fmt.Errorf("close upload file: %w", err)
	}

	handle := uuid.NewString() + handleExtension(originalName)
	finalPath := filepath.Join(s.dir, handle)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return Stored{}, fmt.Errorf("finalize upload file: %w", err)
	}
	stamp := s.now()
	if err := os.Chtimes(finalPath, stamp, stamp); err != nil {
		_ = os.Remove(finalPath)
		return Stored{}, fmt.Errorf("stamp upload file: %w", err)
	}

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(finalPath); err == nil {
		contentType = mtype.String()
	}

	s.logger.DebugContext(ctx, "upload stored", "handle", handle, "size", written, "content_type", contentType)
	return Stored{Handle: handle, Size: written, ContentType: contentType}, nil
}

// Read returns the bytes behind handle.
func (s *Store) Read(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.pathFor(handle)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
		}
		return nil, fmt.Errorf("read upload %s: %w", handle, err)
	}
	return data, nil
}

// Touch marks handle as in use so Sweep keeps it for another maxAge.
func (s *Store) Touch(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(handle)
	if err != nil {
		return err
	}
	stamp := s.now()
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, handle)
		}
		return fmt.Errorf("touch upload %s: %w", handle, err)
	}
	return nil
}

// Discard removes the file behind handle. Discarding a missing file succeeds.
func (s *Store) Discard(ctx context.Context, handle string) error {
	path, err := s.pathFor(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("discard upload %s: %w", handle, err)
	}
	s.logger.DebugContext(ctx, "upload discarded", "handle", handle)
	return nil
}

// Sweep removes files, including abandoned partial writes, last modified
// more than maxAge ago. It returns how many files were removed.
func (s *Store) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list upload directory: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, partialPrefix) {
			if _, err := s.pathFor(name); err != nil {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.WarnContext(ctx, "failed to sweep upload", "file", name, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// pathFor resolves a handle, accepting only names the store could have generated.
func (s *Store) pathFor(handle string) (string, error) {
	ext := filepath.Ext(handle)
	base := strings.TrimSuffix(handle, ext)
	if ext != "" && !extensionPattern.MatchString(ext) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}
	if _, err := uuid.Parse(base); err != nil || len(base) != 36 {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}
	return filepath.Join(s.dir, handle), nil
}

func handleExtension(originalName string) string {
	ext := strings.ToLower(filepath.Ext(SecureFilename(originalName)))
	if !extensionPattern.MatchString(ext) {
		return ""
	}
	return ext
}
