// Package storage keeps uploaded sources and finished artifacts on the local
// filesystem.
//
// Uploads are written under a generated unique name. Artifacts are encoded
// into a private temporary directory and renamed into place only after the
// engine succeeded, so a ref handed out to clients always names a complete
// file.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
)

// DefaultMaxUploadBytes is the upload size cap (1 GiB).
const DefaultMaxUploadBytes int64 = 1 << 30

// DefaultAllowedExtensions lists the accepted upload containers.
var DefaultAllowedExtensions = []string{"mp4", "webm", "avi", "mov", "mkv", "flv", "wmv"}

const tmpDirName = ".partial"

// UploadStore persists uploaded source files.
type UploadStore struct {
	dir      string
	maxBytes int64
	allowed  map[string]bool
	logger   hclog.Logger
}

// NewUploadStore creates the upload directory if needed. A non-positive
// maxBytes selects DefaultMaxUploadBytes and an empty extension list selects
// DefaultAllowedExtensions.
func NewUploadStore(dir string, maxBytes int64, extensions []string, logger hclog.Logger) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, joberrors.StorageError("init_uploads", fmt.Errorf("failed to create upload dir %s: %w", dir, err))
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if len(extensions) == 0 {
		extensions = DefaultAllowedExtensions
	}

	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	return &UploadStore{
		dir:      dir,
		maxBytes: maxBytes,
		allowed:  allowed,
		logger:   logger.Named("uploads"),
	}, nil
}

// MaxBytes returns the upload size cap.
func (s *UploadStore) MaxBytes() int64 {
	return s.maxBytes
}

// Allowed reports whether filename carries an accepted extension.
func (s *UploadStore) Allowed(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	return ext != "" && s.allowed[ext]
}

// Save copies r into the upload directory and returns the stored path.
// Files over the size cap are removed and rejected with ErrUploadTooLarge.
func (s *UploadStore) Save(filename string, r io.Reader) (string, int64, error) {
	if !s.Allowed(filename) {
		return "", 0, joberrors.UploadError("save_upload",
			fmt.Errorf("%w: unsupported file type %q", joberrors.ErrUploadRejected, filepath.Ext(filename))).
			WithField("file")
	}

	name := fmt.Sprintf("%s_%s", uuid.New().String()[:8], safeName(filename))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", 0, joberrors.StorageError("save_upload", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, joberrors.StorageError("save_upload", err)
	}
	if n > s.maxBytes {
		os.Remove(path)
		return "", 0, joberrors.UploadError("save_upload",
			fmt.Errorf("%w: limit is %d bytes", joberrors.ErrUploadTooLarge, s.maxBytes)).WithField("file")
	}

	s.logger.Debug("stored upload", "path", path, "bytes", n)
	return path, n, nil
}

// Remove deletes a stored upload. Missing files are ignored.
func (s *UploadStore) Remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove upload", "path", path, "error", err)
	}
}

// ArtifactStore holds finished outputs addressed by ref.
type ArtifactStore struct {
	dir    string
	tmpDir string
	logger hclog.Logger
}

// NewArtifactStore creates the output directory and its partial-file area.
func NewArtifactStore(dir string, logger hclog.Logger) (*ArtifactStore, error) {
	tmp := filepath.Join(dir, tmpDirName)
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return nil, joberrors.StorageError("init_outputs", fmt.Errorf("failed to create output dir %s: %w", dir, err))
	}
	return &ArtifactStore{dir: dir, tmpDir: tmp, logger: logger.Named("artifacts")}, nil
}

// TempPath returns where the engine should write the artifact named name.
func (s *ArtifactStore) TempPath(name string) string {
	return filepath.Join(s.tmpDir, name)
}

// Commit moves a finished temp file into place and returns its ref and size.
func (s *ArtifactStore) Commit(tmpPath, name string) (string, int64, error) {
	if !validRef(name) {
		return "", 0, joberrors.StorageError("commit_artifact", fmt.Errorf("invalid artifact name %q", name))
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return "", 0, joberrors.StorageError("commit_artifact", fmt.Errorf("engine produced no output: %w", err))
	}
	if info.Size() == 0 {
		return "", 0, joberrors.StorageError("commit_artifact", fmt.Errorf("engine produced an empty output"))
	}

	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		return "", 0, joberrors.StorageError("commit_artifact", err)
	}
	s.logger.Debug("committed artifact", "ref", name, "bytes", info.Size())
	return name, info.Size(), nil
}

// Discard removes a temp file left by a failed or cancelled run.
func (s *ArtifactStore) Discard(tmpPath string) {
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to discard partial artifact", "path", tmpPath, "error", err)
	}
}

// Remove deletes a committed artifact.
func (s *ArtifactStore) Remove(ref string) {
	if !validRef(ref) {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove artifact", "ref", ref, "error", err)
	}
}

// Open returns the artifact file for ref. Unknown or malformed refs fail
// with ErrNotFound.
func (s *ArtifactStore) Open(ref string) (*os.File, os.FileInfo, error) {
	if !validRef(ref) {
		return nil, nil, joberrors.StorageError("open_artifact", fmt.Errorf("%w: %q", joberrors.ErrNotFound, ref))
	}

	f, err := os.Open(filepath.Join(s.dir, ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, joberrors.StorageError("open_artifact", fmt.Errorf("%w: %q", joberrors.ErrNotFound, ref))
		}
		return nil, nil, joberrors.StorageError("open_artifact", err)
	}

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, joberrors.StorageError("open_artifact", fmt.Errorf("%w: %q", joberrors.ErrNotFound, ref))
	}
	return f, info, nil
}

// validRef accepts plain file names only.
func validRef(ref string) bool {
	if ref == "" || ref == "." || ref == ".." || strings.HasPrefix(ref, ".") {
		return false
	}
	return !strings.ContainsAny(ref, `/\`) && filepath.Base(ref) == ref
}

// safeName reduces an uploaded name to a filesystem-safe component that
// keeps its extension.
func safeName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := filepath.Ext(base)
	stem := strings.TrimLeft(keepSafe(strings.TrimSuffix(base, ext)), ".")
	if stem == "" {
		stem = "upload"
	}
	return stem + keepSafe(ext)
}

func keepSafe(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}
