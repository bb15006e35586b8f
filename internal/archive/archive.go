// Package archive persists saved captures to the output directory.
package archive

import (
	"context"
	"io/fs"
	"path/filepath"
	"strconv"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"codeberg.org/hydrocam/hydrocam/internal/pipeline"
	"github.com/spf13/afero"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
	fileExt  = ".png"
	tempGlob = ".capture-*.tmp"
)

// Store writes each saved capture to <dir>/<capture end, epoch ms>.png.
type Store struct {
	fs  afero.Fs
	dir string
	log logger.Logger
}

func NewStore(fsys afero.Fs, dir string, log logger.Logger) *Store {
	return &Store{
		fs:  fsys,
		dir: dir,
		log: log.With("archive"),
	}
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// FS exposes the output directory read-only, rooted at Dir. Dot-files,
// including in-progress temporary files, are hidden.
func (s *Store) FS() fs.FS {
	return visibleFS{afero.NewIOFS(afero.NewReadOnlyFs(afero.NewBasePathFs(s.fs, s.dir)))}
}

// Name returns the file name a result is saved under.
func Name(r *pipeline.Result) string {
	return strconv.FormatInt(r.CaptureEnd.UnixMilli(), 10) + fileExt
}

// Save writes the result's image and returns the final path. The file is
// written under a temporary name and renamed so readers never observe a
// partial image.
func (s *Store) Save(ctx context.Context, r *pipeline.Result) (string, error) {
	errFactory := errors.New()

	if r == nil || len(r.Image) == 0 {
		return "", errFactory.New(errors.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return "", errFactory.Wrap(errors.ErrPersist, err)
	}

	if err := s.fs.MkdirAll(s.dir, dirPerm); err != nil {
		return "", s.fail(err, s.dir)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, tempGlob)
	if err != nil {
		return "", s.fail(err, s.dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(r.Image); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return "", s.fail(err, tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", s.fail(err, tmpName)
	}

	if err := s.fs.Chmod(tmpName, filePerm); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", s.fail(err, tmpName)
	}

	path := filepath.Join(s.dir, Name(r))
	if err := s.fs.Rename(tmpName, path); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", s.fail(err, path)
	}

	s.log.Info().
		Str("path", path).
		Str("run_id", r.ID.String()).
		Float64("brightness", r.Brightness).
		Msg("Capture saved")

	return path, nil
}

func (s *Store) fail(err error, path string) error {
	wrapped := errors.New().WithData(errors.ErrPersist, struct {
		Path  string
		Error string
	}{
		Path:  path,
		Error: err.Error(),
	})
	s.log.ErrorWithCode(wrapped).Str("path", path).Msg("Could not save capture")

	return wrapped
}
