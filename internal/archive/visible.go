package archive

import (
	"io/fs"
	"path"
	"strings"
)

// visibleFS hides entries whose name starts with a dot.
type visibleFS struct {
	fsys fs.FS
}

func hidden(name string) bool {
	for _, elem := range strings.Split(name, "/") {
		if elem != "." && strings.HasPrefix(elem, ".") {
			return true
		}
	}
	return false
}

func (v visibleFS) Open(name string) (fs.File, error) {
	if hidden(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	f, err := v.fsys.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if dir, ok := f.(fs.ReadDirFile); ok && info.IsDir() {
		return visibleDir{dir}, nil
	}

	return f, nil
}

type visibleDir struct {
	fs.ReadDirFile
}

func (d visibleDir) ReadDir(n int) ([]fs.DirEntry, error) {
	var out []fs.DirEntry
	for {
		entries, err := d.ReadDirFile.ReadDir(n)
		for _, e := range entries {
			if !hidden(path.Clean(e.Name())) {
				out = append(out, e)
			}
		}
		// With n > 0 keep reading until something visible turns up.
		if n <= 0 || len(out) > 0 || err != nil || len(entries) == 0 {
			return out, err
		}
	}
}
