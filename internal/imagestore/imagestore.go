package imagestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for uploads whose extension is not an image.
var ErrUnsupportedType = errors.New("unsupported image type")

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Store keeps medicine images on local disk and hands out the public URL
// under which they are served.
type Store struct {
	dir       string
	urlPrefix string
}

func New(dir, urlPrefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

func (s *Store) Dir() string { return s.dir }

// Ext returns the normalized extension of an uploaded file name.
func Ext(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !allowedExt[ext] {
		return "", ErrUnsupportedType
	}
	return ext, nil
}

// FileName is the on-disk name of a medicine image, derived from its id.
func FileName(id int64, ext string) string {
	return fmt.Sprintf("obat-%d%s", id, ext)
}

func (s *Store) URL(name string) string {
	return s.urlPrefix + "/" + name
}

// Staged is an upload written under a temporary name. It becomes visible only
// after Promote; Discard removes it.
type Staged struct {
	store *Store
	tmp   string
	Ext   string
}

// Stage copies r into the upload directory under a random temporary name.
func (s *Store) Stage(filename string, r io.Reader) (*Staged, error) {
	ext, err := Ext(filename)
	if err != nil {
		return nil, err
	}
	tmp := filepath.Join(s.dir, ".upload-"+uuid.NewString()+ext)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create staged image: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("write staged image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("close staged image: %w", err)
	}
	return &Staged{store: s, tmp: tmp, Ext: ext}, nil
}

// Promote moves the staged file to its final name.
func (st *Staged) Promote(name string) error {
	if err := os.Rename(st.tmp, filepath.Join(st.store.dir, name)); err != nil {
		return fmt.Errorf("promote image: %w", err)
	}
	return nil
}

func (st *Staged) Discard() error {
	err := os.Remove(st.tmp)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Remove deletes the file behind a public URL produced by URL. Missing files
// are not an error.
func (s *Store) Remove(url string) error {
	if url == "" {
		return nil
	}
	name := path.Base(url)
	if name == "." || name == "/" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
