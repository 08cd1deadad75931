package fs

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pkg/xattr"
)

const contentTypeXattr = "user.content_type"

// metadataHandler persists the content type of stored files.
type metadataHandler interface {
	write(path, contentType string) error
	read(path string) (string, error)
	remove(path string) error
}

// metadataXattr keeps the content type in an extended attribute of the file.
type metadataXattr struct{}

func (metadataXattr) write(path, contentType string) error {
	return xattr.Set(path, contentTypeXattr, []byte(contentType))
}

func (metadataXattr) read(path string) (string, error) {
	v, err := xattr.Get(path, contentTypeXattr)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (metadataXattr) remove(string) error {
	return nil
}

// metadataFile keeps the content type in a sidecar file under dir, for
// filesystems without xattr support.
type metadataFile struct {
	dir string
}

func (m metadataFile) sidecar(path string) string {
	return filepath.Join(m.dir, filepath.Base(path))
}

func (m metadataFile) write(path, contentType string) error {
	return renameio.WriteFile(m.sidecar(path), []byte(contentType), 0o600)
}

func (m metadataFile) read(path string) (string, error) {
	v, err := os.ReadFile(m.sidecar(path))
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (m metadataFile) remove(path string) error {
	err := os.Remove(m.sidecar(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// newMetadataHandler uses xattrs when baseDir supports them and falls back
// to sidecar files under metaDir.
func newMetadataHandler(baseDir, metaDir string) metadataHandler {
	if xattr.XATTR_SUPPORTED {
		var xerr *xattr.Error
		_, err := metadataXattr{}.read(baseDir)
		if err == nil || (errors.As(err, &xerr) && xerr.Err == xattr.ENOATTR) {
			return metadataXattr{}
		}
	}
	return metadataFile{dir: metaDir}
}
