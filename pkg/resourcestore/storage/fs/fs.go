package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/tendant/simple-resource/pkg/resourcestore"
	"github.com/tendant/simple-resource/pkg/resourcestore/presigned"
)

const backendName = "fs"

// DefaultPageSize is the number of summaries returned per listing page.
const DefaultPageSize = 1000

// Reserved entries under BaseDir. Object files are always regular files, so
// listing never confuses them with these directories.
const (
	metaDirName = ".meta"
	tmpDirName  = ".tmp"
)

// Config options for the filesystem backend
type Config struct {
	BaseDir  string            // Base directory for storing files
	PageSize int               // Summaries per listing page (0: DefaultPageSize)
	Signer   *presigned.Signer // Signs download links; Presign fails without it
}

// Backend is a filesystem implementation of the resourcestore.Gateway interface.
// Every key is stored as one file directly under BaseDir, named by the
// path-escaped key, so folder markers and nested names never clash with
// directories.
type Backend struct {
	mu       sync.RWMutex
	baseDir  string
	tmpDir   string
	pageSize int
	mh       metadataHandler
	signer   *presigned.Signer
	logger   *slog.Logger
}

var _ resourcestore.Gateway = (*Backend)(nil)

// Option configures the filesystem backend
type Option func(*Backend)

// WithLogger sets the logger used to report backend failures
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a new filesystem storage backend
func New(config Config, opts ...Option) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	metaDir := filepath.Join(config.BaseDir, metaDirName)
	tmpDir := filepath.Join(config.BaseDir, tmpDirName)
	for _, dir := range []string{config.BaseDir, metaDir, tmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	b := &Backend{
		baseDir:  config.BaseDir,
		tmpDir:   tmpDir,
		pageSize: pageSize,
		mh:       newMetadataHandler(config.BaseDir, metaDir),
		signer:   config.Signer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Backend) fail(op, key, message string, err error) error {
	b.logger.Error(message, "backend", backendName, "base_dir", b.baseDir, "key", key, "error", err)
	return resourcestore.Unavailable(backendName, op, key, err)
}

// filePath maps key to its file. Keys whose escaped form would name a
// reserved or special entry are rejected.
func (b *Backend) filePath(key string) (string, error) {
	name := url.PathEscape(key)
	switch name {
	case "", ".", "..", metaDirName, tmpDirName:
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(b.baseDir, name), nil
}

// ListPage returns up to PageSize summaries with keys after token, in key order
func (b *Backend) ListPage(ctx context.Context, prefix, token string) (resourcestore.Page, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries, err := os.ReadDir(b.baseDir)
	if err != nil {
		return resourcestore.Page{}, b.fail("list", prefix, "Error occurred while listing files", err)
	}

	type entry struct {
		key  string
		info os.FileInfo
	}
	matched := make([]entry, 0)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		key, err := url.PathUnescape(e.Name())
		if err != nil || !strings.HasPrefix(key, prefix) || key <= token {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed since ReadDir.
			continue
		}
		matched = append(matched, entry{key: key, info: info})
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].key < matched[j].key })

	var page resourcestore.Page
	if len(matched) > b.pageSize {
		matched = matched[:b.pageSize]
		page.NextToken = matched[len(matched)-1].key
	}

	page.Summaries = make([]resourcestore.ObjectSummary, 0, len(matched))
	for _, m := range matched {
		page.Summaries = append(page.Summaries, resourcestore.ObjectSummary{
			Key:          m.key,
			Size:         m.info.Size(),
			LastModified: m.info.ModTime().UTC(),
			ETag:         fmt.Sprintf("%x-%x", m.info.ModTime().UnixNano(), m.info.Size()),
		})
	}
	return page, nil
}

// Get opens the file stored at key
func (b *Backend) Get(ctx context.Context, key string) (*resourcestore.Object, error) {
	p, err := b.filePath(key)
	if err != nil {
		return nil, resourcestore.NotFound(backendName, "get", key)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	file, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, resourcestore.NotFound(backendName, "get", key)
	} else if err != nil {
		return nil, b.fail("get", key, "Error occurred while opening file", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, b.fail("get", key, "Error occurred while reading file info", err)
	}

	return &resourcestore.Object{
		Key:         key,
		Body:        file,
		ContentType: b.contentType(p, key, file),
		Size:        info.Size(),
	}, nil
}

// contentType resolves the stored content type, falling back to the key's
// extension and then to sniffing the first bytes of the file.
func (b *Backend) contentType(p, key string, file *os.File) string {
	if ct, err := b.mh.read(p); err == nil && ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	buffer := make([]byte, 512)
	if n, err := file.ReadAt(buffer, 0); n > 0 && (err == nil || errors.Is(err, io.EOF)) {
		return http.DetectContentType(buffer[:n])
	}
	return resourcestore.DefaultContentType
}

// Put writes data atomically, replacing any existing file
func (b *Backend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	p, err := b.filePath(key)
	if err != nil {
		return resourcestore.Unavailable(backendName, "put", key, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := renameio.TempFile(b.tmpDir, p)
	if err != nil {
		return b.fail("put", key, "Error occurred while creating temp file", err)
	}
	defer t.Cleanup()

	if _, err := t.Write(data); err != nil {
		return b.fail("put", key, "Error occurred while writing file", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return b.fail("put", key, "Error occurred while replacing file", err)
	}

	if contentType == "" {
		contentType = resourcestore.DefaultContentType
	}
	if err := b.mh.write(p, contentType); err != nil {
		return b.fail("put", key, "Error occurred while writing content type", err)
	}
	return nil
}

// Delete removes the file stored at key; missing files are ignored
func (b *Backend) Delete(ctx context.Context, key string) error {
	p, err := b.filePath(key)
	if err != nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return b.fail("delete", key, "Error occurred while deleting file", err)
	}
	if err := b.mh.remove(p); err != nil {
		b.logger.Warn("Failed to remove content type sidecar", "key", key, "error", err)
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	p, err := b.filePath(key)
	if err != nil {
		return false, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, b.fail("exists", key, "Error occurred while checking file", err)
	}
	return info.Mode().IsRegular(), nil
}

// Presign returns an HMAC-signed link served by the download route
func (b *Backend) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if b.signer == nil || !b.signer.IsEnabled() {
		return "", b.fail("presign", key, "Cannot sign download link", presigned.ErrNoSecretKey)
	}
	link, err := b.signer.SignKey(key, resourcestore.ClampTTL(ttl))
	if err != nil {
		return "", b.fail("presign", key, "Error occurred while signing download link", err)
	}
	return link, nil
}
