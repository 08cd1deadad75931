package resourcestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"sort"
	"strings"
	"time"
)

// DefaultPrefixTemplate is the owner prefix used when no Prefixer is configured.
const DefaultPrefixTemplate = "resources/%d/"

// Store is the public resource façade. It holds no per-call state and is safe
// for concurrent use as long as its Gateway is.
type Store struct {
	gateway Gateway
	codec   Codec
	logger  *slog.Logger
	linkTTL time.Duration
	backend string
}

var _ Resolver = (*Store)(nil)

// Option represents a functional option for configuring the store
type Option func(*Store)

// WithGateway sets the backend gateway
func WithGateway(gw Gateway) Option {
	return func(s *Store) {
		s.gateway = gw
	}
}

// WithPrefixer sets the owner prefix strategy
func WithPrefixer(p Prefixer) Option {
	return func(s *Store) {
		s.codec = NewCodec(p)
	}
}

// WithLogger sets the logger used for degrade-not-fail warnings
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithLinkTTL sets the lifetime of links issued by ShareableURL
func WithLinkTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.linkTTL = ttl
	}
}

// WithBackendName sets the backend name reported in errors
func WithBackendName(name string) Option {
	return func(s *Store) {
		s.backend = name
	}
}

// New creates a new store instance with the given options
func New(options ...Option) (*Store, error) {
	s := &Store{
		codec:   NewCodec(MustFormatPrefixer(DefaultPrefixTemplate)),
		logger:  slog.Default(),
		linkTTL: ClampTTL(0),
		backend: "default",
	}

	for _, option := range options {
		option(s)
	}

	if s.gateway == nil {
		return nil, ErrNoGateway
	}

	return s, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("Store{backend=%s, linkTTL=%s}", s.backend, s.linkTTL)
}

// Codec returns the owner prefix codec used by the store.
func (s *Store) Codec() Codec {
	return s.codec
}

// Gateway returns the backend gateway, including any decorators.
func (s *Store) Gateway() Gateway {
	return s.gateway
}

// Existence

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.gateway.Exists(ctx, key)
}

func (s *Store) ExistsIn(ctx context.Context, ownerID uint64, name string) (bool, error) {
	return s.Exists(ctx, s.codec.Join(ownerID, name))
}

// Reads

// Get opens the resource at key. A missing key is reported as found=false
// with a nil error; only backend failures produce an error.
func (s *Store) Get(ctx context.Context, key string) (*Object, bool, error) {
	obj, err := s.gateway.Get(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return obj, true, nil
}

func (s *Store) GetIn(ctx context.Context, ownerID uint64, name string) (*Object, bool, error) {
	return s.Get(ctx, s.codec.Join(ownerID, name))
}

// Writes

// Put stores the content of r at key unless key already holds an object.
//
// The existence check and the write are two backend calls with no lock in
// between: concurrent creates of one key can both pass the check, and the
// last write wins.
func (s *Store) Put(ctx context.Context, key, mimeType string, r io.Reader) error {
	exists, err := s.gateway.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return &StorageError{Backend: s.backend, Key: key, Op: "put", Kind: ErrAlreadyExists}
	}

	// Buffer the stream so the backend receives an explicit content length.
	data, err := io.ReadAll(r)
	if err != nil {
		s.logger.Warn("Failed to get the content length of resource, skipping write", "key", key, "error", err)
		return nil
	}

	if mimeType == "" {
		mimeType = DefaultContentType
	}
	return s.gateway.Put(ctx, key, data, mimeType)
}

func (s *Store) PutIn(ctx context.Context, ownerID uint64, name, mimeType string, r io.Reader) error {
	return s.Put(ctx, s.codec.Join(ownerID, name), mimeType, r)
}

// PutBase64In decodes data and stores it under ownerID. A data-URI header
// ("data:image/png;base64,") is stripped first. Undecodable input is logged
// and skipped without an error.
func (s *Store) PutBase64In(ctx context.Context, ownerID uint64, name, mimeType, data string) error {
	key := s.codec.Join(ownerID, name)
	decoded, err := DecodeBase64(data)
	if err != nil {
		s.logger.Warn("Failed to decode base64 resource content, skipping write", "key", key, "error", err)
		return nil
	}
	return s.Put(ctx, key, mimeType, bytes.NewReader(decoded))
}

func (s *Store) PutBytes(ctx context.Context, key string, data []byte, mimeType string) error {
	return s.Put(ctx, key, mimeType, bytes.NewReader(data))
}

// PutMarker stores an empty object at key, typically a folder marker.
func (s *Store) PutMarker(ctx context.Context, key string) error {
	return s.PutBytes(ctx, key, nil, DefaultContentType)
}

// Deletes

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.gateway.Delete(ctx, key)
}

func (s *Store) DeleteIn(ctx context.Context, ownerID uint64, name string) error {
	return s.Delete(ctx, s.codec.Join(ownerID, name))
}

// DeleteDirectory removes every object whose key starts with prefix.
func (s *Store) DeleteDirectory(ctx context.Context, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: directory prefix is required", ErrInvalidPrefix)
	}
	summaries, err := ListAll(ctx, s.gateway, prefix)
	if err != nil {
		return err
	}
	for _, summary := range summaries {
		if err := s.gateway.Delete(ctx, summary.Key); err != nil {
			return err
		}
	}
	return nil
}

// Copy duplicates src to dst, both relative to contentType's directory. The
// destination write is conditional like Put.
func (s *Store) Copy(ctx context.Context, contentType ContentFileType, src, dst string) error {
	srcKey := s.RelativePath(contentType, src)
	dstKey := s.RelativePath(contentType, dst)

	obj, found, err := s.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	if !found {
		return &StorageError{Backend: s.backend, Key: srcKey, Op: "copy", Kind: ErrNotFound}
	}
	defer obj.Body.Close()

	return s.Put(ctx, dstKey, obj.ContentType, obj.Body)
}

// Listing

// ListNames returns the names of ownerID's resources with the owner prefix removed.
func (s *Store) ListNames(ctx context.Context, ownerID uint64) ([]string, error) {
	summaries, err := s.ListSummaries(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		names = append(names, s.codec.Strip(ownerID, summary.Key))
	}
	return names, nil
}

func (s *Store) ListSummaries(ctx context.Context, ownerID uint64) ([]ObjectSummary, error) {
	return s.ListSummariesByPrefix(ctx, s.codec.Prefix(ownerID))
}

func (s *Store) ListSummariesByPrefix(ctx context.Context, prefix string) ([]ObjectSummary, error) {
	return ListAll(ctx, s.gateway, prefix)
}

// ResourcesSummary lists the files stored in directory under contentType's
// top-level directory.
func (s *Store) ResourcesSummary(ctx context.Context, contentType ContentFileType, directory string) ([]FileItem, error) {
	dir := s.RelativePath(contentType, directory)
	if !strings.HasSuffix(dir, Delimiter) {
		dir += Delimiter
	}
	return s.SummarizedResources(ctx, dir)
}

// SummarizedResources lists every object whose key starts with filePath.
// Item names are relative to the folder part of filePath; folder markers are
// skipped and items are sorted by name.
func (s *Store) SummarizedResources(ctx context.Context, filePath string) ([]FileItem, error) {
	summaries, err := ListAll(ctx, s.gateway, filePath)
	if err != nil {
		return nil, err
	}

	base := ""
	if i := strings.LastIndex(filePath, Delimiter); i >= 0 {
		base = filePath[:i+1]
	}

	items := make([]FileItem, 0, len(summaries))
	for _, summary := range summaries {
		if strings.HasSuffix(summary.Key, Delimiter) {
			continue
		}
		name := strings.TrimPrefix(summary.Key, base)
		items = append(items, FileItem{
			Name:         name,
			Path:         summary.Key,
			Size:         summary.Size,
			LastModified: summary.LastModified,
			ContentType:  mime.TypeByExtension(path.Ext(name)),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// Paths

// RelativePath places path under contentType's top-level directory.
func (s *Store) RelativePath(contentType ContentFileType, p string) string {
	return contentType.Dir() + Delimiter + strings.TrimLeft(p, Delimiter)
}

// RelativePathWithFileName builds {dir}/{subDir}/{name}, omitting an empty subDir.
func (s *Store) RelativePathWithFileName(contentType ContentFileType, name, subDir string) string {
	parts := []string{contentType.Dir()}
	if sub := strings.Trim(subDir, Delimiter); sub != "" {
		parts = append(parts, sub)
	}
	parts = append(parts, strings.TrimLeft(name, Delimiter))
	return strings.Join(parts, Delimiter)
}

// Links

// ShareableURL issues a read link for key valid for the store's link TTL.
func (s *Store) ShareableURL(ctx context.Context, key string) (string, error) {
	return s.gateway.Presign(ctx, key, s.linkTTL)
}

// LinkTTL returns the lifetime of links issued by ShareableURL.
func (s *Store) LinkTTL() time.Duration {
	return ClampTTL(s.linkTTL)
}

// ShareableURLFor issues a read link for key valid for ttl, clamped by the gateway.
func (s *Store) ShareableURLFor(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.gateway.Presign(ctx, key, ttl)
}

// DecodeBase64 decodes standard or URL-safe base64, padded or not, after
// stripping anything up to and including the first comma.
func DecodeBase64(data string) ([]byte, error) {
	if _, payload, ok := strings.Cut(data, ","); ok {
		data = payload
	}
	data = strings.Join(strings.Fields(data), "")

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		decoded, err := enc.DecodeString(data)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformed, lastErr)
}
