package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-resource/pkg/resourcestore"
)

const backendName = "memory"

// DefaultPageSize mirrors the S3 ListObjectsV2 default.
const DefaultPageSize = 1000

type object struct {
	data         []byte
	contentType  string
	lastModified time.Time
	etag         string
}

// Backend is an in-memory implementation of the resourcestore.Gateway interface
type Backend struct {
	mu       sync.RWMutex
	objects  map[string]object
	pageSize int
	baseURL  string
	now      func() time.Time
}

// Option configures the in-memory backend
type Option func(*Backend)

// WithPageSize sets the maximum number of summaries per listing page
func WithPageSize(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.pageSize = n
		}
	}
}

// WithBaseURL sets the base of links returned by Presign
func WithBaseURL(u string) Option {
	return func(b *Backend) {
		b.baseURL = strings.TrimRight(u, "/")
	}
}

// WithClock replaces time.Now for modification times and link expiry
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a new in-memory storage backend
func New(opts ...Option) *Backend {
	b := &Backend{
		objects:  make(map[string]object),
		pageSize: DefaultPageSize,
		baseURL:  "memory://",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ resourcestore.Gateway = (*Backend)(nil)

// ListPage returns up to pageSize summaries with keys after token, in key order.
// The token is the last key of the previous page.
func (b *Backend) ListPage(ctx context.Context, prefix, token string) (resourcestore.Page, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0)
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) && key > token {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var page resourcestore.Page
	if len(keys) > b.pageSize {
		keys = keys[:b.pageSize]
		page.NextToken = keys[len(keys)-1]
	}

	page.Summaries = make([]resourcestore.ObjectSummary, 0, len(keys))
	for _, key := range keys {
		obj := b.objects[key]
		page.Summaries = append(page.Summaries, resourcestore.ObjectSummary{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
			ETag:         obj.etag,
		})
	}
	return page, nil
}

// Get returns a copy of the stored bytes
func (b *Backend) Get(ctx context.Context, key string) (*resourcestore.Object, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, resourcestore.NotFound(backendName, "get", key)
	}

	data := bytes.Clone(obj.data)
	return &resourcestore.Object{
		Key:         key,
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: obj.contentType,
		Size:        int64(len(data)),
	}, nil
}

// Put stores a copy of data, replacing any previous value
func (b *Backend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return resourcestore.Unavailable(backendName, "put", key, errors.New("empty key"))
	}
	if contentType == "" {
		contentType = resourcestore.DefaultContentType
	}
	sum := md5.Sum(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = object{
		data:         bytes.Clone(data),
		contentType:  contentType,
		lastModified: b.now().UTC(),
		etag:         hex.EncodeToString(sum[:]),
	}
	return nil
}

// Delete removes key; missing keys are ignored
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, key)
	return nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.objects[key]
	return exists, nil
}

// Presign returns an unsigned link carrying the expiry; the memory backend
// has nothing to authenticate against.
func (b *Backend) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	expires := b.now().Add(resourcestore.ClampTTL(ttl)).Unix()
	return fmt.Sprintf("%s/%s?expires=%d", b.baseURL, url.PathEscape(key), expires), nil
}

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
