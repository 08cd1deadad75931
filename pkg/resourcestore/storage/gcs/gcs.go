package gcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/tendant/simple-resource/pkg/resourcestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const backendName = "gcs"

// DefaultPageSize is the number of objects requested per listing call.
const DefaultPageSize = 1000

// Config options for the GCS backend
type Config struct {
	Bucket          string // GCS bucket name
	Endpoint        string // Optional endpoint for emulators such as fake-gcs-server
	CredentialsFile string // Optional service account key file
	PageSize        int    // Objects per listing page (0: DefaultPageSize)

	// Signing identity for Presign. Both are optional when the client's
	// credentials can sign on their own.
	GoogleAccessID string
	PrivateKey     []byte
}

// Backend is a Google Cloud Storage implementation of the resourcestore.Gateway interface
type Backend struct {
	client *storage.Client
	bucket *storage.BucketHandle
	config Config
	logger *slog.Logger
}

var _ resourcestore.Gateway = (*Backend)(nil)

// Option configures the GCS backend
type Option func(*Backend)

// WithLogger sets the logger used to report backend failures
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a GCS backend with its own client.
func New(ctx context.Context, config Config, opts ...Option) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	var clientOpts []option.ClientOption
	if config.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(config.Endpoint))
	}
	switch {
	case config.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(config.CredentialsFile))
	case config.Endpoint != "":
		// Emulators do not authenticate.
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return NewWithClient(client, config, opts...)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *storage.Client, config Config, opts ...Option) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}

	b := &Backend{
		client: client,
		bucket: client.Bucket(config.Bucket),
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) fail(op, key, message string, err error) error {
	b.logger.Error(message, "backend", backendName, "bucket", b.config.Bucket, "key", key, "error", err)
	return resourcestore.Unavailable(backendName, op, key, err)
}

// ListPage lists one page of objects under prefix. The token is the GCS page token.
func (b *Backend) ListPage(ctx context.Context, prefix, token string) (resourcestore.Page, error) {
	query := &storage.Query{Prefix: prefix}
	if err := query.SetAttrSelection([]string{"Name", "Size", "Updated", "Etag"}); err != nil {
		return resourcestore.Page{}, b.fail("list", prefix, "Error occurred while building GCS query", err)
	}

	var attrs []*storage.ObjectAttrs
	pager := iterator.NewPager(b.bucket.Objects(ctx, query), b.config.PageSize, token)
	next, err := pager.NextPage(&attrs)
	if err != nil {
		return resourcestore.Page{}, b.fail("list", prefix, "Error occurred while listing objects in GCS", err)
	}

	page := resourcestore.Page{
		Summaries: make([]resourcestore.ObjectSummary, 0, len(attrs)),
		NextToken: next,
	}
	for _, a := range attrs {
		page.Summaries = append(page.Summaries, resourcestore.ObjectSummary{
			Key:          a.Name,
			Size:         a.Size,
			LastModified: a.Updated,
			ETag:         a.Etag,
		})
	}
	return page, nil
}

// Get opens a reader on the object
func (b *Backend) Get(ctx context.Context, key string) (*resourcestore.Object, error) {
	r, err := b.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, resourcestore.NotFound(backendName, "get", key)
		}
		return nil, b.fail("get", key, "Error occurred while getting object from GCS", err)
	}

	contentType := r.Attrs.ContentType
	if contentType == "" {
		contentType = resourcestore.DefaultContentType
	}
	return &resourcestore.Object{
		Key:         key,
		Body:        r,
		ContentType: contentType,
		Size:        r.Attrs.Size,
	}, nil
}

// Put writes the object, overwriting any existing one
func (b *Backend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := b.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	// data is fully buffered, send it in a single request
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return b.fail("put", key, "Error occurred while uploading to GCS", err)
	}
	if err := w.Close(); err != nil {
		return b.fail("put", key, "Error occurred while uploading to GCS", err)
	}
	return nil
}

// Delete removes the object; a missing object is not an error
func (b *Backend) Delete(ctx context.Context, key string) error {
	err := b.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return b.fail("delete", key, "Error occurred while deleting the object from GCS", err)
	}
	return nil
}

// Exists checks for key by fetching its attributes
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, b.fail("exists", key, "Error occurred while checking object existence in GCS", err)
	}
	return true, nil
}

// Presign returns a V4 signed GET URL
func (b *Backend) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodGet,
		Expires:        time.Now().Add(resourcestore.ClampTTL(ttl)),
		GoogleAccessID: b.config.GoogleAccessID,
		PrivateKey:     b.config.PrivateKey,
	}
	u, err := b.bucket.SignedURL(key, opts)
	if err != nil {
		return "", b.fail("presign", key, "Error occurred while presigning GCS URL", err)
	}
	return u, nil
}
