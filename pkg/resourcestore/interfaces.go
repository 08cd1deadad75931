package resourcestore

import (
	"context"
	"io"
	"time"
)

// Gateway is the thin synchronous interface over a backend's object
// operations. It is the only layer that talks to the network. Each method
// performs exactly one backend call.
type Gateway interface {
	// ListPage returns one page of summaries under prefix. Pass the returned
	// NextToken back in until it comes back empty.
	ListPage(ctx context.Context, prefix, token string) (Page, error)

	// Get opens the object at key. Missing keys yield an error wrapping
	// ErrNotFound; backend failures wrap ErrUnavailable.
	Get(ctx context.Context, key string) (*Object, error)

	// Put unconditionally overwrites the object at key.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Delete removes the object at key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds an object. Absence is (false, nil).
	Exists(ctx context.Context, key string) (bool, error)

	// Presign issues a credential-free read URL for key valid for ttl, clamped
	// with ClampTTL. It does not check that the object exists.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Resolver is the capability surface every storage variant (object store,
// local disk, CDN) exposes to the application. Store implements it on top of
// any Gateway.
type Resolver interface {
	Exists(ctx context.Context, key string) (bool, error)
	ExistsIn(ctx context.Context, ownerID uint64, name string) (bool, error)

	Get(ctx context.Context, key string) (*Object, bool, error)
	GetIn(ctx context.Context, ownerID uint64, name string) (*Object, bool, error)

	ResourcesSummary(ctx context.Context, contentType ContentFileType, directory string) ([]FileItem, error)
	SummarizedResources(ctx context.Context, filePath string) ([]FileItem, error)

	PutMarker(ctx context.Context, key string) error
	PutBytes(ctx context.Context, key string, data []byte, mimeType string) error
	Put(ctx context.Context, key, mimeType string, r io.Reader) error
	PutIn(ctx context.Context, ownerID uint64, name, mimeType string, r io.Reader) error
	PutBase64In(ctx context.Context, ownerID uint64, name, mimeType, data string) error

	Delete(ctx context.Context, key string) error
	DeleteIn(ctx context.Context, ownerID uint64, name string) error
	DeleteDirectory(ctx context.Context, prefix string) error

	Copy(ctx context.Context, contentType ContentFileType, src, dst string) error

	RelativePath(contentType ContentFileType, path string) string
	RelativePathWithFileName(contentType ContentFileType, name, subDir string) string

	ShareableURL(ctx context.Context, key string) (string, error)
}
