package resourcestore

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Delimiter separates emulated folder levels inside a namespace key.
const Delimiter = "/"

// DefaultContentType is used when a caller stores content without a MIME type.
const DefaultContentType = "application/octet-stream"

// ObjectSummary is listing metadata for one stored object.
// Summaries are produced by gateways while listing; callers never build them.
type ObjectSummary struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

func (s ObjectSummary) String() string {
	return fmt.Sprintf("%s (%d bytes, modified %s)", s.Key, s.Size, s.LastModified.UTC().Format(time.RFC3339))
}

// Equal reports whether two summaries describe the same object state.
func (s ObjectSummary) Equal(o ObjectSummary) bool {
	return s.Key == o.Key && s.Size == o.Size && s.ETag == o.ETag && s.LastModified.Equal(o.LastModified)
}

// Page is one page of a paginated listing. An empty NextToken means the
// listing is exhausted.
type Page struct {
	Summaries []ObjectSummary
	NextToken string
}

// Object is the content of a stored resource. Body is a single-pass stream
// owned by the caller, who must close it.
type Object struct {
	Key         string
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ReadAll consumes and closes the object body.
func (o *Object) ReadAll() ([]byte, error) {
	defer o.Body.Close()
	return io.ReadAll(o.Body)
}

// FileItem is one entry of a directory summary: a backend-agnostic view of a
// stored object relative to the directory it was listed from.
type FileItem struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type,omitempty"`
}

// ContentFileType classifies resources into top-level directories.
type ContentFileType string

const (
	ContentFileTypeImage    ContentFileType = "image"
	ContentFileTypeDocument ContentFileType = "document"
	ContentFileTypeXML      ContentFileType = "xml"
	ContentFileTypeText     ContentFileType = "text"
	ContentFileTypeLog      ContentFileType = "log"
	ContentFileTypeOther    ContentFileType = "other"
)

var contentFileTypeDirs = map[ContentFileType]string{
	ContentFileTypeImage:    "images",
	ContentFileTypeDocument: "documents",
	ContentFileTypeXML:      "xml",
	ContentFileTypeText:     "text",
	ContentFileTypeLog:      "logs",
	ContentFileTypeOther:    "misc",
}

// Dir returns the top-level directory holding resources of this type.
func (t ContentFileType) Dir() string {
	if dir, ok := contentFileTypeDirs[t]; ok {
		return dir
	}
	return contentFileTypeDirs[ContentFileTypeOther]
}

// ParseContentFileType parses a content type name or its directory name.
func ParseContentFileType(s string) (ContentFileType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for t, dir := range contentFileTypeDirs {
		if v == string(t) || v == dir {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown content file type: %q", s)
}

// Presigned links are bounded by the SigV4 seven-day ceiling. A day of margin
// absorbs clock skew between the signer and whoever consumes the link.
const (
	MaxPresignTTL       = 7 * 24 * time.Hour
	PresignSafetyMargin = 24 * time.Hour
)

// ClampTTL bounds ttl to MaxPresignTTL minus PresignSafetyMargin. A
// non-positive ttl selects that ceiling.
func ClampTTL(ttl time.Duration) time.Duration {
	ceiling := MaxPresignTTL - PresignSafetyMargin
	if ttl <= 0 || ttl > ceiling {
		return ceiling
	}
	return ttl
}
