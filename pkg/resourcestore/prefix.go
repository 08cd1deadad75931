package resourcestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Prefixer derives the emulated folder prefix for an owner. Implementations
// must be deterministic and injective, and every prefix must end with
// Delimiter so no owner's prefix is a string prefix of another's.
type Prefixer interface {
	Prefix(ownerID uint64) string
}

// PrefixFunc adapts a plain function to the Prefixer interface.
type PrefixFunc func(ownerID uint64) string

func (f PrefixFunc) Prefix(ownerID uint64) string {
	return f(ownerID)
}

// FormatPrefixer formats the owner ID into a literal template such as
// "venues/%d/".
type FormatPrefixer struct {
	template string
}

// NewFormatPrefixer validates template and returns a FormatPrefixer.
// The template must contain exactly one %d verb, no other verbs, must end
// with Delimiter, and the text following %d must not start with a digit.
func NewFormatPrefixer(template string) (*FormatPrefixer, error) {
	if strings.Count(template, "%") != 1 || strings.Count(template, "%d") != 1 {
		return nil, fmt.Errorf("%w: %q must contain exactly one %%d", ErrInvalidPrefix, template)
	}
	if !strings.HasSuffix(template, Delimiter) {
		return nil, fmt.Errorf("%w: %q must end with %q", ErrInvalidPrefix, template, Delimiter)
	}
	rest := template[strings.Index(template, "%d")+2:]
	if rest[0] >= '0' && rest[0] <= '9' {
		return nil, fmt.Errorf("%w: %q must not follow %%d with a digit", ErrInvalidPrefix, template)
	}
	return &FormatPrefixer{template: template}, nil
}

// MustFormatPrefixer is like NewFormatPrefixer but panics on an invalid template.
func MustFormatPrefixer(template string) *FormatPrefixer {
	p, err := NewFormatPrefixer(template)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *FormatPrefixer) Prefix(ownerID uint64) string {
	return fmt.Sprintf(p.template, ownerID)
}

// ShardedPrefixer spreads owners over hash-derived shard directories:
//
//	{root}/{shard}/{ownerID}/
//
// The decimal owner ID stays the last segment, which keeps the mapping
// injective regardless of shard collisions.
type ShardedPrefixer struct {
	Root        string
	ShardLength int
}

// NewShardedPrefixer returns a ShardedPrefixer with two-character shards.
func NewShardedPrefixer(root string) *ShardedPrefixer {
	return &ShardedPrefixer{
		Root:        strings.Trim(root, Delimiter),
		ShardLength: 2,
	}
}

func (p *ShardedPrefixer) Prefix(ownerID uint64) string {
	id := strconv.FormatUint(ownerID, 10)
	sum := sha256.Sum256([]byte(id))
	shard := hex.EncodeToString(sum[:])

	n := p.ShardLength
	if n <= 0 {
		n = 2
	}
	if n > len(shard) {
		n = len(shard)
	}

	var b strings.Builder
	if p.Root != "" {
		b.WriteString(p.Root)
		b.WriteString(Delimiter)
	}
	b.WriteString(shard[:n])
	b.WriteString(Delimiter)
	b.WriteString(id)
	b.WriteString(Delimiter)
	return b.String()
}

// Codec converts between (owner ID, relative name) pairs and namespace keys.
type Codec struct {
	prefixer Prefixer
}

// NewCodec returns a Codec backed by prefixer.
func NewCodec(prefixer Prefixer) Codec {
	return Codec{prefixer: prefixer}
}

// Prefix returns the emulated folder for ownerID.
func (c Codec) Prefix(ownerID uint64) string {
	return c.prefixer.Prefix(ownerID)
}

// Join returns the namespace key of name inside ownerID's folder.
func (c Codec) Join(ownerID uint64, name string) string {
	return c.Prefix(ownerID) + name
}

// Strip removes ownerID's prefix from the start of fullKey. Keys that do not
// start with the prefix are returned unchanged.
func (c Codec) Strip(ownerID uint64, fullKey string) string {
	if rest, ok := strings.CutPrefix(fullKey, c.Prefix(ownerID)); ok {
		return rest
	}
	return fullKey
}
