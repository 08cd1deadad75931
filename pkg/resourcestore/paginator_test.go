package resourcestore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-resource/pkg/resourcestore"
	"github.com/tendant/simple-resource/pkg/resourcestore/storage/memory"
)

// countingGateway records ListPage calls and can inject failures.
type countingGateway struct {
	resourcestore.Gateway
	listCalls int
	listErr   error
	getErr    error
	putErr    error
	existsErr error
	deleteErr error
	puts      int
}

func (g *countingGateway) ListPage(ctx context.Context, prefix, token string) (resourcestore.Page, error) {
	g.listCalls++
	if g.listErr != nil {
		return resourcestore.Page{}, g.listErr
	}
	return g.Gateway.ListPage(ctx, prefix, token)
}

func (g *countingGateway) Get(ctx context.Context, key string) (*resourcestore.Object, error) {
	if g.getErr != nil {
		return nil, g.getErr
	}
	return g.Gateway.Get(ctx, key)
}

func (g *countingGateway) Put(ctx context.Context, key string, data []byte, contentType string) error {
	g.puts++
	if g.putErr != nil {
		return g.putErr
	}
	return g.Gateway.Put(ctx, key, data, contentType)
}

func (g *countingGateway) Exists(ctx context.Context, key string) (bool, error) {
	if g.existsErr != nil {
		return false, g.existsErr
	}
	return g.Gateway.Exists(ctx, key)
}

func (g *countingGateway) Delete(ctx context.Context, key string) error {
	if g.deleteErr != nil {
		return g.deleteErr
	}
	return g.Gateway.Delete(ctx, key)
}

// loopingGateway hands back the same continuation token forever.
type loopingGateway struct {
	resourcestore.Gateway
	calls int
}

func (g *loopingGateway) ListPage(ctx context.Context, prefix, token string) (resourcestore.Page, error) {
	g.calls++
	return resourcestore.Page{
		Summaries: []resourcestore.ObjectSummary{{Key: fmt.Sprintf("%sobj-%d", prefix, g.calls)}},
		NextToken: "same-token",
	}, nil
}

func TestListAll_Pagination(t *testing.T) {
	ctx := context.Background()
	gw := &countingGateway{Gateway: memory.New(memory.WithPageSize(100))}

	for i := 0; i < 250; i++ {
		require.NoError(t, gw.Put(ctx, fmt.Sprintf("resources/7/file-%03d.txt", i), []byte("x"), "text/plain"))
	}
	// A sibling owner whose prefix shares leading characters.
	require.NoError(t, gw.Put(ctx, "resources/70/file.txt", []byte("x"), "text/plain"))

	summaries, err := resourcestore.ListAll(ctx, gw, "resources/7/")
	require.NoError(t, err)
	assert.Len(t, summaries, 250)
	assert.Equal(t, 3, gw.listCalls)

	seen := make(map[string]struct{}, len(summaries))
	for _, s := range summaries {
		_, dup := seen[s.Key]
		require.False(t, dup, "duplicate summary %s", s.Key)
		seen[s.Key] = struct{}{}
	}
	for i := 0; i < 250; i++ {
		assert.Contains(t, seen, fmt.Sprintf("resources/7/file-%03d.txt", i))
	}
}

func TestListAll_PageBoundaries(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		objects   int
		pageSize  int
		wantCalls int
	}{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{30, 10, 3},
		{5, 1, 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.objects, tt.pageSize), func(t *testing.T) {
			gw := &countingGateway{Gateway: memory.New(memory.WithPageSize(tt.pageSize))}
			for i := 0; i < tt.objects; i++ {
				require.NoError(t, gw.Put(ctx, fmt.Sprintf("p/%04d", i), nil, ""))
			}
			summaries, err := resourcestore.ListAll(ctx, gw, "p/")
			require.NoError(t, err)
			assert.Len(t, summaries, tt.objects)
			assert.Equal(t, tt.wantCalls, gw.listCalls)
		})
	}
}

func TestListAll_EmptyPrefix(t *testing.T) {
	summaries, err := resourcestore.ListAll(context.Background(), memory.New(), "nothing/here/")
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestListAll_RepeatedToken(t *testing.T) {
	gw := &loopingGateway{Gateway: memory.New()}

	_, err := resourcestore.ListAll(context.Background(), gw, "resources/1/")
	require.Error(t, err)
	assert.ErrorIs(t, err, resourcestore.ErrUnavailable)
	assert.Equal(t, 2, gw.calls)
}

func TestListAll_PropagatesBackendError(t *testing.T) {
	cause := errors.New("connection reset")
	gw := &countingGateway{
		Gateway: memory.New(),
		listErr: resourcestore.Unavailable("memory", "list", "resources/1/", cause),
	}

	_, err := resourcestore.ListAll(context.Background(), gw, "resources/1/")
	require.Error(t, err)
	assert.ErrorIs(t, err, resourcestore.ErrUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestObjectSummary_StringAndEqual(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := resourcestore.ObjectSummary{Key: "resources/1/a.txt", Size: 3, LastModified: ts, ETag: "abc"}
	b := a
	b.LastModified = ts.In(time.FixedZone("UTC+2", 2*3600))

	assert.True(t, a.Equal(b))
	assert.Equal(t, "resources/1/a.txt (3 bytes, modified 2024-05-01T12:00:00Z)", a.String())

	b.Size = 4
	assert.False(t, a.Equal(b))
}
