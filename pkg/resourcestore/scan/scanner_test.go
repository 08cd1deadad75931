package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-resource/pkg/resourcestore"
	"github.com/tendant/simple-resource/pkg/resourcestore/storage/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func seed(t *testing.T, gw resourcestore.Gateway, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, gw.Put(context.Background(), fmt.Sprintf("resources/7/f%03d", i), []byte("data"), "text/plain"))
	}
	require.NoError(t, gw.Put(context.Background(), "resources/8/other", []byte("x"), ""))
}

func TestScan_ProcessesEveryObject(t *testing.T) {
	gw := memory.New(memory.WithPageSize(10))
	seed(t, gw, 25)

	var keys []string
	var progress [][2]int64
	result, err := New(gw, discard).Scan(context.Background(), Options{
		Prefix: "resources/7/",
		Processor: ProcessorFunc(func(ctx context.Context, s resourcestore.ObjectSummary) error {
			keys = append(keys, s.Key)
			return nil
		}),
		OnProgress: func(processed, found int64) {
			progress = append(progress, [2]int64{processed, found})
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(25), result.TotalFound)
	assert.Equal(t, int64(25), result.TotalProcessed)
	assert.Zero(t, result.TotalFailed)
	assert.Len(t, keys, 25)
	assert.Equal(t, [][2]int64{{10, 10}, {20, 20}, {25, 25}}, progress)
}

func TestScan_FailuresAreRecorded(t *testing.T) {
	gw := memory.New(memory.WithPageSize(4))
	seed(t, gw, 6)

	result, err := New(gw, discard).ForEach(context.Background(), "resources/7/", func(ctx context.Context, s resourcestore.ObjectSummary) error {
		if strings.HasSuffix(s.Key, "f002") || strings.HasSuffix(s.Key, "f005") {
			return errors.New("rejected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.TotalFound)
	assert.Equal(t, int64(4), result.TotalProcessed)
	assert.Equal(t, int64(2), result.TotalFailed)
	assert.Equal(t, []string{"resources/7/f002", "resources/7/f005"}, result.FailedKeys)
}

func TestScan_DryRun(t *testing.T) {
	gw := memory.New()
	seed(t, gw, 3)

	var logs bytes.Buffer
	result, err := New(gw, slog.New(slog.NewTextHandler(&logs, nil))).Scan(context.Background(), Options{
		Prefix: "resources/7/",
		DryRun: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalProcessed)
	assert.Equal(t, 3, strings.Count(logs.String(), "DRY-RUN"))

	_, err = New(gw, discard).Scan(context.Background(), Options{Prefix: "resources/7/"})
	assert.Error(t, err, "processor is required")
}

func TestScan_CanceledContext(t *testing.T) {
	gw := memory.New()
	seed(t, gw, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := New(gw, discard).ForEach(ctx, "resources/7/", func(context.Context, resourcestore.ObjectSummary) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, result.TotalProcessed)
}

// shrinkingGateway reports a listed size larger than the stored content.
type shrinkingGateway struct {
	resourcestore.Gateway
}

func (g shrinkingGateway) ListPage(ctx context.Context, prefix, token string) (resourcestore.Page, error) {
	page, err := g.Gateway.ListPage(ctx, prefix, token)
	for i := range page.Summaries {
		if strings.HasSuffix(page.Summaries[i].Key, "f001") {
			page.Summaries[i].Size++
		}
	}
	return page, err
}

func TestSizeVerifier(t *testing.T) {
	gw := shrinkingGateway{Gateway: memory.New()}
	seed(t, gw, 3)

	result, err := New(gw, discard).Scan(context.Background(), Options{
		Prefix:    "resources/",
		Processor: SizeVerifier{Gateway: gw},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.TotalFound)
	assert.Equal(t, int64(3), result.TotalProcessed)
	assert.Equal(t, []string{"resources/7/f001"}, result.FailedKeys)

	err = SizeVerifier{Gateway: gw}.Process(context.Background(), resourcestore.ObjectSummary{Key: "resources/9/missing"})
	assert.True(t, resourcestore.IsNotFound(err))
}
