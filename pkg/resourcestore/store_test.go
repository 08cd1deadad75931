package resourcestore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-resource/pkg/resourcestore"
	"github.com/tendant/simple-resource/pkg/resourcestore/storage/memory"
)

func newStore(t *testing.T, gw resourcestore.Gateway, opts ...resourcestore.Option) (*resourcestore.Store, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	base := []resourcestore.Option{
		resourcestore.WithGateway(gw),
		resourcestore.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		resourcestore.WithBackendName("memory"),
	}
	store, err := resourcestore.New(append(base, opts...)...)
	require.NoError(t, err)
	return store, &logs
}

func readObject(t *testing.T, obj *resourcestore.Object) string {
	t.Helper()
	data, err := obj.ReadAll()
	require.NoError(t, err)
	return string(data)
}

func TestNew(t *testing.T) {
	_, err := resourcestore.New()
	assert.ErrorIs(t, err, resourcestore.ErrNoGateway)

	store, _ := newStore(t, memory.New(), resourcestore.WithLinkTTL(time.Hour))
	assert.Equal(t, "resources/9/", store.Codec().Prefix(9))
	assert.Equal(t, "Store{backend=memory, linkTTL=1h0m0s}", store.String())
}

func TestStore_OwnerLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, memory.New())
	b := []byte("%PDF-1.7 quarterly report")

	require.NoError(t, store.PutIn(ctx, 42, "report.pdf", "application/pdf", bytes.NewReader(b)))

	exists, err := store.ExistsIn(ctx, 42, "report.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	names, err := store.ListNames(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"report.pdf"}, names)

	obj, found, err := store.GetIn(ctx, 42, "report.pdf")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, "resources/42/report.pdf", obj.Key)
	assert.Equal(t, string(b), readObject(t, obj))

	// Other owners see nothing.
	names, err = store.ListNames(ctx, 4)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStore_ConditionalCreate(t *testing.T) {
	ctx := context.Background()
	gw := &countingGateway{Gateway: memory.New()}
	store, _ := newStore(t, gw)

	require.NoError(t, store.PutIn(ctx, 42, "report.pdf", "application/pdf", strings.NewReader("first")))
	err := store.PutIn(ctx, 42, "report.pdf", "text/plain", strings.NewReader("second"))
	require.Error(t, err)
	assert.ErrorIs(t, err, resourcestore.ErrAlreadyExists)
	assert.Equal(t, 1, gw.puts, "a rejected create must not reach the backend")

	var se *resourcestore.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "resources/42/report.pdf", se.Key)
	assert.Equal(t, "put", se.Op)
	assert.Contains(t, err.Error(), "resources/42/report.pdf")

	obj, found, err := store.GetIn(ctx, 42, "report.pdf")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, "first", readObject(t, obj))

	// Markers and raw byte writes are conditional too.
	require.NoError(t, store.PutMarker(ctx, "resources/42/folder/"))
	assert.ErrorIs(t, store.PutMarker(ctx, "resources/42/folder/"), resourcestore.ErrAlreadyExists)
	assert.ErrorIs(t, store.PutBytes(ctx, "resources/42/report.pdf", []byte("x"), "text/plain"), resourcestore.ErrAlreadyExists)
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newStore(t, memory.New())

	obj, found, err := store.Get(context.Background(), "missing/key.txt")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, obj)
}

func TestStore_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, memory.New())

	require.NoError(t, store.Delete(ctx, "never/written"))
	require.NoError(t, store.DeleteIn(ctx, 3, "never-written"))

	require.NoError(t, store.PutBytes(ctx, "resources/3/a.txt", []byte("a"), "text/plain"))
	require.NoError(t, store.DeleteIn(ctx, 3, "a.txt"))
	exists, err := store.Exists(ctx, "resources/3/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.DeleteIn(ctx, 3, "a.txt"))
}

func TestStore_DefaultContentType(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, memory.New())

	require.NoError(t, store.Put(ctx, "resources/1/blob", "", strings.NewReader("raw")))
	obj, found, err := store.Get(ctx, "resources/1/blob")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, resourcestore.DefaultContentType, obj.ContentType)
	require.NoError(t, obj.Body.Close())
}

func TestStore_PutBase64In(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		data string
	}{
		{"Plain", "aGVsbG8gd29ybGQ="},
		{"Unpadded", "aGVsbG8gd29ybGQ"},
		{"DataURI", "data:text/plain;base64,aGVsbG8gd29ybGQ="},
		{"Wrapped", "aGVsbG8g\nd29ybGQ="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newStore(t, memory.New())
			require.NoError(t, store.PutBase64In(ctx, 5, "hello.txt", "text/plain", tt.data))

			obj, found, err := store.GetIn(ctx, 5, "hello.txt")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "hello world", readObject(t, obj))
		})
	}

	t.Run("URLSafe", func(t *testing.T) {
		decoded, err := resourcestore.DecodeBase64("-_8=")
		require.NoError(t, err)
		assert.Equal(t, []byte{0xfb, 0xff}, decoded)
	})

	t.Run("MalformedIsSkipped", func(t *testing.T) {
		gw := &countingGateway{Gateway: memory.New()}
		store, logs := newStore(t, gw)

		err := store.PutBase64In(ctx, 5, "broken.png", "image/png", "data:image/png;base64,@@not base64@@")
		require.NoError(t, err)
		assert.Equal(t, 0, gw.puts)
		assert.Contains(t, logs.String(), "level=WARN")
		assert.Contains(t, logs.String(), "resources/5/broken.png")

		exists, err := store.ExistsIn(ctx, 5, "broken.png")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = resourcestore.DecodeBase64("@@")
		assert.ErrorIs(t, err, resourcestore.ErrMalformed)
	})
}

func TestStore_UnreadableStreamIsSkipped(t *testing.T) {
	ctx := context.Background()
	gw := &countingGateway{Gateway: memory.New()}
	store, logs := newStore(t, gw)

	err := store.Put(ctx, "resources/1/a.bin", "", iotest.ErrReader(errors.New("disk gone")))
	require.NoError(t, err)
	assert.Equal(t, 0, gw.puts)
	assert.Contains(t, logs.String(), "disk gone")
}

func TestStore_BackendFailuresPropagate(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("throttled")
	unavailable := resourcestore.Unavailable("memory", "op", "resources/1/a.txt", cause)

	tests := []struct {
		name string
		gw   *countingGateway
		call func(s *resourcestore.Store) error
	}{
		{"Exists", &countingGateway{existsErr: unavailable}, func(s *resourcestore.Store) error {
			_, err := s.ExistsIn(ctx, 1, "a.txt")
			return err
		}},
		{"Get", &countingGateway{getErr: unavailable}, func(s *resourcestore.Store) error {
			_, found, err := s.GetIn(ctx, 1, "a.txt")
			assert.False(t, found)
			return err
		}},
		{"PutExistsCheck", &countingGateway{existsErr: unavailable}, func(s *resourcestore.Store) error {
			return s.PutBytes(ctx, "resources/1/a.txt", []byte("a"), "")
		}},
		{"PutWrite", &countingGateway{putErr: unavailable}, func(s *resourcestore.Store) error {
			return s.PutBase64In(ctx, 1, "a.txt", "", "YQ==")
		}},
		{"Delete", &countingGateway{deleteErr: unavailable}, func(s *resourcestore.Store) error {
			return s.DeleteIn(ctx, 1, "a.txt")
		}},
		{"List", &countingGateway{listErr: unavailable}, func(s *resourcestore.Store) error {
			_, err := s.ListNames(ctx, 1)
			return err
		}},
		{"DeleteDirectory", &countingGateway{listErr: unavailable}, func(s *resourcestore.Store) error {
			return s.DeleteDirectory(ctx, "resources/1/")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.gw.Gateway = memory.New()
			store, _ := newStore(t, tt.gw)

			err := tt.call(store)
			require.Error(t, err)
			assert.ErrorIs(t, err, resourcestore.ErrUnavailable)
			assert.ErrorIs(t, err, cause)
			assert.NotErrorIs(t, err, resourcestore.ErrNotFound)
			assert.NotErrorIs(t, err, resourcestore.ErrAlreadyExists)
		})
	}
}

func TestStore_ListSummaries(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, memory.New(memory.WithPageSize(2)),
		resourcestore.WithPrefixer(resourcestore.MustFormatPrefixer("venues/%d/")))

	for _, name := range []string{"a.txt", "b.txt", "img/c.png", "img/"} {
		require.NoError(t, store.PutBytes(ctx, "venues/8/"+name, []byte(name), ""))
	}
	require.NoError(t, store.PutBytes(ctx, "venues/80/z.txt", []byte("z"), ""))

	summaries, err := store.ListSummaries(ctx, 8)
	require.NoError(t, err)
	require.Len(t, summaries, 4)
	for _, s := range summaries {
		assert.True(t, strings.HasPrefix(s.Key, "venues/8/"), s.Key)
		assert.Equal(t, int64(len(strings.TrimPrefix(s.Key, "venues/8/"))), s.Size)
	}

	byPrefix, err := store.ListSummariesByPrefix(ctx, "venues/8/img/")
	require.NoError(t, err)
	assert.Len(t, byPrefix, 2)

	names, err := store.ListNames(ctx, 8)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt", "img/c.png", "img/"}, names)
}

func TestStore_DeleteDirectory(t *testing.T) {
	ctx := context.Background()
	gw := memory.New(memory.WithPageSize(3))
	store, _ := newStore(t, gw)

	for i := 0; i < 10; i++ {
		require.NoError(t, store.PutBytes(ctx, "resources/1/dir/f"+strconv.Itoa(i), []byte("x"), ""))
	}
	require.NoError(t, store.PutBytes(ctx, "resources/1/keep.txt", []byte("x"), ""))

	require.NoError(t, store.DeleteDirectory(ctx, "resources/1/dir/"))
	assert.Equal(t, 1, gw.Len())

	// Nothing left to delete is not an error.
	require.NoError(t, store.DeleteDirectory(ctx, "resources/1/dir/"))
	assert.ErrorIs(t, store.DeleteDirectory(ctx, ""), resourcestore.ErrInvalidPrefix)
	assert.Equal(t, 1, gw.Len())
}

func TestStore_Copy(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, memory.New())

	require.NoError(t, store.PutBytes(ctx, "images/venue/logo.png", []byte("png"), "image/png"))

	require.NoError(t, store.Copy(ctx, resourcestore.ContentFileTypeImage, "venue/logo.png", "/archive/logo.png"))
	obj, found, err := store.Get(ctx, "images/archive/logo.png")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, "png", readObject(t, obj))

	err = store.Copy(ctx, resourcestore.ContentFileTypeImage, "venue/logo.png", "archive/logo.png")
	assert.ErrorIs(t, err, resourcestore.ErrAlreadyExists)

	err = store.Copy(ctx, resourcestore.ContentFileTypeImage, "venue/missing.png", "archive/missing.png")
	assert.ErrorIs(t, err, resourcestore.ErrNotFound)
	assert.True(t, resourcestore.IsNotFound(err))
}

func TestStore_DirectorySummary(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, memory.New(memory.WithPageSize(2)))

	require.NoError(t, store.PutMarker(ctx, "documents/menus/"))
	require.NoError(t, store.PutBytes(ctx, "documents/menus/lunch.pdf", []byte("lunch"), "application/pdf"))
	require.NoError(t, store.PutBytes(ctx, "documents/menus/brunch.pdf", []byte("br"), "application/pdf"))
	require.NoError(t, store.PutBytes(ctx, "documents/menus/old/dinner.txt", []byte("d"), "text/plain"))
	require.NoError(t, store.PutBytes(ctx, "documents/menus-2/x.pdf", []byte("x"), "application/pdf"))

	items, err := store.ResourcesSummary(ctx, resourcestore.ContentFileTypeDocument, "menus")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "brunch.pdf", items[0].Name)
	assert.Equal(t, "documents/menus/brunch.pdf", items[0].Path)
	assert.Equal(t, int64(2), items[0].Size)
	assert.Equal(t, "application/pdf", items[0].ContentType)
	assert.Equal(t, "lunch.pdf", items[1].Name)
	assert.Equal(t, "old/dinner.txt", items[2].Name)

	items, err = store.SummarizedResources(ctx, "documents/menus/l")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "lunch.pdf", items[0].Name)

	items, err = store.ResourcesSummary(ctx, resourcestore.ContentFileTypeLog, "")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStore_Paths(t *testing.T) {
	store, _ := newStore(t, memory.New())

	assert.Equal(t, "images/venue/logo.png", store.RelativePath(resourcestore.ContentFileTypeImage, "venue/logo.png"))
	assert.Equal(t, "logs/app.log", store.RelativePath(resourcestore.ContentFileTypeLog, "/app.log"))
	assert.Equal(t, "documents/menus/a.pdf", store.RelativePathWithFileName(resourcestore.ContentFileTypeDocument, "a.pdf", "/menus/"))
	assert.Equal(t, "misc/a.bin", store.RelativePathWithFileName(resourcestore.ContentFileTypeOther, "a.bin", ""))
	assert.Equal(t, "misc", resourcestore.ContentFileType("unknown").Dir())
}

func TestParseContentFileType(t *testing.T) {
	tests := map[string]resourcestore.ContentFileType{
		"image":     resourcestore.ContentFileTypeImage,
		"images":    resourcestore.ContentFileTypeImage,
		" Document": resourcestore.ContentFileTypeDocument,
		"logs":      resourcestore.ContentFileTypeLog,
		"misc":      resourcestore.ContentFileTypeOther,
		"xml":       resourcestore.ContentFileTypeXML,
	}
	for in, want := range tests {
		got, err := resourcestore.ParseContentFileType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := resourcestore.ParseContentFileType("video")
	assert.Error(t, err)
}

func TestStore_ShareableURL(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store, _ := newStore(t, memory.New(), resourcestore.WithLinkTTL(2*time.Hour))

	expiry := func(link string) time.Time {
		u, err := url.Parse(link)
		require.NoError(t, err)
		sec, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
		require.NoError(t, err)
		return time.Unix(sec, 0)
	}

	link, err := store.ShareableURL(ctx, "resources/1/a.txt")
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(2*time.Hour), expiry(link), 5*time.Second)

	link, err = store.ShareableURLFor(ctx, "resources/1/a.txt", 30*24*time.Hour)
	require.NoError(t, err)
	ceiling := resourcestore.MaxPresignTTL - resourcestore.PresignSafetyMargin
	assert.False(t, expiry(link).After(time.Now().Add(ceiling)), "link outlives the presign ceiling")
	assert.WithinDuration(t, now.Add(ceiling), expiry(link), 5*time.Second)
}

func TestClampTTL(t *testing.T) {
	ceiling := 6 * 24 * time.Hour
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, ceiling},
		{-time.Minute, ceiling},
		{time.Minute, time.Minute},
		{ceiling, ceiling},
		{ceiling + time.Second, ceiling},
		{resourcestore.MaxPresignTTL, ceiling},
		{365 * 24 * time.Hour, ceiling},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resourcestore.ClampTTL(tt.in), tt.in.String())
	}
}

func TestStore_ConcurrentDistinctKeys(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, memory.New(memory.WithPageSize(7)))

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.PutIn(ctx, 11, "f"+strconv.Itoa(i), "text/plain", strings.NewReader("x"))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	names, err := store.ListNames(ctx, 11)
	require.NoError(t, err)
	assert.Len(t, names, 50)
}

func TestStorageError(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := resourcestore.Unavailable("s3", "get", "resources/1/a", cause)

	assert.Equal(t, "storage operation get failed for key resources/1/a on backend s3: storage backend unavailable: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, resourcestore.ErrUnavailable)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	nf := resourcestore.NotFound("fs", "get", "resources/1/b")
	assert.Equal(t, "storage operation get failed for key resources/1/b on backend fs: resource not found", nf.Error())
	assert.True(t, resourcestore.IsNotFound(nf))
	assert.False(t, resourcestore.IsNotFound(err))
}
