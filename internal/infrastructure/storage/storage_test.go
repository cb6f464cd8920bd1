package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/flexidesk/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveKey(t *testing.T) {
	now := time.Date(2025, 1, 7, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "exports/2025/01/07/saldo-2025-01-07.csv", ArchiveKey("exports", "saldo-2025-01-07.csv", now))
	assert.Equal(t, "exports/2025/01/07/x.csv", ArchiveKey("exports/", "../../x.csv", now))
}

func TestValidKey(t *testing.T) {
	assert.True(t, validKey("exports", "exports/2025/01/07/a.csv"))
	assert.False(t, validKey("exports", ""))
	assert.False(t, validKey("exports", "other/a.csv"))
	assert.False(t, validKey("exports", "exports/../secrets"))
	assert.False(t, validKey("exports", "/exports/a.csv"))
}

func TestDisabledArchive(t *testing.T) {
	var a ExportArchive = DisabledArchive{}
	assert.False(t, a.Enabled())

	key, err := a.Store(context.Background(), "a.csv", "text/csv", []byte("x"), time.Now())
	require.NoError(t, err)
	assert.Empty(t, key)

	_, _, err = a.DownloadURL(context.Background(), "exports/a.csv")
	assert.ErrorIs(t, err, ErrArchiveDisabled)
}

func TestNewS3Archive_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3Archive(ctx, nil)
	assert.ErrorContains(t, err, "configuration is required")

	_, err = NewS3Archive(ctx, &config.StorageConfig{})
	assert.ErrorContains(t, err, "bucket is required")

	_, err = NewS3Archive(ctx, &config.StorageConfig{Bucket: "b", AccessKeyID: "only-id"})
	assert.ErrorContains(t, err, "must be set together")
}

// fakeS3 records requests and answers like a minimal S3 endpoint.
type fakeS3 struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string
	buckets  map[string]bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	switch r.Method {
	case http.MethodHead:
		if f.buckets[r.URL.Path] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 || r.Header.Get("Content-Type") == "" {
			f.buckets[r.URL.Path] = true
		} else {
			f.bodies[r.URL.Path] = string(body)
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeArchive(t *testing.T) (*S3Archive, *fakeS3) {
	t.Helper()
	fake := &fakeS3{bodies: map[string]string{}, buckets: map[string]bool{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	archive, err := NewS3Archive(context.Background(), &config.StorageConfig{
		Enabled:         true,
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		Bucket:          "flexidesk",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
		PresignExpiry:   10 * time.Minute,
	})
	require.NoError(t, err)
	return archive, fake
}

func TestS3Archive_Store(t *testing.T) {
	archive, fake := newFakeArchive(t)
	now := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)

	key, err := archive.Store(context.Background(), "parovani-2025-04-02.csv", "text/csv; charset=utf-8", []byte("a;b\r\n"), now)
	require.NoError(t, err)
	assert.Equal(t, "exports/2025/04/02/parovani-2025-04-02.csv", key)
	assert.Equal(t, "a;b\r\n", fake.bodies["/flexidesk/"+key])
	assert.True(t, archive.Enabled())
	assert.Equal(t, "flexidesk", archive.Bucket())
}

func TestS3Archive_EnsureBucket(t *testing.T) {
	archive, fake := newFakeArchive(t)

	require.NoError(t, archive.EnsureBucket(context.Background()))
	assert.Equal(t, []string{"HEAD /flexidesk", "PUT /flexidesk"}, fake.requests)

	require.NoError(t, archive.EnsureBucket(context.Background()))
	assert.Len(t, fake.requests, 3, "existing bucket is not created again")
}

func TestS3Archive_DownloadURL(t *testing.T) {
	archive, _ := newFakeArchive(t)

	raw, expiresAt, err := archive.DownloadURL(context.Background(), "exports/2025/04/02/a.xlsx")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expiresAt, 5*time.Second)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/flexidesk/exports/2025/04/02/a.xlsx", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))

	_, _, err = archive.DownloadURL(context.Background(), "private/a.xlsx")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
