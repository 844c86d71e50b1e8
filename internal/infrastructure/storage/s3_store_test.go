package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/erp/invoicerouter/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is a minimal path-style S3 endpoint: PUT, GET and HEAD on
// /{bucket}/{key} plus HEAD/PUT on /{bucket}.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3(t *testing.T, buckets ...string) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{
		buckets: map[string]bool{},
		objects: map[string][]byte{},
		types:   map[string]string{},
	}
	for _, b := range buckets {
		f.buckets[b] = true
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(p, "/")

	if key == "" {
		switch r.Method {
		case http.MethodHead:
			if !f.buckets[bucket] {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			f.buckets[bucket] = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[p] = body
		f.types[p] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := f.objects[p]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[p]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func testStorageConfig(endpoint string) *config.StorageConfig {
	return &config.StorageConfig{
		Enabled:      true,
		Endpoint:     endpoint,
		Region:       "us-east-1",
		Bucket:       "audit-bucket",
		AccessKey:    "test-key",
		SecretKey:    "test-secret",
		UsePathStyle: true,
	}
}

func TestNewS3ArtifactStore_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("nil config", func(t *testing.T) {
		_, err := NewS3ArtifactStore(ctx, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, err := NewS3ArtifactStore(ctx, &config.StorageConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("half of a key pair", func(t *testing.T) {
		_, err := NewS3ArtifactStore(ctx, &config.StorageConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "set together")
	})

	t.Run("valid config", func(t *testing.T) {
		s, err := NewS3ArtifactStore(ctx, testStorageConfig("localhost:9000"))
		require.NoError(t, err)
		assert.Equal(t, "audit-bucket", s.Bucket())
	})
}

func TestS3ArtifactStore_RoundTrip(t *testing.T) {
	fake, srv := newFakeS3(t, "audit-bucket")
	ctx := context.Background()

	s, err := NewS3ArtifactStore(ctx, testStorageConfig(srv.URL))
	require.NoError(t, err)

	key := AuditKey("audit", "batch-1", 0, "doc-001")
	require.NoError(t, s.PutObject(ctx, key, []byte(`{"doc_id":"doc-001"}`), "application/json"))

	fake.mu.Lock()
	assert.Equal(t, `{"doc_id":"doc-001"}`, string(fake.objects["audit-bucket/"+key]))
	assert.Equal(t, "application/json", fake.types["audit-bucket/"+key])
	fake.mu.Unlock()

	exists, err := s.ObjectExists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := s.GetObject(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc_id":"doc-001"}`, string(data))

	exists, err = s.ObjectExists(ctx, "audit/batch-1/missing.json")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.GetObject(ctx, "audit/batch-1/missing.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.Error(t, s.PutObject(ctx, "", nil, "application/json"))
}

func TestS3ArtifactStore_EnsureBucket(t *testing.T) {
	fake, srv := newFakeS3(t)
	ctx := context.Background()

	s, err := NewS3ArtifactStore(ctx, testStorageConfig(srv.URL))
	require.NoError(t, err)

	require.NoError(t, s.EnsureBucket(ctx))
	fake.mu.Lock()
	assert.True(t, fake.buckets["audit-bucket"])
	fake.mu.Unlock()

	// already present
	require.NoError(t, s.EnsureBucket(ctx))
}

func TestAuditKey(t *testing.T) {
	assert.Equal(t, "audit/batch-1/0000-doc-1.json", AuditKey("audit", "batch-1", 0, "doc-1"))
	assert.Equal(t, "audit/batch-1/0012-__etc_passwd.json", AuditKey("audit", "batch-1", 12, "../etc/passwd"))
	assert.Equal(t, "batch-1/0001-doc_2.json", AuditKey("", "batch-1", 1, "doc 2"))
	assert.Equal(t, "audit/single/doc-1.json", AuditKey("audit", "single", -1, "doc-1"))
	assert.Equal(t, "audit/b/0002-_summary.json", AuditKey("audit", "b", 2, "_summary"))
	assert.NotEqual(t, AuditKey("audit", "b", 3, "a/b"), AuditKey("audit", "b", 4, "a_b"))
	assert.Equal(t, "audit/batch-1/_summary.json", SummaryKey("audit", "batch-1"))
}

func TestMemoryArtifactStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryArtifactStore()

	data := []byte(`{"a":1}`)
	require.NoError(t, m.PutObject(ctx, "b/k2.json", data, "application/json"))
	require.NoError(t, m.PutObject(ctx, "b/k1.json", data, "application/json"))
	data[0] = 'X'

	got, err := m.GetObject(ctx, "b/k2.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
	assert.Equal(t, "application/json", m.ContentType("b/k2.json"))
	assert.Equal(t, []string{"b/k1.json", "b/k2.json"}, m.Keys())

	ok, _ := m.ObjectExists(ctx, "b/nope.json")
	assert.False(t, ok)
	_, err = m.GetObject(ctx, "b/nope.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Error(t, m.PutObject(ctx, "", data, ""))
}
