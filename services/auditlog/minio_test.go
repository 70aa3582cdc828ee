package auditlog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"

	"storefront-core/pkg/errutil"
)

// objectServer is an in-memory S3 endpoint serving path-style HEAD, GET and
// PUT object requests.
type objectServer struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func (s *objectServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.objects[r.URL.Path] = body
		s.puts++
		w.Header().Set("ETag", `"`+strconv.Itoa(s.puts)+`"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		body, ok := s.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Last-Modified", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *objectServer) stored(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok
}

func (s *objectServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func newObjectTestStore(t *testing.T) (Store, *objectServer) {
	t.Helper()
	fake := &objectServer{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4("", "", ""),
		Secure:       false,
		Region:       "us-east-1",
		BucketLookup: minio.BucketLookupPath,
	})
	require.NoError(t, err)
	return NewObjectStore(client, "audit", "orders"), fake
}

func TestObjectStoreCreateAndGet(t *testing.T) {
	store, fake := newObjectTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleDoc("o1")))
	require.True(t, fake.stored("/audit/orders/o1.json"))

	doc, err := store.Get(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, "pending_payment", doc.Status)
	require.Equal(t, "123456", doc.OrderNo)
	require.Len(t, doc.Lines, 1)
	require.Equal(t, "buyer@example.com", doc.Customer["email"])
	require.Empty(t, doc.AssignedUnits)

	err = store.Create(ctx, sampleDoc("o1"))
	require.True(t, errors.Is(err, ErrExists))
}

func TestObjectStoreAppendKeepsOrderAndStatus(t *testing.T) {
	store, _ := newObjectTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, sampleDoc("o1")))

	require.NoError(t, store.Append(ctx, "o1", Entry{Status: "user_paid", Message: "paid"}))
	require.NoError(t, store.Append(ctx, "o1", Entry{Status: "shipped", Message: "K1"}))
	require.NoError(t, store.AssignUnits(ctx, "o1", []string{"K1"}))

	doc, err := store.Get(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, "shipped", doc.Status)
	require.Equal(t, "shipped", doc.LastEntry().Status)
	require.Equal(t, []string{"K1"}, doc.AssignedUnits)
	require.Len(t, doc.History, 3)
	require.Equal(t, "user_paid", doc.History[1].Status)
}

func TestObjectStoreUnknownOrder(t *testing.T) {
	store, _ := newObjectTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.True(t, errors.Is(err, ErrNotFound))
	require.True(t, errutil.IsNotFound(err))

	err = store.Append(ctx, "missing", Entry{Status: "user_paid"})
	require.True(t, errors.Is(err, ErrNotFound))

	err = store.AssignUnits(ctx, "missing", []string{"K1"})
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestObjectStoreRejectsEmptyHistory(t *testing.T) {
	store, fake := newObjectTestStore(t)

	doc := sampleDoc("o1")
	doc.History = nil
	err := store.Create(context.Background(), doc)
	require.True(t, errutil.IsValidation(err))
	require.Zero(t, fake.count())
}
