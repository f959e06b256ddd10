package storeapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/canonical/store-api-go/cache"
	"github.com/canonical/store-api-go/logger"
	"github.com/canonical/store-api-go/resilience"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recommendationsServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newRecommendationsServer(t *testing.T) *recommendationsServer {
	t.Helper()
	s := &recommendationsServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/categories", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		_, _ = io.WriteString(w, `[{"id":"popular","name":"Popular","description":"Most installed"}]`)
	})
	mux.HandleFunc("GET /api/category/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		switch r.PathValue("id") {
		case "popular", "recent", "trending", "top_rated":
			_, _ = io.WriteString(w, `[{"snap_id":"abc123","rank":1,"details":{"name":"hello","title":"Hello"}}]`)
		case "broken":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "garbled":
			_, _ = io.WriteString(w, `{"snap_id":`)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("GET /api/recently-updated", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		q := r.URL.Query()
		_, _ = io.WriteString(w, `{"page":`+q.Get("page")+`,"size":`+q.Get("size")+`,"snaps":[{"name":"hello","snap_id":"abc123"}]}`)
	})
	mux.HandleFunc("GET /api/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newTestRecommendations(t *testing.T, baseURL string, opts ...RecommendationsOption) *Recommendations {
	t.Helper()
	client, err := NewRecommendationsClient(baseURL,
		WithLogger(logger.NewTestLogger()),
		WithRetryOptions(resilience.WithLimit(2), resilience.WithDelay(resilience.NoDelay)),
	)
	require.NoError(t, err)
	return NewRecommendations(client, opts...)
}

func TestRecommendationsCategories(t *testing.T) {
	server := newRecommendationsServer(t)
	r := newTestRecommendations(t, server.URL+"/api/")

	categories, err := r.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Category{{ID: "popular", Name: "Popular", Description: "Most installed"}}, categories)
}

func TestRecommendationsRankedListings(t *testing.T) {
	server := newRecommendationsServer(t)
	r := newTestRecommendations(t, server.URL+"/api/")
	want := []RankedSnap{{SnapID: "abc123", Rank: 1, Details: SnapDetails{Name: "hello", Title: "Hello"}}}

	for name, list := range map[string]func(context.Context) ([]RankedSnap, error){
		"popular":   r.Popular,
		"recent":    r.Recent,
		"trending":  r.Trending,
		"top rated": r.TopRated,
	} {
		got, err := list(context.Background())
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestRecommendationsRecentlyUpdated(t *testing.T) {
	server := newRecommendationsServer(t)
	r := newTestRecommendations(t, server.URL+"/api/")

	page, err := r.RecentlyUpdated(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Size)
	require.Len(t, page.Snaps, 1)
	assert.Equal(t, "abc123", page.Snaps[0].SnapID)

	page, err = r.RecentlyUpdated(context.Background(), 3, 25)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 25, page.Size)
}

func TestRecommendationsErrors(t *testing.T) {
	server := newRecommendationsServer(t)
	r := newTestRecommendations(t, server.URL+"/api/")
	ctx := context.Background()

	_, err := r.Category(ctx, "unknown")
	assert.True(t, errors.Is(err, ErrResourceNotFound))

	_, err = r.Category(ctx, "broken")
	assert.True(t, errors.Is(err, ErrServiceUnavailable))

	_, err = r.Category(ctx, "garbled")
	assert.True(t, errors.Is(err, ErrResponseDecode))

	_, err = r.Category(ctx, "")
	assert.Error(t, err)

	_, err = fetch[[]Category](ctx, r, "forbidden", nil)
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusForbidden, respErr.Status)
}

func TestRecommendationsCachedLocally(t *testing.T) {
	server := newRecommendationsServer(t)
	c := cache.New(context.Background(), nil, cache.WithLogger(logger.NewTestLogger()))
	defer c.Close()
	r := newTestRecommendations(t, server.URL+"/api/", WithCache(c, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Categories(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), server.calls.Load())

	_, err := r.RecentlyUpdated(ctx, 1, 10)
	require.NoError(t, err)
	_, err = r.RecentlyUpdated(ctx, 2, 10)
	require.NoError(t, err)
	_, err = r.RecentlyUpdated(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(3), server.calls.Load())
}

func TestRecommendationsCachedInRedis(t *testing.T) {
	server := newRecommendationsServer(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.New(context.Background(), cache.NewRedis(client), cache.WithNamespace("snapcraft"))
	require.True(t, c.Available())
	r := newTestRecommendations(t, server.URL+"/api/", WithCache(c, time.Minute))

	snaps, err := r.Popular(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	key := "snapcraft:recommendations:category/popular"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	_, err = r.Popular(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), server.calls.Load())
}

func TestRecommendationsErrorsNotCached(t *testing.T) {
	server := newRecommendationsServer(t)
	c := cache.New(context.Background(), nil, cache.WithLogger(logger.NewTestLogger()))
	defer c.Close()
	r := newTestRecommendations(t, server.URL+"/api/", WithCache(c, time.Minute))

	_, err := r.Category(context.Background(), "unknown")
	require.Error(t, err)
	_, err = r.Category(context.Background(), "unknown")
	require.Error(t, err)
	assert.Equal(t, int32(2), server.calls.Load())
}
