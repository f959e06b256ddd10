package storeapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/canonical/store-api-go/cache"
	"github.com/cockroachdb/errors"
)

// DefaultRecommendationsURL is the public snap recommendations service.
const DefaultRecommendationsURL = "https://recommendations.snapcraft.io/api/"

// Category ids the recommendations service always serves.
const (
	CategoryPopular   = "popular"
	CategoryRecent    = "recent"
	CategoryTrending  = "trending"
	CategoryTopRated  = "top_rated"
	defaultPage       = 1
	defaultPageSize   = 10
	recommendationsNS = "recommendations"
)

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type SnapDetails struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
}

// RankedSnap is one entry of a category listing.
type RankedSnap struct {
	SnapID  string      `json:"snap_id"`
	Rank    float64     `json:"rank"`
	Details SnapDetails `json:"details"`
}

type UpdatedSnap struct {
	Name        string `json:"name"`
	SnapID      string `json:"snap_id"`
	Title       string `json:"title,omitempty"`
	Summary     string `json:"summary,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// RecentlyUpdatedPage is one page of the recently updated listing.
type RecentlyUpdatedPage struct {
	Page  int           `json:"page"`
	Size  int           `json:"size"`
	Snaps []UpdatedSnap `json:"snaps"`
}

// RequireSuccess is a ResponseProcessor for services that report failures
// only through the status code. 5xx statuses map like StatusError, 404 to
// ErrResourceNotFound and any other status of 400 and above to a
// *ResponseError. A successful body must be JSON.
func RequireSuccess(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()

	if err := StatusError(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(ErrResourceNotFound, "%s", requestPath(resp))
	}
	if !ok(resp.StatusCode) {
		return nil, &ResponseError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.WithSecondaryError(errors.Wrap(ErrConnection, "read body"), err)
	}
	if !json.Valid(body) {
		return nil, errors.Wrapf(ErrResponseDecode, "%s: invalid JSON", requestPath(resp))
	}
	return body, nil
}

func requestPath(resp *http.Response) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return "response"
	}
	return resp.Request.URL.Path
}

// Recommendations reads the snap recommendations service. When a cache is
// configured every listing is cached for the configured TTL.
type Recommendations struct {
	client *Client
	cache  *cache.FallbackCache
	ttl    time.Duration
}

type RecommendationsOption func(*Recommendations)

// WithCache caches listings in c for ttl. A zero ttl uses the cache default.
func WithCache(c *cache.FallbackCache, ttl time.Duration) RecommendationsOption {
	return func(r *Recommendations) {
		r.cache = c
		r.ttl = ttl
	}
}

// NewRecommendations wraps client. Build client with
// WithResponseProcessor(RequireSuccess), which NewRecommendationsClient does.
func NewRecommendations(client *Client, opts ...RecommendationsOption) *Recommendations {
	r := &Recommendations{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRecommendationsClient returns a Client for the service at baseURL, or
// DefaultRecommendationsURL when baseURL is empty.
func NewRecommendationsClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultRecommendationsURL
	}
	return NewClient(baseURL, append([]ClientOption{WithResponseProcessor(RequireSuccess)}, opts...)...)
}

func (r *Recommendations) Categories(ctx context.Context) ([]Category, error) {
	return fetch[[]Category](ctx, r, "categories", nil)
}

// Category returns the snaps ranked in the category with the given id.
func (r *Recommendations) Category(ctx context.Context, id string) ([]RankedSnap, error) {
	if id == "" {
		return nil, errors.New("category id is required")
	}
	return fetch[[]RankedSnap](ctx, r, "category/"+url.PathEscape(id), nil)
}

func (r *Recommendations) Popular(ctx context.Context) ([]RankedSnap, error) {
	return r.Category(ctx, CategoryPopular)
}

func (r *Recommendations) Recent(ctx context.Context) ([]RankedSnap, error) {
	return r.Category(ctx, CategoryRecent)
}

func (r *Recommendations) Trending(ctx context.Context) ([]RankedSnap, error) {
	return r.Category(ctx, CategoryTrending)
}

func (r *Recommendations) TopRated(ctx context.Context) ([]RankedSnap, error) {
	return r.Category(ctx, CategoryTopRated)
}

// RecentlyUpdated returns one page of recently updated snaps. A page or
// size below 1 falls back to page 1 of 10.
func (r *Recommendations) RecentlyUpdated(ctx context.Context, page, size int) (RecentlyUpdatedPage, error) {
	if page < 1 {
		page = defaultPage
	}
	if size < 1 {
		size = defaultPageSize
	}
	query := url.Values{
		"page": {strconv.Itoa(page)},
		"size": {strconv.Itoa(size)},
	}
	return fetch[RecentlyUpdatedPage](ctx, r, "recently-updated", query,
		cache.Attr{Name: "page", Value: page},
		cache.Attr{Name: "size", Value: size},
	)
}

func fetch[T any](ctx context.Context, r *Recommendations, endpoint string, query url.Values, attrs ...cache.Attr) (T, error) {
	load := func(ctx context.Context) (T, bool, error) {
		var out T
		raw, err := r.client.Get(ctx, endpoint, query)
		if err != nil {
			return out, false, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, false, errors.Wrapf(ErrResponseDecode, "%s: %v", endpoint, err)
		}
		return out, true, nil
	}
	if r.cache == nil {
		out, _, err := load(ctx)
		return out, err
	}
	_, out, err := cache.Exec(ctx, r.cache, cache.ExecConfig{
		Key:     recommendationsNS + ":" + endpoint,
		Attrs:   attrs,
		Expires: r.ttl,
	}, load)
	return out, err
}
