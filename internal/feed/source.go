package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"reelfeed/internal/retry"
	"reelfeed/pkg/types"
)

// ErrNotFound is returned by FetchByID when the catalog has no such item.
var ErrNotFound = errors.New("item not found")

// Source abstracts the upstream catalog. Network details live behind it.
type Source interface {
	FetchPage(ctx context.Context, page, size int) (items []types.Item, hasMore bool, err error)
	FetchByID(ctx context.Context, id string) (types.Item, error)
}

// HTTPSource talks to a JSON catalog API:
//
//	GET {base}/feed?page=N&size=K  -> {"items":[...],"hasMore":bool}
//	GET {base}/items/{id}          -> item | 404
//
// Page fetches are rate-limited so burst scrolling cannot hammer the
// upstream, and transient failures are retried with backoff.
type HTTPSource struct {
	BaseURL string
	HTTP    *http.Client
	Limiter *rate.Limiter

	Attempts   int           // retry attempts per call (default 3)
	RetryDelay time.Duration // initial backoff delay (default 300ms)
}

func NewHTTPSource(baseURL string, client *http.Client, rps float64, burst int) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTTPSource{
		BaseURL:    baseURL,
		HTTP:       client,
		Limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		Attempts:   3,
		RetryDelay: 300 * time.Millisecond,
	}
}

type pageBody struct {
	Items   []types.Item `json:"items"`
	HasMore bool         `json:"hasMore"`
}

func (s *HTTPSource) FetchPage(ctx context.Context, page, size int) ([]types.Item, bool, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, false, err
		}
	}
	u := s.BaseURL + "/feed?page=" + strconv.Itoa(page) + "&size=" + strconv.Itoa(size)

	var body pageBody
	err := retry.DoBackoff(ctx, s.attempts(), s.retryDelay(), func(ctx context.Context) error {
		return s.getJSON(ctx, u, &body)
	})
	if err != nil {
		return nil, false, fmt.Errorf("fetch page %d: %w", page, err)
	}
	return sanitize(body.Items), body.HasMore, nil
}

func (s *HTTPSource) FetchByID(ctx context.Context, id string) (types.Item, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return types.Item{}, err
		}
	}
	u := s.BaseURL + "/items/" + url.PathEscape(id)

	var it types.Item
	var notFound bool
	err := retry.DoBackoff(ctx, s.attempts(), s.retryDelay(), func(ctx context.Context) error {
		err := s.getJSON(ctx, u, &it)
		if errors.Is(err, ErrNotFound) {
			// definitive answer, retrying will not change it
			notFound = true
			return nil
		}
		return err
	})
	if err != nil {
		return types.Item{}, fmt.Errorf("fetch item %s: %w", id, err)
	}
	if notFound {
		return types.Item{}, ErrNotFound
	}
	if got := sanitize([]types.Item{it}); len(got) == 1 {
		return got[0], nil
	}
	return types.Item{}, ErrNotFound
}

func (s *HTTPSource) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// sanitize validates items at the boundary: entries with no usable identity
// and no playable URL are dropped, unknown fields already fell away in
// decoding, and missing timestamps default to zero time.
func sanitize(items []types.Item) []types.Item {
	out := items[:0]
	for _, it := range items {
		if it.SourceURL == "" {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (s *HTTPSource) attempts() int {
	if s.Attempts > 0 {
		return s.Attempts
	}
	return 3
}

func (s *HTTPSource) retryDelay() time.Duration {
	if s.RetryDelay > 0 {
		return s.RetryDelay
	}
	return 300 * time.Millisecond
}
