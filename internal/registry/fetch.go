package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves a JSON document by path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (any, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, path string) (any, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, path string) (any, error) { return f(ctx, path) }

// HTTPFetcher reads documents from an HTTP origin.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// Fetch issues a GET for BaseURL+path. Non-2xx responses are errors.
func (h *HTTPFetcher) Fetch(ctx context.Context, path string) (any, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimSuffix(h.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: fetch %s: %w", path, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: fetch %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("registry: fetch %s: %s", path, resp.Status)
	}
	var v any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("registry: fetch %s: decode: %w", path, err)
	}
	return v, nil
}

// fetchCache shares one retrieval per normalised path. Completed results are
// kept until forced out; failures are not cached. A retrieval stores its
// result only if no force happened for its path since it started.
type fetchCache struct {
	fetcher Fetcher
	group   singleflight.Group

	mu   sync.Mutex
	done map[string]any
	gen  map[string]uint64
}

func newFetchCache() *fetchCache {
	return &fetchCache{done: make(map[string]any), gen: make(map[string]uint64)}
}

func normalizeFetchPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

// FetchJSON retrieves the document at path through the configured Fetcher.
// Concurrent and repeated calls for the same path share one retrieval unless
// force is set, which discards the cached entry first.
func (r *Registry) FetchJSON(ctx context.Context, path string, force bool) (any, error) {
	c := r.fetch
	if c.fetcher == nil {
		return nil, fmt.Errorf("registry: fetch %s: no fetcher configured", path)
	}
	key := normalizeFetchPath(path)

	c.mu.Lock()
	if force {
		delete(c.done, key)
		c.gen[key]++
		c.group.Forget(key)
	} else if v, ok := c.done[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.Lock()
		v, ok := c.done[key]
		gen := c.gen[key]
		c.mu.Unlock()
		if ok {
			return v, nil
		}
		v, err := c.fetcher.Fetch(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen[key] == gen {
			c.done[key] = v
		}
		c.mu.Unlock()
		return v, nil
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
