package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/electoral-office/fieldsync/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// CachePrefix namespaces versioned caches; activation prunes any other
// version under it.
const CachePrefix = "fieldsync-"

const (
	shellPath   = "/dashboard/"
	offlinePath = "/offline/"
)

var staticExtensions = []string{
	".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".woff", ".woff2", ".ttf", ".webp",
}

// Gateway proxies requests to the upstream server, applying a caching
// strategy per request class so pages and assets stay usable offline.
type Gateway struct {
	upstream *url.URL
	cache    *CacheStore
	client   *http.Client
	log      logging.Logger
}

func New(upstream string, cache *CacheStore, log logging.Logger) (*Gateway, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", upstream, err)
	}

	return &Gateway{
		upstream: u,
		cache:    cache,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log.With("component", "gateway"),
	}, nil
}

// Activate prunes caches left over from previous versions.
func (g *Gateway) Activate(ctx context.Context) error {
	_, err := g.cache.PruneOldVersions(ctx, CachePrefix)
	return err
}

// Warm best-effort precaches the given paths. Failures are logged and
// skipped, matching install-time shell caching.
func (g *Gateway) Warm(ctx context.Context, paths []string) {
	for _, p := range paths {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p, nil)
		if err != nil {
			continue
		}
		resp, err := g.fetch(req)
		if err != nil || !responseOK(resp.Status) {
			g.log.Warn(ctx, "precache failed", "path", p)
			continue
		}
		if err := g.cache.Put(ctx, p, resp); err != nil {
			g.log.Warn(ctx, "precache store failed", "path", p, "error", err)
		}
	}
}

// Router builds the HTTP surface: the message endpoint plus the catch-all
// caching proxy.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/gateway/message", g.handleMessage)
	r.NotFound(g.serve)

	return r
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.passthrough(w, r)
		return
	}

	switch {
	case isStaticAsset(r.URL):
		g.cacheFirst(w, r)
	case isNavigation(r):
		g.staleWhileRevalidate(w, r)
	default:
		g.networkFirst(w, r)
	}
}

// cacheFirst serves static assets: cache wins outright, network fills
// misses, total failure degrades to a synthetic 503.
func (g *Gateway) cacheFirst(w http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)

	if cached, err := g.cache.Get(r.Context(), key); err == nil && cached != nil {
		writeCached(w, cached)
		return
	}

	resp, err := g.fetch(r)
	if err != nil {
		writeOffline(w)
		return
	}
	if responseOK(resp.Status) {
		if err := g.cache.Put(r.Context(), key, resp); err != nil {
			g.log.Warn(r.Context(), "cache store failed", "url", key, "error", err)
		}
	}
	writeCached(w, resp)
}

// staleWhileRevalidate serves navigations: a cached page is returned
// immediately, even when the network is reachable, and refreshed in the
// background. Without a cached copy the request awaits the network and
// degrades through the dashboard shell, then the offline page.
func (g *Gateway) staleWhileRevalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := cacheKey(r)

	cached, err := g.cache.Get(ctx, key)
	if err == nil && cached != nil {
		go g.revalidate(r.Clone(context.WithoutCancel(ctx)), key)
		writeCached(w, cached)
		return
	}

	resp, err := g.fetch(r)
	if err == nil && responseOK(resp.Status) {
		if err := g.cache.Put(ctx, key, resp); err != nil {
			g.log.Warn(ctx, "cache store failed", "url", key, "error", err)
		}
		writeCached(w, resp)
		return
	}

	for _, fallback := range []string{shellPath, offlinePath} {
		if cached, err := g.cache.Get(ctx, fallback); err == nil && cached != nil {
			g.log.Info(ctx, "serving fallback from cache", "path", fallback)
			writeCached(w, cached)
			return
		}
	}
	writeOffline(w)
}

// networkFirst serves everything else (APIs included): network wins,
// successful GETs refresh the cache, failures fall back to it.
func (g *Gateway) networkFirst(w http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)

	resp, err := g.fetch(r)
	if err == nil {
		if responseOK(resp.Status) {
			if err := g.cache.Put(r.Context(), key, resp); err != nil {
				g.log.Warn(r.Context(), "cache store failed", "url", key, "error", err)
			}
		}
		writeCached(w, resp)
		return
	}

	if cached, cerr := g.cache.Get(r.Context(), key); cerr == nil && cached != nil {
		writeCached(w, cached)
		return
	}
	writeOffline(w)
}

func (g *Gateway) revalidate(r *http.Request, key string) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	resp, err := g.fetch(r.WithContext(ctx))
	if err != nil || !responseOK(resp.Status) {
		return
	}
	if err := g.cache.Put(ctx, key, resp); err != nil {
		g.log.Warn(ctx, "revalidate store failed", "url", key, "error", err)
	}
}

// passthrough proxies non-GET requests verbatim; the sync protocol's
// mutations must never be answered from cache.
func (g *Gateway) passthrough(w http.ResponseWriter, r *http.Request) {
	resp, err := g.forward(r)
	if err != nil {
		writeOffline(w)
		return
	}
	defer resp.Body.Close()

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (g *Gateway) forward(r *http.Request) (*http.Response, error) {
	target := *r.URL
	target.Scheme = g.upstream.Scheme
	target.Host = g.upstream.Host
	target.Path = path.Join(g.upstream.Path, r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") && !strings.HasSuffix(target.Path, "/") {
		target.Path += "/"
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, r.Header)

	return g.client.Do(req)
}

func (g *Gateway) fetch(r *http.Request) (*CachedResponse, error) {
	resp, err := g.forward(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &CachedResponse{
		Status:    resp.StatusCode,
		Header:    resp.Header.Clone(),
		Body:      body,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// handleMessage implements the control protocol:
// {"action":"skipWaiting"} activates the current cache version now,
// {"action":"clearCache"} drops it.
func (g *Gateway) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}

	switch msg.Action {
	case "skipWaiting":
		if err := g.Activate(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	case "clearCache":
		if err := g.cache.Clear(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// --- helpers ---

func cacheKey(r *http.Request) string {
	return r.URL.RequestURI()
}

func isStaticAsset(u *url.URL) bool {
	for _, ext := range staticExtensions {
		if strings.HasSuffix(u.Path, ext) {
			return true
		}
	}
	return strings.HasPrefix(u.Path, "/static/") || strings.HasPrefix(u.Path, "/media/")
}

func isNavigation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func responseOK(status int) bool {
	return status >= 200 && status <= 299
}

func writeCached(w http.ResponseWriter, resp *CachedResponse) {
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func writeOffline(w http.ResponseWriter) {
	http.Error(w, "Offline", http.StatusServiceUnavailable)
}

func copyHeader(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
