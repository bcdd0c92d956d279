package fetcher

import (
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, srvURL string) *Shopify {
	t.Helper()
	return NewShopify(
		Options{RequestsPerSec: 1000, RequestBurst: 1000},
		WithEndpoints(
			func(store string) string { return srvURL + "/products.json" },
			func(store string, variantID int64) string {
				return fmt.Sprintf("%s/cart/%d:3?storefront=true", srvURL, variantID)
			},
		),
	)
}

func TestFetchCart_Success(t *testing.T) {
	var cartRequests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"products":[{"variants":[{"id":123}]}]}`))
	})
	mux.HandleFunc("/cart/123:3", func(w http.ResponseWriter, r *http.Request) {
		cartRequests.Add(1)
		w.Header().Add("Set-Cookie", "cart_sig=abc; Path=/; HttpOnly")
		w.Header().Set("Location", "/final")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cart_sig=abc", r.Header.Get("Cookie"))
		_, _ = w.Write([]byte(`<html><body>X<script>y</script></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	res, err := f.FetchCart(context.Background(), "demo")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "demo", res.StoreName)
	assert.EqualValues(t, 123, res.VariantID)
	assert.Equal(t, 1, res.RedirectCount)
	assert.Equal(t, srv.URL+"/final", res.FinalURL)
	assert.Equal(t, `<html><body>X<script>y</script></body></html>`, res.HTML)
	assert.EqualValues(t, 1, cartRequests.Load())
}

func TestFetchCart_BrowserHeaders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Chrome/120")
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		assert.Equal(t, "1", r.Header.Get("Upgrade-Insecure-Requests"))
		assert.Equal(t, "navigate", r.Header.Get("Sec-Fetch-Mode"))
		assert.Equal(t, "gzip, deflate, br", r.Header.Get("Accept-Encoding"))
		_, _ = w.Write([]byte(`{"products":[{"variants":[{"id":5}]}]}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok, enough body to pass through unchanged"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	res, err := f.FetchCart(context.Background(), "demo")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestFetchCart_TooManyRedirects(t *testing.T) {
	var requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"products":[{"variants":[{"id":9}]}]}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Location", fmt.Sprintf("/loop/%d", requests.Load()))
		w.WriteHeader(http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	res, err := f.FetchCart(context.Background(), "demo")
	require.Error(t, err)

	assert.Equal(t, KindTooManyRedirects, KindOf(err))
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "超過最大重定向次數 (5)")
	// Initial cart request plus 5 attempted redirects.
	assert.EqualValues(t, 6, requests.Load())
}

func TestFetchCart_CookieCarryForward(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"products":[{"variants":[{"id":7}]}]}`))
	})
	mux.HandleFunc("/cart/7:3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "a=1; Path=/; Secure")
		w.Header().Set("Location", "/hop2")
		w.WriteHeader(http.StatusMovedPermanently)
	})
	mux.HandleFunc("/hop2", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a=1", r.Header.Get("Cookie"))
		w.Header().Add("Set-Cookie", "a=2; HttpOnly")
		w.Header().Add("Set-Cookie", "b=3; Domain=.example.com")
		w.Header().Set("Location", "/hop3")
		w.WriteHeader(http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/hop3", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a=2; b=3", r.Header.Get("Cookie"))
		_, _ = w.Write([]byte("done"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	res, err := f.FetchCart(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, 2, res.RedirectCount)
	assert.Equal(t, "done", res.HTML)
}

func TestFetchCart_NoVariant(t *testing.T) {
	var cartHit atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"products":[{}]}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		cartHit.Store(true)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	res, err := f.FetchCart(context.Background(), "demo")
	require.Error(t, err)

	assert.Equal(t, KindNoVariant, KindOf(err))
	assert.False(t, res.Success)
	assert.False(t, cartHit.Load(), "cart GET must not be issued without a variant id")
}

func TestFetchCart_NoVariant_BadJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	_, err := f.FetchCart(context.Background(), "demo")
	assert.Equal(t, KindNoVariant, KindOf(err))
}

func TestFetchCart_BadRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"products":[{"variants":[{"id":11}]}]}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Redirect status without a Location header.
		w.WriteHeader(http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	res, err := f.FetchCart(context.Background(), "demo")
	require.Error(t, err)
	assert.Equal(t, KindBadRedirect, KindOf(err))
	assert.Equal(t, "重定向 URL 不存在", res.ErrorMessage)
}

func TestFetchCart_AbsoluteAndRelativeLocations(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"products":[{"variants":[{"id":2}]}]}`))
	})
	mux.HandleFunc("/cart/2:3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", srvURL+"/abs")
		w.WriteHeader(http.StatusPermanentRedirect)
	})
	mux.HandleFunc("/abs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "rel")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/rel", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("landed"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	f := newTestFetcher(t, srv.URL)
	res, err := f.FetchCart(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/rel", res.FinalURL)
	assert.Equal(t, "landed", res.HTML)
}

func TestFetchCart_GzipBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/products.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"products":[{"variants":[{"id":4}]}]}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("<html><body>compressed cart</body></html>"))
		_ = gz.Close()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	res, err := f.FetchCart(context.Background(), "demo")
	require.NoError(t, err)
	assert.Contains(t, res.HTML, "compressed cart")
}

func TestFetchCart_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	f := newTestFetcher(t, srv.URL)
	_, err := f.FetchCart(context.Background(), "demo")
	assert.Equal(t, KindNetworkFailure, KindOf(err))
}

func TestCookieJar_LastSetOrdering(t *testing.T) {
	jar := &cookieJar{}
	jar.absorb([]string{"a=1; Path=/", "b=2"})
	jar.absorb([]string{"a=9; Secure"})
	assert.Equal(t, "b=2; a=9", jar.header())
}

func TestCookieJar_IgnoresMalformed(t *testing.T) {
	jar := &cookieJar{}
	jar.absorb([]string{"=oops", "just-a-token", "ok=1"})
	assert.Equal(t, "ok=1", jar.header())
}
