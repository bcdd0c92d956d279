// Package fetcher retrieves a Shopify storefront's cart page. Shopify
// challenges non-browser clients on this path and parks session state in
// redirect-hop cookies, so the fetch follows 3xx responses by hand with a
// request-local cookie jar instead of letting net/http do it.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shoplens/cartdetect/internal/model"
)

// maxRedirects bounds the manual redirect chain: one initial request plus
// at most this many follow-ups.
const maxRedirects = 5

// cartQuantity is the quantity segment of the permalink cart URL.
const cartQuantity = 3

// browserHeaders is the navigation header set Shopify expects. Anything
// less gets challenged or bounced on the cart path.
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7",
	"Accept-Encoding":           "gzip, deflate, br",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Sec-Ch-Ua":                 `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
	"Sec-Ch-Ua-Mobile":          "?0",
	"Sec-Ch-Ua-Platform":        `"Windows"`,
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
}

// Options configures the Shopify fetcher.
type Options struct {
	Timeout        time.Duration
	RequestsPerSec float64
	RequestBurst   int
	MaxBodyBytes   int64
}

// Shopify fetches storefront cart pages. Safe for concurrent use; cookie
// state lives per call, rate limiters are shared per host.
type Shopify struct {
	client *http.Client
	opts   Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// URL builders, overridable for tests against synthetic servers.
	productsURL func(store string) string
	cartURL     func(store string, variantID int64) string
}

// Option adjusts a Shopify fetcher.
type Option func(*Shopify)

// WithEndpoints overrides the storefront URL builders.
func WithEndpoints(products func(store string) string, cart func(store string, variantID int64) string) Option {
	return func(s *Shopify) {
		s.productsURL = products
		s.cartURL = cart
	}
}

// WithHTTPClient overrides the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Shopify) { s.client = c }
}

// NewShopify creates a fetcher with sensible defaults.
func NewShopify(opts Options, options ...Option) *Shopify {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 2
	}
	if opts.RequestBurst == 0 {
		opts.RequestBurst = 4
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 4 * 1024 * 1024
	}

	s := &Shopify{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
			// Redirects are followed manually so each hop's cookies can
			// be captured and replayed.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
		productsURL: func(store string) string {
			return fmt.Sprintf("https://%s.myshopify.com/products.json", store)
		},
		cartURL: func(store string, variantID int64) string {
			return fmt.Sprintf("http://%s.myshopify.com/cart/%d:%d?storefront=true", store, variantID, cartQuantity)
		},
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// FetchCart retrieves the cart page HTML for a store handle. The returned
// result always reports the outcome; the error carries the typed kind.
func (s *Shopify) FetchCart(ctx context.Context, storeName string) (*model.CartFetchResult, error) {
	res := &model.CartFetchResult{StoreName: storeName}

	variantID, err := s.lookupVariant(ctx, storeName)
	if err != nil {
		res.ErrorMessage = err.Error()
		return res, err
	}
	res.VariantID = variantID

	jar := &cookieJar{}
	finalURL, redirects, err := s.followRedirects(ctx, s.cartURL(storeName, variantID), jar)
	if err != nil {
		res.ErrorMessage = err.Error()
		return res, err
	}
	res.RedirectCount = redirects
	res.FinalURL = finalURL

	// One more GET of the final URL with the accumulated cookies. A
	// storefront that sets its session cookie only on the terminal hop
	// still yields a cookied body this way.
	body, _, err := s.get(ctx, finalURL, jar)
	if err != nil {
		res.ErrorMessage = err.Error()
		return res, err
	}

	res.Success = true
	res.HTML = body
	return res, nil
}

// lookupVariant pulls the first product's first variant id from the
// store's products.json. The cart permalink cannot be built without it.
func (s *Shopify) lookupVariant(ctx context.Context, storeName string) (int64, error) {
	rawURL := s.productsURL(storeName)
	body, _, err := s.get(ctx, rawURL, nil)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Products []struct {
			Variants []struct {
				ID int64 `json:"id"`
			} `json:"variants"`
		} `json:"products"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return 0, &FetchError{Kind: KindNoVariant, Message: "找不到有效的 variant ID", Err: err}
	}
	if len(payload.Products) == 0 || len(payload.Products[0].Variants) == 0 || payload.Products[0].Variants[0].ID == 0 {
		return 0, &FetchError{Kind: KindNoVariant, Message: "找不到有效的 variant ID"}
	}
	return payload.Products[0].Variants[0].ID, nil
}

// followRedirects walks the redirect chain by hand, absorbing cookies on
// every hop. Returns the first non-redirect URL and the hop count.
func (s *Shopify) followRedirects(ctx context.Context, startURL string, jar *cookieJar) (string, int, error) {
	currentURL := startURL

	for hop := 0; ; hop++ {
		resp, err := s.do(ctx, currentURL, jar)
		if err != nil {
			return "", hop, err
		}
		jar.absorb(resp.Header.Values("Set-Cookie"))
		drainAndClose(resp.Body)

		if !isRedirect(resp.StatusCode) {
			zap.L().Debug("fetcher: redirect chain settled",
				zap.String("url", currentURL),
				zap.Int("redirects", hop),
				zap.Int("status", resp.StatusCode),
			)
			return currentURL, hop, nil
		}

		if hop == maxRedirects {
			return "", hop, &FetchError{
				Kind:    KindTooManyRedirects,
				Message: fmt.Sprintf("超過最大重定向次數 (%d)", maxRedirects),
			}
		}

		location := resp.Header.Get("Location")
		if location == "" {
			return "", hop, &FetchError{Kind: KindBadRedirect, Message: "重定向 URL 不存在"}
		}

		next, err := resolveLocation(currentURL, location)
		if err != nil {
			return "", hop, &FetchError{Kind: KindBadRedirect, Message: "重定向 URL 不存在", Err: err}
		}
		zap.L().Debug("fetcher: following redirect",
			zap.Int("hop", hop+1),
			zap.String("location", next),
			zap.String("cookies", jar.header()),
		)
		currentURL = next
	}
}

// get issues one GET and returns the decoded body. The response's cookies
// are absorbed into jar when one is supplied.
func (s *Shopify) get(ctx context.Context, rawURL string, jar *cookieJar) (string, int, error) {
	resp, err := s.do(ctx, rawURL, jar)
	if err != nil {
		return "", 0, err
	}
	defer drainAndClose(resp.Body)
	if jar != nil {
		jar.absorb(resp.Header.Values("Set-Cookie"))
	}

	body, err := decodeBody(resp, s.opts.MaxBodyBytes)
	if err != nil {
		return "", resp.StatusCode, &FetchError{Kind: KindNetworkFailure, Message: "讀取回應內容失敗", Err: err}
	}
	return body, resp.StatusCode, nil
}

func (s *Shopify) do(ctx context.Context, rawURL string, jar *cookieJar) (*http.Response, error) {
	if err := s.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, &FetchError{Kind: KindNetworkFailure, Message: "請求已取消", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetworkFailure, Message: "無法建立請求", Err: err}
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	if jar != nil {
		if cookie := jar.header(); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindNetworkFailure, Message: "連線失敗", Err: err}
	}
	return resp, nil
}

func (s *Shopify) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.opts.RequestsPerSec), s.opts.RequestBurst)
		s.limiters[host] = lim
	}
	return lim
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

// resolveLocation resolves a Location header against the current URL.
// Absolute URLs pass through untouched.
func resolveLocation(currentURL, location string) (string, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location, nil
	}
	base, err := url.Parse(currentURL)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: parse current url")
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: parse location")
	}
	return base.ResolveReference(ref).String(), nil
}

// decodeBody reads the response body, undoing gzip/deflate. The fetcher
// advertises Accept-Encoding itself, which switches off net/http's
// automatic decompression.
func decodeBody(resp *http.Response, limit int64) (string, error) {
	var reader io.Reader = io.LimitReader(resp.Body, limit)

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return "", eris.Wrap(err, "fetcher: gzip reader")
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(reader)
		defer fl.Close()
		reader = fl
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: read body")
	}
	return string(body), nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}
