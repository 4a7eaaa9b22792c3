// Package proxy forwards requests made with a magic token to the upstream API,
// replacing the magic token with the upstream credential it carries.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/google/magic-github-proxy/internal/api/presenter"
	"github.com/google/magic-github-proxy/internal/audit"
	"github.com/google/magic-github-proxy/internal/core"
	"github.com/google/magic-github-proxy/internal/logging"
	"github.com/google/magic-github-proxy/internal/metrics"
	"github.com/google/magic-github-proxy/internal/service"
)

const (
	// MarkerHeader is added to every relayed response.
	MarkerHeader = "X-Magic-Proxy"
	MarkerValue  = "1.1"

	// DefaultMaxObservedBody bounds the response body kept for response callbacks.
	DefaultMaxObservedBody = 10 << 20
)

// hop-by-hop headers, plus the headers the proxy replaces
var strippedRequestHeaders = map[string]bool{
	"Host":                true,
	"Authorization":       true,
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	// the transport negotiates compression itself and hands us decoded bodies
	"Accept-Encoding": true,
}

var strippedResponseHeaders = map[string]bool{
	"Content-Length":     true,
	"Content-Encoding":   true,
	"Transfer-Encoding":  true,
	"Connection":         true,
	"Keep-Alive":         true,
	"Proxy-Authenticate": true,
	"Trailer":            true,
	"Upgrade":            true,
}

type Config struct {
	// APIRoot is the upstream every request is forwarded to, e.g. https://api.github.com
	APIRoot string

	// CleanHeaders are additional request headers that are never forwarded.
	CleanHeaders []string

	// CleanQueries are query parameters that are never forwarded.
	CleanQueries []string
}

type Proxy struct {
	upstream        *url.URL
	cleanHeaders    map[string]bool
	cleanQueries    []string
	service         *service.MagicTokenService
	client          *http.Client
	metrics         *metrics.Metrics
	maxObservedBody int64
}

type Option func(*Proxy)

// WithClient replaces the client used for upstream requests.
func WithClient(client *http.Client) Option {
	return func(p *Proxy) {
		p.client = client
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Proxy) {
		p.metrics = m
	}
}

// WithMaxObservedBody sets how much of a response body is buffered for response callbacks.
// Larger responses are still relayed, but not observed.
func WithMaxObservedBody(n int64) Option {
	return func(p *Proxy) {
		p.maxObservedBody = n
	}
}

// New creates the proxy handler. It serves every path not reserved by the API.
func New(cfg Config, svc *service.MagicTokenService, opts ...Option) (*Proxy, error) {
	upstream, err := url.Parse(cfg.APIRoot)
	if err != nil {
		return nil, fmt.Errorf("parsing api root: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("api root %q must be an absolute url", cfg.APIRoot)
	}

	p := &Proxy{
		upstream:        upstream,
		cleanHeaders:    make(map[string]bool, len(cfg.CleanHeaders)),
		cleanQueries:    cfg.CleanQueries,
		service:         svc,
		maxObservedBody: DefaultMaxObservedBody,
		client: &http.Client{
			// no overall timeout: responses are streamed and the request
			// context is cancelled when the client goes away
			Timeout: 0,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, h := range cfg.CleanHeaders {
		p.cleanHeaders[http.CanonicalHeaderKey(h)] = true
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)

	authz, err := p.service.Authorize(ctx, r.Header.Get("Authorization"), r.Method, r.URL.Path)
	if err != nil {
		presenter.Err(w, r, err, "")
		return
	}

	upstreamReq, err := p.upstreamRequest(r, authz.Token.UpstreamCredential)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create upstream request")
		presenter.Error(w, r, "failed to create upstream request", http.StatusInternalServerError)
		return
	}

	logger.Debug().
		Str("method", r.Method).
		Str("upstream", upstreamReq.URL.Redacted()).
		Msg("forwarding request")

	start := time.Now()
	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		p.metrics.ObserveUpstream(r.Method, "error", time.Since(start).Seconds())
		p.service.RecordForwarded(ctx, authz, 0, err)
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("upstream request failed")
		presenter.Error(w, r, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	p.metrics.ObserveUpstream(r.Method, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	for key, values := range resp.Header {
		if strippedResponseHeaders[key] {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(MarkerHeader, MarkerValue)
	w.WriteHeader(resp.StatusCode)

	var (
		body     io.Reader = resp.Body
		observed *boundedBuffer
	)
	engine := p.service.Engine()
	if _, ok := engine.ObserverFor(authz.Token.Scopes); ok {
		observed = &boundedBuffer{limit: p.maxObservedBody}
		body = io.TeeReader(resp.Body, observed)
	}

	var dst io.Writer = w
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		dst = &flushWriter{w: w, rc: http.NewResponseController(w)}
	}

	written, copyErr := io.Copy(dst, body)
	if copyErr != nil {
		logger.Warn().Err(copyErr).Int64("bytes", written).Msg("relaying response body failed")
	}
	p.service.RecordForwarded(ctx, authz, resp.StatusCode, copyErr)

	if observed == nil {
		return
	}
	if copyErr != nil || observed.truncated {
		logger.Warn().
			Bool("truncated", observed.truncated).
			Int64("bytes", written).
			Msg("response body incomplete, skipping response callback")
		return
	}
	// the client may be gone already; the callback still has to run
	engine.ResponseCallback(context.WithoutCancel(ctx), core.ObservedResponse{
		Method:     r.Method,
		Path:       authz.Path,
		Content:    observed.buf,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
	}, authz.Token.Scopes)
}

func (p *Proxy) upstreamRequest(r *http.Request, credential string) (*http.Request, error) {
	target := *p.upstream
	target.Path = singleJoiningSlash(p.upstream.Path, core.NormalizePath(r.URL.Path))
	target.RawPath = ""
	target.RawQuery = p.cleanQuery(r.URL.RawQuery)

	body := r.Body
	if r.ContentLength == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = r.ContentLength

	// headers named by Connection are hop-by-hop as well
	connectionHeaders := make(map[string]bool)
	for _, v := range r.Header.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				connectionHeaders[http.CanonicalHeaderKey(name)] = true
			}
		}
	}

	for key, values := range r.Header {
		if strippedRequestHeaders[key] || p.cleanHeaders[key] || connectionHeaders[key] {
			continue
		}
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", audit.UserAgent(logging.CorrelationID(r.Context())))
	}
	return req, nil
}

func (p *Proxy) cleanQuery(raw string) string {
	if raw == "" || len(p.cleanQueries) == 0 {
		return raw
	}
	query, err := url.ParseQuery(raw)
	if err != nil {
		// forward what we got, except the parameters we can recognize
		log.Debug().Err(err).Msg("malformed query string")
	}
	for _, name := range p.cleanQueries {
		query.Del(name)
	}
	return query.Encode()
}

// singleJoiningSlash joins two URL paths with a single slash.
func singleJoiningSlash(a, b string) string {
	aSlash := strings.HasSuffix(a, "/")
	bSlash := strings.HasPrefix(b, "/")
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	}
	return a + b
}
