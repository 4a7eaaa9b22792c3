// Package client talks to the magic token endpoints of a running proxy.
package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	authToken  string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAuthToken sets the admin session token sent with admin requests.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type urlBuilder struct {
	base   url.URL
	path   string
	params map[string]string
	query  url.Values
}

func (c *Client) url() *urlBuilder {
	return &urlBuilder{
		base:   *c.baseURL,
		params: make(map[string]string),
		query:  make(url.Values),
	}
}

func (b *urlBuilder) setPath(path string) *urlBuilder {
	b.path = path
	return b
}

func (b *urlBuilder) setPathParam(name, value string) *urlBuilder {
	b.params[name] = value
	return b
}

func (b *urlBuilder) addQueryParam(name string, value any) *urlBuilder {
	b.query.Add(name, fmt.Sprint(value))
	return b
}

func (b *urlBuilder) build() string {
	path, rawPath := b.path, b.path
	for name, value := range b.params {
		path = strings.ReplaceAll(path, "{"+name+"}", value)
		rawPath = strings.ReplaceAll(rawPath, "{"+name+"}", url.PathEscape(value))
	}
	u := b.base
	u.RawPath = strings.TrimSuffix(u.EscapedPath(), "/") + rawPath
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = b.query.Encode()
	return u.String()
}
