// Package restproxy forwards restcall requests from generated front-ends to the
// REST APIs they are allowed to reach.
package restproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"webdsl/internal/config"
	"webdsl/internal/logging"
	"webdsl/pkg/wire"
)

var (
	ErrInvalidTarget           = errors.New("invalid rest target")
	ErrHostNotAllowed          = errors.New("host not allowed")
	ErrUpstreamUnavailable     = errors.New("upstream unavailable")
	ErrUpstreamInvalidResponse = errors.New("upstream returned a non-JSON response")
)

// Options configures a Proxy.
type Options struct {
	APIs          []config.RestAPIConfig
	AllowUnlisted bool
	Timeout       time.Duration
	MaxBodyBytes  int64
	// Transport defaults to http.DefaultTransport. It is always wrapped by otelhttp.
	Transport http.RoundTripper
	Logger    *logging.Logger
}

// Response is an upstream JSON reply relayed as is.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// Proxy performs outbound REST calls.
type Proxy struct {
	apis          map[string]config.RestAPIConfig
	allowed       map[string]bool
	allowUnlisted bool
	maxBody       int64
	client        *http.Client
	log           *logging.Logger
}

// New builds a Proxy from opts.
func New(opts Options) *Proxy {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	p := &Proxy{
		apis:          make(map[string]config.RestAPIConfig, len(opts.APIs)),
		allowed:       make(map[string]bool, len(opts.APIs)),
		allowUnlisted: opts.AllowUnlisted,
		maxBody:       opts.MaxBodyBytes,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(opts.Transport),
		},
		log: opts.Logger.With("restproxy"),
	}
	for _, api := range opts.APIs {
		p.apis[api.Name] = api
		p.allowed[strings.ToLower(api.Host)] = true
	}
	return p
}

// Target is a resolved upstream request.
type Target struct {
	URL     *url.URL
	Headers map[string]string
}

// Resolve turns req into an upstream URL. A name selects a configured API; otherwise
// base_url, or host and port (443 meaning https), locate the upstream.
func (p *Proxy) Resolve(req wire.RestCallRequest) (Target, error) {
	headers := map[string]string{}
	var u *url.URL

	switch {
	case req.Name != "":
		api, ok := p.apis[req.Name]
		if !ok {
			return Target{}, fmt.Errorf("%w: unknown rest api %q", ErrInvalidTarget, req.Name)
		}
		scheme := api.Scheme
		if scheme == "" {
			scheme = schemeFor(api.Port)
		}
		u = &url.URL{Scheme: scheme, Host: hostPort(api.Host, api.Port), Path: api.BasePath}
		for k, v := range api.Headers {
			headers[k] = v
		}
	case req.BaseURL != "":
		parsed, err := url.Parse(req.BaseURL)
		if err != nil || parsed.Host == "" {
			return Target{}, fmt.Errorf("%w: bad base_url %q", ErrInvalidTarget, req.BaseURL)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return Target{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, parsed.Scheme)
		}
		u = &url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: parsed.Path}
	case req.Host != "":
		u = &url.URL{Scheme: schemeFor(req.Port), Host: hostPort(req.Host, req.Port)}
	default:
		return Target{}, fmt.Errorf("%w: name, base_url or host is required", ErrInvalidTarget)
	}

	if !p.allowUnlisted && req.Name == "" && !p.allowed[strings.ToLower(u.Hostname())] {
		return Target{}, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}

	if req.Path != "" {
		u.Path = joinPath(u.Path, req.Path)
	}
	if len(req.Params) > 0 {
		q := url.Values{}
		for k, v := range req.Params {
			q.Set(k, paramString(v))
		}
		u.RawQuery = q.Encode()
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	return Target{URL: u, Headers: headers}, nil
}

// Call resolves req, performs it and relays the upstream JSON reply. An empty
// upstream body is relayed as null.
func (p *Proxy) Call(ctx context.Context, req wire.RestCallRequest) (*Response, error) {
	target, err := p.Resolve(req)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead && req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrInvalidTarget, err)
		}
		body = bytes.NewReader(b)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, target.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	hreq.Header.Set("Accept", "application/json")
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range target.Headers {
		hreq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := p.client.Do(hreq)
	if err != nil {
		p.log.Error("upstream_failed", err, logging.Fields{"method": method, "host": target.URL.Host})
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if int64(len(raw)) > p.maxBody {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrUpstreamInvalidResponse, p.maxBody)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("null")
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w (status %d)", ErrUpstreamInvalidResponse, resp.StatusCode)
	}

	p.log.Info("upstream_call", logging.Fields{
		"method":      method,
		"host":        target.URL.Host,
		"path":        target.URL.Path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

func schemeFor(port int) string {
	if port == 443 {
		return "https"
	}
	return "http"
}

func hostPort(host string, port int) string {
	if port == 0 || port == 80 || port == 443 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func joinPath(base, p string) string {
	if base == "" {
		if !strings.HasPrefix(p, "/") {
			return "/" + p
		}
		return p
	}
	joined := path.Join("/", base, p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

func paramString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
