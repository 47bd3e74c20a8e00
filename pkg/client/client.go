// Package client talks to the runtime gateway the way generated front-ends do: every
// call reports failures through a Notifier and hands back an error the caller can
// replace with a default value.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"

	"webdsl/internal/logging"
	"webdsl/pkg/wire"
	"webdsl/pkg/wsclient"
)

// Notification texts.
const (
	MsgNoResponse     = "No response from proxy."
	MsgRestFailed     = "Proxy REST call failed: "
	MsgModifyFailed   = "DB modification failed: "
	MsgModifySuccess  = "Database modification successful!"
	MsgPublishFailed  = "Publish request failed: "
	MsgFetchRESTValue = "Error fetching or converting REST value: "
	MsgFetchDBValue   = "Error fetching or converting DB value: "
)

const maxResponseBytes = 32 << 20

// ErrNoResponse is returned when the gateway answers with an empty body.
var ErrNoResponse = errors.New("no response from proxy")

// Notifier receives user facing messages.
type Notifier = wsclient.Notifier

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.StatusCode)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Options configure a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Notifier   Notifier
	Logger     *logging.Logger
}

// Client is safe for concurrent use.
type Client struct {
	base     string
	hc       *http.Client
	notifier Notifier
	log      *logging.Logger
}

// New builds a Client. Without an HTTPClient it creates one with a cookie jar, so the
// session cookie set by Login is replayed on later calls, and an otelhttp transport.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("client: base URL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("client: cookie jar: %w", err)
		}
		hc = &http.Client{
			Jar:       jar,
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	log := opts.Logger.With("client")
	n := opts.Notifier
	if n == nil {
		n = wsclient.LogNotifier{Log: log}
	}
	return &Client{
		base:     strings.TrimRight(opts.BaseURL, "/"),
		hc:       hc,
		notifier: n,
		log:      log,
	}, nil
}

// RestCall proxies an outbound REST request and returns the decoded upstream JSON.
func (c *Client) RestCall(ctx context.Context, req wire.RestCallRequest) (any, error) {
	var out any
	if err := c.do(ctx, http.MethodPost, "/restcall", req, &out); err != nil {
		c.notifyFailure(MsgRestFailed, err)
		return nil, err
	}
	return out, nil
}

// QueryDB runs a read against a configured connection.
func (c *Client) QueryDB(ctx context.Context, req wire.DBQueryRequest) (any, error) {
	var out any
	if err := c.do(ctx, http.MethodPost, "/queryDB", req, &out); err != nil {
		c.notifyFailure(MsgRestFailed, err)
		return nil, err
	}
	return out, nil
}

// ModifyDB runs a write against a configured connection.
func (c *Client) ModifyDB(ctx context.Context, req wire.DBModifyRequest) (wire.ModifyResult, error) {
	var out wire.ModifyResult
	if err := c.do(ctx, http.MethodPost, "/modifyDB", req, &out); err != nil {
		c.notifyFailure(MsgModifyFailed, err)
		return wire.ModifyResult{Status: wire.StatusError}, err
	}
	c.notifier.Success(MsgModifySuccess)
	return out, nil
}

// Publish sends message to topic on the named broker. A gateway refusal is returned
// as a Status with status "error" together with the error.
func (c *Client) Publish(ctx context.Context, broker, topic string, message map[string]any) (wire.Status, error) {
	req := wire.PublishRequest{Broker: broker, Topic: topic, Message: message}
	var out wire.Status
	err := c.do(ctx, http.MethodPost, "/publish", req, &out)
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		c.notifier.Error(MsgPublishFailed + apiErr.Message)
		return wire.Status{Status: wire.StatusError, Message: apiErr.Message}, err
	case err != nil:
		c.notifier.Error(err.Error())
		return wire.Status{Status: wire.StatusError, Message: err.Error()}, err
	}
	switch out.Status {
	case wire.StatusSuccess:
		c.notifier.Success(out.Message)
	case wire.StatusError:
		c.notifier.Error(MsgPublishFailed + out.Message)
		return out, &APIError{StatusCode: http.StatusOK, Message: out.Message}
	}
	return out, nil
}

// Me returns the logged in user and its WebSocket token.
func (c *Client) Me(ctx context.Context) (wire.Me, error) {
	var out wire.Me
	if err := c.do(ctx, http.MethodGet, "/me", nil, &out); err != nil {
		c.notifier.Error(err.Error())
		return wire.Me{}, err
	}
	return out, nil
}

// Login opens a session; the cookie is stored in the client's jar.
func (c *Client) Login(ctx context.Context, username, password string) (wire.Me, error) {
	var out wire.Me
	req := wire.LoginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &out); err != nil {
		c.notifier.Error(err.Error())
		return wire.Me{}, err
	}
	return out, nil
}

// Logout closes the current session.
func (c *Client) Logout(ctx context.Context) error {
	var out wire.Status
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, &out); err != nil {
		c.notifier.Error(err.Error())
		return err
	}
	return nil
}

// TokenSource fetches the WebSocket token from GET /me before every dial.
func (c *Client) TokenSource() wsclient.TokenSource {
	return func(ctx context.Context) (string, error) {
		var me wire.Me
		if err := c.do(ctx, http.MethodGet, "/me", nil, &me); err != nil {
			return "", err
		}
		return me.WSToken, nil
	}
}

func (c *Client) notifyFailure(prefix string, err error) {
	if errors.Is(err, ErrNoResponse) {
		c.notifier.Error(MsgNoResponse)
		return
	}
	c.notifier.Error(prefix + err.Error())
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Error("request_failed", err, logging.Fields{"method": method, "path": path})
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, data)
		c.log.Warn("request_rejected", logging.Fields{
			"method": method, "path": path, "status": resp.StatusCode, "code": apiErr.Code,
		})
		return apiErr
	}
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return ErrNoResponse
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError understands both the {error:{code,message}} envelope and the
// {status, message} one used by /publish.
func decodeError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var env struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	if env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		return apiErr
	}
	apiErr.Message = env.Message
	return apiErr
}
