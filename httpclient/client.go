package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eve.evalgo.org/otelscrape/errs"
	"eve.evalgo.org/otelscrape/sourceauth"
)

// Client executes scrape requests under a two-level semaphore: a
// global cap shared by every source, plus a per-source cap handed to
// NewClient by the caller. No retry loop: spec.md §9 treats a failed
// unit as "skip this window, try again next tick" rather than
// something to retry in place.
type Client struct {
	http *http.Client
	auth sourceauth.Authenticator

	global    chan struct{}
	perSource chan struct{}

	enforceTLS bool
}

// NewClient builds a Client bound to the given global and per-source
// concurrency semaphores. Either may be nil to mean "unbounded" for
// that level.
func NewClient(auth sourceauth.Authenticator, global, perSource chan struct{}, enforceTLS bool) *Client {
	return &Client{
		http:       &http.Client{},
		auth:       auth,
		global:     global,
		perSource:  perSource,
		enforceTLS: enforceTLS,
	}
}

// Execute runs a single scrape request, acquiring both semaphores for
// the duration of the call and releasing them before returning.
func (c *Client) Execute(ctx context.Context, req *Request) (*Response, error) {
	if c.global != nil {
		select {
		case c.global <- struct{}{}:
			defer func() { <-c.global }()
		case <-ctx.Done():
			return nil, errs.Wrap(errs.Network, "acquire_global_slot", "context canceled", ctx.Err())
		}
	}
	if c.perSource != nil {
		select {
		case c.perSource <- struct{}{}:
			defer func() { <-c.perSource }()
		case <-ctx.Done():
			return nil, errs.Wrap(errs.Network, "acquire_source_slot", "context canceled", ctx.Err())
		}
	}

	start := time.Now()
	resp, err := c.executeOnce(ctx, req)
	if resp != nil {
		resp.Duration = time.Since(start)
	}
	return resp, err
}

func (c *Client) executeOnce(ctx context.Context, req *Request) (*Response, error) {
	if req.Method == "" || req.URL == "" {
		return nil, errs.New(errs.Config, "build_request", fmt.Errorf("method and url are required"))
	}

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "parse_url", "invalid url", err)
	}
	if (req.EnforceTLS || c.enforceTLS) && target.Scheme != "https" {
		return nil, errs.New(errs.Config, "enforce_tls", fmt.Errorf("scheme %q rejected: tls is enforced for this source", target.Scheme))
	}
	if len(req.Query) > 0 {
		q := target.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "build_request", "construct http request", err)
	}

	if req.Body != nil {
		contentType := req.BodyContentType
		if contentType == "" {
			contentType = "application/json"
		}
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if c.auth != nil {
		authHeaders, err := c.auth.Headers(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.Auth, "resolve_auth_headers", "authenticator failed", err)
		}
		for k, v := range authHeaders {
			httpReq.Header.Set(k, v)
		}
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = "otelscrape/1.0"
	}
	httpReq.Header.Set("User-Agent", userAgent)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: c.http.Transport,
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(errs.Network, "do_request", "request failed", err)
	}
	defer httpResp.Body.Close()

	maxBytes := req.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	limited := io.LimitReader(httpResp.Body, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errs.Wrap(errs.Response, "read_body", "read response body", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, errs.New(errs.Response, "read_body", fmt.Errorf("response exceeded %d byte cap", maxBytes))
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    make(map[string]string),
		Body:       data,
	}
	for k, v := range httpResp.Header {
		if len(v) > 0 {
			resp.Headers[k] = v[0]
		}
	}

	if !resp.IsSuccess() {
		return resp, errs.New(errs.Response, "check_status", fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(resp.Status)))
	}
	return resp, nil
}
