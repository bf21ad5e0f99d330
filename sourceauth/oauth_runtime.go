package sourceauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eve.evalgo.org/otelscrape/jsonpath"
	"eve.evalgo.org/otelscrape/record"
)

// defaultTokenTTL is the fallback expiry when a token endpoint omits
// expires_in, per spec.md §4.4.
const defaultTokenTTL = 55 * time.Minute

// safetyMargin triggers an early refetch before the cached token
// actually expires.
const safetyMargin = 30 * time.Second

// OAuthRuntime fetches a bearer token from getTokenEndpoint on first
// use or upon expiry, extracting it from the JSON response at
// tokenKey, and caches it with an expiry derived from expires_in:
// form-encoded POST, JSON token response, process-lifetime cache.
type OAuthRuntime struct {
	TokenEndpoint string
	Method        string // defaults to POST
	ExtraHeaders  map[string]string
	Body          url.Values
	TokenKey      string // jsonpath into the token response, e.g. "access_token"

	client *http.Client
	group  singleflight.Group

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewOAuthRuntime(endpoint, tokenKey string, extraHeaders map[string]string, body url.Values) *OAuthRuntime {
	return &OAuthRuntime{
		TokenEndpoint: endpoint,
		Method:        http.MethodPost,
		ExtraHeaders:  extraHeaders,
		Body:          body,
		TokenKey:      tokenKey,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *OAuthRuntime) Headers(ctx context.Context) (map[string]string, error) {
	tok, err := o.token_(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + tok}, nil
}

// token_ returns the cached token, refreshing it if missing or within
// safetyMargin of expiry. Concurrent callers coalesce onto a single
// in-flight fetch via singleflight, satisfying the "exactly one
// network call" property from spec.md §8.
func (o *OAuthRuntime) token_(ctx context.Context) (string, error) {
	o.mu.Lock()
	valid := o.token != "" && time.Now().Add(safetyMargin).Before(o.expires)
	tok := o.token
	o.mu.Unlock()
	if valid {
		return tok, nil
	}

	v, err, _ := o.group.Do(o.TokenEndpoint, func() (interface{}, error) {
		o.mu.Lock()
		if o.token != "" && time.Now().Add(safetyMargin).Before(o.expires) {
			tok := o.token
			o.mu.Unlock()
			return tok, nil
		}
		o.mu.Unlock()
		return o.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (o *OAuthRuntime) fetch(ctx context.Context) (string, error) {
	method := o.Method
	if method == "" {
		method = http.MethodPost
	}

	var bodyReader io.Reader
	if o.Body != nil {
		bodyReader = strings.NewReader(o.Body.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, o.TokenEndpoint, bodyReader)
	if err != nil {
		return "", fmt.Errorf("sourceauth: build token request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range o.ExtraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sourceauth: token request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("sourceauth: read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sourceauth: token endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	v, err := record.FromJSON(data)
	if err != nil {
		return "", fmt.Errorf("sourceauth: parse token response: %w", err)
	}

	tokenKey := o.TokenKey
	if tokenKey == "" {
		tokenKey = "access_token"
	}
	tokenVal, _, _, err := jsonpath.Extract(v, tokenKey)
	if err != nil {
		return "", fmt.Errorf("sourceauth: resolve token key %q: %w", tokenKey, err)
	}
	token, ok := tokenVal.Str()
	if !ok || token == "" {
		return "", fmt.Errorf("sourceauth: token response missing %q", tokenKey)
	}

	ttl := defaultTokenTTL
	if expIn, ok := v.Field("expires_in").Num(); ok && expIn > 0 {
		ttl = time.Duration(expIn) * time.Second
	}

	o.mu.Lock()
	o.token = token
	o.expires = time.Now().Add(ttl)
	o.mu.Unlock()

	return token, nil
}
