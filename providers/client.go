package providers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

const (
	defaultTimeout = 30
	retryDelay     = 100 * time.Millisecond
)

// Tracer receives raw traffic exchanged with a bank, used for debug logging
type Tracer func(direction, data string)

// Traceable is implemented by adapters that can report their HTTP traffic
type Traceable interface {
	SetTracer(tracer Tracer)
}

type HttpClient struct {
	client     *http.Client
	tracer     Tracer
	maxRetries int
}

func NewHttpClient(config Config) (*HttpClient, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.RequiresMTLS && config.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		transport.TLSClientConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}
	return &HttpClient{
		client: &http.Client{
			Timeout:   time.Duration(timeout) * time.Second,
			Transport: transport,
		},
		maxRetries: config.MaxRetries,
	}, nil
}

func (c *HttpClient) SetTracer(tracer Tracer) {
	c.tracer = tracer
}

func (c *HttpClient) trace(direction, data string) {
	if c.tracer != nil {
		c.tracer(direction, data)
	}
}

func (c *HttpClient) Post(ctx context.Context, url string, payload interface{}, token string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	bearer(req, token)
	c.trace("POST "+url, string(data))
	return c.do(req)
}

// Get is the only idempotent call, so it alone is repeated on retryable failures, up to MaxRetries times
func (c *HttpClient) Get(ctx context.Context, url string, token string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		bearer(req, token)
		c.trace("GET "+url, "")
		body, err := c.do(req)
		if err == nil || !IsRetryable(err) || attempt >= c.maxRetries {
			return body, err
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(retryDelay << attempt):
		}
	}
}

func (c *HttpClient) Delete(ctx context.Context, url string, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, err
	}
	bearer(req, token)
	c.trace("DELETE "+url, "")
	return c.do(req)
}

func (c *HttpClient) PostForm(ctx context.Context, urlStr string, data map[string]string) ([]byte, error) {
	return c.postForm(ctx, urlStr, data, "", "")
}

func (c *HttpClient) PostFormBasicAuth(ctx context.Context, urlStr string, data map[string]string, username, password string) ([]byte, error) {
	return c.postForm(ctx, urlStr, data, username, password)
}

func (c *HttpClient) postForm(ctx context.Context, urlStr string, data map[string]string, username, password string) ([]byte, error) {
	form := url.Values{}
	for key, value := range data {
		form.Set(key, value)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if username != "" {
		req.SetBasicAuth(username, password)
	}
	c.trace("POST "+urlStr, "form grant_type="+form.Get("grant_type"))
	return c.do(req)
}

func bearer(req *http.Request, token string) {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// do sends req; a transport failure after the request was fully written leaves the outcome unknown
func (c *HttpClient) do(req *http.Request) ([]byte, error) {
	var sent atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				sent.Store(true)
			}
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Code: CodeUnavailable, Message: err.Error(), Retryable: true, Uncertain: sent.Load()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ProviderError{Code: CodeUnavailable, Message: err.Error(), Retryable: true, Uncertain: true}
	}
	c.trace(fmt.Sprintf("%d %s", resp.StatusCode, req.URL.Path), string(body))
	if resp.StatusCode >= 400 {
		return nil, statusError(resp.StatusCode, string(body))
	}
	return body, nil
}

// Decode unmarshals a provider response body, reporting malformed payloads as ProviderError
func Decode(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &ProviderError{Code: CodeParseError, Message: err.Error()}
	}
	return nil
}
