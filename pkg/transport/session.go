// Package transport wraps net/http with the conventions every platform
// adapter relies on: bearer authentication, JSON or form bodies, and typed
// errors for non-2xx responses and connectivity failures.
package transport

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
	"strings"
	"sync"
	"time"

	errs "fedicaption/pkg/errors"
	"fedicaption/pkg/logger"
)

// maxBodySize caps how much of a response body is read into memory.
const maxBodySize = 10 << 20

// Requester performs one HTTP exchange. Session implements it directly; the
// protocol client implements it with rate limiting and retries on top.
type Requester interface {
	Do(ctx context.Context, method, rawURL string, body interface{}) (*Response, error)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    r.StatusCode,
			Err:     err,
		}
	}
	return nil
}

// Options configures a Session.
type Options struct {
	Timeout     time.Duration
	UserAgent   string
	AccessToken string
	// HTTPClient overrides the client the session would otherwise create.
	HTTPClient *http.Client
	Logger     logger.Logger
}

// Session is a lazily opened HTTP session. The underlying client is created
// on the first request and released by Close; a closed session reopens on
// the next request.
type Session struct {
	opts Options
	log  logger.Logger

	mu      sync.Mutex
	client  *http.Client
	headers map[string]string
}

// NewSession creates a session. No connection is made until Do is called.
func NewSession(opts Options) *Session {
	headers := map[string]string{
		"Accept": "application/json",
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}
	if opts.AccessToken != "" {
		headers["Authorization"] = "Bearer " + opts.AccessToken
	}

	return &Session{
		opts:    opts,
		log:     logger.OrDefault(opts.Logger).WithField("component", "transport"),
		headers: headers,
	}
}

// SetHeader sets a header sent with every request
func (s *Session) SetHeader(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers[key] = value
}

// Open reports whether the underlying client has been created.
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

func (s *Session) httpClient() (*http.Client, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		if s.opts.HTTPClient != nil {
			s.client = s.opts.HTTPClient
		} else {
			s.client = &http.Client{Timeout: s.opts.Timeout}
		}
	}

	headers := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		headers[k] = v
	}
	return s.client, headers
}

// Close releases idle connections. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.CloseIdleConnections()
		s.client = nil
	}
	return nil
}

// Do sends one request. body may be nil, url.Values (form encoded), or any
// value that encodes to JSON. A non-2xx status yields both the response and
// an *errors.Error; connectivity failures yield only the error.
func (s *Session) Do(ctx context.Context, method, rawURL string, body interface{}) (*Response, error) {
	client, headers := s.httpClient()

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeValidation,
			Message: fmt.Sprintf("failed to encode request body: %v", err),
			Method:  method,
			URL:     rawURL,
			Err:     err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeValidation,
			Message: fmt.Sprintf("failed to create request: %v", err),
			Method:  method,
			URL:     rawURL,
			Err:     err,
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	httpResp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		s.log.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   method,
			"url":      rawURL,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, connectivityError(ctx, method, rawURL, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    0,
			Method:  method,
			URL:     rawURL,
			Err:     err,
		}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}

	logger.LogRequest(s.log, method, rawURL, resp.StatusCode, duration)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, errs.NewHTTPError(method, rawURL, resp.StatusCode, string(data))
	}
	return resp, nil
}

func encodeBody(body interface{}) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	case []byte:
		return bytes.NewReader(b), "application/json", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// connectivityError converts a client.Do failure into a typed error.
// When the caller's own context is done the error is returned as is, so a
// caller deadline is not mistaken for a server timeout.
func connectivityError(ctx context.Context, method, rawURL string, err error) error {
	if ctx.Err() != nil {
		return err
	}

	e := &errs.Error{
		Type:    errs.ErrorTypeNetwork,
		Message: err.Error(),
		Method:  method,
		URL:     rawURL,
		Err:     err,
	}

	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		e.Type = errs.ErrorTypeTimeout
	case errors.As(err, &opErr):
		e.Type = errs.ErrorTypeConnection
	}
	return e
}

// GetJSON performs a GET through r and decodes the body into v.
func GetJSON(ctx context.Context, r Requester, rawURL string, v interface{}) error {
	resp, err := r.Do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return resp.JSON(v)
}
