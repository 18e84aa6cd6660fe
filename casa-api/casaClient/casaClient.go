package casaClient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaJsonRpc"
	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
	"go.uber.org/zap"
)

const (
	loginPath = "/handle_login"
	apiPath   = "/api"

	DefaultTimeout    = 15 * time.Second
	DefaultRetryDelay = 500 * time.Millisecond

	// a request is sent at most twice, and only when the device dropped the connection
	maxAttempts = 2
)

type Options struct {
	InsecureSkipVerify bool
	Timeout            time.Duration
	RetryDelay         time.Duration
}

func DefaultOptions() Options {
	return Options{
		InsecureSkipVerify: true,
		Timeout:            DefaultTimeout,
		RetryDelay:         DefaultRetryDelay,
	}
}

type CasaApiClient struct {
	Host       string
	username   string
	password   string
	baseUrl    string
	client     *http.Client
	retryDelay time.Duration
	cookiesMu  sync.Mutex
	cookies    map[string]string
	logger     *zap.SugaredLogger
	metrics    *Metrics
}

type response struct {
	statusCode  int
	contentType string
	body        []byte
}

func NewCasaApiClient(host string, username string, password string, opts Options, logger *zap.SugaredLogger) *CasaApiClient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	// the controller ships a self signed certificate, so verification is off unless configured
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: opts.InsecureSkipVerify,
			},
			TLSHandshakeTimeout: 10 * time.Second,
			DialContext: (&net.Dialer{
				Timeout: 5 * time.Second,
			}).DialContext,
		},
		Timeout: opts.Timeout,
	}

	baseUrl := strings.TrimRight(host, "/")
	if !strings.Contains(baseUrl, "://") {
		baseUrl = "https://" + baseUrl
	}

	return &CasaApiClient{
		Host:       host,
		username:   username,
		password:   password,
		baseUrl:    baseUrl,
		client:     httpClient,
		retryDelay: opts.RetryDelay,
		cookies:    make(map[string]string),
		logger:     logger,
	}
}

// SetHttpClient replaces the transport used for all device calls.
func (c *CasaApiClient) SetHttpClient(client *http.Client) {
	c.client = client
}

func (c *CasaApiClient) SetMetrics(m *Metrics) {
	c.metrics = m
}

// Login posts the credentials and keeps the returned session cookies.
func (c *CasaApiClient) Login(ctx context.Context) error {
	body := "username=" + url.QueryEscape(c.username) + "&password=" + url.QueryEscape(c.password)
	res, err := c.request(ctx, loginPath, "application/x-www-form-urlencoded", []byte(body))
	if err != nil {
		c.logger.Errorf("Login error: %v", err)
		return fmt.Errorf("login: %w", err)
	}
	if res.statusCode != http.StatusOK {
		c.logger.Errorf("Login failed with status %d", res.statusCode)
		return fmt.Errorf("%w: %w", ErrLoginFailed, &StatusError{Path: loginPath, StatusCode: res.statusCode})
	}
	c.logger.Debug("Login successful")
	return nil
}

// FetchSnapshot logs in and reads every object of the static read list.
// On any failure no partial snapshot is returned.
func (c *CasaApiClient) FetchSnapshot(ctx context.Context) (casaStructs.Snapshot, error) {
	if err := c.Login(ctx); err != nil {
		return casaStructs.Snapshot{}, err
	}

	res, err := c.jsonRpcRequest(ctx, casaJsonRpc.NewReadRequest(casaStructs.ReadIds))
	if err != nil {
		c.logger.Errorf("Fetch failed: %v", err)
		return casaStructs.Snapshot{}, fmt.Errorf("read: %w", err)
	}
	if !strings.Contains(res.contentType, "json") {
		return casaStructs.Snapshot{}, fmt.Errorf("%w: content type %q", ErrMalformedResponse, res.contentType)
	}

	snapshot, err := casaJsonRpc.ParseReadResult(res.body)
	if err != nil {
		return casaStructs.Snapshot{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	c.logger.Debugf("Read %d of %d objects", snapshot.Len(), len(casaStructs.ReadIds))
	return snapshot, nil
}

// Write logs in and sets a single object to value.
func (c *CasaApiClient) Write(ctx context.Context, id casaStructs.ObjectId, value int) error {
	if err := c.Login(ctx); err != nil {
		c.metrics.observeWrite(id, err)
		return err
	}

	c.logger.Infof("Write Request: %s", casaJsonRpc.FormatValue(id, value))
	res, err := c.jsonRpcRequest(ctx, casaJsonRpc.NewWriteRequest(id, value))
	if err != nil {
		c.logger.Errorf("Set value failed: %v", err)
		err = fmt.Errorf("write %s: %w", id, err)
	} else {
		c.logger.Debugf("Set value response: %s", res.body)
	}
	c.metrics.observeWrite(id, err)
	return err
}

func (c *CasaApiClient) jsonRpcRequest(ctx context.Context, request casaJsonRpc.JsonRPC) (response, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return response{}, err
	}
	c.logger.Debug("JsonRpc Request: ", string(payload))

	res, err := c.request(ctx, apiPath, "application/json", payload)
	if err != nil {
		return response{}, err
	}
	if res.statusCode != http.StatusOK {
		return response{}, &StatusError{Path: apiPath, StatusCode: res.statusCode}
	}
	return res, nil
}

// request posts payload to path, retrying once after a short delay when the
// device drops the connection.
func (c *CasaApiClient) request(ctx context.Context, path string, contentType string, payload []byte) (response, error) {
	if c.client == nil {
		return response{}, ErrNoSession
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := c.post(ctx, path, contentType, payload)
		if err == nil {
			c.metrics.observeRequest(path, res.statusCode)
			return res, nil
		}
		if !isDisconnect(err) {
			c.metrics.observeRequest(path, 0)
			return response{}, err
		}

		lastErr = err
		c.logger.Debugf("Server disconnected on %s (attempt %d): %v", path, attempt, err)
		if attempt == maxAttempts {
			break
		}
		c.metrics.observeRetry(path)

		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return response{}, ctx.Err()
		case <-timer.C:
		}
	}

	c.metrics.observeRequest(path, 0)
	c.logger.Errorf("Request error after retries: %v", lastErr)
	return response{}, fmt.Errorf("%w: %w", ErrDisconnected, lastErr)
}

func (c *CasaApiClient) post(ctx context.Context, path string, contentType string, payload []byte) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+path, bytes.NewReader(payload))
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Content-Type", contentType)
	for _, cookie := range c.sessionCookies() {
		req.AddCookie(cookie)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer res.Body.Close()

	c.storeCookies(res.Cookies())

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return response{}, err
	}
	return response{
		statusCode:  res.StatusCode,
		contentType: res.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

func (c *CasaApiClient) sessionCookies() []*http.Cookie {
	c.cookiesMu.Lock()
	defer c.cookiesMu.Unlock()
	cookies := make([]*http.Cookie, 0, len(c.cookies))
	for name, value := range c.cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	return cookies
}

func (c *CasaApiClient) storeCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	c.cookiesMu.Lock()
	defer c.cookiesMu.Unlock()
	for _, cookie := range cookies {
		c.cookies[cookie.Name] = cookie.Value
	}
}

func isDisconnect(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
