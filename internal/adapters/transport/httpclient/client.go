// Package httpclient implements the remote service contract over plain HTTP
// request/response.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/okian/bikewatch/internal/adapters/transport"
	"github.com/okian/bikewatch/pkg/logger"
)

const (
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 4 << 20
)

// Client wraps http.Client for one remote service base URL.
type Client struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
	closed  atomic.Bool
}

var _ transport.Transport = (*Client)(nil)

// New creates a client for baseURL, e.g. "http://host:9080/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("http-transport")
	}
	return c
}

// GetConfig performs GET {base}/config.
func (c *Client) GetConfig(ctx context.Context) ([]byte, error) {
	body, status, err := c.get(ctx, "/config", nil)
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, fmt.Errorf("%w: config: %d", transport.ErrUnexpectedStatus, status)
	}
	return body, nil
}

// GetData performs GET {base}/data/{device}.
func (c *Client) GetData(ctx context.Context, deviceID string) ([]byte, error) {
	body, status, err := c.get(ctx, "/data/"+url.PathEscape(deviceID), nil)
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, fmt.Errorf("%w: data: %d", transport.ErrUnexpectedStatus, status)
	}
	return body, nil
}

// GetHistory performs GET {base}/history/{device}?count=N.
func (c *Client) GetHistory(ctx context.Context, deviceID string, count int) ([]byte, error) {
	q := url.Values{"count": []string{strconv.Itoa(count)}}
	body, status, err := c.get(ctx, "/history/"+url.PathEscape(deviceID), q)
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, fmt.Errorf("%w: history: %d", transport.ErrUnexpectedStatus, status)
	}
	return body, nil
}

// GetWeatherSingleStation performs GET {base}/weather/{station}. The service
// withholds weather from anonymous callers, so 204, 401, 403 and 404 mean no
// data rather than failure.
func (c *Client) GetWeatherSingleStation(ctx context.Context, stationID int) ([]byte, bool, error) {
	body, status, err := c.get(ctx, "/weather/"+strconv.Itoa(stationID), nil)
	if err != nil {
		return nil, false, err
	}
	switch status {
	case http.StatusNoContent, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, false, nil
	}
	if !ok(status) {
		return nil, false, fmt.Errorf("%w: weather: %d", transport.ErrUnexpectedStatus, status)
	}
	return body, true, nil
}

// Close marks the client closed. Later calls fail with transport.ErrClosed.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	if c.closed.Load() {
		return nil, 0, transport.ErrClosed
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error(ctx, "failed to close response body", logger.Error(err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func ok(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
