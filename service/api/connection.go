package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	schemeHttps = "https"

	// how much of an error body is kept in the returned error
	maxErrorBodyBytes = 512
)

// ErrUnsupportedFrequency is returned when a provider has no bars at the requested frequency
var ErrUnsupportedFrequency = errors.New("unsupported bar frequency")

type Connection interface {
	Request(ctx context.Context, endpoint *url.URL) (*http.Response, error)
}

type ClientHost struct {
	client *http.Client
	host   string
}

type Client struct {
	Connection Connection
	ApiKey     string
}

func (conn *ClientHost) Request(ctx context.Context, endpoint *url.URL) (*http.Response, error) {
	endpoint.Scheme = schemeHttps
	endpoint.Host = conn.host

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error building request for %s: %w", conn.host, err)
	}

	// some providers refuse requests without a user agent
	req.Header.Set("User-Agent", "rc/1.0")

	return conn.client.Do(req)
}

func ClientFactory(host string, apiKey string, timeout time.Duration) *Client {
	client := &http.Client{
		Timeout: timeout,
	}

	clientHost := &ClientHost{
		client: client,
		host:   host,
	}

	return NewClient(clientHost, apiKey)
}

// NewClient wraps any connection, tests hand in a fake one
func NewClient(conn Connection, apiKey string) *Client {
	return &Client{
		Connection: conn,
		ApiKey:     apiKey,
	}
}

// ReadBody reads a response and closes it, failing on anything other than 200
func ReadBody(response *http.Response) ([]byte, error) {
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		if len(body) > maxErrorBodyBytes {
			body = body[:maxErrorBodyBytes]
		}
		return nil, &StatusError{StatusCode: response.StatusCode, Body: string(body)}
	}

	return body, nil
}

// StatusError is returned when a provider answers with a non 200 status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
