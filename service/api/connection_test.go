package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConnection struct {
	endpoint *url.URL
}

func (c *recordingConnection) Request(_ context.Context, endpoint *url.URL) (*http.Response, error) {
	c.endpoint = endpoint
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}"))}, nil
}

func TestNewClientKeepsConnection(t *testing.T) {
	conn := &recordingConnection{}
	c := NewClient(conn, "key")

	_, err := c.Connection.Request(context.Background(), &url.URL{Path: "query"})
	require.NoError(t, err)
	assert.Equal(t, "query", conn.endpoint.Path)
	assert.Equal(t, "key", c.ApiKey)
}

func TestReadBody(t *testing.T) {
	ok := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("hello"))}
	body, err := ReadBody(ok)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	bad := &http.Response{StatusCode: http.StatusTooManyRequests, Body: io.NopCloser(strings.NewReader(strings.Repeat("x", 1000)))}
	_, err = ReadBody(bad)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Len(t, statusErr.Body, maxErrorBodyBytes)
}
