package ghclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const acceptHeader = "application/vnd.github.v3+json"

var ErrForeignURL = errors.New("url outside the api host")

// Client talks to the GitHub REST API. Calls are made exactly once: there
// is no retry layer, failures are reported through Result.
type Client struct {
	apiUrl string
	client *http.Client
	logger *slog.Logger
}

type ClientOpt func(*Client)

func WithHTTPClient(c *http.Client) ClientOpt {
	return func(cl *Client) {
		cl.client = c
	}
}

func NewClient(apiUrl string, logger *slog.Logger, opts ...ClientOpt) *Client {
	c := &Client{
		apiUrl: strings.TrimSuffix(apiUrl, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// do performs one request; out, when non-nil, receives the decoded
// body of a 2xx response. The response headers are returned for
// pagination.
func (c *Client) do(ctx context.Context, auth AuthContext, method, path string, body, out any) (Result, http.Header) {
	res := Result{Method: method, Path: path}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			res.Err = err
			return res, nil
		}
		reader = bytes.NewReader(b)
	}

	url := c.apiUrl + path
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		// pagination links are absolute; the token must never leave the api host
		if !strings.HasPrefix(path, c.apiUrl+"/") {
			res.Err = fmt.Errorf("%w: %s", ErrForeignURL, path)
			return res, nil
		}
		url = path
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		res.Err = err
		return res, nil
	}
	req.Header.Set("Authorization", "Bearer "+auth.Token)
	req.Header.Set("Accept", acceptHeader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		res.Err = err
		return res, nil
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	c.logger.Debug("github api call", "method", method, "path", path, "status", resp.StatusCode)

	if out != nil && res.OK() {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			res.Err = fmt.Errorf("decoding response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}

	return res, resp.Header
}
