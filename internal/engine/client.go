package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/56kcloud/mb-client/internal/logging"
)

const (
	defaultUserAgent      = "mbclient/0.1"
	defaultRequestTimeout = 30 * time.Second
	retryMaxElapsed       = 30 * time.Second
	maxErrorBody          = 512
)

var errDecode = errors.New("decode response")

// Options configure a Client.
type Options struct {
	Host          string
	WebSocketHost string
	APIKey        string
	Timeout       time.Duration
	Logger        *slog.Logger
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the book engine REST API and its progress websocket.
type Client struct {
	baseURL   *url.URL
	wsURL     *url.URL
	apiKey    string
	http      *http.Client
	userAgent string
	logger    *slog.Logger

	// newBackoff returns a fresh policy per retried operation.
	newBackoff func() backoff.BackOff
}

// NewClient validates the hosts and builds a Client.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.Host, "http", "https")
	if err != nil {
		return nil, fmt.Errorf("engine host: %w", err)
	}
	ws, err := parseBaseURL(opts.WebSocketHost, "ws", "wss")
	if err != nil {
		return nil, fmt.Errorf("engine websocket host: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    base,
		wsURL:      ws,
		apiKey:     strings.TrimSpace(opts.APIKey),
		http:       httpClient,
		userAgent:  defaultUserAgent,
		logger:     logging.NewComponentLogger(opts.Logger, "engine"),
		newBackoff: newRetryBackoff,
	}, nil
}

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// CreateBook creates a book and returns it with its engine-assigned id.
func (c *Client) CreateBook(ctx context.Context, book Book) (Book, error) {
	var created Book
	if err := c.do(ctx, http.MethodPost, "/v1/books", book, &created); err != nil {
		return Book{}, err
	}
	if strings.TrimSpace(created.ID) == "" {
		return Book{}, remoteError(http.MethodPost, "/v1/books", errors.New("response has no book id"))
	}
	return created, nil
}

// RetrieveBook fetches one book.
func (c *Client) RetrieveBook(ctx context.Context, id string) (Book, error) {
	var book Book
	if err := c.do(ctx, http.MethodGet, bookPath(id), nil, &book); err != nil {
		return Book{}, err
	}
	return book, nil
}

// UpdateBook replaces the stored book with book.
func (c *Client) UpdateBook(ctx context.Context, book Book) (Book, error) {
	if strings.TrimSpace(book.ID) == "" {
		return Book{}, errors.New("update book: id is required")
	}
	var updated Book
	if err := c.do(ctx, http.MethodPut, bookPath(book.ID), book, &updated); err != nil {
		return Book{}, err
	}
	return updated, nil
}

// AddImage attaches image to a book.
func (c *Client) AddImage(ctx context.Context, bookID string, image Image) (Image, error) {
	var created Image
	if err := c.do(ctx, http.MethodPost, imagesPath(bookID), image, &created); err != nil {
		return Image{}, err
	}
	return created, nil
}

// ListImages returns the images attached to a book.
func (c *Client) ListImages(ctx context.Context, bookID string) ([]Image, error) {
	var images []Image
	if err := c.do(ctx, http.MethodGet, imagesPath(bookID), nil, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// RetrieveGalleon fetches the final layout document of a designed book.
func (c *Client) RetrieveGalleon(ctx context.Context, bookID string) (Galleon, error) {
	var galleon json.RawMessage
	if err := c.do(ctx, http.MethodGet, bookPath(bookID)+"/format/galleon", nil, &galleon); err != nil {
		return nil, err
	}
	return Galleon(galleon), nil
}

// GetDesignOptions lists the densities the engine can design for the given inputs.
func (c *Client) GetDesignOptions(ctx context.Context, bookSize string, imageCount int, imageFilteringLevel string) (DesignOptions, error) {
	path := "/v1/designoptions/booksize/" + url.PathEscape(bookSize) +
		"/imagecount/" + strconv.Itoa(imageCount) +
		"/imagefilteringlevel/" + url.PathEscape(imageFilteringLevel)
	var options DesignOptions
	if err := c.do(ctx, http.MethodGet, path, nil, &options); err != nil {
		return DesignOptions{}, err
	}
	return options, nil
}

// Ping reports whether the engine host answers and accepts the API key.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, &url.URL{Path: "/"}, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return remoteError(http.MethodGet, "/", err)
	}
	_ = resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden,
		resp.StatusCode >= http.StatusInternalServerError:
		return &APIError{Method: http.MethodGet, Path: "/", StatusCode: resp.StatusCode}
	}
	return nil
}

// BaseURL returns the REST base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func bookPath(id string) string {
	return "/v1/books/" + url.PathEscape(id)
}

func imagesPath(bookID string) string {
	return "/v1/images/book/" + url.PathEscape(bookID)
}

// do runs one request. GETs are retried on transport errors, 429 and 5xx.
func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	if c == nil {
		return errors.New("engine client is nil")
	}
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
	}

	attempt := func() error {
		return c.doOnce(ctx, method, path, payload, dest)
	}
	if method != http.MethodGet {
		return attempt()
	}

	attempts := 0
	return backoff.Retry(func() error {
		attempts++
		err := attempt()
		if err == nil || !retryable(ctx, err) {
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}
		c.logger.Debug("retrying engine request",
			logging.String("method", method),
			logging.String("path", path),
			logging.Int("attempt", attempts),
			logging.Error(err),
		)
		return err
	}, backoff.WithContext(c.newBackoff(), ctx))
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, dest any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, &url.URL{Path: path}, reader)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return remoteError(method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return remoteError(method, path, fmt.Errorf("%w: %w", errDecode, err))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, rel *url.URL, body io.Reader) (*http.Request, error) {
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "API-Key "+c.apiKey)
	}
	return req, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, errDecode)
}

func parseBaseURL(raw string, schemes ...string) (*url.URL, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return nil, errors.New("host is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse %q: missing host", raw)
	}
	for _, scheme := range schemes {
		if strings.EqualFold(u.Scheme, scheme) {
			u.Path = ""
			u.RawQuery = ""
			u.Fragment = ""
			return u, nil
		}
	}
	return nil, fmt.Errorf("parse %q: scheme must be one of %s", raw, strings.Join(schemes, "/"))
}
